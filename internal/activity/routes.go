package activity

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/strefethen/playto-hub-go/internal/api"
	"github.com/strefethen/playto-hub-go/internal/apperrors"
)

// validEventLevels defines all valid activity event levels.
var validEventLevels = map[string]EventLevel{
	"DEBUG": EventLevelDebug,
	"INFO":  EventLevelInfo,
	"WARN":  EventLevelWarn,
	"ERROR": EventLevelError,
}

// RegisterRoutes wires activity routes to the router.
func RegisterRoutes(router chi.Router, service *Service) {
	router.Method(http.MethodGet, "/v1/activity/events", api.Handler(queryEvents(service)))
	router.Method(http.MethodGet, "/v1/activity/events/{event_id}", api.Handler(getEvent(service)))
	router.Method(http.MethodGet, "/v1/activity/sessions", api.Handler(listSessions(service)))
}

// queryEvents retrieves activity events with optional filters.
// GET /v1/activity/events
func queryEvents(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		filters, err := parseQueryFilters(r)
		if err != nil {
			return err
		}

		events, _, hasMore, err := service.QueryEvents(filters)
		if err != nil {
			return apperrors.NewInternalError("Failed to query activity events")
		}

		return api.WriteList(w, "/v1/activity/events", events, hasMore)
	}
}

// getEvent retrieves a single activity event by ID.
// GET /v1/activity/events/{event_id}
func getEvent(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		eventID := chi.URLParam(r, "event_id")

		event, err := service.GetEvent(eventID)
		if err != nil {
			var notFoundErr *EventNotFoundError
			if errors.As(err, &notFoundErr) {
				return apperrors.NewAppError(apperrors.ErrorCodeEventNotFound, "Event not found", 404, map[string]any{
					"event_id": eventID,
				}, nil)
			}
			return apperrors.NewInternalError("Failed to get activity event")
		}

		return api.WriteResource(w, http.StatusOK, event)
	}
}

// listSessions returns recorded playback sessions, newest first.
// GET /v1/activity/sessions
func listSessions(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		limit := 0
		if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
			parsed, err := strconv.Atoi(limitStr)
			if err != nil || parsed < 1 || parsed > MaxQueryLimit {
				return apperrors.NewValidationError("invalid limit, must be between 1 and 1000", map[string]any{
					"limit": limitStr,
				})
			}
			limit = parsed
		}

		records, err := service.ListSessions(limit)
		if err != nil {
			return apperrors.NewInternalError("Failed to list sessions")
		}

		return api.WriteList(w, "/v1/activity/sessions", records, false)
	}
}

// parseQueryFilters extracts and validates query parameters for event filtering.
func parseQueryFilters(r *http.Request) (EventQueryFilters, error) {
	filters := EventQueryFilters{
		Limit:  DefaultQueryLimit,
		Offset: 0,
	}

	query := r.URL.Query()

	if from := query.Get("from"); from != "" {
		if _, err := time.Parse(time.RFC3339, from); err != nil {
			return filters, apperrors.NewValidationError("invalid 'from' datetime format, expected ISO 8601", map[string]any{"from": from})
		}
		filters.StartDate = &from
	}

	if to := query.Get("to"); to != "" {
		if _, err := time.Parse(time.RFC3339, to); err != nil {
			return filters, apperrors.NewValidationError("invalid 'to' datetime format, expected ISO 8601", map[string]any{"to": to})
		}
		filters.EndDate = &to
	}

	if eventType := query.Get("type"); eventType != "" {
		filters.Type = &eventType
	}

	if level := query.Get("level"); level != "" {
		parsedLevel, ok := validEventLevels[level]
		if !ok {
			return filters, apperrors.NewValidationError("invalid level", map[string]any{
				"level":        level,
				"valid_levels": []string{"DEBUG", "INFO", "WARN", "ERROR"},
			})
		}
		filters.Level = &parsedLevel
	}

	if sessionID := query.Get("session_id"); sessionID != "" {
		filters.SessionID = &sessionID
	}
	if deviceID := query.Get("device_id"); deviceID != "" {
		filters.DeviceID = &deviceID
	}
	if itemID := query.Get("item_id"); itemID != "" {
		filters.ItemID = &itemID
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 || limit > MaxQueryLimit {
			return filters, apperrors.NewValidationError("invalid limit, must be between 1 and 1000", map[string]any{
				"limit": limitStr,
			})
		}
		filters.Limit = limit
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil || offset < 0 {
			return filters, apperrors.NewValidationError("invalid offset, must be >= 0", map[string]any{
				"offset": offsetStr,
			})
		}
		filters.Offset = offset
	}

	return filters, nil
}
