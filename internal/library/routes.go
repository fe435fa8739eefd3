package library

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/strefethen/playto-hub-go/internal/api"
	"github.com/strefethen/playto-hub-go/internal/apperrors"
)

// RegisterRoutes wires library item routes to the router.
func RegisterRoutes(router chi.Router, service *Service) {
	router.Method(http.MethodGet, "/v1/library/items", api.Handler(listItems(service)))
	router.Method(http.MethodGet, "/v1/library/items/{item_id}", api.Handler(getItem(service)))
	router.Method(http.MethodPut, "/v1/library/items", api.Handler(upsertItem(service)))
	router.Method(http.MethodDelete, "/v1/library/items/{item_id}", api.Handler(deleteItem(service)))
}

// listItems returns every library item sorted by name.
// GET /v1/library/items
func listItems(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		return api.WriteList(w, "/v1/library/items", service.List(), false)
	}
}

// getItem returns a single library item.
// GET /v1/library/items/{item_id}
func getItem(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		itemID := chi.URLParam(r, "item_id")
		item := service.Get(itemID)
		if item == nil {
			return apperrors.NewAppError(apperrors.ErrorCodeItemNotFound, "Item not found", 404, map[string]any{
				"item_id": itemID,
			}, nil)
		}
		return api.WriteResource(w, http.StatusOK, item)
	}
}

// upsertItem creates or replaces a library item.
// PUT /v1/library/items
func upsertItem(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		var item Item
		if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
			return apperrors.NewValidationError("invalid request body", nil)
		}
		if err := service.Upsert(&item); err != nil {
			return apperrors.NewValidationError(err.Error(), nil)
		}
		return api.WriteResource(w, http.StatusOK, service.Get(item.ID))
	}
}

// deleteItem removes a library item.
// DELETE /v1/library/items/{item_id}
func deleteItem(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		itemID := chi.URLParam(r, "item_id")
		if !service.Delete(itemID) {
			return apperrors.NewAppError(apperrors.ErrorCodeItemNotFound, "Item not found", 404, map[string]any{
				"item_id": itemID,
			}, nil)
		}
		return api.WriteAction(w, http.StatusOK, map[string]any{
			"object":  "item",
			"id":      itemID,
			"deleted": true,
		})
	}
}
