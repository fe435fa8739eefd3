package activity

import (
	"fmt"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Default configuration values
const (
	DefaultRetentionDays   = 90
	DefaultPruneInterval   = 24 * time.Hour
	DefaultQueryLimit      = 100
	MaxQueryLimit          = 1000
	MaxConsecutiveFailures = 3
)

// Service provides activity log management.
type Service struct {
	repo                *Repository
	retentionDays       int
	pruneInterval       time.Duration
	defaultQueryLimit   int
	maxQueryLimit       int
	stopCh              chan struct{}
	stopOnce            sync.Once
	wg                  sync.WaitGroup
	healthy             bool
	healthMu            sync.RWMutex
	consecutiveFailures int
}

// NewService creates a new activity service.
// Accepts a DBPair for optimal SQLite concurrency with separate reader/writer pools.
func NewService(dbPair DBPair) *Service {
	return &Service{
		repo:              NewRepository(dbPair),
		retentionDays:     DefaultRetentionDays,
		pruneInterval:     DefaultPruneInterval,
		defaultQueryLimit: DefaultQueryLimit,
		maxQueryLimit:     MaxQueryLimit,
		stopCh:            make(chan struct{}),
		healthy:           true,
	}
}

// RecordEvent writes a new activity event and tracks health.
func (s *Service) RecordEvent(input WriteEventInput) (*Event, error) {
	if input.Level == nil {
		level := EventLevelInfo
		input.Level = &level
	}

	event, err := s.repo.InsertEvent(input)
	if err != nil {
		s.recordFailure()
		return nil, fmt.Errorf("failed to record activity event: %w", err)
	}

	s.recordSuccess()
	return event, nil
}

// QueryEvents retrieves events with filters and pagination.
// Clamps limit to maxQueryLimit.
// Returns: events, total count, hasMore flag, error.
func (s *Service) QueryEvents(filters EventQueryFilters) ([]Event, int, bool, error) {
	if filters.Limit == 0 {
		filters.Limit = s.defaultQueryLimit
	}
	if filters.Limit > s.maxQueryLimit {
		filters.Limit = s.maxQueryLimit
	}

	events, total, err := s.repo.QueryEvents(filters)
	if err != nil {
		s.recordFailure()
		return nil, 0, false, fmt.Errorf("failed to query activity events: %w", err)
	}

	s.recordSuccess()

	hasMore := filters.Offset+len(events) < total

	return events, total, hasMore, nil
}

// GetEvent retrieves a single event by ID.
func (s *Service) GetEvent(eventID string) (*Event, error) {
	event, err := s.repo.GetEvent(eventID)
	if err != nil {
		s.recordFailure()
		return nil, fmt.Errorf("failed to get activity event: %w", err)
	}

	if event == nil {
		return nil, &EventNotFoundError{EventID: eventID}
	}

	s.recordSuccess()
	return event, nil
}

// ListSessions returns recent playback session records.
func (s *Service) ListSessions(limit int) ([]SessionRecord, error) {
	records, err := s.repo.ListSessions(limit)
	if err != nil {
		s.recordFailure()
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	s.recordSuccess()
	return records, nil
}

// RecordSessionStarted persists a session row plus a SESSION_STARTED event.
func (s *Service) RecordSessionStarted(sessionID, deviceID, deviceName string) {
	if err := s.repo.InsertSession(sessionID, deviceID, deviceName); err != nil {
		log.Printf("record session start: %v", err)
		s.recordFailure()
		return
	}
	_, err := s.RecordEvent(WriteEventInput{
		Type:      string(EventSessionStarted),
		SessionID: &sessionID,
		DeviceID:  &deviceID,
		Message:   "session started for " + deviceName,
	})
	if err != nil {
		log.Printf("record session start event: %v", err)
	}
}

// RecordPlay writes one ITEM_PLAYED event per queued item.
func (s *Service) RecordPlay(sessionID string, itemIDs []string) {
	for _, itemID := range itemIDs {
		id := itemID
		_, err := s.RecordEvent(WriteEventInput{
			Type:      string(EventItemPlayed),
			SessionID: &sessionID,
			ItemID:    &id,
			Message:   "queued item " + id,
			Payload:   map[string]any{"items": strings.Join(itemIDs, ",")},
		})
		if err != nil {
			log.Printf("record play event: %v", err)
			return
		}
	}
}

// RecordSessionEnded stamps the session row and writes a SESSION_ENDED event.
func (s *Service) RecordSessionEnded(sessionID string) {
	if err := s.repo.EndSession(sessionID); err != nil {
		log.Printf("record session end: %v", err)
		s.recordFailure()
		return
	}
	_, err := s.RecordEvent(WriteEventInput{
		Type:      string(EventSessionEnded),
		SessionID: &sessionID,
		Message:   "session ended",
	})
	if err != nil {
		log.Printf("record session end event: %v", err)
	}
}

// StartPruneJob starts the background prune job.
// Runs immediately on start, then at pruneInterval.
func (s *Service) StartPruneJob() {
	log.Printf("Starting activity prune job (interval: %v, retention: %d days)",
		s.pruneInterval, s.retentionDays)

	s.wg.Add(1)
	go s.runPruneLoop()
}

// StopPruneJob stops the background prune job.
func (s *Service) StopPruneJob() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

// runPruneLoop is the background goroutine that periodically prunes old events.
func (s *Service) runPruneLoop() {
	defer s.wg.Done()

	if count, err := s.Prune(); err != nil {
		log.Printf("Error pruning activity events on start: %v", err)
	} else if count > 0 {
		log.Printf("Pruned %d activity events on startup", count)
	}

	ticker := time.NewTicker(s.pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			if count, err := s.Prune(); err != nil {
				log.Printf("Error pruning activity events: %v", err)
			} else if count > 0 {
				log.Printf("Pruned %d activity events", count)
			}
		}
	}
}

// Prune manually triggers pruning, returns count deleted.
func (s *Service) Prune() (int64, error) {
	count, err := s.repo.PruneOldEvents(s.retentionDays)
	if err != nil {
		s.recordFailure()
		return 0, fmt.Errorf("failed to prune activity events: %w", err)
	}

	s.recordSuccess()
	return count, nil
}

// IsHealthy returns current health status.
func (s *Service) IsHealthy() bool {
	s.healthMu.RLock()
	defer s.healthMu.RUnlock()
	return s.healthy
}

func (s *Service) recordSuccess() {
	s.healthMu.Lock()
	defer s.healthMu.Unlock()
	s.consecutiveFailures = 0
	s.healthy = true
}

func (s *Service) recordFailure() {
	s.healthMu.Lock()
	defer s.healthMu.Unlock()
	s.consecutiveFailures++
	if s.consecutiveFailures >= MaxConsecutiveFailures {
		s.healthy = false
	}
}

// EventNotFoundError is returned when an activity event is not found.
type EventNotFoundError struct {
	EventID string
}

func (e *EventNotFoundError) Error() string {
	return fmt.Sprintf("activity event not found: %s", e.EventID)
}
