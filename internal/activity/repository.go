package activity

import (
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EventLevel represents the severity level of an activity event.
type EventLevel string

const (
	EventLevelDebug EventLevel = "DEBUG"
	EventLevelInfo  EventLevel = "INFO"
	EventLevelWarn  EventLevel = "WARN"
	EventLevelError EventLevel = "ERROR"
)

// Event represents a single activity event.
type Event struct {
	EventID   string         `json:"event_id"`
	Timestamp time.Time      `json:"timestamp"`
	Type      string         `json:"type"`
	Level     EventLevel     `json:"level"`
	RequestID *string        `json:"request_id,omitempty"`
	SessionID *string        `json:"session_id,omitempty"`
	DeviceID  *string        `json:"device_id,omitempty"`
	ItemID    *string        `json:"item_id,omitempty"`
	Message   string         `json:"message"`
	Payload   map[string]any `json:"payload"`
}

// WriteEventInput contains the fields for creating a new activity event.
type WriteEventInput struct {
	Type      string         `json:"type"`
	Level     *EventLevel    `json:"level,omitempty"`
	RequestID *string        `json:"request_id,omitempty"`
	SessionID *string        `json:"session_id,omitempty"`
	DeviceID  *string        `json:"device_id,omitempty"`
	ItemID    *string        `json:"item_id,omitempty"`
	Message   string         `json:"message"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// EventQueryFilters contains optional filters for querying events.
type EventQueryFilters struct {
	Type      *string     `json:"type,omitempty"`
	Level     *EventLevel `json:"level,omitempty"`
	StartDate *string     `json:"start_date,omitempty"` // ISO 8601 format
	EndDate   *string     `json:"end_date,omitempty"`   // ISO 8601 format
	SessionID *string     `json:"session_id,omitempty"`
	DeviceID  *string     `json:"device_id,omitempty"`
	ItemID    *string     `json:"item_id,omitempty"`
	Limit     int         `json:"limit,omitempty"`
	Offset    int         `json:"offset,omitempty"`
}

// SessionRecord is a row in the playback_sessions table.
type SessionRecord struct {
	SessionID  string     `json:"session_id"`
	DeviceID   string     `json:"device_id"`
	DeviceName string     `json:"device_name,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
}

// DBPair interface for dependency injection (matches db.DBPair).
type DBPair interface {
	Reader() *sql.DB
	Writer() *sql.DB
}

// Repository handles database operations for the activity log.
// Uses separate reader/writer connections for optimal SQLite concurrency.
type Repository struct {
	reader *sql.DB // For SELECT queries
	writer *sql.DB // For INSERT/UPDATE/DELETE
}

// NewRepository creates a new activity Repository.
func NewRepository(dbPair DBPair) *Repository {
	return &Repository{reader: dbPair.Reader(), writer: dbPair.Writer()}
}

// InsertEvent writes a new activity event to the database.
// Generates UUID, captures timestamp, defaults level to INFO.
func (r *Repository) InsertEvent(input WriteEventInput) (*Event, error) {
	eventID := uuid.New().String()
	timestamp := nowISO()

	level := EventLevelInfo
	if input.Level != nil {
		level = *input.Level
	}

	payload := input.Payload
	if payload == nil {
		payload = map[string]any{}
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	_, err = r.writer.Exec(`
		INSERT INTO activity_events (event_id, timestamp, type, level, request_id, session_id, device_id, item_id, message, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, eventID, timestamp, input.Type, string(level), input.RequestID, input.SessionID, input.DeviceID, input.ItemID, input.Message, string(payloadJSON))
	if err != nil {
		return nil, err
	}

	return r.GetEvent(eventID)
}

// GetEvent retrieves a single event by ID.
// Returns nil, nil if not found.
func (r *Repository) GetEvent(eventID string) (*Event, error) {
	row := r.reader.QueryRow(`
		SELECT event_id, timestamp, type, level, request_id, session_id, device_id, item_id, message, payload
		FROM activity_events
		WHERE event_id = ?
	`, eventID)

	return r.scanEvent(row)
}

// QueryEvents retrieves events matching filters with pagination.
// Builds WHERE clause dynamically based on provided filters.
// Orders by timestamp DESC (newest first).
// Returns events, total count, and error.
func (r *Repository) QueryEvents(filters EventQueryFilters) ([]Event, int, error) {
	whereClause, args := r.buildWhereClause(filters)

	countQuery := "SELECT COUNT(*) FROM activity_events " + whereClause
	var total int
	err := r.reader.QueryRow(countQuery, args...).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = 100 // default limit
	}

	query := `
		SELECT event_id, timestamp, type, level, request_id, session_id, device_id, item_id, message, payload
		FROM activity_events
		` + whereClause + `
		ORDER BY timestamp DESC
		LIMIT ? OFFSET ?
	`
	queryArgs := append(args, limit, filters.Offset)

	rows, err := r.reader.Query(query, queryArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		event, err := r.scanEventRows(rows)
		if err != nil {
			return nil, 0, err
		}
		events = append(events, *event)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	if events == nil {
		events = []Event{}
	}

	return events, total, nil
}

// CountEvents counts total events matching filters (for pagination).
func (r *Repository) CountEvents(filters EventQueryFilters) (int, error) {
	whereClause, args := r.buildWhereClause(filters)

	query := "SELECT COUNT(*) FROM activity_events " + whereClause

	var count int
	err := r.reader.QueryRow(query, args...).Scan(&count)
	if err != nil {
		return 0, err
	}

	return count, nil
}

// PruneOldEvents deletes events older than retentionDays.
// Returns number of rows deleted.
func (r *Repository) PruneOldEvents(retentionDays int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays).Format(time.RFC3339)

	result, err := r.writer.Exec(`
		DELETE FROM activity_events
		WHERE timestamp < ?
	`, cutoff)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

// InsertSession records a new playback session row.
func (r *Repository) InsertSession(sessionID, deviceID, deviceName string) error {
	_, err := r.writer.Exec(`
		INSERT OR REPLACE INTO playback_sessions (session_id, device_id, device_name, started_at, ended_at)
		VALUES (?, ?, ?, ?, NULL)
	`, sessionID, deviceID, deviceName, nowISO())
	return err
}

// EndSession stamps ended_at on a session row. Unknown session IDs are a no-op.
func (r *Repository) EndSession(sessionID string) error {
	_, err := r.writer.Exec(`
		UPDATE playback_sessions SET ended_at = ? WHERE session_id = ? AND ended_at IS NULL
	`, nowISO(), sessionID)
	return err
}

// ListSessions returns recent session rows, newest first.
func (r *Repository) ListSessions(limit int) ([]SessionRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.reader.Query(`
		SELECT session_id, device_id, device_name, started_at, ended_at
		FROM playback_sessions
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []SessionRecord{}
	for rows.Next() {
		var record SessionRecord
		var deviceName sql.NullString
		var startedAt string
		var endedAt sql.NullString
		if err := rows.Scan(&record.SessionID, &record.DeviceID, &deviceName, &startedAt, &endedAt); err != nil {
			return nil, err
		}
		if deviceName.Valid {
			record.DeviceName = deviceName.String
		}
		record.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
		if endedAt.Valid {
			if parsed, err := time.Parse(time.RFC3339, endedAt.String); err == nil {
				record.EndedAt = &parsed
			}
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// buildWhereClause builds a dynamic WHERE clause based on provided filters.
func (r *Repository) buildWhereClause(filters EventQueryFilters) (string, []any) {
	conditions := []string{}
	args := []any{}

	if filters.Type != nil {
		conditions = append(conditions, "type = ?")
		args = append(args, *filters.Type)
	}
	if filters.Level != nil {
		conditions = append(conditions, "level = ?")
		args = append(args, string(*filters.Level))
	}
	if filters.SessionID != nil {
		conditions = append(conditions, "session_id = ?")
		args = append(args, *filters.SessionID)
	}
	if filters.DeviceID != nil {
		conditions = append(conditions, "device_id = ?")
		args = append(args, *filters.DeviceID)
	}
	if filters.ItemID != nil {
		conditions = append(conditions, "item_id = ?")
		args = append(args, *filters.ItemID)
	}
	if filters.StartDate != nil {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, *filters.StartDate)
	}
	if filters.EndDate != nil {
		conditions = append(conditions, "timestamp <= ?")
		args = append(args, *filters.EndDate)
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	return whereClause, args
}

func (r *Repository) scanEvent(row *sql.Row) (*Event, error) {
	var event Event
	var timestamp string
	var level string
	var requestID sql.NullString
	var sessionID sql.NullString
	var deviceID sql.NullString
	var itemID sql.NullString
	var payloadJSON string

	err := row.Scan(
		&event.EventID,
		&timestamp,
		&event.Type,
		&level,
		&requestID,
		&sessionID,
		&deviceID,
		&itemID,
		&event.Message,
		&payloadJSON,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return r.parseEvent(&event, timestamp, level, requestID, sessionID, deviceID, itemID, payloadJSON)
}

func (r *Repository) scanEventRows(rows *sql.Rows) (*Event, error) {
	var event Event
	var timestamp string
	var level string
	var requestID sql.NullString
	var sessionID sql.NullString
	var deviceID sql.NullString
	var itemID sql.NullString
	var payloadJSON string

	err := rows.Scan(
		&event.EventID,
		&timestamp,
		&event.Type,
		&level,
		&requestID,
		&sessionID,
		&deviceID,
		&itemID,
		&event.Message,
		&payloadJSON,
	)
	if err != nil {
		return nil, err
	}

	return r.parseEvent(&event, timestamp, level, requestID, sessionID, deviceID, itemID, payloadJSON)
}

func (r *Repository) parseEvent(event *Event, timestamp, level string, requestID, sessionID, deviceID, itemID sql.NullString, payloadJSON string) (*Event, error) {
	var err error
	event.Timestamp, err = time.Parse(time.RFC3339, timestamp)
	if err != nil {
		event.Timestamp, _ = time.Parse("2006-01-02 15:04:05", timestamp)
	}

	event.Level = EventLevel(level)

	if requestID.Valid {
		event.RequestID = &requestID.String
	}
	if sessionID.Valid {
		event.SessionID = &sessionID.String
	}
	if deviceID.Valid {
		event.DeviceID = &deviceID.String
	}
	if itemID.Valid {
		event.ItemID = &itemID.String
	}

	if err := json.Unmarshal([]byte(payloadJSON), &event.Payload); err != nil {
		return nil, err
	}

	return event, nil
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}
