package playto

// SessionEventType labels playback lifecycle events emitted by sessions.
type SessionEventType string

const (
	EventPlaybackStart    SessionEventType = "playback.start"
	EventPlaybackProgress SessionEventType = "playback.progress"
	EventPlaybackStop     SessionEventType = "playback.stop"
	EventSessionEnded     SessionEventType = "session.ended"
)

// SessionEvent is a playback lifecycle notification pushed to subscribers.
type SessionEvent struct {
	Type          SessionEventType `json:"type"`
	SessionID     string           `json:"sessionId"`
	DeviceID      string           `json:"deviceId"`
	DeviceName    string           `json:"deviceName,omitempty"`
	ItemID        string           `json:"itemId,omitempty"`
	ItemName      string           `json:"itemName,omitempty"`
	PositionTicks int64            `json:"positionTicks,omitempty"`
	RunTimeTicks  int64            `json:"runTimeTicks,omitempty"`
}

// EventSink receives session events for fan-out (websocket push).
type EventSink interface {
	Publish(event SessionEvent)
}

// ActivityRecorder persists the session activity trail.
type ActivityRecorder interface {
	RecordSessionStarted(sessionID, deviceID, deviceName string)
	RecordPlay(sessionID string, itemIDs []string)
	RecordSessionEnded(sessionID string)
}

// NopSink drops events; used when no subscriber transport is wired.
type NopSink struct{}

func (NopSink) Publish(SessionEvent) {}
