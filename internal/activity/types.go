package activity

// EventType represents the type of activity event.
type EventType string

const (
	EventSessionStarted   EventType = "SESSION_STARTED"
	EventSessionEnded     EventType = "SESSION_ENDED"
	EventPlaybackStarted  EventType = "PLAYBACK_STARTED"
	EventPlaybackStopped  EventType = "PLAYBACK_STOPPED"
	EventItemPlayed       EventType = "ITEM_PLAYED"
	EventDeviceDiscovered EventType = "DEVICE_DISCOVERED"
	EventDeviceOffline    EventType = "DEVICE_OFFLINE"
	EventSystemStartup    EventType = "SYSTEM_STARTUP"
	EventSystemError      EventType = "SYSTEM_ERROR"
)

// Alias constants to match new naming convention while preserving compatibility
// with existing code that uses EventLevel* prefix.
const (
	LevelDebug = EventLevelDebug
	LevelInfo  = EventLevelInfo
	LevelWarn  = EventLevelWarn
	LevelError = EventLevelError
)
