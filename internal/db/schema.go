package db

const schemaSQL = `
-- ===========================================================================
-- PLAYBACK SESSIONS
-- ===========================================================================

CREATE TABLE IF NOT EXISTS playback_sessions (
  session_id TEXT PRIMARY KEY,
  device_id TEXT NOT NULL,
  device_name TEXT,
  started_at TEXT NOT NULL,
  ended_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_playback_sessions_device ON playback_sessions(device_id);
CREATE INDEX IF NOT EXISTS idx_playback_sessions_started ON playback_sessions(started_at DESC);

-- ===========================================================================
-- ACTIVITY LOG
-- ===========================================================================

CREATE TABLE IF NOT EXISTS activity_events (
  event_id TEXT PRIMARY KEY,
  timestamp TEXT NOT NULL,
  type TEXT NOT NULL,
  level TEXT NOT NULL,
  request_id TEXT,
  session_id TEXT,
  device_id TEXT,
  item_id TEXT,
  message TEXT NOT NULL,
  payload TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_activity_events_timestamp ON activity_events(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_activity_events_type ON activity_events(type);
CREATE INDEX IF NOT EXISTS idx_activity_events_level ON activity_events(level);
CREATE INDEX IF NOT EXISTS idx_activity_events_session ON activity_events(session_id) WHERE session_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_activity_events_device ON activity_events(device_id) WHERE device_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_activity_events_item ON activity_events(item_id) WHERE item_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_activity_events_timestamp_level ON activity_events(timestamp DESC, level);
`
