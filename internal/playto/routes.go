package playto

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/strefethen/playto-hub-go/internal/api"
	"github.com/strefethen/playto-hub-go/internal/apperrors"
)

// RegisterRoutes wires the session control API to the router.
func RegisterRoutes(router chi.Router, manager *Manager) {
	router.Method(http.MethodGet, "/v1/sessions", api.Handler(listSessions(manager)))
	router.Method(http.MethodGet, "/v1/sessions/{session_id}", api.Handler(getSession(manager)))
	router.Method(http.MethodGet, "/v1/sessions/{session_id}/capabilities", api.Handler(getCapabilities(manager)))
	router.Method(http.MethodPost, "/v1/sessions/{session_id}/play", api.Handler(playSession(manager)))
	router.Method(http.MethodPost, "/v1/sessions/{session_id}/playstate/{command}", api.Handler(playstateCommand(manager)))
	router.Method(http.MethodPost, "/v1/sessions/{session_id}/volume", api.Handler(volumeCommand(manager)))
	router.Method(http.MethodPost, "/v1/sessions/{session_id}/playlist", api.Handler(setPlaylistIndex(manager)))
	router.Method(http.MethodPost, "/v1/sessions/{session_id}/streams", api.Handler(setStreamIndices(manager)))
}

// listSessions returns a snapshot of every active session.
// GET /v1/sessions
func listSessions(manager *Manager) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		sessions := manager.Sessions()
		states := make([]State, 0, len(sessions))
		for _, session := range sessions {
			states = append(states, session.Snapshot())
		}
		return api.WriteList(w, "/v1/sessions", states, false)
	}
}

// getSession returns a single session snapshot.
// GET /v1/sessions/{session_id}
func getSession(manager *Manager) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		session, err := requireSession(manager, r)
		if err != nil {
			return err
		}
		return api.WriteResource(w, http.StatusOK, session.Snapshot())
	}
}

// getCapabilities reports what the bound renderer can do.
// GET /v1/sessions/{session_id}/capabilities
func getCapabilities(manager *Manager) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		session, err := requireSession(manager, r)
		if err != nil {
			return err
		}
		return api.WriteResource(w, http.StatusOK, session.Capabilities())
	}
}

// playRequest is the body for POST /v1/sessions/{session_id}/play.
type playRequest struct {
	ItemIDs             []string `json:"item_ids"`
	Mode                string   `json:"mode,omitempty"`
	StartPositionTicks  int64    `json:"start_position_ticks,omitempty"`
	MediaSourceID       string   `json:"media_source_id,omitempty"`
	AudioStreamIndex    *int     `json:"audio_stream_index,omitempty"`
	SubtitleStreamIndex *int     `json:"subtitle_stream_index,omitempty"`
}

// playSession queues items on the session.
// POST /v1/sessions/{session_id}/play
func playSession(manager *Manager) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		session, err := requireSession(manager, r)
		if err != nil {
			return err
		}

		var body playRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return apperrors.NewValidationError("invalid request body", nil)
		}
		if len(body.ItemIDs) == 0 {
			return apperrors.NewValidationError("item_ids is required", nil)
		}

		cmd := NewPlayCommand(body.ItemIDs)
		cmd.StartPositionTicks = body.StartPositionTicks
		cmd.MediaSourceID = body.MediaSourceID
		if body.AudioStreamIndex != nil {
			cmd.AudioStreamIndex = *body.AudioStreamIndex
		}
		if body.SubtitleStreamIndex != nil {
			cmd.SubtitleStreamIndex = *body.SubtitleStreamIndex
		}
		switch body.Mode {
		case "", string(PlayNow):
			cmd.Mode = PlayNow
		case string(PlayNext):
			cmd.Mode = PlayNext
		case string(PlayLast):
			cmd.Mode = PlayLast
		default:
			return apperrors.NewValidationError("invalid mode", map[string]any{
				"mode":        body.Mode,
				"valid_modes": []string{string(PlayNow), string(PlayNext), string(PlayLast)},
			})
		}

		if err := session.Play(r.Context(), cmd); err != nil {
			return apperrors.FromDeviceError(err)
		}
		return api.WriteResource(w, http.StatusOK, session.Snapshot())
	}
}

// playstateCommand runs transport commands against the session.
// POST /v1/sessions/{session_id}/playstate/{command}
func playstateCommand(manager *Manager) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		session, err := requireSession(manager, r)
		if err != nil {
			return err
		}

		command := chi.URLParam(r, "command")
		ctx := r.Context()
		switch command {
		case "stop":
			err = session.Stop(ctx)
		case "pause":
			err = session.Pause(ctx)
		case "unpause":
			err = session.Unpause(ctx)
		case "playpause":
			err = session.PlayPause(ctx)
		case "next":
			err = session.Next(ctx)
		case "previous":
			err = session.Previous(ctx)
		case "seek":
			var body struct {
				SeekPositionTicks int64 `json:"seek_position_ticks"`
			}
			if decodeErr := json.NewDecoder(r.Body).Decode(&body); decodeErr != nil {
				return apperrors.NewValidationError("seek_position_ticks is required", nil)
			}
			if body.SeekPositionTicks < 0 {
				return apperrors.NewValidationError("seek_position_ticks must be >= 0", nil)
			}
			err = session.Seek(ctx, body.SeekPositionTicks)
		default:
			return apperrors.NewAppError(apperrors.ErrorCodeCommandUnsupported, "unknown playstate command", 400, map[string]any{
				"command": command,
			}, nil)
		}
		if err != nil {
			return apperrors.FromDeviceError(err)
		}
		return api.WriteAction(w, http.StatusOK, map[string]any{
			"object":  "playstate",
			"command": command,
			"state":   session.Snapshot(),
		})
	}
}

// volumeRequest is the body for POST /v1/sessions/{session_id}/volume.
// Either volume or action must be set.
type volumeRequest struct {
	Volume *int   `json:"volume,omitempty"`
	Action string `json:"action,omitempty"`
}

// volumeCommand adjusts renderer volume and mute state.
// POST /v1/sessions/{session_id}/volume
func volumeCommand(manager *Manager) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		session, err := requireSession(manager, r)
		if err != nil {
			return err
		}

		var body volumeRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return apperrors.NewValidationError("invalid request body", nil)
		}

		ctx := r.Context()
		switch {
		case body.Volume != nil:
			if *body.Volume < 0 || *body.Volume > 100 {
				return apperrors.NewValidationError("volume must be between 0 and 100", nil)
			}
			err = session.SetVolume(ctx, *body.Volume)
		case body.Action == "up":
			err = session.VolumeUp(ctx)
		case body.Action == "down":
			err = session.VolumeDown(ctx)
		case body.Action == "mute":
			err = session.Mute(ctx)
		case body.Action == "unmute":
			err = session.Unmute(ctx)
		case body.Action == "togglemute":
			err = session.ToggleMute(ctx)
		default:
			return apperrors.NewValidationError("volume or a valid action is required", map[string]any{
				"valid_actions": []string{"up", "down", "mute", "unmute", "togglemute"},
			})
		}
		if err != nil {
			return apperrors.FromDeviceError(err)
		}
		return api.WriteAction(w, http.StatusOK, map[string]any{
			"object": "volume",
			"state":  session.Snapshot(),
		})
	}
}

// setPlaylistIndex jumps the session to a playlist position.
// POST /v1/sessions/{session_id}/playlist
func setPlaylistIndex(manager *Manager) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		session, err := requireSession(manager, r)
		if err != nil {
			return err
		}

		var body struct {
			Index *int `json:"index"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Index == nil {
			return apperrors.NewValidationError("index is required", nil)
		}

		if err := session.SetPlaylistIndex(r.Context(), *body.Index); err != nil {
			return apperrors.FromDeviceError(err)
		}
		return api.WriteResource(w, http.StatusOK, session.Snapshot())
	}
}

// setStreamIndices switches audio or subtitle streams mid-playback.
// POST /v1/sessions/{session_id}/streams
func setStreamIndices(manager *Manager) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		session, err := requireSession(manager, r)
		if err != nil {
			return err
		}

		var body struct {
			AudioStreamIndex    *int `json:"audio_stream_index,omitempty"`
			SubtitleStreamIndex *int `json:"subtitle_stream_index,omitempty"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return apperrors.NewValidationError("invalid request body", nil)
		}
		if body.AudioStreamIndex == nil && body.SubtitleStreamIndex == nil {
			return apperrors.NewValidationError("audio_stream_index or subtitle_stream_index is required", nil)
		}

		ctx := r.Context()
		if body.AudioStreamIndex != nil {
			if err := session.SetAudioStreamIndex(ctx, *body.AudioStreamIndex); err != nil {
				return apperrors.FromDeviceError(err)
			}
		}
		if body.SubtitleStreamIndex != nil {
			if err := session.SetSubtitleStreamIndex(ctx, *body.SubtitleStreamIndex); err != nil {
				return apperrors.FromDeviceError(err)
			}
		}
		return api.WriteResource(w, http.StatusOK, session.Snapshot())
	}
}

func requireSession(manager *Manager, r *http.Request) (*Session, error) {
	sessionID := chi.URLParam(r, "session_id")
	session := manager.Session(sessionID)
	if session == nil {
		return nil, apperrors.NewAppError(apperrors.ErrorCodeSessionNotFound, "Session not found", 404, map[string]any{
			"session_id": sessionID,
		}, nil)
	}
	return session, nil
}
