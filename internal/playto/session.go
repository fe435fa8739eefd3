package playto

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/strefethen/playto-hub-go/internal/library"
	"github.com/strefethen/playto-hub-go/internal/profiles"
	"github.com/strefethen/playto-hub-go/internal/upnp"
)

// PlayMode controls how a play command merges into the session playlist.
type PlayMode string

const (
	PlayNow  PlayMode = "PlayNow"
	PlayNext PlayMode = "PlayNext"
	PlayLast PlayMode = "PlayLast"
)

// PlayCommand asks a session to play a list of library items.
type PlayCommand struct {
	ItemIDs             []string
	Mode                PlayMode
	StartPositionTicks  int64
	MediaSourceID       string
	AudioStreamIndex    int
	SubtitleStreamIndex int
}

// NewPlayCommand returns a PlayNow command with unset stream indices.
func NewPlayCommand(itemIDs []string) PlayCommand {
	return PlayCommand{
		ItemIDs:             itemIDs,
		Mode:                PlayNow,
		AudioStreamIndex:    -1,
		SubtitleStreamIndex: -1,
	}
}

// completionSkewPercent is how close to the end a stop must land to count
// as played to completion.
const completionSkewPercent = 10.0

// SessionConfig carries the environment a session needs to build streams.
type SessionConfig struct {
	ServerBaseURL string
	APIKey        string
	// WaitForPlayingBound limits how long a seek waits for the renderer
	// to reach PLAYING before issuing the position command.
	WaitForPlayingBound time.Duration
	// WaitForPlayingInterval is the poll interval during that wait.
	WaitForPlayingInterval time.Duration
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.WaitForPlayingBound <= 0 {
		c.WaitForPlayingBound = 15 * time.Second
	}
	if c.WaitForPlayingInterval <= 0 {
		c.WaitForPlayingInterval = 500 * time.Millisecond
	}
	return c
}

// Session binds one renderer to an ordered playlist and translates between
// control commands and AVTransport actions. Commands are serialized by a
// per-session mutex; device events arrive from the polling goroutine and
// take the same lock.
type Session struct {
	ID string

	device   *upnp.Device
	profile  *profiles.DeviceProfile
	lib      *library.Service
	sink     EventSink
	activity ActivityRecorder
	cfg      SessionConfig
	onEnded  func(sessionID string)

	mu                sync.Mutex
	playlist          []*PlaylistItem
	currentIndex      int
	lastPositionTicks int64
	ended             bool
}

// NewSession wires a session to a device and starts the device poll loop.
func NewSession(
	id string,
	device *upnp.Device,
	profile *profiles.DeviceProfile,
	lib *library.Service,
	sink EventSink,
	activity ActivityRecorder,
	cfg SessionConfig,
	onEnded func(sessionID string),
) *Session {
	if sink == nil {
		sink = NopSink{}
	}
	s := &Session{
		ID:           id,
		device:       device,
		profile:      profile,
		lib:          lib,
		sink:         sink,
		activity:     activity,
		cfg:          cfg.withDefaults(),
		onEnded:      onEnded,
		currentIndex: -1,
	}

	device.OnPlaybackStart = s.onPlaybackStart
	device.OnPlaybackProgress = s.onPlaybackProgress
	device.OnMediaChanged = s.onMediaChanged
	device.OnPlaybackStopped = s.onPlaybackStopped
	device.OnUnavailable = s.onDeviceUnavailable
	device.Start()

	if activity != nil {
		activity.RecordSessionStarted(id, device.Info.UUID, device.Info.Name)
	}
	return s
}

// Device exposes the bound renderer.
func (s *Session) Device() *upnp.Device { return s.device }

// Profile exposes the resolved device profile.
func (s *Session) Profile() *profiles.DeviceProfile { return s.profile }

// Capabilities reports what remote control surface this session supports.
func (s *Session) Capabilities() Capabilities {
	mediaTypes := s.profile.SupportedMediaTypes
	if len(mediaTypes) == 0 {
		mediaTypes = []library.MediaType{
			library.MediaTypeAudio,
			library.MediaTypeVideo,
			library.MediaTypePhoto,
		}
	}
	return Capabilities{
		PlayableMediaTypes: mediaTypes,
		SupportedCommands: []string{
			"VolumeUp", "VolumeDown",
			"Mute", "Unmute", "ToggleMute", "SetVolume",
			"SetAudioStreamIndex", "SetSubtitleStreamIndex",
			"PlayMediaSource",
		},
	}
}

// Capabilities is the remote-control surface reported for a session.
type Capabilities struct {
	PlayableMediaTypes []library.MediaType `json:"playableMediaTypes"`
	SupportedCommands  []string            `json:"supportedCommands"`
}

// State is a point-in-time view of the session for the control API.
type State struct {
	ID             string              `json:"id"`
	DeviceID       string              `json:"deviceId"`
	DeviceName     string              `json:"deviceName"`
	TransportState upnp.TransportState `json:"transportState"`
	PlaylistItems  []string            `json:"playlistItemIds"`
	CurrentIndex   int                 `json:"currentIndex"`
	PositionTicks  int64               `json:"positionTicks"`
	Volume         int                 `json:"volume"`
	Muted          bool                `json:"muted"`
}

// Snapshot captures the session state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, len(s.playlist))
	for i, entry := range s.playlist {
		ids[i] = entry.Item.ID
	}
	return State{
		ID:             s.ID,
		DeviceID:       s.device.Info.UUID,
		DeviceName:     s.device.Info.Name,
		TransportState: s.device.TransportState(),
		PlaylistItems:  ids,
		CurrentIndex:   s.currentIndex,
		PositionTicks:  s.lastPositionTicks,
		Volume:         s.device.Volume(),
		Muted:          s.device.IsMuted(),
	}
}

// Play resolves the command's items and merges them into the playlist.
// PlayNow replaces the playlist wholesale and starts the first item;
// PlayNext and PlayLast only queue.
func (s *Session) Play(ctx context.Context, cmd PlayCommand) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.lib.GetMany(cmd.ItemIDs)
	if len(items) == 0 {
		return fmt.Errorf("none of the requested items exist")
	}

	entries := make([]*PlaylistItem, 0, len(items))
	for i, item := range items {
		opts := profiles.DefaultResolveOptions()
		if i == 0 {
			opts.MediaSourceID = cmd.MediaSourceID
			opts.AudioStreamIndex = cmd.AudioStreamIndex
			opts.SubtitleStreamIndex = cmd.SubtitleStreamIndex
			opts.StartPositionTicks = cmd.StartPositionTicks
		}
		entry, err := buildPlaylistItem(item, s.profile, s.device.Info.UUID, s.cfg.ServerBaseURL, s.cfg.APIKey, opts)
		if err != nil {
			return fmt.Errorf("building playlist entry for %s: %w", item.ID, err)
		}
		entries = append(entries, entry)
	}

	if s.activity != nil {
		s.activity.RecordPlay(s.ID, cmd.ItemIDs)
	}

	switch cmd.Mode {
	case PlayNext:
		insertAt := s.currentIndex + 1
		if insertAt > len(s.playlist) {
			insertAt = len(s.playlist)
		}
		s.playlist = append(s.playlist[:insertAt], append(entries, s.playlist[insertAt:]...)...)
		return nil
	case PlayLast:
		s.playlist = append(s.playlist, entries...)
		return nil
	default:
		s.playlist = entries
		s.lastPositionTicks = cmd.StartPositionTicks
		return s.playItemLocked(ctx, 0)
	}
}

func (s *Session) playItemLocked(ctx context.Context, index int) error {
	entry := s.playlist[index]
	s.currentIndex = index
	if err := s.device.SetAvTransport(ctx, entry.StreamURL, entry.ContentFeatures, entry.Didl); err != nil {
		return err
	}
	s.announceNextLocked(ctx)
	// Direct streams ignore the offset baked into the URL; the renderer
	// has to be told to seek once the transport settles.
	if entry.StreamInfo.IsDirectStream && entry.StreamInfo.StartPositionTicks > 0 {
		return s.seekAfterTransportChange(ctx, entry.StreamInfo.StartPositionTicks)
	}
	return nil
}

// announceNextLocked pre-loads the following playlist entry for gapless
// handoff; failures are logged only.
func (s *Session) announceNextLocked(ctx context.Context) {
	next := s.currentIndex + 1
	if next >= len(s.playlist) {
		return
	}
	entry := s.playlist[next]
	if err := s.device.SetNextAvTransport(ctx, entry.StreamURL, entry.ContentFeatures, entry.Didl); err != nil {
		log.Printf("session %s: pre-announce failed: %v", s.ID, err)
	}
}

// SetPlaylistIndex jumps to a playlist position. Any index outside the
// playlist clears it and stops the renderer.
func (s *Session) SetPlaylistIndex(ctx context.Context, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setPlaylistIndexLocked(ctx, index)
}

func (s *Session) setPlaylistIndexLocked(ctx context.Context, index int) error {
	if index < 0 || index >= len(s.playlist) {
		s.playlist = nil
		s.currentIndex = -1
		return s.device.SetStop(ctx)
	}
	return s.playItemLocked(ctx, index)
}

// Next advances to the following playlist entry, stopping past the end.
func (s *Session) Next(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setPlaylistIndexLocked(ctx, s.currentIndex+1)
}

// Previous returns to the preceding entry, stopping before the first.
func (s *Session) Previous(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setPlaylistIndexLocked(ctx, s.currentIndex-1)
}

// Stop halts the renderer without touching the playlist.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.device.SetStop(ctx)
}

// Pause pauses playback.
func (s *Session) Pause(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.device.SetPause(ctx)
}

// Unpause resumes playback.
func (s *Session) Unpause(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.device.SetPlay(ctx)
}

// PlayPause toggles between paused and playing.
func (s *Session) PlayPause(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.device.IsPaused() {
		return s.device.SetPlay(ctx)
	}
	return s.device.SetPause(ctx)
}

// Seek moves playback to an absolute position in the current item. Direct
// streams seek on the renderer; transcoded streams get a rebuilt URL with
// the offset baked in.
func (s *Session) Seek(ctx context.Context, positionTicks int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.currentEntryLocked()
	if entry == nil {
		return nil
	}

	if !entry.StreamInfo.IsDirectStream {
		rebuilt := entry.rebuiltWithOffset(s.cfg.ServerBaseURL, s.cfg.APIKey, positionTicks)
		s.playlist[s.currentIndex] = rebuilt
		s.lastPositionTicks = positionTicks
		if err := s.device.SetAvTransport(ctx, rebuilt.StreamURL, rebuilt.ContentFeatures, rebuilt.Didl); err != nil {
			return err
		}
		s.announceNextLocked(ctx)
		return nil
	}

	return s.seekAfterTransportChange(ctx, positionTicks)
}

// seekAfterTransportChange waits for the renderer to reach PLAYING before
// issuing the position command; seeks during TRANSITIONING are dropped by
// many devices.
func (s *Session) seekAfterTransportChange(ctx context.Context, positionTicks int64) error {
	deadline := time.Now().Add(s.cfg.WaitForPlayingBound)
	for !s.device.IsPlaying() {
		if time.Now().After(deadline) {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.cfg.WaitForPlayingInterval):
		}
	}
	return s.device.Seek(ctx, ticksToDuration(positionTicks))
}

// SetAudioStreamIndex switches the audio track by rebuilding the current
// stream, then restores the playback position.
func (s *Session) SetAudioStreamIndex(ctx context.Context, index int) error {
	return s.switchStream(ctx, func(opts *profiles.ResolveOptions) {
		opts.AudioStreamIndex = index
	})
}

// SetSubtitleStreamIndex switches the subtitle track the same way; -1
// disables subtitles.
func (s *Session) SetSubtitleStreamIndex(ctx context.Context, index int) error {
	return s.switchStream(ctx, func(opts *profiles.ResolveOptions) {
		opts.SubtitleStreamIndex = index
	})
}

func (s *Session) switchStream(ctx context.Context, mutate func(*profiles.ResolveOptions)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.currentEntryLocked()
	if entry == nil {
		return nil
	}

	position := s.lastPositionTicks
	opts := profiles.ResolveOptions{
		MediaSourceID:       entry.StreamInfo.MediaSourceID,
		AudioStreamIndex:    entry.StreamInfo.AudioStreamIndex,
		SubtitleStreamIndex: entry.StreamInfo.SubtitleStreamIndex,
		StartPositionTicks:  position,
	}
	mutate(&opts)

	rebuilt, err := buildPlaylistItem(entry.Item, s.profile, s.device.Info.UUID, s.cfg.ServerBaseURL, s.cfg.APIKey, opts)
	if err != nil {
		return err
	}
	s.playlist[s.currentIndex] = rebuilt
	if err := s.device.SetAvTransport(ctx, rebuilt.StreamURL, rebuilt.ContentFeatures, rebuilt.Didl); err != nil {
		return err
	}
	s.announceNextLocked(ctx)

	// A direct stream restarts from zero, so put the position back.
	if rebuilt.StreamInfo.IsDirectStream {
		return s.seekAfterTransportChange(ctx, position)
	}
	return nil
}

func (s *Session) currentEntryLocked() *PlaylistItem {
	if s.currentIndex < 0 || s.currentIndex >= len(s.playlist) {
		return nil
	}
	return s.playlist[s.currentIndex]
}

// --- volume passthrough ---

func (s *Session) SetVolume(ctx context.Context, volume int) error {
	return s.device.SetVolume(ctx, volume)
}

func (s *Session) VolumeUp(ctx context.Context) error   { return s.device.VolumeUp(ctx) }
func (s *Session) VolumeDown(ctx context.Context) error { return s.device.VolumeDown(ctx) }
func (s *Session) Mute(ctx context.Context) error       { return s.device.Mute(ctx) }
func (s *Session) Unmute(ctx context.Context) error     { return s.device.Unmute(ctx) }
func (s *Session) ToggleMute(ctx context.Context) error { return s.device.ToggleMute(ctx) }

// --- device event translation ---

func (s *Session) onPlaybackStart(media *upnp.UBaseObject) {
	params := ParseStreamParams(media.URL, s.lib)
	if params.Item == nil {
		return
	}
	s.mu.Lock()
	s.lastPositionTicks = params.StartPositionTicks
	s.mu.Unlock()
	s.publishItemEvent(EventPlaybackStart, params)
}

func (s *Session) onPlaybackProgress(media *upnp.UBaseObject) {
	params := ParseStreamParams(media.URL, s.lib)
	if params.Item == nil {
		return
	}
	position, _ := s.device.Progress()
	ticks := durationToTicks(position) + params.StartPositionTicks
	s.mu.Lock()
	s.lastPositionTicks = ticks
	s.mu.Unlock()
	s.publishItemEvent(EventPlaybackProgress, params)
}

func (s *Session) onMediaChanged(previous, current *upnp.UBaseObject) {
	if previous != nil {
		if params := ParseStreamParams(previous.URL, s.lib); params.Item != nil {
			s.publishItemEvent(EventPlaybackStop, params)
		}
	}
	if current != nil {
		s.onPlaybackStart(current)
	}
}

func (s *Session) onPlaybackStopped(media *upnp.UBaseObject) {
	params := ParseStreamParams(media.URL, s.lib)
	if params.Item == nil {
		return
	}

	s.mu.Lock()
	positionTicks := s.lastPositionTicks
	s.mu.Unlock()

	s.publishItemEvent(EventPlaybackStop, params)

	duration := runTimeTicksOf(params)
	if playedToCompletion(positionTicks, duration) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		s.mu.Lock()
		err := s.setPlaylistIndexLocked(ctx, s.currentIndex+1)
		s.mu.Unlock()
		if err != nil {
			log.Printf("session %s: auto-advance failed: %v", s.ID, err)
		}
		return
	}

	s.mu.Lock()
	s.playlist = nil
	s.currentIndex = -1
	s.mu.Unlock()
}

func (s *Session) onDeviceUnavailable() {
	log.Printf("session %s: device %s became unavailable", s.ID, s.device.Info.Name)
	s.End()
}

// HandleDeviceLeft ends the session when an ssdp:byebye names its device.
func (s *Session) HandleDeviceLeft(usn string) {
	uuid := s.device.Info.UUID
	if uuid != "" && strings.Contains(strings.ToLower(usn), strings.ToLower(uuid)) {
		s.End()
	}
}

// End terminates the session: stops the device poll loop, reports the end
// and hands the id back to the manager. Idempotent.
func (s *Session) End() {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	s.playlist = nil
	s.currentIndex = -1
	s.mu.Unlock()

	s.device.Dispose()
	if s.activity != nil {
		s.activity.RecordSessionEnded(s.ID)
	}
	s.sink.Publish(SessionEvent{
		Type:       EventSessionEnded,
		SessionID:  s.ID,
		DeviceID:   s.device.Info.UUID,
		DeviceName: s.device.Info.Name,
	})
	if s.onEnded != nil {
		s.onEnded(s.ID)
	}
}

func (s *Session) publishItemEvent(eventType SessionEventType, params StreamParams) {
	s.mu.Lock()
	position := s.lastPositionTicks
	s.mu.Unlock()
	s.sink.Publish(SessionEvent{
		Type:          eventType,
		SessionID:     s.ID,
		DeviceID:      s.device.Info.UUID,
		DeviceName:    s.device.Info.Name,
		ItemID:        params.Item.ID,
		ItemName:      params.Item.Name,
		PositionTicks: position,
		RunTimeTicks:  runTimeTicksOf(params),
	})
}

func runTimeTicksOf(params StreamParams) int64 {
	if source := params.Item.MediaSource(params.MediaSourceID); source != nil && source.RunTimeTicks > 0 {
		return source.RunTimeTicks
	}
	return params.Item.RunTimeTicks
}

// playedToCompletion treats a zero position as a completed handoff and
// otherwise requires the stop to land within ten percent of the duration.
func playedToCompletion(positionTicks, durationTicks int64) bool {
	if positionTicks == 0 {
		return true
	}
	if durationTicks <= 0 {
		return false
	}
	percent := float64(positionTicks) / float64(durationTicks)
	skew := percent - 1
	if skew < 0 {
		skew = -skew
	}
	return skew*100 <= completionSkewPercent
}

func ticksToDuration(ticks int64) time.Duration {
	return time.Duration(ticks) * 100 * time.Nanosecond
}

func durationToTicks(d time.Duration) int64 {
	return int64(d / (100 * time.Nanosecond))
}
