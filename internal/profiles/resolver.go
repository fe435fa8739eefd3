package profiles

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/strefethen/playto-hub-go/internal/library"
)

// StreamInfo is the resolved playback plan for one item on one device:
// direct play or transcode, target container, stream selection and offset.
type StreamInfo struct {
	ItemID              string
	MediaType           library.MediaType
	MediaSourceID       string
	LiveStreamID        string
	ProfileName         string
	DeviceID            string
	IsDirectStream      bool
	Container           string
	AudioStreamIndex    int
	SubtitleStreamIndex int
	StartPositionTicks  int64
	RunTimeTicks        int64
}

// ResolveOptions carries the caller's stream selection.
type ResolveOptions struct {
	MediaSourceID       string
	AudioStreamIndex    int
	SubtitleStreamIndex int
	StartPositionTicks  int64
}

// DefaultResolveOptions returns options with unset stream indices.
func DefaultResolveOptions() ResolveOptions {
	return ResolveOptions{AudioStreamIndex: -1, SubtitleStreamIndex: -1}
}

// Resolve decides how the item plays on a device with the given profile.
// An explicit subtitle selection always forces a transcode so the subtitle
// can be burned in; renderers have no side-channel for it.
func Resolve(item *library.Item, profile *DeviceProfile, deviceID string, opts ResolveOptions) (*StreamInfo, error) {
	if !profile.Supports(item.MediaType) {
		return nil, fmt.Errorf("profile %s does not support %s items", profile.Name, item.MediaType)
	}
	source := item.MediaSource(opts.MediaSourceID)
	if source == nil {
		return nil, fmt.Errorf("item %s has no media source %q", item.ID, opts.MediaSourceID)
	}

	info := &StreamInfo{
		ItemID:              item.ID,
		MediaType:           item.MediaType,
		MediaSourceID:       source.ID,
		LiveStreamID:        source.LiveStreamID,
		ProfileName:         profile.Name,
		DeviceID:            deviceID,
		AudioStreamIndex:    opts.AudioStreamIndex,
		SubtitleStreamIndex: opts.SubtitleStreamIndex,
		StartPositionTicks:  opts.StartPositionTicks,
		RunTimeTicks:        source.RunTimeTicks,
	}
	if info.RunTimeTicks == 0 {
		info.RunTimeTicks = item.RunTimeTicks
	}

	directPlayable := profile.SupportsDirectPlay(item.MediaType, source) && opts.SubtitleStreamIndex < 0
	if directPlayable {
		info.IsDirectStream = true
		info.Container = source.Container
		return info, nil
	}

	transcoding := profile.TranscodingProfileFor(item.MediaType)
	if transcoding == nil {
		return nil, fmt.Errorf("profile %s cannot play or transcode %s items", profile.Name, item.MediaType)
	}
	info.Container = transcoding.Container
	return info, nil
}

// URL renders the stream URL the renderer will fetch. The path and query
// parameters mirror what ParseStreamParams on the session side decodes.
func (s *StreamInfo) URL(serverBaseURL, apiKey string) string {
	segment := "videos"
	switch s.MediaType {
	case library.MediaTypeAudio:
		segment = "audio"
	case library.MediaTypePhoto:
		segment = "photos"
	}

	values := url.Values{}
	values.Set("DeviceProfileId", s.ProfileName)
	values.Set("DeviceId", s.DeviceID)
	if s.MediaSourceID != "" {
		values.Set("MediaSourceId", s.MediaSourceID)
	}
	if s.LiveStreamID != "" {
		values.Set("LiveStreamId", s.LiveStreamID)
	}
	if s.IsDirectStream {
		values.Set("Static", "true")
	}
	if s.AudioStreamIndex >= 0 {
		values.Set("AudioStreamIndex", strconv.Itoa(s.AudioStreamIndex))
	}
	if s.SubtitleStreamIndex >= 0 {
		values.Set("SubtitleStreamIndex", strconv.Itoa(s.SubtitleStreamIndex))
	}
	if s.StartPositionTicks > 0 {
		values.Set("StartPositionTicks", strconv.FormatInt(s.StartPositionTicks, 10))
	}
	if apiKey != "" {
		values.Set("api_key", apiKey)
	}

	return fmt.Sprintf("%s/%s/%s/stream.%s?%s", serverBaseURL, segment, s.ItemID, s.Container, values.Encode())
}

// WithStartPosition returns a copy of the plan with a new start offset,
// used when a seek has to be baked into a rebuilt stream URL.
func (s *StreamInfo) WithStartPosition(ticks int64) *StreamInfo {
	clone := *s
	clone.StartPositionTicks = ticks
	return &clone
}
