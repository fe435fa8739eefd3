package playto

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/strefethen/playto-hub-go/internal/library"
)

// StreamParams is the playback state decoded from a stream URL the renderer
// reported back. It lets the session translate raw device events into
// item-level progress.
type StreamParams struct {
	ItemID              string
	DeviceProfileID     string
	DeviceID            string
	MediaSourceID       string
	LiveStreamID        string
	IsDirectStream      bool
	AudioStreamIndex    int
	SubtitleStreamIndex int
	StartPositionTicks  int64

	Item *library.Item
}

// ParseStreamParams decodes a stream URL produced by the resolver. URLs
// this hub did not build come back with an empty ItemID.
func ParseStreamParams(rawURL string, lib *library.Service) StreamParams {
	params := StreamParams{AudioStreamIndex: -1, SubtitleStreamIndex: -1}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return params
	}

	segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	for i, segment := range segments {
		switch strings.ToLower(segment) {
		case "audio", "videos", "photos":
			if i+1 < len(segments) {
				params.ItemID = segments[i+1]
			}
		}
		if params.ItemID != "" {
			break
		}
	}
	if params.ItemID == "" {
		return params
	}

	query := parsed.Query()
	params.DeviceProfileID = query.Get("DeviceProfileId")
	params.DeviceID = query.Get("DeviceId")
	params.MediaSourceID = query.Get("MediaSourceId")
	params.LiveStreamID = query.Get("LiveStreamId")
	params.IsDirectStream = strings.EqualFold(query.Get("Static"), "true")
	if value, err := strconv.Atoi(query.Get("AudioStreamIndex")); err == nil {
		params.AudioStreamIndex = value
	}
	if value, err := strconv.Atoi(query.Get("SubtitleStreamIndex")); err == nil {
		params.SubtitleStreamIndex = value
	}
	if value, err := strconv.ParseInt(query.Get("StartPositionTicks"), 10, 64); err == nil {
		params.StartPositionTicks = value
	}

	if lib != nil {
		params.Item = lib.Get(params.ItemID)
	}
	return params
}
