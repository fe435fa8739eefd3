package playto

import (
	"github.com/strefethen/playto-hub-go/internal/library"
	"github.com/strefethen/playto-hub-go/internal/profiles"
)

// PlaylistItem is one fully-resolved entry of a session playlist: the
// playback plan, the URL the renderer will fetch and the DIDL announcing it.
type PlaylistItem struct {
	Item            *library.Item
	StreamInfo      *profiles.StreamInfo
	StreamURL       string
	Didl            string
	ContentFeatures string
}

// buildPlaylistItem resolves one library item against a device profile and
// renders its stream URL and metadata.
func buildPlaylistItem(
	item *library.Item,
	profile *profiles.DeviceProfile,
	deviceID, serverBaseURL, apiKey string,
	opts profiles.ResolveOptions,
) (*PlaylistItem, error) {
	info, err := profiles.Resolve(item, profile, deviceID, opts)
	if err != nil {
		return nil, err
	}
	streamURL := info.URL(serverBaseURL, apiKey)
	return &PlaylistItem{
		Item:            item,
		StreamInfo:      info,
		StreamURL:       streamURL,
		Didl:            profiles.RenderDidl(item, info, streamURL),
		ContentFeatures: profiles.ContentFeatures(info),
	}, nil
}

// rebuiltWithOffset clones the playlist item with a new start offset,
// keeping the resolved stream plan. Used for client-side seeks where the
// offset has to be baked into a fresh stream URL.
func (p *PlaylistItem) rebuiltWithOffset(serverBaseURL, apiKey string, startPositionTicks int64) *PlaylistItem {
	info := p.StreamInfo.WithStartPosition(startPositionTicks)
	streamURL := info.URL(serverBaseURL, apiKey)
	return &PlaylistItem{
		Item:            p.Item,
		StreamInfo:      info,
		StreamURL:       streamURL,
		Didl:            profiles.RenderDidl(p.Item, info, streamURL),
		ContentFeatures: profiles.ContentFeatures(info),
	}
}
