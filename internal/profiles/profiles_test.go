package profiles

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/strefethen/playto-hub-go/internal/library"
	"github.com/strefethen/playto-hub-go/internal/upnp"
)

func writeProfile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestStoreLoadAndResolve(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "samsung.yaml", `
name: Samsung TV
identification:
  manufacturer: "Samsung.*"
maxStreamingBitrate: 8000000
directPlayProfiles:
  - type: Video
    containers: [mp4]
    videoCodecs: [h264]
transcodingProfiles:
  - type: Video
    container: ts
`)
	writeProfile(t, dir, "ignored.txt", "not a profile")

	store, err := NewStore(dir)
	require.NoError(t, err)
	require.Len(t, store.Profiles(), 1)

	t.Run("matching identification resolves the profile", func(t *testing.T) {
		profile := store.Resolve(upnp.Identification{Manufacturer: "Samsung Electronics"})
		require.Equal(t, "Samsung TV", profile.Name)
	})

	t.Run("no match falls back to default", func(t *testing.T) {
		profile := store.Resolve(upnp.Identification{Manufacturer: "LG Electronics"})
		require.Equal(t, "Default", profile.Name)
	})

	t.Run("lookup by name", func(t *testing.T) {
		require.NotNil(t, store.ByName("samsung tv"))
		require.NotNil(t, store.ByName("Default"))
		require.Nil(t, store.ByName("nope"))
	})
}

func TestStoreMissingDirectory(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "does-not-exist"))
	require.NoError(t, err)
	require.Empty(t, store.Profiles())
	require.Equal(t, "Default", store.Resolve(upnp.Identification{}).Name)
}

func TestProfileMatching(t *testing.T) {
	t.Run("all given fields must match", func(t *testing.T) {
		profile := &DeviceProfile{Identification: &IdentificationMatch{
			Manufacturer: "Samsung",
			ModelName:    "UE40.*",
		}}
		require.True(t, profile.Matches(upnp.Identification{Manufacturer: "Samsung Electronics", ModelName: "UE40ES8000"}))
		require.False(t, profile.Matches(upnp.Identification{Manufacturer: "Samsung Electronics", ModelName: "QE55"}))
	})

	t.Run("broken regex degrades to substring", func(t *testing.T) {
		profile := &DeviceProfile{Identification: &IdentificationMatch{ModelName: "UE40("}}
		require.True(t, profile.Matches(upnp.Identification{ModelName: "Model UE40( rev2"}))
	})

	t.Run("empty identification never matches", func(t *testing.T) {
		require.False(t, (&DeviceProfile{}).Matches(upnp.Identification{ModelName: "anything"}))
		require.False(t, (&DeviceProfile{Identification: &IdentificationMatch{}}).Matches(upnp.Identification{ModelName: "anything"}))
	})
}

func videoItem() *library.Item {
	return &library.Item{
		ID:           "movie-1",
		Name:         "Some Movie",
		MediaType:    library.MediaTypeVideo,
		RunTimeTicks: 36_000_000_000,
		MediaSources: []library.MediaSource{{
			ID:        "src-1",
			Container: "mp4",
			Bitrate:   4_000_000,
			MediaStreams: []library.MediaStream{
				{Index: 0, Type: library.StreamTypeVideo, Codec: "h264"},
				{Index: 1, Type: library.StreamTypeAudio, Codec: "aac"},
				{Index: 2, Type: library.StreamTypeSubtitle, Codec: "srt"},
			},
		}},
	}
}

func TestResolve(t *testing.T) {
	profile := DefaultProfile()

	t.Run("direct play when the profile allows the container", func(t *testing.T) {
		info, err := Resolve(videoItem(), profile, "dev-1", DefaultResolveOptions())
		require.NoError(t, err)
		require.True(t, info.IsDirectStream)
		require.Equal(t, "mp4", info.Container)
		require.Equal(t, int64(36_000_000_000), info.RunTimeTicks)
	})

	t.Run("unsupported container transcodes", func(t *testing.T) {
		item := videoItem()
		item.MediaSources[0].Container = "mkv"
		info, err := Resolve(item, profile, "dev-1", DefaultResolveOptions())
		require.NoError(t, err)
		require.False(t, info.IsDirectStream)
		require.Equal(t, "ts", info.Container)
	})

	t.Run("subtitle selection forces transcode", func(t *testing.T) {
		opts := DefaultResolveOptions()
		opts.SubtitleStreamIndex = 2
		info, err := Resolve(videoItem(), profile, "dev-1", opts)
		require.NoError(t, err)
		require.False(t, info.IsDirectStream)
	})

	t.Run("bitrate cap forces transcode", func(t *testing.T) {
		capped := DefaultProfile()
		capped.MaxStreamingBitrate = 1_000_000
		info, err := Resolve(videoItem(), capped, "dev-1", DefaultResolveOptions())
		require.NoError(t, err)
		require.False(t, info.IsDirectStream)
	})

	t.Run("unknown media source errors", func(t *testing.T) {
		opts := DefaultResolveOptions()
		opts.MediaSourceID = "missing"
		_, err := Resolve(videoItem(), profile, "dev-1", opts)
		require.Error(t, err)
	})

	t.Run("unsupported media type errors", func(t *testing.T) {
		audioOnly := &DeviceProfile{
			Name:                "Speaker",
			SupportedMediaTypes: []library.MediaType{library.MediaTypeAudio},
		}
		_, err := Resolve(videoItem(), audioOnly, "dev-1", DefaultResolveOptions())
		require.Error(t, err)
	})
}

func TestStreamInfoURL(t *testing.T) {
	info, err := Resolve(videoItem(), DefaultProfile(), "dev-1", ResolveOptions{
		AudioStreamIndex:    1,
		SubtitleStreamIndex: -1,
		StartPositionTicks:  50_000_000,
	})
	require.NoError(t, err)

	raw := info.URL("http://hub.local:8080", "secret")
	parsed, perr := url.Parse(raw)
	require.NoError(t, perr)

	require.True(t, strings.HasPrefix(parsed.Path, "/videos/movie-1/stream.mp4"))
	query := parsed.Query()
	require.Equal(t, "dev-1", query.Get("DeviceId"))
	require.Equal(t, "Default", query.Get("DeviceProfileId"))
	require.Equal(t, "src-1", query.Get("MediaSourceId"))
	require.Equal(t, "true", query.Get("Static"))
	require.Equal(t, "1", query.Get("AudioStreamIndex"))
	require.Equal(t, "50000000", query.Get("StartPositionTicks"))
	require.Equal(t, "secret", query.Get("api_key"))
	require.Empty(t, query.Get("SubtitleStreamIndex"))
}

func TestRenderDidl(t *testing.T) {
	item := videoItem()
	info, err := Resolve(item, DefaultProfile(), "dev-1", DefaultResolveOptions())
	require.NoError(t, err)

	didl := RenderDidl(item, info, "http://hub.local/videos/movie-1/stream.mp4")
	require.Contains(t, didl, `<DIDL-Lite`)
	require.Contains(t, didl, `id="movie-1"`)
	require.Contains(t, didl, "<dc:title>Some Movie</dc:title>")
	require.Contains(t, didl, "<upnp:class>object.item.videoItem</upnp:class>")
	require.Contains(t, didl, "http-get:*:video/mp4:")
	require.Contains(t, didl, "DLNA.ORG_OP=01")
	require.Contains(t, didl, `duration="1:00:00.000"`)
	require.Contains(t, didl, "http://hub.local/videos/movie-1/stream.mp4")
}

func TestContentFeatures(t *testing.T) {
	t.Run("direct stream", func(t *testing.T) {
		features := ContentFeatures(&StreamInfo{Container: "mp3", IsDirectStream: true})
		require.Contains(t, features, "DLNA.ORG_PN=MP3")
		require.Contains(t, features, "DLNA.ORG_OP=01")
		require.Contains(t, features, "DLNA.ORG_CI=0")
	})

	t.Run("transcode", func(t *testing.T) {
		features := ContentFeatures(&StreamInfo{Container: "ts"})
		require.Contains(t, features, "DLNA.ORG_OP=00")
		require.Contains(t, features, "DLNA.ORG_CI=1")
	})
}
