package playto

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/strefethen/playto-hub-go/internal/library"
)

func TestParseStreamParams(t *testing.T) {
	lib := library.NewService()
	require.NoError(t, lib.Upsert(&library.Item{
		ID:        "song-42",
		Name:      "Blue Train",
		MediaType: library.MediaTypeAudio,
	}))

	t.Run("audio stream url", func(t *testing.T) {
		params := ParseStreamParams(
			"http://hub.local:8080/audio/song-42/stream.mp3?DeviceProfileId=Default&DeviceId=dev-1&MediaSourceId=src-1&Static=true&AudioStreamIndex=1&StartPositionTicks=50000000&api_key=k",
			lib)
		require.Equal(t, "song-42", params.ItemID)
		require.Equal(t, "Default", params.DeviceProfileID)
		require.Equal(t, "dev-1", params.DeviceID)
		require.Equal(t, "src-1", params.MediaSourceID)
		require.True(t, params.IsDirectStream)
		require.Equal(t, 1, params.AudioStreamIndex)
		require.Equal(t, -1, params.SubtitleStreamIndex)
		require.Equal(t, int64(50000000), params.StartPositionTicks)
		require.NotNil(t, params.Item)
		require.Equal(t, "Blue Train", params.Item.Name)
	})

	t.Run("videos segment", func(t *testing.T) {
		params := ParseStreamParams("http://hub.local/videos/movie-1/stream.ts", lib)
		require.Equal(t, "movie-1", params.ItemID)
		require.False(t, params.IsDirectStream)
		require.Nil(t, params.Item)
	})

	t.Run("foreign url yields empty params", func(t *testing.T) {
		params := ParseStreamParams("http://radio.example/live.mp3", lib)
		require.Empty(t, params.ItemID)
		require.Nil(t, params.Item)
	})

	t.Run("garbage is tolerated", func(t *testing.T) {
		params := ParseStreamParams("::not a url::", lib)
		require.Empty(t, params.ItemID)
	})
}
