package library

// MediaType is the coarse kind of a library item.
type MediaType string

const (
	MediaTypeAudio MediaType = "Audio"
	MediaTypeVideo MediaType = "Video"
	MediaTypePhoto MediaType = "Photo"
)

// StreamType identifies a stream within a media source.
type StreamType string

const (
	StreamTypeAudio    StreamType = "Audio"
	StreamTypeVideo    StreamType = "Video"
	StreamTypeSubtitle StreamType = "Subtitle"
)

// MediaStream is one elementary stream of a media source.
type MediaStream struct {
	Index    int        `json:"index"`
	Type     StreamType `json:"type"`
	Codec    string     `json:"codec"`
	Language string     `json:"language,omitempty"`
}

// MediaSource is one playable rendition of an item.
type MediaSource struct {
	ID           string        `json:"id"`
	Container    string        `json:"container"`
	Protocol     string        `json:"protocol,omitempty"`
	Bitrate      int           `json:"bitrate,omitempty"`
	RunTimeTicks int64         `json:"runTimeTicks,omitempty"`
	LiveStreamID string        `json:"liveStreamId,omitempty"`
	MediaStreams []MediaStream `json:"mediaStreams,omitempty"`
}

// StreamOfType returns the stream at the given index, or the first stream
// of the type when index is negative.
func (s *MediaSource) StreamOfType(streamType StreamType, index int) *MediaStream {
	for i := range s.MediaStreams {
		stream := &s.MediaStreams[i]
		if stream.Type != streamType {
			continue
		}
		if index < 0 || stream.Index == index {
			return stream
		}
	}
	return nil
}

// Item is a playable library entry.
type Item struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	MediaType    MediaType     `json:"mediaType"`
	AlbumArtURL  string        `json:"albumArtUrl,omitempty"`
	RunTimeTicks int64         `json:"runTimeTicks,omitempty"`
	MediaSources []MediaSource `json:"mediaSources,omitempty"`
}

// MediaSource returns the source with the given id, the first source when
// id is empty, or nil.
func (i *Item) MediaSource(id string) *MediaSource {
	if id == "" {
		if len(i.MediaSources) == 0 {
			return nil
		}
		return &i.MediaSources[0]
	}
	for idx := range i.MediaSources {
		if i.MediaSources[idx].ID == id {
			return &i.MediaSources[idx]
		}
	}
	return nil
}
