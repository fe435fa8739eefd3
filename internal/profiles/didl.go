package profiles

import (
	"fmt"
	"strings"
	"time"

	"github.com/beevik/etree"

	"github.com/strefethen/playto-hub-go/internal/library"
)

var mimeByContainer = map[string]string{
	"mp3":  "audio/mpeg",
	"flac": "audio/flac",
	"wav":  "audio/wav",
	"m4a":  "audio/mp4",
	"aac":  "audio/aac",
	"mp4":  "video/mp4",
	"mkv":  "video/x-matroska",
	"ts":   "video/mpeg",
	"webm": "video/webm",
	"jpeg": "image/jpeg",
	"jpg":  "image/jpeg",
	"png":  "image/png",
}

var dlnaOrgPnByContainer = map[string]string{
	"mp3":  "MP3",
	"flac": "FLAC",
	"wav":  "LPCM",
	"aac":  "AAC_ISO",
	"mp4":  "AVC_MP4_MP_SD_AAC_MULT5",
	"ts":   "MPEG_TS_SD_EU_ISO",
	"jpeg": "JPEG_LRG",
	"jpg":  "JPEG_LRG",
	"png":  "PNG_LRG",
}

// MimeType maps a container onto its MIME type, defaulting per media kind.
func MimeType(container string, mediaType library.MediaType) string {
	if mime, ok := mimeByContainer[strings.ToLower(container)]; ok {
		return mime
	}
	switch mediaType {
	case library.MediaTypeAudio:
		return "audio/" + strings.ToLower(container)
	case library.MediaTypePhoto:
		return "image/" + strings.ToLower(container)
	}
	return "video/" + strings.ToLower(container)
}

// ContentFeatures builds the DLNA.ORG token string renderers read from the
// contentFeatures.dlna.org header and the protocolInfo fourth field.
func ContentFeatures(info *StreamInfo) string {
	var parts []string
	if pn, ok := dlnaOrgPnByContainer[strings.ToLower(info.Container)]; ok {
		parts = append(parts, "DLNA.ORG_PN="+pn)
	}
	ci := "1"
	op := "DLNA.ORG_OP=00"
	if info.IsDirectStream {
		ci = "0"
		op = "DLNA.ORG_OP=01"
	}
	parts = append(parts,
		op,
		"DLNA.ORG_CI="+ci,
		"DLNA.ORG_FLAGS=01500000000000000000000000000000",
	)
	return strings.Join(parts, ";")
}

var upnpClassByMediaType = map[library.MediaType]string{
	library.MediaTypeAudio: "object.item.audioItem.musicTrack",
	library.MediaTypeVideo: "object.item.videoItem",
	library.MediaTypePhoto: "object.item.imageItem.photo",
}

// RenderDidl builds the DIDL-Lite fragment announcing the item to the
// renderer alongside its stream URL.
func RenderDidl(item *library.Item, info *StreamInfo, streamURL string) string {
	doc := etree.NewDocument()
	root := doc.CreateElement("DIDL-Lite")
	root.CreateAttr("xmlns", "urn:schemas-upnp-org:metadata-1-0/DIDL-Lite/")
	root.CreateAttr("xmlns:dc", "http://purl.org/dc/elements/1.1/")
	root.CreateAttr("xmlns:upnp", "urn:schemas-upnp-org:metadata-1-0/upnp/")
	root.CreateAttr("xmlns:dlna", "urn:schemas-dlna-org:metadata-1-0/")

	elem := root.CreateElement("item")
	elem.CreateAttr("id", item.ID)
	elem.CreateAttr("parentID", "0")
	elem.CreateAttr("restricted", "1")

	elem.CreateElement("dc:title").SetText(item.Name)
	elem.CreateElement("upnp:class").SetText(upnpClassByMediaType[item.MediaType])
	if item.AlbumArtURL != "" {
		elem.CreateElement("upnp:albumArtURI").SetText(item.AlbumArtURL)
	}

	res := elem.CreateElement("res")
	res.CreateAttr("protocolInfo", fmt.Sprintf("http-get:*:%s:%s",
		MimeType(info.Container, item.MediaType), ContentFeatures(info)))
	if info.RunTimeTicks > 0 {
		res.CreateAttr("duration", formatDidlDuration(info.RunTimeTicks))
	}
	res.SetText(streamURL)

	out, err := doc.WriteToString()
	if err != nil {
		return ""
	}
	return out
}

// formatDidlDuration renders ticks (100ns units) as h:mm:ss.mmm per the
// DIDL res@duration format.
func formatDidlDuration(ticks int64) string {
	d := time.Duration(ticks) * 100 * time.Nanosecond
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	millis := int(d.Milliseconds()) % 1000
	return fmt.Sprintf("%d:%02d:%02d.%03d", hours, minutes, seconds, millis)
}
