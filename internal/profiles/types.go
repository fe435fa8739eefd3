package profiles

import (
	"regexp"
	"strings"

	"github.com/strefethen/playto-hub-go/internal/library"
	"github.com/strefethen/playto-hub-go/internal/upnp"
)

// IdentificationMatch holds the per-field patterns a profile uses to claim
// a device. Fields are regular expressions matched case-insensitively;
// empty fields are ignored. A pattern that does not compile degrades to a
// substring match.
type IdentificationMatch struct {
	FriendlyName     string `yaml:"friendlyName,omitempty"`
	ModelName        string `yaml:"modelName,omitempty"`
	ModelNumber      string `yaml:"modelNumber,omitempty"`
	ModelDescription string `yaml:"modelDescription,omitempty"`
	ModelURL         string `yaml:"modelUrl,omitempty"`
	Manufacturer     string `yaml:"manufacturer,omitempty"`
	ManufacturerURL  string `yaml:"manufacturerUrl,omitempty"`
	SerialNumber     string `yaml:"serialNumber,omitempty"`
}

// DirectPlayProfile lists containers and codecs a device plays natively.
type DirectPlayProfile struct {
	Type        library.MediaType `yaml:"type"`
	Containers  []string          `yaml:"containers,omitempty"`
	AudioCodecs []string          `yaml:"audioCodecs,omitempty"`
	VideoCodecs []string          `yaml:"videoCodecs,omitempty"`
}

// TranscodingProfile names the target format when direct play is not
// possible for a media type.
type TranscodingProfile struct {
	Type       library.MediaType `yaml:"type"`
	Container  string            `yaml:"container"`
	AudioCodec string            `yaml:"audioCodec,omitempty"`
	VideoCodec string            `yaml:"videoCodec,omitempty"`
}

// DeviceProfile describes the playback capabilities of a renderer family.
type DeviceProfile struct {
	Name                string               `yaml:"name"`
	Identification      *IdentificationMatch `yaml:"identification,omitempty"`
	MaxStreamingBitrate int                  `yaml:"maxStreamingBitrate,omitempty"`
	SupportedMediaTypes []library.MediaType  `yaml:"supportedMediaTypes,omitempty"`
	DirectPlayProfiles  []DirectPlayProfile  `yaml:"directPlayProfiles,omitempty"`
	TranscodingProfiles []TranscodingProfile `yaml:"transcodingProfiles,omitempty"`
}

// Supports reports whether the profile allows playing the media type at all.
func (p *DeviceProfile) Supports(mediaType library.MediaType) bool {
	if len(p.SupportedMediaTypes) == 0 {
		return true
	}
	for _, supported := range p.SupportedMediaTypes {
		if supported == mediaType {
			return true
		}
	}
	return false
}

// Matches reports whether the profile's identification claims the device.
// A profile without identification never matches; it can only be a default.
func (p *DeviceProfile) Matches(ident upnp.Identification) bool {
	m := p.Identification
	if m == nil {
		return false
	}
	fields := []struct{ pattern, value string }{
		{m.FriendlyName, ident.FriendlyName},
		{m.ModelName, ident.ModelName},
		{m.ModelNumber, ident.ModelNumber},
		{m.ModelDescription, ident.ModelDescription},
		{m.ModelURL, ident.ModelURL},
		{m.Manufacturer, ident.Manufacturer},
		{m.ManufacturerURL, ident.ManufacturerURL},
		{m.SerialNumber, ident.SerialNumber},
	}
	matchedAny := false
	for _, field := range fields {
		if field.pattern == "" {
			continue
		}
		if !patternMatches(field.pattern, field.value) {
			return false
		}
		matchedAny = true
	}
	return matchedAny
}

func patternMatches(pattern, value string) bool {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return strings.Contains(strings.ToLower(value), strings.ToLower(pattern))
	}
	return re.MatchString(value)
}

// TranscodingProfileFor returns the transcoding target for a media type.
func (p *DeviceProfile) TranscodingProfileFor(mediaType library.MediaType) *TranscodingProfile {
	for i := range p.TranscodingProfiles {
		if p.TranscodingProfiles[i].Type == mediaType {
			return &p.TranscodingProfiles[i]
		}
	}
	return nil
}

// SupportsDirectPlay reports whether the source can be sent to the device
// untouched under this profile.
func (p *DeviceProfile) SupportsDirectPlay(mediaType library.MediaType, source *library.MediaSource) bool {
	if p.MaxStreamingBitrate > 0 && source.Bitrate > p.MaxStreamingBitrate {
		return false
	}
	for _, direct := range p.DirectPlayProfiles {
		if direct.Type != mediaType {
			continue
		}
		if !containsFold(direct.Containers, source.Container) {
			continue
		}
		if mediaType == library.MediaTypeVideo && len(direct.VideoCodecs) > 0 {
			video := source.StreamOfType(library.StreamTypeVideo, -1)
			if video == nil || !containsFold(direct.VideoCodecs, video.Codec) {
				continue
			}
		}
		if len(direct.AudioCodecs) > 0 {
			audio := source.StreamOfType(library.StreamTypeAudio, -1)
			if audio != nil && !containsFold(direct.AudioCodecs, audio.Codec) {
				continue
			}
		}
		return true
	}
	return false
}

func containsFold(values []string, value string) bool {
	if len(values) == 0 {
		return true
	}
	for _, candidate := range values {
		if strings.EqualFold(candidate, value) {
			return true
		}
	}
	return false
}
