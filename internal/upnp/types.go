package upnp

import "strings"

// TransportState is the top-level AVTransport state reported by a renderer.
type TransportState string

const (
	TransportStateStopped       TransportState = "STOPPED"
	TransportStatePlaying       TransportState = "PLAYING"
	TransportStateTransitioning TransportState = "TRANSITIONING"
	TransportStatePaused        TransportState = "PAUSED_PLAYBACK"
)

// ParseTransportState maps a device-reported state string onto a known
// TransportState. Returns false for values outside the AVTransport vocabulary.
func ParseTransportState(value string) (TransportState, bool) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case string(TransportStateStopped):
		return TransportStateStopped, true
	case string(TransportStatePlaying):
		return TransportStatePlaying, true
	case string(TransportStateTransitioning):
		return TransportStateTransitioning, true
	case string(TransportStatePaused):
		return TransportStatePaused, true
	}
	return "", false
}

// DeviceService is one advertised UPnP service from a device description.
type DeviceService struct {
	ServiceType string
	ServiceID   string
	ControlURL  string
	EventSubURL string
	ScpdURL     string
}

// DeviceIcon describes the icon advertised in a device description.
type DeviceIcon struct {
	MimeType string
	Width    int
	Height   int
	Depth    string
	URL      string
}

// DeviceInfo is the immutable descriptor built from a device description
// document. It is created once during discovery and read-only afterwards.
type DeviceInfo struct {
	UUID             string
	Name             string
	ModelName        string
	ModelNumber      string
	ModelDescription string
	ModelURL         string
	Manufacturer     string
	ManufacturerURL  string
	SerialNumber     string
	PresentationURL  string
	BaseURL          string
	Icon             *DeviceIcon
	Services         []DeviceService
}

// Identification flattens the descriptor fields used for profile matching.
type Identification struct {
	FriendlyName     string
	ModelName        string
	ModelNumber      string
	ModelDescription string
	ModelURL         string
	Manufacturer     string
	ManufacturerURL  string
	SerialNumber     string
}

// ToIdentification returns the matching fields for profile resolution.
func (d *DeviceInfo) ToIdentification() Identification {
	return Identification{
		FriendlyName:     d.Name,
		ModelName:        d.ModelName,
		ModelNumber:      d.ModelNumber,
		ModelDescription: d.ModelDescription,
		ModelURL:         d.ModelURL,
		Manufacturer:     d.Manufacturer,
		ManufacturerURL:  d.ManufacturerURL,
		SerialNumber:     d.SerialNumber,
	}
}

const (
	avTransportService      = "urn:schemas-upnp-org:service:AVTransport:1"
	avTransportPrefix       = "urn:schemas-upnp-org:service:AVTransport"
	renderingControlService = "urn:schemas-upnp-org:service:RenderingControl:1"
	renderingControlPrefix  = "urn:schemas-upnp-org:service:RenderingControl"
)

// AVTransportService locates the advertised AVTransport service, preferring
// an exact version-1 match over a prefix match.
func (d *DeviceInfo) AVTransportService() *DeviceService {
	return d.findService(avTransportService, avTransportPrefix)
}

// RenderingControlService locates the advertised RenderingControl service.
func (d *DeviceInfo) RenderingControlService() *DeviceService {
	return d.findService(renderingControlService, renderingControlPrefix)
}

func (d *DeviceInfo) findService(exact, prefix string) *DeviceService {
	for i := range d.Services {
		if strings.EqualFold(d.Services[i].ServiceType, exact) {
			return &d.Services[i]
		}
	}
	for i := range d.Services {
		if hasPrefixFold(d.Services[i].ServiceType, prefix) {
			return &d.Services[i]
		}
	}
	return nil
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

// UBaseObject is a snapshot of what the renderer reports as currently loaded.
// Snapshots are compared by id only so that a progress tick on the same track
// is distinguishable from a track change.
type UBaseObject struct {
	ID           string
	ParentID     string
	Title        string
	IconURL      string
	URL          string
	ProtocolInfo []string
	UpnpClass    string
	MetaData     string
}

// SameIdentity reports whether two snapshots refer to the same object.
func (o *UBaseObject) SameIdentity(other *UBaseObject) bool {
	if other == nil {
		return false
	}
	return o.ID == other.ID
}

// MediaKind derives a coarse media kind from the UPnP class.
func (o *UBaseObject) MediaKind() string {
	switch {
	case strings.Contains(o.UpnpClass, "Audio"):
		return "Audio"
	case strings.Contains(o.UpnpClass, "Video"):
		return "Video"
	case strings.Contains(o.UpnpClass, "image"):
		return "Photo"
	}
	return ""
}
