package upnp

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/beevik/etree"
)

// CreateFromDescription builds a DeviceInfo from a parsed device description
// document and the location URL it was fetched from. Returns nil when the
// document has no usable device element.
func CreateFromDescription(doc *etree.Document, location string) *DeviceInfo {
	if doc == nil {
		return nil
	}
	device := doc.FindElement("//device")
	if device == nil {
		return nil
	}

	info := &DeviceInfo{
		Name:             deviceName(device),
		ModelName:        childText(device, "modelName"),
		ModelNumber:      childText(device, "modelNumber"),
		ModelDescription: childText(device, "modelDescription"),
		ModelURL:         childText(device, "modelURL"),
		Manufacturer:     childText(device, "manufacturer"),
		ManufacturerURL:  childText(device, "manufacturerURL"),
		SerialNumber:     childText(device, "serialNumber"),
		PresentationURL:  childText(device, "presentationURL"),
		UUID:             strings.TrimPrefix(childText(device, "UDN"), "uuid:"),
		BaseURL:          baseURLOf(location),
	}
	if info.Name == "" {
		return nil
	}

	info.Icon = largestIcon(device)

	for _, svc := range device.FindElements("serviceList/service") {
		info.Services = append(info.Services, DeviceService{
			ServiceType: childText(svc, "serviceType"),
			ServiceID:   childText(svc, "serviceId"),
			ControlURL:  childText(svc, "controlURL"),
			EventSubURL: childText(svc, "eventSubURL"),
			ScpdURL:     childText(svc, "SCPDURL"),
		})
	}

	return info
}

// deviceName joins friendlyName and roomName; some renderers report the
// room separately from the product name.
func deviceName(device *etree.Element) string {
	var parts []string
	if name := childText(device, "friendlyName"); name != "" {
		parts = append(parts, name)
	}
	if room := childText(device, "roomName"); room != "" {
		parts = append(parts, room)
	}
	return strings.Join(parts, " ")
}

func largestIcon(device *etree.Element) *DeviceIcon {
	var best *DeviceIcon
	bestArea := -1
	for _, iconElem := range device.FindElements("iconList/icon") {
		width, _ := strconv.Atoi(childText(iconElem, "width"))
		height, _ := strconv.Atoi(childText(iconElem, "height"))
		iconURL := childText(iconElem, "url")
		if iconURL == "" {
			continue
		}
		if width*height > bestArea {
			bestArea = width * height
			best = &DeviceIcon{
				MimeType: childText(iconElem, "mimetype"),
				Width:    width,
				Height:   height,
				Depth:    childText(iconElem, "depth"),
				URL:      iconURL,
			}
		}
	}
	return best
}

func baseURLOf(location string) string {
	parsed, err := url.Parse(location)
	if err != nil || parsed.Host == "" {
		return ""
	}
	return parsed.Scheme + "://" + parsed.Host
}
