package upnp

import (
	"testing"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/require"
)

const sampleDescription = `<?xml version="1.0"?>
<root xmlns="urn:schemas-upnp-org:device-1-0">
  <device>
    <deviceType>urn:schemas-upnp-org:device:MediaRenderer:1</deviceType>
    <friendlyName>Living Room TV</friendlyName>
    <roomName>Living Room</roomName>
    <manufacturer>Samsung Electronics</manufacturer>
    <manufacturerURL>http://www.samsung.com</manufacturerURL>
    <modelName>UE40ES8000</modelName>
    <modelNumber>1.0</modelNumber>
    <modelDescription>Samsung TV DMR</modelDescription>
    <modelURL>http://www.samsung.com/tv</modelURL>
    <serialNumber>20110517DMR</serialNumber>
    <presentationURL>http://10.0.0.5/</presentationURL>
    <UDN>uuid:0e06a90a-e969-4f9c-b4ed-b81749b3cbd7</UDN>
    <iconList>
      <icon>
        <mimetype>image/jpeg</mimetype>
        <width>48</width>
        <height>48</height>
        <depth>24</depth>
        <url>/icon_SML.jpg</url>
      </icon>
      <icon>
        <mimetype>image/jpeg</mimetype>
        <width>120</width>
        <height>120</height>
        <depth>24</depth>
        <url>/icon_LRG.jpg</url>
      </icon>
    </iconList>
    <serviceList>
      <service>
        <serviceType>urn:schemas-upnp-org:service:AVTransport:1</serviceType>
        <serviceId>urn:upnp-org:serviceId:AVTransport</serviceId>
        <controlURL>/upnp/control/AVTransport1</controlURL>
        <eventSubURL>/upnp/event/AVTransport1</eventSubURL>
        <SCPDURL>/AVTransport1.xml</SCPDURL>
      </service>
      <service>
        <serviceType>urn:schemas-upnp-org:service:RenderingControl:1</serviceType>
        <serviceId>urn:upnp-org:serviceId:RenderingControl</serviceId>
        <controlURL>/upnp/control/RenderingControl1</controlURL>
        <eventSubURL>/upnp/event/RenderingControl1</eventSubURL>
        <SCPDURL>/RenderingControl1.xml</SCPDURL>
      </service>
    </serviceList>
  </device>
</root>`

func TestCreateFromDescription(t *testing.T) {
	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromString(sampleDescription))

	info := CreateFromDescription(doc, "http://10.0.0.5:9197/description.xml")
	require.NotNil(t, info)

	t.Run("name joins friendly and room names", func(t *testing.T) {
		require.Equal(t, "Living Room TV Living Room", info.Name)
	})

	t.Run("descriptor fields", func(t *testing.T) {
		require.Equal(t, "0e06a90a-e969-4f9c-b4ed-b81749b3cbd7", info.UUID)
		require.Equal(t, "Samsung Electronics", info.Manufacturer)
		require.Equal(t, "http://www.samsung.com", info.ManufacturerURL)
		require.Equal(t, "UE40ES8000", info.ModelName)
		require.Equal(t, "1.0", info.ModelNumber)
		require.Equal(t, "Samsung TV DMR", info.ModelDescription)
		require.Equal(t, "http://www.samsung.com/tv", info.ModelURL)
		require.Equal(t, "20110517DMR", info.SerialNumber)
		require.Equal(t, "http://10.0.0.5/", info.PresentationURL)
		require.Equal(t, "http://10.0.0.5:9197", info.BaseURL)
	})

	t.Run("largest icon wins", func(t *testing.T) {
		require.NotNil(t, info.Icon)
		require.Equal(t, 120, info.Icon.Width)
		require.Equal(t, "/icon_LRG.jpg", info.Icon.URL)
	})

	t.Run("services are collected", func(t *testing.T) {
		require.Len(t, info.Services, 2)

		av := info.AVTransportService()
		require.NotNil(t, av)
		require.Equal(t, "/upnp/control/AVTransport1", av.ControlURL)
		require.Equal(t, "/AVTransport1.xml", av.ScpdURL)

		rc := info.RenderingControlService()
		require.NotNil(t, rc)
		require.Equal(t, "/upnp/control/RenderingControl1", rc.ControlURL)
	})
}

func TestCreateFromDescriptionUnusable(t *testing.T) {
	t.Run("nil document", func(t *testing.T) {
		require.Nil(t, CreateFromDescription(nil, "http://10.0.0.5/description.xml"))
	})

	t.Run("no device element", func(t *testing.T) {
		doc := etree.NewDocument()
		require.NoError(t, doc.ReadFromString(`<root><other/></root>`))
		require.Nil(t, CreateFromDescription(doc, "http://10.0.0.5/description.xml"))
	})

	t.Run("no name", func(t *testing.T) {
		doc := etree.NewDocument()
		require.NoError(t, doc.ReadFromString(`<root><device><modelName>X</modelName></device></root>`))
		require.Nil(t, CreateFromDescription(doc, "http://10.0.0.5/description.xml"))
	})
}

func TestServiceLookupByPrefix(t *testing.T) {
	info := &DeviceInfo{
		Services: []DeviceService{
			{ServiceType: "urn:schemas-upnp-org:service:AVTransport:2", ControlURL: "/av2"},
		},
	}
	svc := info.AVTransportService()
	require.NotNil(t, svc)
	require.Equal(t, "/av2", svc.ControlURL)
}
