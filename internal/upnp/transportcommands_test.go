package upnp

import (
	"strings"
	"testing"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/require"
)

const sampleSCPD = `<?xml version="1.0"?>
<scpd xmlns="urn:schemas-upnp-org:service-1-0">
  <actionList>
    <action>
      <name>SetAVTransportURI</name>
      <argumentList>
        <argument>
          <name>InstanceID</name>
          <direction>in</direction>
          <relatedStateVariable>A_ARG_TYPE_InstanceID</relatedStateVariable>
        </argument>
        <argument>
          <name>CurrentURI</name>
          <direction>in</direction>
          <relatedStateVariable>AVTransportURI</relatedStateVariable>
        </argument>
        <argument>
          <name>CurrentURIMetaData</name>
          <direction>in</direction>
          <relatedStateVariable>AVTransportURIMetaData</relatedStateVariable>
        </argument>
      </argumentList>
    </action>
    <action>
      <name>Seek</name>
      <argumentList>
        <argument>
          <name>InstanceID</name>
          <direction>in</direction>
          <relatedStateVariable>A_ARG_TYPE_InstanceID</relatedStateVariable>
        </argument>
        <argument>
          <name>Unit</name>
          <direction>in</direction>
          <relatedStateVariable>A_ARG_TYPE_SeekMode</relatedStateVariable>
        </argument>
        <argument>
          <name>Target</name>
          <direction>in</direction>
          <relatedStateVariable>A_ARG_TYPE_SeekTarget</relatedStateVariable>
        </argument>
      </argumentList>
    </action>
    <action>
      <name>GetTransportInfo</name>
      <argumentList>
        <argument>
          <name>InstanceID</name>
          <direction>in</direction>
          <relatedStateVariable>A_ARG_TYPE_InstanceID</relatedStateVariable>
        </argument>
        <argument>
          <name>CurrentTransportState</name>
          <direction>out</direction>
          <relatedStateVariable>TransportState</relatedStateVariable>
        </argument>
      </argumentList>
    </action>
  </actionList>
  <serviceStateTable>
    <stateVariable sendEvents="yes">
      <name>TransportState</name>
      <dataType>string</dataType>
      <allowedValueList>
        <allowedValue>STOPPED</allowedValue>
        <allowedValue>PLAYING</allowedValue>
      </allowedValueList>
    </stateVariable>
    <stateVariable sendEvents="no">
      <name>A_ARG_TYPE_InstanceID</name>
      <dataType>ui4</dataType>
    </stateVariable>
    <stateVariable sendEvents="no">
      <name>A_ARG_TYPE_SeekMode</name>
      <dataType>string</dataType>
      <allowedValueList>
        <allowedValue>TRACK_NR</allowedValue>
        <allowedValue>REL_TIME</allowedValue>
      </allowedValueList>
    </stateVariable>
    <stateVariable sendEvents="no">
      <name>A_ARG_TYPE_SeekTarget</name>
      <dataType>string</dataType>
    </stateVariable>
  </serviceStateTable>
</scpd>`

func parseSampleSCPD(t *testing.T) *TransportCommands {
	t.Helper()
	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromString(sampleSCPD))
	return ParseSCPD(doc)
}

func TestParseSCPD(t *testing.T) {
	commands := parseSampleSCPD(t)

	require.Len(t, commands.ServiceActions, 3)
	require.Len(t, commands.StateVariables, 4)

	t.Run("actions carry arguments", func(t *testing.T) {
		action := commands.Action("SetAVTransportURI")
		require.NotNil(t, action)
		require.Len(t, action.Arguments, 3)
		require.Equal(t, "CurrentURI", action.Arguments[1].Name)
		require.Equal(t, "AVTransportURI", action.Arguments[1].RelatedStateVariable)
	})

	t.Run("state variable allowed values", func(t *testing.T) {
		variable := commands.stateVariable("A_ARG_TYPE_SeekMode")
		require.NotNil(t, variable)
		require.Equal(t, []string{"TRACK_NR", "REL_TIME"}, variable.AllowedValues)
		require.False(t, variable.SendsEvents)
	})

	t.Run("sendEvents attribute", func(t *testing.T) {
		variable := commands.stateVariable("TransportState")
		require.NotNil(t, variable)
		require.True(t, variable.SendsEvents)
	})

	t.Run("action lookup is case-insensitive", func(t *testing.T) {
		require.NotNil(t, commands.Action("seek"))
		require.Nil(t, commands.Action("NoSuchAction"))
	})
}

func TestBuildPost(t *testing.T) {
	commands := parseSampleSCPD(t)
	const ns = "urn:schemas-upnp-org:service:AVTransport:1"

	t.Run("instance id is always zero", func(t *testing.T) {
		action := commands.Action("SetAVTransportURI")
		post := commands.BuildPost(action, ns, "http://media/track.mp3", nil)
		require.Contains(t, post, ">0</InstanceID>")
	})

	t.Run("out arguments are skipped", func(t *testing.T) {
		action := commands.Action("GetTransportInfo")
		post := commands.BuildPost(action, ns, "", nil)
		require.NotContains(t, post, "CurrentTransportState")
	})

	t.Run("map values win over the scalar", func(t *testing.T) {
		action := commands.Action("Seek")
		post := commands.BuildPost(action, ns, "00:01:05", map[string]string{
			"Unit":   "REL_TIME",
			"Target": "00:01:05",
		})
		require.Contains(t, post, ">REL_TIME</Unit>")
		require.Contains(t, post, ">00:01:05</Target>")
	})

	t.Run("enum coercion matches case-insensitively", func(t *testing.T) {
		action := commands.Action("Seek")
		post := commands.BuildPost(action, ns, "", map[string]string{"Unit": "rel_time"})
		require.Contains(t, post, ">REL_TIME</Unit>")
	})

	t.Run("enum coercion falls back to first allowed value", func(t *testing.T) {
		action := commands.Action("Seek")
		post := commands.BuildPost(action, ns, "", map[string]string{"Unit": "bogus"})
		require.Contains(t, post, ">TRACK_NR</Unit>")
	})

	t.Run("data type attribute when state variable is known", func(t *testing.T) {
		action := commands.Action("SetAVTransportURI")
		post := commands.BuildPost(action, ns, "http://media/track.mp3", nil)
		require.Contains(t, post, `<InstanceID xmlns:dt="urn:schemas-microsoft-com:datatypes" dt:dt="ui4">`)
	})

	t.Run("values are xml-escaped", func(t *testing.T) {
		action := commands.Action("SetAVTransportURI")
		uri := "http://media/track.mp3?a=1&b=2"
		post := commands.BuildPost(action, ns, uri, map[string]string{"CurrentURI": uri})
		require.Contains(t, post, "a=1&amp;b=2")
		require.NotContains(t, post, "a=1&b=2<")
	})

	t.Run("envelope shape", func(t *testing.T) {
		action := commands.Action("Seek")
		post := commands.BuildPost(action, ns, "", nil)
		require.True(t, strings.HasPrefix(post, "<?xml version=\"1.0\" encoding=\"UTF-8\"?>\r\n"))
		require.Contains(t, post, `<SOAP-ENV:Envelope xmlns:SOAP-ENV="http://schemas.xmlsoap.org/soap/envelope/" SOAP-ENV:encodingStyle="http://schemas.xmlsoap.org/soap/encoding/">`)
		require.Contains(t, post, `<m:Seek xmlns:m="`+ns+`">`)
		require.Contains(t, post, "</m:Seek></SOAP-ENV:Body></SOAP-ENV:Envelope>")
	})
}
