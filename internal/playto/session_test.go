package playto

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/strefethen/playto-hub-go/internal/library"
	"github.com/strefethen/playto-hub-go/internal/profiles"
	"github.com/strefethen/playto-hub-go/internal/upnp"
)

const testAVTransportSCPD = `<?xml version="1.0"?>
<scpd xmlns="urn:schemas-upnp-org:service-1-0">
  <actionList>
    <action><name>SetAVTransportURI</name><argumentList>
      <argument><name>InstanceID</name><direction>in</direction><relatedStateVariable>A_ARG_TYPE_InstanceID</relatedStateVariable></argument>
      <argument><name>CurrentURI</name><direction>in</direction><relatedStateVariable>AVTransportURI</relatedStateVariable></argument>
      <argument><name>CurrentURIMetaData</name><direction>in</direction><relatedStateVariable>AVTransportURIMetaData</relatedStateVariable></argument>
    </argumentList></action>
    <action><name>SetNextAVTransportURI</name><argumentList>
      <argument><name>InstanceID</name><direction>in</direction><relatedStateVariable>A_ARG_TYPE_InstanceID</relatedStateVariable></argument>
      <argument><name>NextURI</name><direction>in</direction><relatedStateVariable>AVTransportURI</relatedStateVariable></argument>
      <argument><name>NextURIMetaData</name><direction>in</direction><relatedStateVariable>AVTransportURIMetaData</relatedStateVariable></argument>
    </argumentList></action>
    <action><name>Play</name><argumentList>
      <argument><name>InstanceID</name><direction>in</direction><relatedStateVariable>A_ARG_TYPE_InstanceID</relatedStateVariable></argument>
      <argument><name>Speed</name><direction>in</direction><relatedStateVariable>A_ARG_TYPE_Speed</relatedStateVariable></argument>
    </argumentList></action>
    <action><name>Stop</name><argumentList>
      <argument><name>InstanceID</name><direction>in</direction><relatedStateVariable>A_ARG_TYPE_InstanceID</relatedStateVariable></argument>
    </argumentList></action>
    <action><name>Pause</name><argumentList>
      <argument><name>InstanceID</name><direction>in</direction><relatedStateVariable>A_ARG_TYPE_InstanceID</relatedStateVariable></argument>
    </argumentList></action>
    <action><name>Seek</name><argumentList>
      <argument><name>InstanceID</name><direction>in</direction><relatedStateVariable>A_ARG_TYPE_InstanceID</relatedStateVariable></argument>
      <argument><name>Unit</name><direction>in</direction><relatedStateVariable>A_ARG_TYPE_SeekMode</relatedStateVariable></argument>
      <argument><name>Target</name><direction>in</direction><relatedStateVariable>A_ARG_TYPE_SeekTarget</relatedStateVariable></argument>
    </argumentList></action>
    <action><name>GetTransportInfo</name><argumentList>
      <argument><name>InstanceID</name><direction>in</direction><relatedStateVariable>A_ARG_TYPE_InstanceID</relatedStateVariable></argument>
      <argument><name>CurrentTransportState</name><direction>out</direction><relatedStateVariable>TransportState</relatedStateVariable></argument>
    </argumentList></action>
    <action><name>GetPositionInfo</name><argumentList>
      <argument><name>InstanceID</name><direction>in</direction><relatedStateVariable>A_ARG_TYPE_InstanceID</relatedStateVariable></argument>
    </argumentList></action>
  </actionList>
  <serviceStateTable>
    <stateVariable><name>A_ARG_TYPE_InstanceID</name><dataType>ui4</dataType></stateVariable>
    <stateVariable><name>A_ARG_TYPE_Speed</name><dataType>string</dataType></stateVariable>
    <stateVariable><name>AVTransportURI</name><dataType>string</dataType></stateVariable>
    <stateVariable><name>AVTransportURIMetaData</name><dataType>string</dataType></stateVariable>
    <stateVariable><name>A_ARG_TYPE_SeekMode</name><dataType>string</dataType>
      <allowedValueList><allowedValue>TRACK_NR</allowedValue><allowedValue>REL_TIME</allowedValue></allowedValueList></stateVariable>
    <stateVariable><name>A_ARG_TYPE_SeekTarget</name><dataType>string</dataType></stateVariable>
    <stateVariable><name>TransportState</name><dataType>string</dataType></stateVariable>
  </serviceStateTable>
</scpd>`

// testRenderer is a scripted DLNA renderer for session tests. It records
// every control action and the body it arrived with.
type testRenderer struct {
	mu      sync.Mutex
	actions []string
	bodies  []string
	state   upnp.TransportState
}

func (r *testRenderer) recorded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.actions...)
}

func (r *testRenderer) lastBodyFor(action string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.actions) - 1; i >= 0; i-- {
		if r.actions[i] == action {
			return r.bodies[i]
		}
	}
	return ""
}

func (r *testRenderer) setState(state upnp.TransportState) {
	r.mu.Lock()
	r.state = state
	r.mu.Unlock()
}

func (r *testRenderer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/description.xml", func(w http.ResponseWriter, req *http.Request) {
		io.WriteString(w, `<?xml version="1.0"?>
<root xmlns="urn:schemas-upnp-org:device-1-0">
  <device>
    <friendlyName>Test Renderer</friendlyName>
    <UDN>uuid:11111111-2222-3333-4444-555555555555</UDN>
    <serviceList>
      <service>
        <serviceType>urn:schemas-upnp-org:service:AVTransport:1</serviceType>
        <serviceId>urn:upnp-org:serviceId:AVTransport</serviceId>
        <controlURL>/control</controlURL>
        <SCPDURL>/AVTransport1.xml</SCPDURL>
      </service>
    </serviceList>
  </device>
</root>`)
	})
	mux.HandleFunc("/AVTransport1.xml", func(w http.ResponseWriter, req *http.Request) {
		io.WriteString(w, testAVTransportSCPD)
	})
	mux.HandleFunc("/control", func(w http.ResponseWriter, req *http.Request) {
		body, _ := io.ReadAll(req.Body)
		soapAction := req.Header.Get("SOAPACTION")
		hash := strings.Index(soapAction, "#")
		action := strings.Trim(soapAction[hash+1:], `"`)

		r.mu.Lock()
		r.actions = append(r.actions, action)
		r.bodies = append(r.bodies, string(body))
		state := r.state
		r.mu.Unlock()

		inner := ""
		if action == "GetTransportInfo" {
			inner = "<CurrentTransportState>" + string(state) + "</CurrentTransportState>"
		}
		io.WriteString(w, `<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/"><s:Body>`+
			`<u:`+action+`Response xmlns:u="urn:schemas-upnp-org:service:AVTransport:1">`+inner+
			`</u:`+action+`Response></s:Body></s:Envelope>`)
	})
	return mux
}

type recordingSink struct {
	mu     sync.Mutex
	events []SessionEvent
}

func (r *recordingSink) Publish(event SessionEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingSink) typesSeen() []SessionEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]SessionEventType, len(r.events))
	for i, event := range r.events {
		types[i] = event.Type
	}
	return types
}

func testLibrary(t *testing.T) *library.Service {
	t.Helper()
	lib := library.NewService()
	require.NoError(t, lib.Upsert(&library.Item{
		ID:           "track-1",
		Name:         "First Track",
		MediaType:    library.MediaTypeAudio,
		RunTimeTicks: 1_000_000_000,
		MediaSources: []library.MediaSource{{ID: "src-1", Container: "mp3", RunTimeTicks: 1_000_000_000}},
	}))
	require.NoError(t, lib.Upsert(&library.Item{
		ID:           "track-2",
		Name:         "Second Track",
		MediaType:    library.MediaTypeAudio,
		RunTimeTicks: 2_000_000_000,
		MediaSources: []library.MediaSource{{ID: "src-2", Container: "mp3", RunTimeTicks: 2_000_000_000}},
	}))
	require.NoError(t, lib.Upsert(&library.Item{
		ID:           "vinyl-rip",
		Name:         "Odd Container",
		MediaType:    library.MediaTypeAudio,
		RunTimeTicks: 1_000_000_000,
		MediaSources: []library.MediaSource{{ID: "src-3", Container: "ogg", RunTimeTicks: 1_000_000_000}},
	}))
	return lib
}

func newTestSession(t *testing.T) (*Session, *testRenderer, *recordingSink) {
	t.Helper()
	renderer := &testRenderer{state: upnp.TransportStateStopped}
	server := httptest.NewServer(renderer.handler())
	t.Cleanup(server.Close)

	client := upnp.NewClient(2 * time.Second)
	device, err := upnp.CreateDevice(context.Background(), client, server.URL+"/description.xml", upnp.DeviceOptions{
		InitialDelay: time.Hour, // keep the poll loop quiet during tests
	})
	require.NoError(t, err)

	sink := &recordingSink{}
	session := NewSession("session-1", device, profiles.DefaultProfile(), testLibrary(t), sink, nil, SessionConfig{
		ServerBaseURL:          "http://hub.local:8080",
		APIKey:                 "test-key",
		WaitForPlayingBound:    200 * time.Millisecond,
		WaitForPlayingInterval: 20 * time.Millisecond,
	}, nil)
	t.Cleanup(session.End)
	return session, renderer, sink
}

func TestSessionPlay(t *testing.T) {
	session, renderer, _ := newTestSession(t)
	ctx := context.Background()

	require.NoError(t, session.Play(ctx, NewPlayCommand([]string{"track-1", "track-2"})))

	t.Run("playlist replaced and first item loaded", func(t *testing.T) {
		state := session.Snapshot()
		require.Equal(t, []string{"track-1", "track-2"}, state.PlaylistItems)
		require.Equal(t, 0, state.CurrentIndex)

		actions := renderer.recorded()
		require.Contains(t, actions, "SetAVTransportURI")
		require.Contains(t, actions, "Play")
		require.Contains(t, actions, "SetNextAVTransportURI")
	})

	t.Run("transport uri carries the stream url", func(t *testing.T) {
		body := renderer.lastBodyFor("SetAVTransportURI")
		require.Contains(t, body, "/audio/track-1/stream.mp3")
		require.Contains(t, body, "Static=true")
	})

	t.Run("next uri pre-announces the second item", func(t *testing.T) {
		body := renderer.lastBodyFor("SetNextAVTransportURI")
		require.Contains(t, body, "/audio/track-2/stream.mp3")
	})

	t.Run("playing again replaces wholesale", func(t *testing.T) {
		require.NoError(t, session.Play(ctx, NewPlayCommand([]string{"track-2"})))
		state := session.Snapshot()
		require.Equal(t, []string{"track-2"}, state.PlaylistItems)
		require.Equal(t, 0, state.CurrentIndex)
	})

	t.Run("unknown items error", func(t *testing.T) {
		require.Error(t, session.Play(ctx, NewPlayCommand([]string{"missing"})))
	})
}

func TestSessionEnqueueModes(t *testing.T) {
	session, _, _ := newTestSession(t)
	ctx := context.Background()

	require.NoError(t, session.Play(ctx, NewPlayCommand([]string{"track-1"})))

	next := NewPlayCommand([]string{"track-2"})
	next.Mode = PlayNext
	require.NoError(t, session.Play(ctx, next))

	last := NewPlayCommand([]string{"vinyl-rip"})
	last.Mode = PlayLast
	require.NoError(t, session.Play(ctx, last))

	state := session.Snapshot()
	require.Equal(t, []string{"track-1", "track-2", "vinyl-rip"}, state.PlaylistItems)
	require.Equal(t, 0, state.CurrentIndex)
}

func TestSetPlaylistIndexOutOfRange(t *testing.T) {
	session, renderer, _ := newTestSession(t)
	ctx := context.Background()

	require.NoError(t, session.Play(ctx, NewPlayCommand([]string{"track-1", "track-2"})))

	// Index == len clears the playlist and stops the renderer.
	require.NoError(t, session.SetPlaylistIndex(ctx, 2))

	state := session.Snapshot()
	require.Empty(t, state.PlaylistItems)
	require.Equal(t, -1, state.CurrentIndex)
	require.Contains(t, renderer.recorded(), "Stop")
}

func TestSessionNextPrevious(t *testing.T) {
	session, renderer, _ := newTestSession(t)
	ctx := context.Background()

	require.NoError(t, session.Play(ctx, NewPlayCommand([]string{"track-1", "track-2"})))

	require.NoError(t, session.Next(ctx))
	require.Equal(t, 1, session.Snapshot().CurrentIndex)

	require.NoError(t, session.Previous(ctx))
	require.Equal(t, 0, session.Snapshot().CurrentIndex)

	// Next past the end clears and stops.
	require.NoError(t, session.Next(ctx))
	require.NoError(t, session.Next(ctx))
	require.Empty(t, session.Snapshot().PlaylistItems)
	require.Contains(t, renderer.recorded(), "Stop")
}

func TestPreviousAtHeadClearsAndStops(t *testing.T) {
	session, renderer, _ := newTestSession(t)
	ctx := context.Background()

	require.NoError(t, session.Play(ctx, NewPlayCommand([]string{"track-1", "track-2"})))

	require.NoError(t, session.Previous(ctx))

	state := session.Snapshot()
	require.Empty(t, state.PlaylistItems)
	require.Equal(t, -1, state.CurrentIndex)
	require.Contains(t, renderer.recorded(), "Stop")
}

func TestPlayDirectWithStartOffsetSeeks(t *testing.T) {
	session, renderer, _ := newTestSession(t)
	ctx := context.Background()
	renderer.setState(upnp.TransportStatePlaying)

	cmd := NewPlayCommand([]string{"track-1"})
	cmd.StartPositionTicks = 300_000_000
	require.NoError(t, session.Play(ctx, cmd))

	// A direct stream serves the whole file regardless of the URL offset,
	// so the session must follow up with a renderer-side seek.
	require.Contains(t, renderer.recorded(), "Seek")
	body := renderer.lastBodyFor("Seek")
	require.Contains(t, body, ">REL_TIME</Unit>")
	require.Contains(t, body, ">00:00:30</Target>")
}

func TestSeekTranscodedRebuildsURL(t *testing.T) {
	session, renderer, _ := newTestSession(t)
	ctx := context.Background()

	// ogg is not direct-playable under the default profile.
	require.NoError(t, session.Play(ctx, NewPlayCommand([]string{"vinyl-rip"})))
	body := renderer.lastBodyFor("SetAVTransportURI")
	require.NotContains(t, body, "Static=true")

	require.NoError(t, session.Seek(ctx, 500_000_000))

	body = renderer.lastBodyFor("SetAVTransportURI")
	require.Contains(t, body, "StartPositionTicks=500000000")
	require.NotContains(t, renderer.recorded(), "Seek")
}

func TestSeekDirectUsesDeviceSeek(t *testing.T) {
	session, renderer, _ := newTestSession(t)
	ctx := context.Background()

	require.NoError(t, session.Play(ctx, NewPlayCommand([]string{"track-1"})))
	renderer.setState(upnp.TransportStatePlaying)

	// The cached transport state stays STOPPED with the poll loop quiet,
	// so the wait-for-playing bound expires and the seek is sent anyway.
	require.NoError(t, session.Seek(ctx, 300_000_000))

	require.Contains(t, renderer.recorded(), "Seek")
	body := renderer.lastBodyFor("Seek")
	require.Contains(t, body, ">REL_TIME</Unit>")
	require.Contains(t, body, ">00:00:30</Target>")
}

func TestPlayedToCompletion(t *testing.T) {
	t.Run("zero position counts as complete", func(t *testing.T) {
		require.True(t, playedToCompletion(0, 1000))
	})
	t.Run("within ten percent of the end", func(t *testing.T) {
		require.True(t, playedToCompletion(91, 100))
	})
	t.Run("half way is not complete", func(t *testing.T) {
		require.False(t, playedToCompletion(50, 100))
	})
	t.Run("unknown duration with progress is not complete", func(t *testing.T) {
		require.False(t, playedToCompletion(50, 0))
	})
}

func TestStopEventAutoAdvance(t *testing.T) {
	session, renderer, sink := newTestSession(t)
	ctx := context.Background()

	require.NoError(t, session.Play(ctx, NewPlayCommand([]string{"track-1", "track-2"})))

	// A stop near the end of track-1 advances to track-2.
	session.mu.Lock()
	session.lastPositionTicks = 950_000_000
	session.mu.Unlock()
	session.onPlaybackStopped(&upnp.UBaseObject{
		URL: "http://hub.local:8080/audio/track-1/stream.mp3?MediaSourceId=src-1",
	})

	state := session.Snapshot()
	require.Equal(t, 1, state.CurrentIndex)
	body := renderer.lastBodyFor("SetAVTransportURI")
	require.Contains(t, body, "/audio/track-2/stream.mp3")
	require.Contains(t, sink.typesSeen(), EventPlaybackStop)
}

func TestStopEventMidItemClearsPlaylist(t *testing.T) {
	session, _, _ := newTestSession(t)
	ctx := context.Background()

	require.NoError(t, session.Play(ctx, NewPlayCommand([]string{"track-1", "track-2"})))

	session.mu.Lock()
	session.lastPositionTicks = 500_000_000
	session.mu.Unlock()
	session.onPlaybackStopped(&upnp.UBaseObject{
		URL: "http://hub.local:8080/audio/track-1/stream.mp3?MediaSourceId=src-1",
	})

	state := session.Snapshot()
	require.Empty(t, state.PlaylistItems)
	require.Equal(t, -1, state.CurrentIndex)
}

func TestSessionEndPublishesAndNotifies(t *testing.T) {
	session, _, sink := newTestSession(t)

	var endedWith string
	session.onEnded = func(id string) { endedWith = id }
	session.End()
	session.End() // idempotent

	require.Equal(t, "session-1", endedWith)
	types := sink.typesSeen()
	require.Equal(t, []SessionEventType{EventSessionEnded}, types)
}

func TestHandleDeviceLeft(t *testing.T) {
	session, _, sink := newTestSession(t)

	session.HandleDeviceLeft("uuid:99999999-aaaa-bbbb-cccc-000000000000::urn:schemas-upnp-org:device:MediaRenderer:1")
	require.Empty(t, sink.typesSeen())

	session.HandleDeviceLeft("uuid:11111111-2222-3333-4444-555555555555::urn:schemas-upnp-org:device:MediaRenderer:1")
	require.Contains(t, sink.typesSeen(), EventSessionEnded)
}
