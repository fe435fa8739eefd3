package upnp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	t.Run("absolute url passes through", func(t *testing.T) {
		url := NormalizeURL("http://10.0.0.5:9197", "http://10.0.0.5:9197/upnp/control")
		require.Equal(t, "http://10.0.0.5:9197/upnp/control", url)
	})

	t.Run("rooted path joins base", func(t *testing.T) {
		url := NormalizeURL("http://10.0.0.5:9197", "/upnp/control/AVTransport1")
		require.Equal(t, "http://10.0.0.5:9197/upnp/control/AVTransport1", url)
	})

	t.Run("relative path gains leading slash", func(t *testing.T) {
		url := NormalizeURL("http://10.0.0.5:9197", "upnp/control")
		require.Equal(t, "http://10.0.0.5:9197/upnp/control", url)
	})

	t.Run("bare segment gets dmr prefix", func(t *testing.T) {
		url := NormalizeURL("http://10.0.0.5:9197", "AVTransport1.xml")
		require.Equal(t, "http://10.0.0.5:9197/dmr/AVTransport1.xml", url)
	})
}

func TestEscapeBareAmpersands(t *testing.T) {
	t.Run("entity references are preserved", func(t *testing.T) {
		require.Equal(t, "a &amp; b &lt; c", escapeBareAmpersands("a &amp; b &lt; c"))
	})

	t.Run("bare ampersand is escaped", func(t *testing.T) {
		require.Equal(t, "Tom &amp; Jerry", escapeBareAmpersands("Tom & Jerry"))
	})

	t.Run("trailing ampersand is escaped", func(t *testing.T) {
		require.Equal(t, "ends with &amp;", escapeBareAmpersands("ends with &"))
	})

	t.Run("numeric references are not recognized", func(t *testing.T) {
		require.Equal(t, "&amp;#38;", escapeBareAmpersands("&#38;"))
	})
}

func TestParseTolerant(t *testing.T) {
	t.Run("well-formed document parses directly", func(t *testing.T) {
		doc := parseTolerant([]byte(`<root><value>1</value></root>`))
		require.NotNil(t, doc)
		require.Equal(t, "root", doc.Root().Tag)
	})

	t.Run("undeclared dlna prefix recovers via synthetic root", func(t *testing.T) {
		doc := parseTolerant([]byte(`<a>1</a><b>2</b>`))
		require.NotNil(t, doc)
		require.Equal(t, "data", doc.Root().Tag)
		require.NotNil(t, doc.FindElement("//b"))
	})

	t.Run("bare ampersands recover on the third pass", func(t *testing.T) {
		doc := parseTolerant([]byte(`<title>Tom & Jerry</title>`))
		require.NotNil(t, doc)
		elem := doc.FindElement("//title")
		require.NotNil(t, elem)
		require.Equal(t, "Tom & Jerry", elem.Text())
	})

	t.Run("hopeless input yields nil without panic", func(t *testing.T) {
		require.Nil(t, parseTolerant([]byte(`<<<not xml`)))
	})
}

func TestSendCommand(t *testing.T) {
	service := &DeviceService{
		ServiceType: "urn:schemas-upnp-org:service:AVTransport:1",
		ControlURL:  "/upnp/control/AVTransport1",
	}

	t.Run("sets soap headers and returns parsed body", func(t *testing.T) {
		var gotAction, gotFeatures, gotPath string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAction = r.Header.Get("SOAPACTION")
			gotFeatures = r.Header.Get("contentFeatures.dlna.org")
			gotPath = r.URL.Path
			w.Write([]byte(`<s:Envelope><s:Body><u:PlayResponse/></s:Body></s:Envelope>`))
		}))
		defer server.Close()

		client := NewClient(2 * time.Second)
		doc, err := client.SendCommand(context.Background(), server.URL, service, "Play", "<post/>", "DLNA.ORG_OP=01")
		require.NoError(t, err)
		require.NotNil(t, doc)
		require.Equal(t, `"urn:schemas-upnp-org:service:AVTransport:1#Play"`, gotAction)
		require.Equal(t, "DLNA.ORG_OP=01", gotFeatures)
		require.Equal(t, "/upnp/control/AVTransport1", gotPath)
	})

	t.Run("soap fault becomes rejected error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`<s:Envelope><s:Body><s:Fault><detail><UPnPError>` +
				`<errorCode>718</errorCode><errorDescription>Invalid InstanceID</errorDescription>` +
				`</UPnPError></detail></s:Fault></s:Body></s:Envelope>`))
		}))
		defer server.Close()

		client := NewClient(2 * time.Second)
		_, err := client.SendCommand(context.Background(), server.URL, service, "Seek", "<post/>", "")
		require.Error(t, err)
		var rejected *DeviceRejectedError
		require.ErrorAs(t, err, &rejected)
		require.Equal(t, "718", rejected.Code)
		require.Equal(t, "Invalid InstanceID", rejected.Description)
		require.Equal(t, "Seek", rejected.Action)
	})

	t.Run("connection refused becomes unreachable error", func(t *testing.T) {
		client := NewClient(500 * time.Millisecond)
		_, err := client.SendCommand(context.Background(), "http://127.0.0.1:1", service, "Play", "<post/>", "")
		require.Error(t, err)
		var unreachable *DeviceUnreachableError
		require.ErrorAs(t, err, &unreachable)
		require.Equal(t, "Play", unreachable.Action)
	})

	t.Run("unparsable success body returns nil document and nil error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`<<<garbage`))
		}))
		defer server.Close()

		client := NewClient(2 * time.Second)
		doc, err := client.SendCommand(context.Background(), server.URL, service, "GetTransportInfo", "<post/>", "")
		require.NoError(t, err)
		require.Nil(t, doc)
	})
}

func TestGetData(t *testing.T) {
	t.Run("fetches and parses", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`<root><device><friendlyName>TV</friendlyName></device></root>`))
		}))
		defer server.Close()

		client := NewClient(2 * time.Second)
		doc, err := client.GetData(context.Background(), server.URL+"/description.xml")
		require.NoError(t, err)
		require.NotNil(t, doc)
		require.Equal(t, "TV", doc.FindElement("//friendlyName").Text())
	})

	t.Run("http error status is an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		client := NewClient(2 * time.Second)
		_, err := client.GetData(context.Background(), server.URL+"/missing.xml")
		require.Error(t, err)
	})
}
