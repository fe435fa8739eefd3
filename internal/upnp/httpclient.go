package upnp

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/beevik/etree"
	log "github.com/sirupsen/logrus"
)

// Client performs HTTP and SOAP exchanges with DLNA renderers.
type Client struct {
	httpClient *http.Client
	timeout    time.Duration
}

// NewClient creates a DLNA client with the given timeout.
// Uses connection pooling for better performance when making multiple requests.
func NewClient(timeout time.Duration) *Client {
	return &Client{
		timeout: timeout,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext:         (&net.Dialer{Timeout: timeout}).DialContext,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// NormalizeURL resolves a service URL from a device description against the
// device base URL. Absolute URLs pass through; a bare path segment with no
// slash at all gets the conventional /dmr/ prefix some renderers assume.
func NormalizeURL(baseURL, serviceURL string) string {
	if strings.HasPrefix(serviceURL, "http") {
		return serviceURL
	}
	if !strings.Contains(serviceURL, "/") {
		serviceURL = "/dmr/" + serviceURL
	}
	if !strings.HasPrefix(serviceURL, "/") {
		serviceURL = "/" + serviceURL
	}
	return baseURL + serviceURL
}

// GetData fetches and parses an XML document (device description or SCPD).
// An unparsable body is logged and reported as a nil document without error,
// matching how broken renderer responses are treated everywhere else.
func (c *Client) GetData(ctx context.Context, url string) (*etree.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, mapTransportError("GetData", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("get %s failed: http %d", url, resp.StatusCode)
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return parseTolerant(payload), nil
}

// SendCommand posts a SOAP envelope to the service control URL and parses
// the response. The optional contentFeatures value is forwarded as the
// contentFeatures.dlna.org header some renderers require on transport URIs.
func (c *Client) SendCommand(
	ctx context.Context,
	baseURL string,
	service *DeviceService,
	action string,
	postData string,
	contentFeatures string,
) (*etree.Document, error) {
	url := NormalizeURL(baseURL, service.ControlURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(postData))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "text/xml; charset=\"utf-8\"")
	req.Header.Set("SOAPACTION", fmt.Sprintf("\"%s#%s\"", service.ServiceType, action))
	req.Header.Set("Pragma", "no-cache")
	if contentFeatures != "" {
		req.Header.Set("contentFeatures.dlna.org", contentFeatures)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, mapTransportError(action, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		code, desc := parseSoapFault(payload)
		if code != "" {
			return nil, &DeviceRejectedError{Action: action, Code: code, Description: desc}
		}
		return nil, fmt.Errorf("device action %s failed: http %d", action, resp.StatusCode)
	}

	return parseTolerant(payload), nil
}

func mapTransportError(action string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &DeviceTimeoutError{Action: action}
	}
	return &DeviceUnreachableError{Action: action, Err: err}
}

// parseTolerant parses renderer XML in up to three passes. Devices in the
// wild return fragments with undeclared dlna: prefixes and raw ampersands,
// so a failed direct parse retries inside a synthetic root that declares
// the dlna namespace, then once more with bare ampersands escaped. A body
// that survives none of the passes yields a nil document, not an error.
func parseTolerant(payload []byte) *etree.Document {
	if doc, err := parseDocument(payload); err == nil {
		return doc
	}

	wrapped := "<data xmlns:dlna=\"urn:schemas-dlna-org:device-1-0\">" + string(payload) + "</data>"
	if doc, err := parseDocument([]byte(wrapped)); err == nil {
		return doc
	}

	escaped := escapeBareAmpersands(wrapped)
	doc, err := parseDocument([]byte(escaped))
	if err != nil {
		log.Printf("discarding unparsable device response: %v", err)
		return nil
	}
	return doc
}

func parseDocument(payload []byte) (*etree.Document, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(payload); err != nil {
		return nil, err
	}
	// etree accepts sibling fragments at the top level; a real document
	// has exactly one root element.
	if len(doc.ChildElements()) != 1 {
		return nil, errors.New("document does not have a single root element")
	}
	return doc, nil
}

// escapeBareAmpersands rewrites every '&' that does not open an entity
// reference (lowercase letters terminated by ';') to "&amp;".
func escapeBareAmpersands(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '&' {
			b.WriteByte(s[i])
			continue
		}
		j := i + 1
		for j < len(s) && s[j] >= 'a' && s[j] <= 'z' {
			j++
		}
		if j < len(s) && s[j] == ';' {
			b.WriteByte('&')
		} else {
			b.WriteString("&amp;")
		}
	}
	return b.String()
}

func parseSoapFault(payload []byte) (string, string) {
	decoder := xml.NewDecoder(bytes.NewReader(payload))
	var code string
	var desc string

	for {
		tok, err := decoder.Token()
		if err != nil {
			break
		}
		switch se := tok.(type) {
		case xml.StartElement:
			switch se.Name.Local {
			case "errorCode":
				var value string
				if err := decoder.DecodeElement(&value, &se); err == nil {
					code = strings.TrimSpace(value)
				}
			case "errorDescription":
				var value string
				if err := decoder.DecodeElement(&value, &se); err == nil {
					desc = strings.TrimSpace(value)
				}
			}
		}
	}

	return code, desc
}
