package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/strefethen/playto-hub-go/internal/config"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	t.Setenv("JWT_SECRET", "this-is-a-development-secret-string-32chars")
	t.Setenv("NODE_ENV", "development")
	t.Setenv("ALLOW_TEST_MODE", "true")
	t.Setenv("SQLITE_DB_PATH", filepath.Join(t.TempDir(), "playto-hub.db"))
	t.Setenv("PROFILES_DIR", t.TempDir())

	cfg, err := config.Load()
	require.NoError(t, err)

	handler, shutdown, err := NewHandler(cfg, Options{DisableDiscovery: true})
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, shutdown(nil))
	})

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/v1/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var health struct {
		Status  string `json:"status"`
		Service string `json:"service"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	require.Equal(t, "healthy", health.Status)
	require.Equal(t, "playto-hub", health.Service)

	for _, path := range []string{"/v1/health/live", "/v1/health/ready"} {
		r, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, r.StatusCode)
		require.NoError(t, r.Body.Close())
	}
}

func TestAuthRequiredOnProtectedRoutes(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/v1/sessions")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "UNAUTHORIZED", body.Error.Code)
}

func TestPairingAndRefreshFlow(t *testing.T) {
	srv := newTestServer(t)

	startResp, err := http.Post(srv.URL+"/v1/auth/pair/start", "application/json", bytes.NewReader([]byte("{}")))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, startResp.StatusCode)

	var start struct {
		PairingHint string `json:"pairing_hint"`
	}
	require.NoError(t, json.NewDecoder(startResp.Body).Decode(&start))
	require.NoError(t, startResp.Body.Close())

	re := regexp.MustCompile(`Code:\s*([0-9]{6})`)
	match := re.FindStringSubmatch(start.PairingHint)
	require.Len(t, match, 2)

	completeBody, _ := json.Marshal(map[string]any{
		"pair_code":   match[1],
		"device_name": "Test Device",
	})
	completeResp, err := http.Post(srv.URL+"/v1/auth/pair/complete", "application/json", bytes.NewReader(completeBody))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, completeResp.StatusCode)

	var complete struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresInSec int    `json:"expires_in_sec"`
	}
	require.NoError(t, json.NewDecoder(completeResp.Body).Decode(&complete))
	require.NoError(t, completeResp.Body.Close())
	require.NotEmpty(t, complete.AccessToken)
	require.NotEmpty(t, complete.RefreshToken)
	require.Positive(t, complete.ExpiresInSec)

	refreshBody, _ := json.Marshal(map[string]any{"refresh_token": complete.RefreshToken})
	refreshResp, err := http.Post(srv.URL+"/v1/auth/refresh", "application/json", bytes.NewReader(refreshBody))
	require.NoError(t, err)
	defer refreshResp.Body.Close()
	require.Equal(t, http.StatusOK, refreshResp.StatusCode)

	var refresh struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.NewDecoder(refreshResp.Body).Decode(&refresh))
	require.NotEmpty(t, refresh.AccessToken)

	// The fresh access token should open protected routes.
	req, err := http.NewRequest(http.MethodGet, srv.URL+"/v1/sessions", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+refresh.AccessToken)
	sessionsResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer sessionsResp.Body.Close()
	require.Equal(t, http.StatusOK, sessionsResp.StatusCode)
}

func TestLibraryRoundTripWithTestMode(t *testing.T) {
	srv := newTestServer(t)
	client := http.DefaultClient

	doJSON := func(method, path string, payload any) *http.Response {
		t.Helper()
		var body *bytes.Reader
		if payload != nil {
			raw, err := json.Marshal(payload)
			require.NoError(t, err)
			body = bytes.NewReader(raw)
		} else {
			body = bytes.NewReader(nil)
		}
		req, err := http.NewRequest(method, srv.URL+path, body)
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-test-mode", "true")
		resp, err := client.Do(req)
		require.NoError(t, err)
		return resp
	}

	putResp := doJSON(http.MethodPut, "/v1/library/items", map[string]any{
		"id":           "item-1",
		"name":         "Big Buck Bunny",
		"mediaType":    "Video",
		"runTimeTicks": 5965000000,
		"mediaSources": []map[string]any{
			{"id": "source-1", "container": "mp4"},
		},
	})
	require.Equal(t, http.StatusOK, putResp.StatusCode)
	require.NoError(t, putResp.Body.Close())

	getResp := doJSON(http.MethodGet, "/v1/library/items/item-1", nil)
	require.Equal(t, http.StatusOK, getResp.StatusCode)
	var item struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	require.NoError(t, json.NewDecoder(getResp.Body).Decode(&item))
	require.NoError(t, getResp.Body.Close())
	require.Equal(t, "Big Buck Bunny", item.Name)

	listResp := doJSON(http.MethodGet, "/v1/library/items", nil)
	require.Equal(t, http.StatusOK, listResp.StatusCode)
	var list struct {
		Object string            `json:"object"`
		Data   []json.RawMessage `json:"data"`
	}
	require.NoError(t, json.NewDecoder(listResp.Body).Decode(&list))
	require.NoError(t, listResp.Body.Close())
	require.Equal(t, "list", list.Object)
	require.Len(t, list.Data, 1)

	delResp := doJSON(http.MethodDelete, "/v1/library/items/item-1", nil)
	require.Equal(t, http.StatusOK, delResp.StatusCode)
	require.NoError(t, delResp.Body.Close())

	missingResp := doJSON(http.MethodGet, "/v1/library/items/item-1", nil)
	require.Equal(t, http.StatusNotFound, missingResp.StatusCode)
	require.NoError(t, missingResp.Body.Close())
}
