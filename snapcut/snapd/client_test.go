package snapd

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/steelcutops/snapcut/snapcut/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testServerTransport rewrites requests to target the test server.
type testServerTransport struct {
	server    *httptest.Server
	transport http.RoundTripper
}

func (transport *testServerTransport) RoundTrip(request *http.Request) (*http.Response, error) {
	target, _ := url.Parse(transport.server.URL)
	request.URL.Scheme = target.Scheme
	request.URL.Host = target.Host
	return transport.transport.RoundTrip(request)
}

func newTestClient(t *testing.T, handler http.Handler, options ...Option) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewForTesting(&testServerTransport{server: server, transport: http.DefaultTransport}, options...)
}

func writeResult(t *testing.T, w http.ResponseWriter, code int, result any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	require.NoError(t, json.NewEncoder(w).Encode(map[string]any{"type": "sync", "result": result}))
}

type recordedRequest struct {
	endpoint string
	code     int
}

type fakeRecorder struct {
	requests []recordedRequest
}

func (r *fakeRecorder) ObserveAction(string, time.Duration, bool) {}
func (r *fakeRecorder) IncReconcile(string, metrics.Outcome)      {}
func (r *fakeRecorder) ObserveDaemonRequest(endpoint string, _ time.Duration, code int) {
	r.requests = append(r.requests, recordedRequest{endpoint: endpoint, code: code})
}

func TestInstalledSnaps(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/snaps", r.URL.Path)
		writeResult(t, w, http.StatusOK, []map[string]any{
			{"name": "core", "channel": "stable", "revision": "16202", "confinement": "strict"},
			{"name": "juju", "channel": "stable", "tracking-channel": "3/stable", "revision": 25751, "confinement": "classic"},
		})
	}))

	snaps, err := client.InstalledSnaps(context.Background())
	require.NoError(t, err)
	require.Len(t, snaps, 2)

	assert.Equal(t, "core", snaps[0].Name)
	assert.Equal(t, Revision("16202"), snaps[0].Revision)
	assert.Equal(t, "juju", snaps[1].Name)
	assert.Equal(t, "3/stable", snaps[1].TrackingChannel)
	assert.Equal(t, Revision("25751"), snaps[1].Revision)
	assert.Equal(t, "classic", snaps[1].Confinement)
}

func TestFindSnap(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/find", r.URL.Path)
		assert.Equal(t, "hello-world", r.URL.Query().Get("name"))
		writeResult(t, w, http.StatusOK, []map[string]any{
			{"name": "hello-world", "channel": "stable", "revision": "29", "confinement": "strict"},
		})
	}))

	info, err := client.FindSnap(context.Background(), "hello-world")
	require.NoError(t, err)
	assert.Equal(t, "hello-world", info.Name)
	assert.Equal(t, Revision("29"), info.Revision)
}

func TestFindSnapNoResults(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeResult(t, w, http.StatusOK, []map[string]any{})
	}))

	_, err := client.FindSnap(context.Background(), "nothing")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Code)
	assert.Equal(t, "Not Found", apiErr.Status)
}

func TestErrorResponse(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeResult(t, w, http.StatusNotFound, map[string]any{
			"message": "snap not found",
			"kind":    "snap-not-found",
		})
	}))

	_, err := client.FindSnap(context.Background(), "nothing")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 404, apiErr.Code)
	assert.Equal(t, "Not Found", apiErr.Status)
	assert.Equal(t, "snap not found", apiErr.Message)
	assert.Equal(t, "snap-not-found", apiErr.Kind())
	assert.Equal(t, "snapd: 404 Not Found: snap not found", apiErr.Error())
}

func TestUndecodableErrorResponse(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html>bad gateway</html>"))
	}))

	_, err := client.InstalledSnaps(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.Code)
	assert.Equal(t, "Bad Gateway", apiErr.Status)
	assert.Empty(t, apiErr.Body)
	assert.Contains(t, apiErr.Message, "decode error body")
	assert.Empty(t, apiErr.Kind())
}

func TestErrorResponseWithoutResult(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"type":"error"}`))
	}))

	_, err := client.InstalledSnaps(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.Code)
	assert.Empty(t, apiErr.Body)
	assert.Contains(t, apiErr.Message, "missing result")
}

func TestMalformedSuccessResponse(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeResult(t, w, http.StatusOK, "not a list")
	}))

	_, err := client.InstalledSnaps(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusOK, apiErr.Code)
	assert.Contains(t, apiErr.Message, "decode snaps result")
}

func TestConnectionError(t *testing.T) {
	recorder := &fakeRecorder{}
	client := New(filepath.Join(t.TempDir(), "missing.socket"), WithRecorder(recorder))

	_, err := client.InstalledSnaps(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 500, apiErr.Code)
	assert.Equal(t, "Not found", apiErr.Status)
	assert.NotEmpty(t, apiErr.Message)
	assert.Empty(t, apiErr.Body)

	require.Len(t, recorder.requests, 1)
	assert.Equal(t, recordedRequest{endpoint: "snaps", code: 500}, recorder.requests[0])
}

func TestCustomDialer(t *testing.T) {
	dialErr := errors.New("tunnel closed")
	client := New(DefaultSocketPath, WithDialer(func(context.Context) (net.Conn, error) {
		return nil, dialErr
	}))

	_, err := client.InstalledSnaps(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 500, apiErr.Code)
	assert.Contains(t, apiErr.Message, "tunnel closed")
}

func TestUnixSocket(t *testing.T) {
	dir, err := os.MkdirTemp("", "snapd")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	socket := filepath.Join(dir, "snapd.socket")

	listener, err := net.Listen("unix", socket)
	require.NoError(t, err)

	server := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/snaps", r.URL.Path)
		writeResult(t, w, http.StatusOK, []map[string]any{
			{"name": "lxd", "channel": "5.21/stable", "revision": "29351", "confinement": "strict"},
		})
	}))
	server.Listener = listener
	server.Start()
	t.Cleanup(server.Close)

	recorder := &fakeRecorder{}
	client := New(socket, WithRecorder(recorder))
	snaps, err := client.InstalledSnaps(context.Background())
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, "lxd", snaps[0].Name)
	assert.Equal(t, []recordedRequest{{endpoint: "snaps", code: 200}}, recorder.requests)
}

func TestRevisionUnmarshal(t *testing.T) {
	tests := []struct {
		input string
		want  Revision
	}{
		{`"x1"`, "x1"},
		{`"123"`, "123"},
		{`123`, "123"},
		{`null`, ""},
	}
	for _, tt := range tests {
		var r Revision
		require.NoError(t, json.Unmarshal([]byte(tt.input), &r), tt.input)
		assert.Equal(t, tt.want, r, tt.input)
	}

	var r Revision
	assert.Error(t, json.Unmarshal([]byte(`{}`), &r))
}

func TestWithBaseURL(t *testing.T) {
	client := NewForTesting(http.DefaultTransport, WithBaseURL("http://snapd/v2"), WithTimeout(time.Second))
	assert.Equal(t, "http://snapd/v2/", client.baseURL)
	assert.Equal(t, time.Second, client.timeout)
}
