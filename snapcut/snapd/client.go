// Package snapd is a small client for the snapd REST API served over a Unix
// socket. Only the read endpoints the snap cache needs are implemented;
// mutations go through the snap command instead.
package snapd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/steelcutops/snapcut/snapcut/metrics"
)

const (
	DefaultSocketPath = "/run/snapd.socket"
	DefaultBaseURL    = "http://localhost/v2/"
	DefaultTimeout    = 5 * time.Second
)

// Client talks to snapd. Every call issues exactly one request and is never
// retried.
type Client struct {
	httpClient *http.Client
	baseURL    string
	timeout    time.Duration
	dial       func(ctx context.Context) (net.Conn, error)
	recorder   metrics.Recorder
}

type Option func(*Client)

// WithTimeout bounds each request. Zero disables the timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if !strings.HasSuffix(baseURL, "/") {
			baseURL += "/"
		}
		c.baseURL = baseURL
	}
}

// WithDialer replaces the default Unix socket dialer, e.g. with one that
// tunnels the socket over SSH.
func WithDialer(dial func(ctx context.Context) (net.Conn, error)) Option {
	return func(c *Client) {
		c.dial = dial
	}
}

func WithRecorder(recorder metrics.Recorder) Option {
	return func(c *Client) {
		if recorder != nil {
			c.recorder = recorder
		}
	}
}

// New creates a Client that reaches snapd over the Unix socket at socketPath.
func New(socketPath string, options ...Option) *Client {
	c := newClient(options)
	if c.dial == nil {
		c.dial = func(ctx context.Context) (net.Conn, error) {
			var dialer net.Dialer
			return dialer.DialContext(ctx, "unix", socketPath)
		}
	}
	c.httpClient = &http.Client{
		Timeout: c.timeout,
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				return c.dial(ctx)
			},
			DisableKeepAlives: true,
		},
	}
	return c
}

// NewForTesting creates a Client with a custom transport so tests can point
// it at an httptest.Server instead of a Unix socket.
func NewForTesting(transport http.RoundTripper, options ...Option) *Client {
	c := newClient(options)
	c.httpClient = &http.Client{Timeout: c.timeout, Transport: transport}
	return c
}

func newClient(options []Option) *Client {
	c := &Client{
		baseURL:  DefaultBaseURL,
		timeout:  DefaultTimeout,
		recorder: metrics.NoopRecorder{},
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// InstalledSnaps lists the snaps installed on the system.
func (c *Client) InstalledSnaps(ctx context.Context) ([]SnapInfo, error) {
	var snaps []SnapInfo
	if err := c.get(ctx, "snaps", nil, &snaps); err != nil {
		return nil, err
	}
	return snaps, nil
}

// FindSnap queries the store, through snapd, for the snap called name. A
// query without matches fails with a 404 APIError.
func (c *Client) FindSnap(ctx context.Context, name string) (SnapInfo, error) {
	var snaps []SnapInfo
	if err := c.get(ctx, "find", url.Values{"name": {name}}, &snaps); err != nil {
		return SnapInfo{}, err
	}
	if len(snaps) == 0 {
		return SnapInfo{}, &APIError{
			Body:    map[string]any{},
			Code:    http.StatusNotFound,
			Status:  http.StatusText(http.StatusNotFound),
			Message: fmt.Sprintf("no snap named %q", name),
		}
	}
	return snaps[0], nil
}

func (c *Client) get(ctx context.Context, endpoint string, query url.Values, result any) error {
	target := c.baseURL + endpoint
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("snapd %s: %w", endpoint, err)
	}
	request.Header.Set("Accept", "application/json")

	start := time.Now()
	response, err := c.httpClient.Do(request)
	if err != nil {
		c.recorder.ObserveDaemonRequest(endpoint, time.Since(start), connectionErrorCode)
		return connectionError(err)
	}
	defer response.Body.Close()
	c.recorder.ObserveDaemonRequest(endpoint, time.Since(start), response.StatusCode)

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return decodeAPIError(response)
	}

	var envelope struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.NewDecoder(response.Body).Decode(&envelope); err != nil {
		return &APIError{
			Body:    map[string]any{},
			Code:    response.StatusCode,
			Status:  statusText(response),
			Message: fmt.Sprintf("decode %s response: %v", endpoint, err),
		}
	}
	if err := json.Unmarshal(envelope.Result, result); err != nil {
		return &APIError{
			Body:    map[string]any{},
			Code:    response.StatusCode,
			Status:  statusText(response),
			Message: fmt.Sprintf("decode %s result: %v", endpoint, err),
		}
	}
	return nil
}

func connectionError(err error) *APIError {
	reason := err
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		reason = urlErr.Err
	}
	return &APIError{
		Body:    map[string]any{},
		Code:    connectionErrorCode,
		Status:  connectionErrorStatus,
		Message: reason.Error(),
	}
}

func decodeAPIError(response *http.Response) *APIError {
	apiErr := &APIError{
		Code:   response.StatusCode,
		Status: statusText(response),
	}

	var envelope struct {
		Result map[string]any `json:"result"`
	}
	raw, err := io.ReadAll(response.Body)
	if err == nil {
		err = json.Unmarshal(raw, &envelope)
	}
	if err == nil && envelope.Result == nil {
		err = errors.New("missing result")
	}
	if err != nil {
		apiErr.Body = map[string]any{}
		apiErr.Message = fmt.Sprintf("decode error body: %v", err)
		return apiErr
	}

	apiErr.Body = envelope.Result
	if message, ok := envelope.Result["message"].(string); ok {
		apiErr.Message = message
	}
	return apiErr
}

// statusText returns the reason phrase of the response, e.g. "Not Found".
func statusText(response *http.Response) string {
	text := strings.TrimSpace(strings.TrimPrefix(response.Status, strconv.Itoa(response.StatusCode)))
	if text == "" {
		text = http.StatusText(response.StatusCode)
	}
	return text
}
