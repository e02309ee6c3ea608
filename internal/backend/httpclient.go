package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Compile-time interface check.
var _ Client = (*HTTPClient)(nil)

// ErrProgressNotFound is returned by PollProgress when the backend answers but
// holds no progress record for the job yet. This is expected during the first
// polls after submission and is not a connectivity failure.
var ErrProgressNotFound = errors.New("backend: progress not found")

// ErrMalformedResponse is returned when a response body cannot be decoded.
var ErrMalformedResponse = errors.New("backend: malformed response")

// Endpoints holds the request paths relative to the base URL. The progress
// path must contain a single "{id}" placeholder.
type Endpoints struct {
	Start    string
	Progress string
	Latest   string
}

// DefaultEndpoints returns the paths served by the analysis API.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		Start:    "/api/sol/analyse",
		Progress: "/api/sol/analyse/progress/{id}",
		Latest:   "/api/sol/latest",
	}
}

// HTTPClient implements Client over HTTP/JSON.
type HTTPClient struct {
	baseURL        string
	http           *http.Client
	endpoints      Endpoints
	requestTimeout time.Duration
	submitTimeout  time.Duration
}

// ClientOption configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithHTTPClient replaces the underlying *http.Client entirely.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.http = hc
	}
}

// WithRequestTimeout bounds each progress and latest-result request.
func WithRequestTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.requestTimeout = d
	}
}

// WithSubmitTimeout bounds the start request, which stays open while the
// backend runs the job.
func WithSubmitTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.submitTimeout = d
	}
}

// WithEndpoints overrides the request paths.
func WithEndpoints(e Endpoints) ClientOption {
	return func(c *HTTPClient) {
		c.endpoints = e
	}
}

// NewHTTPClient creates a client for the API rooted at baseURL.
func NewHTTPClient(baseURL string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &http.Client{},
		endpoints:      DefaultEndpoints(),
		requestTimeout: 10 * time.Second,
		submitTimeout:  15 * time.Minute,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StartAnalysis posts the start request for jobID. Any non-2xx response is an
// error; the response body is not interpreted.
func (c *HTTPClient) StartAnalysis(ctx context.Context, jobID string) error {
	u := c.baseURL + c.endpoints.Start + "?job_id=" + url.QueryEscape(jobID)

	resp, err := c.do(ctx, c.submitTimeout, http.MethodPost, u, "start analysis")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newStatusError("start analysis", resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// PollProgress fetches the progress snapshot of jobID.
func (c *HTTPClient) PollProgress(ctx context.Context, jobID string) (*ProgressSnapshot, error) {
	u := c.baseURL + strings.Replace(c.endpoints.Progress, "{id}", url.PathEscape(jobID), 1)

	resp, err := c.do(ctx, c.requestTimeout, http.MethodGet, u, "poll progress")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, ErrProgressNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, newStatusError("poll progress", resp)
	}

	var snap ProgressSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return nil, fmt.Errorf("%w: poll progress: %v", ErrMalformedResponse, err)
	}
	if !snap.Status.Valid() {
		return nil, fmt.Errorf("%w: poll progress: unknown job status %q", ErrMalformedResponse, snap.Status)
	}
	return &snap, nil
}

// LatestResult fetches the most recent analysis result.
func (c *HTTPClient) LatestResult(ctx context.Context) (*AnalysisResult, error) {
	resp, err := c.do(ctx, c.requestTimeout, http.MethodGet, c.baseURL+c.endpoints.Latest, "latest result")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, newStatusError("latest result", resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("backend: latest result: read response: %w", err)
	}

	var result AnalysisResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("%w: latest result: %v", ErrMalformedResponse, err)
	}
	result.Raw = body
	return &result, nil
}

// do issues a bodyless JSON request bounded by timeout. The returned response
// body must be closed by the caller. The timeout covers reading the body as
// well, so the derived context is released when the body is closed.
func (c *HTTPClient) do(ctx context.Context, timeout time.Duration, method, u, op string) (*http.Response, error) {
	cancel := context.CancelFunc(func() {})
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("backend: %s: create request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("backend: %s: %w", op, err)
	}
	resp.Body = &cancelBody{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

type cancelBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelBody) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

// StatusError is returned for unexpected HTTP status codes.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func newStatusError(op string, resp *http.Response) *StatusError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &StatusError{
		Op:         op,
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(body)),
	}
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("backend: %s: HTTP %d: %s", e.Op, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("backend: %s: HTTP %d", e.Op, e.StatusCode)
}

// ServerError reports whether the status is a 5xx.
func (e *StatusError) ServerError() bool {
	return e.StatusCode >= 500
}
