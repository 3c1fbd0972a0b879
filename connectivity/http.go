package connectivity

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hazyhaar/originality/pathsafe"
)

// HTTPClient performs request/response calls against remote JSON APIs with
// a bounded response size. Non-2xx responses come back as *StatusError.
type HTTPClient struct {
	client  *http.Client
	maxBody int64
}

// NewHTTPClient returns a client whose requests time out after timeout
// (30s when zero).
func NewHTTPClient(timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		client:  &http.Client{Timeout: timeout},
		maxBody: pathsafe.MaxResponseBody,
	}
}

// Do sends body (may be nil) to url with the given headers and returns the
// response body.
func (c *HTTPClient) Do(ctx context.Context, method, url string, headers map[string]string, body []byte) ([]byte, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return nil, fmt.Errorf("connectivity/http: create request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connectivity/http: do request: %w", err)
	}
	defer resp.Body.Close()

	data, err := pathsafe.LimitedReadAll(resp.Body, c.maxBody)
	if err != nil {
		return nil, fmt.Errorf("connectivity/http: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{URL: url, Code: resp.StatusCode, Body: data}
	}
	return data, nil
}

// Close releases idle connections.
func (c *HTTPClient) Close() {
	c.client.CloseIdleConnections()
}
