package gateway

import (
	"io"
	"net/http"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
)

const (
	// DefaultTimeout bounds every outbound gateway call.
	DefaultTimeout = 5 * time.Second

	maxResponseBytes = 1 << 20
)

// NewHTTPClient returns a client with a hard timeout whose requests are
// recorded as New Relic external segments when the request context carries a
// transaction.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	return &http.Client{
		Timeout:   timeout,
		Transport: newrelic.NewRoundTripper(transport),
	}
}

// Send performs req and returns the response body. Transport errors, timeouts,
// 429 and 5xx answers wrap ErrUnavailable; other 4xx answers wrap ErrRejected.
// The body is returned alongside a status error for diagnostics.
func Send(client *http.Client, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, unavailable("%s %s: %v", req.Method, req.URL.Host, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, unavailable("read response from %s: %v", req.URL.Host, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		return body, unavailable("%s answered HTTP %d", req.URL.Host, resp.StatusCode)
	case resp.StatusCode >= http.StatusBadRequest:
		return body, rejected("%s answered HTTP %d", req.URL.Host, resp.StatusCode)
	}

	return body, nil
}
