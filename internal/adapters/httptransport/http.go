package httptransport

import (
	"fmt"
	"net/http"
	"time"
)

const userAgent = "tiktorch-cli/1.0"

// HTTPTransport implements ports.Transport using standard HTTP. It never
// retries.
type HTTPTransport struct {
	client *http.Client
}

// NewHTTPTransport creates a new HTTPTransport. timeout bounds the wait for
// response headers once the request body is sent; reading the body is
// bounded only by the request context, so long result downloads keep
// streaming. A zero timeout disables the limit.
func NewHTTPTransport(timeout time.Duration) *HTTPTransport {
	rt := http.DefaultTransport.(*http.Transport).Clone()
	rt.ResponseHeaderTimeout = timeout
	return &HTTPTransport{
		client: &http.Client{
			Transport: rt,
		},
	}
}

// Do sends req once.
func (t *HTTPTransport) Do(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", userAgent)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Redacted(), err)
	}
	return resp, nil
}
