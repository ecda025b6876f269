// internal/common/http/client.go
package http

import (
	"crypto/tls"
	"net/http"
	"time"

	"cloudops-agent/internal/common/logger"
)

type Client struct {
	httpClient *http.Client
}

type Option func(*http.Client)

// WithInsecureSkipVerify disables certificate checks, for lab clouds with
// self-signed endpoints.
func WithInsecureSkipVerify() Option {
	return func(c *http.Client) {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
		c.Transport = transport
	}
}

func WithTransport(rt http.RoundTripper) Option {
	return func(c *http.Client) {
		c.Transport = rt
	}
}

// WithRequestLogging logs every round trip at debug level. Apply it after any
// option that replaces the transport.
func WithRequestLogging(log logger.Logger) Option {
	return func(c *http.Client) {
		next := c.Transport
		if next == nil {
			next = http.DefaultTransport
		}
		c.Transport = &loggingTransport{next: next, logger: log}
	}
}

func NewClient(timeout time.Duration, opts ...Option) *Client {
	hc := &http.Client{Timeout: timeout}
	for _, opt := range opts {
		opt(hc)
	}
	return &Client{httpClient: hc}
}

// HTTPClient returns the configured client for SDKs that take a *http.Client.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

type loggingTransport struct {
	next   http.RoundTripper
	logger logger.Logger
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	res, err := t.next.RoundTrip(req)

	fields := map[string]interface{}{
		"method":     req.Method,
		"host":       req.URL.Host,
		"path":       req.URL.Path,
		"durationMs": time.Since(start).Milliseconds(),
	}
	if err != nil {
		fields["error"] = err.Error()
		t.logger.Debug("outbound request failed", fields)
		return nil, err
	}
	fields["status"] = res.StatusCode
	t.logger.Debug("outbound request", fields)
	return res, nil
}
