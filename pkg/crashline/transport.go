// transport.go defines report delivery and the default HTTP transport.

package crashline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	// DefaultEndpoint receives crash reports.
	DefaultEndpoint = "https://api.raygun.io/entries"

	// DefaultPulseEndpoint receives pulse session and timing events.
	DefaultPulseEndpoint = "https://api.raygun.io/events"

	// DefaultDeliveryTimeout applies when a caller passes a zero timeout.
	DefaultDeliveryTimeout = 100 * time.Second

	apiKeyHeader = "X-ApiKey"
	contentType  = "application/json; charset=utf-8"
)

var (
	// ErrNoAPIKey marks a delivery attempted without an API key.
	ErrNoAPIKey = errors.New("api key not configured")

	// ErrUnexpectedStatus wraps non-2xx responses from the collector.
	ErrUnexpectedStatus = errors.New("unexpected response status")
)

// Transport delivers one serialized payload.
// Implementations must be safe for concurrent use and must not retry.
type Transport interface {
	// Deliver sends payload. A zero timeout means DefaultDeliveryTimeout.
	Deliver(ctx context.Context, payload []byte, timeout time.Duration) error
}

// HTTPTransport POSTs payloads to a collector endpoint.
type HTTPTransport struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// HTTPTransportOption configures an HTTPTransport.
type HTTPTransportOption func(*HTTPTransport)

// WithHTTPClient replaces the underlying client. Its transport is wrapped
// with OpenTelemetry instrumentation.
func WithHTTPClient(c *http.Client) HTTPTransportOption {
	return func(t *HTTPTransport) {
		if c != nil {
			t.client = c
		}
	}
}

// NewHTTPTransport creates a transport posting to endpoint with apiKey.
func NewHTTPTransport(endpoint, apiKey string, opts ...HTTPTransportOption) *HTTPTransport {
	t := &HTTPTransport{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{},
	}
	for _, opt := range opts {
		opt(t)
	}

	base := t.client.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	instrumented := *t.client
	instrumented.Transport = otelhttp.NewTransport(base)
	t.client = &instrumented

	return t
}

// Endpoint returns the URL payloads are posted to.
func (t *HTTPTransport) Endpoint() string {
	return t.endpoint
}

// Deliver posts payload once, bounded by timeout.
func (t *HTTPTransport) Deliver(ctx context.Context, payload []byte, timeout time.Duration) error {
	if t.apiKey == "" {
		return ErrNoAPIKey
	}
	if timeout <= 0 {
		timeout = DefaultDeliveryTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set(apiKeyHeader, t.apiKey)
	req.Header.Set("Content-Type", contentType)

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", t.endpoint, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}
	return nil
}
