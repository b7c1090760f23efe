package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/xenophobed/chatstream"
)

const defaultConnectTimeout = 30 * time.Second

// Interface compliance check.
var _ Transport = (*HTTP)(nil)

// HTTP streams a chunked HTTP response body. It serves both wire formats:
// SSE records from the legacy endpoint and newline-delimited JSON from the
// protocol-event endpoint.
type HTTP struct {
	client         *http.Client
	headers        http.Header
	connectTimeout time.Duration
}

// HTTPOption configures an [HTTP] transport.
type HTTPOption func(*HTTP)

// WithHTTPClient sets a custom HTTP client. Useful for testing with httptest.
func WithHTTPClient(hc *http.Client) HTTPOption {
	return func(t *HTTP) { t.client = hc }
}

// WithHeader adds a header to every request (e.g. authorization).
func WithHeader(key, value string) HTTPOption {
	return func(t *HTTP) { t.headers.Set(key, value) }
}

// WithConnectTimeout bounds connection establishment. It does not bound the
// lifetime of an established stream. Default 30s.
func WithConnectTimeout(d time.Duration) HTTPOption {
	return func(t *HTTP) { t.connectTimeout = d }
}

// NewHTTP creates an [HTTP] transport with the given options.
func NewHTTP(opts ...HTTPOption) *HTTP {
	t := &HTTP{
		headers:        make(http.Header),
		connectTimeout: defaultConnectTimeout,
	}
	for _, o := range opts {
		o(t)
	}
	if t.client == nil {
		t.client = &http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout: t.connectTimeout,
				}).DialContext,
			},
		}
	}
	return t
}

// Open POSTs the request body and returns the response body as a chunk
// sequence. Any failure before the first byte (dial, TLS, non-2xx status)
// is a *chatstream.ConnectionError.
func (t *HTTP) Open(ctx context.Context, endpoint string, body []byte) (ChunkStream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &chatstream.ConnectionError{Endpoint: endpoint, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	for k, vs := range t.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, &chatstream.ConnectionError{Endpoint: endpoint, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &chatstream.ConnectionError{
			Endpoint: endpoint,
			Err:      fmt.Errorf("HTTP %d: %s", resp.StatusCode, msg),
		}
	}

	return &httpChunks{ctx: ctx, body: resp.Body, buf: make([]byte, 8192)}, nil
}

// httpChunks reads the response body incrementally.
type httpChunks struct {
	ctx      context.Context
	body     io.ReadCloser
	buf      []byte
	received int64
	closed   bool
}

// Next returns the next chunk from the response body. Cancellation is checked
// before each read so an abandoned stream closes within one read-cycle.
func (c *httpChunks) Next() ([]byte, error) {
	if c.closed {
		return nil, chatstream.ErrStreamClosed
	}
	if err := c.ctx.Err(); err != nil {
		c.Close()
		return nil, err
	}

	for {
		n, err := c.body.Read(c.buf)
		if n > 0 {
			c.received += int64(n)
			return c.buf[:n], nil
		}
		if err == nil {
			// Zero-byte read; pull again.
			continue
		}
		if err == io.EOF {
			return nil, io.EOF
		}
		if c.ctx.Err() != nil {
			return nil, c.ctx.Err()
		}
		return nil, &chatstream.StreamInterruptedError{BytesReceived: c.received, Err: err}
	}
}

func (c *httpChunks) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.body.Close()
}
