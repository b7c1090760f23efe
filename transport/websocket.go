package transport

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/xenophobed/chatstream"
)

// Interface compliance check.
var _ Transport = (*WebSocket)(nil)

// WebSocket streams discrete socket messages. Each message is one complete
// frame; the framing layer applies no prefix stripping in this mode.
type WebSocket struct {
	dialer  *websocket.Dialer
	headers http.Header
}

// WSOption configures a [WebSocket] transport.
type WSOption func(*WebSocket)

// WithDialer sets a custom websocket dialer.
func WithDialer(d *websocket.Dialer) WSOption {
	return func(t *WebSocket) { t.dialer = d }
}

// WithWSHeader adds a header to the handshake request.
func WithWSHeader(key, value string) WSOption {
	return func(t *WebSocket) { t.headers.Set(key, value) }
}

// NewWebSocket creates a [WebSocket] transport with the given options.
func NewWebSocket(opts ...WSOption) *WebSocket {
	t := &WebSocket{
		dialer:  websocket.DefaultDialer,
		headers: make(http.Header),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Open dials the endpoint, writes the request body as the first message, and
// returns the message sequence. A handshake failure is a
// *chatstream.ConnectionError.
func (t *WebSocket) Open(ctx context.Context, endpoint string, body []byte) (ChunkStream, error) {
	conn, resp, err := t.dialer.DialContext(ctx, endpoint, t.headers)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, &chatstream.ConnectionError{Endpoint: endpoint, Err: err}
	}

	if len(body) > 0 {
		if err := conn.WriteMessage(websocket.TextMessage, body); err != nil {
			conn.Close()
			return nil, &chatstream.ConnectionError{Endpoint: endpoint, Err: err}
		}
	}

	ws := &wsChunks{ctx: ctx, conn: conn, done: make(chan struct{})}

	// Unblock a pending ReadMessage when the context is cancelled so the
	// connection closes within one read-cycle.
	go func() {
		select {
		case <-ctx.Done():
			ws.Close()
		case <-ws.done:
		}
	}()

	return ws, nil
}

// wsChunks yields one chunk per socket message.
type wsChunks struct {
	ctx       context.Context
	conn      *websocket.Conn
	done      chan struct{}
	closeOnce sync.Once
	received  int64
}

func (c *wsChunks) Next() ([]byte, error) {
	select {
	case <-c.done:
		if err := c.ctx.Err(); err != nil {
			return nil, err
		}
		return nil, chatstream.ErrStreamClosed
	default:
	}

	_, msg, err := c.conn.ReadMessage()
	if err != nil {
		if cerr := c.ctx.Err(); cerr != nil {
			return nil, cerr
		}
		select {
		case <-c.done:
			return nil, chatstream.ErrStreamClosed
		default:
		}
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return nil, io.EOF
		}
		return nil, &chatstream.StreamInterruptedError{BytesReceived: c.received, Err: err}
	}
	c.received += int64(len(msg))
	return msg, nil
}

func (c *wsChunks) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		deadline := time.Now().Add(time.Second)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		err = c.conn.Close()
	})
	return err
}
