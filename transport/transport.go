// Package transport opens long-lived connections to chat backends and yields
// raw chunks as they arrive. It owns timeouts, connection teardown, and
// cancellation; it performs no parsing.
package transport

import "context"

// ChunkStream is a pull-based sequence of raw byte chunks from one
// connection. Chunk boundaries are arbitrary and are not guaranteed to align
// with logical frames; the framing layer buffers partial records.
//
// Next returns io.EOF on orderly end of stream, a *chatstream.
// StreamInterruptedError on a mid-stream failure, and the context error when
// the call was cancelled. The returned slice is only valid until the next
// call to Next.
type ChunkStream interface {
	Next() ([]byte, error)
	Close() error
}

// Transport opens a connection to an endpoint, sends the request body, and
// returns the raw chunk sequence. A failure before any byte is received is
// reported as a *chatstream.ConnectionError.
type Transport interface {
	Open(ctx context.Context, endpoint string, body []byte) (ChunkStream, error)
}
