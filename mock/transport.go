// Package mock provides test doubles for chatstream interfaces using
// function fields.
package mock

import (
	"context"
	"io"

	"github.com/xenophobed/chatstream"
	"github.com/xenophobed/chatstream/transport"
)

// Interface compliance checks.
var (
	_ transport.Transport    = (*Transport)(nil)
	_ transport.ChunkStream  = (*ChunkStream)(nil)
	_ chatstream.FrameStream = (*FrameStream)(nil)
	_ chatstream.Parser      = (*Parser)(nil)
)

// Transport is a test double for transport.Transport.
// Set OpenFn before calling Open.
type Transport struct {
	OpenFn func(ctx context.Context, endpoint string, body []byte) (transport.ChunkStream, error)
}

// Open delegates to OpenFn.
func (t *Transport) Open(ctx context.Context, endpoint string, body []byte) (transport.ChunkStream, error) {
	return t.OpenFn(ctx, endpoint, body)
}

// ChunkStream is a test double for transport.ChunkStream.
// NextFn panics when nil to catch missing setup. CloseFn is nil-safe because
// test code commonly calls defer stream.Close().
type ChunkStream struct {
	NextFn  func() ([]byte, error)
	CloseFn func() error
}

// Next delegates to NextFn.
func (c *ChunkStream) Next() ([]byte, error) {
	return c.NextFn()
}

// Close delegates to CloseFn. Returns nil when CloseFn is not set.
func (c *ChunkStream) Close() error {
	if c.CloseFn == nil {
		return nil
	}
	return c.CloseFn()
}

// Chunks builds a ChunkStream that yields the given byte slices in order and
// then io.EOF. Useful for scripting arbitrary chunk boundaries.
func Chunks(chunks ...string) *ChunkStream {
	i := 0
	return &ChunkStream{
		NextFn: func() ([]byte, error) {
			if i >= len(chunks) {
				return nil, io.EOF
			}
			c := chunks[i]
			i++
			return []byte(c), nil
		},
	}
}

// FrameStream is a test double for chatstream.FrameStream.
type FrameStream struct {
	NextFn  func() (chatstream.Frame, error)
	CloseFn func() error
}

// Next delegates to NextFn.
func (f *FrameStream) Next() (chatstream.Frame, error) {
	return f.NextFn()
}

// Close delegates to CloseFn. Returns nil when CloseFn is not set.
func (f *FrameStream) Close() error {
	if f.CloseFn == nil {
		return nil
	}
	return f.CloseFn()
}

// Frames builds a FrameStream that yields the given payloads in order and
// then io.EOF.
func Frames(payloads ...string) *FrameStream {
	i := 0
	return &FrameStream{
		NextFn: func() (chatstream.Frame, error) {
			if i >= len(payloads) {
				return chatstream.Frame{}, io.EOF
			}
			p := payloads[i]
			i++
			return chatstream.Frame{Payload: p}, nil
		},
	}
}

// Parser is a test double for chatstream.Parser.
type Parser struct {
	NameFn  func() string
	ParseFn func(chatstream.Frame) ([]chatstream.Event, error)
}

// Name delegates to NameFn. Returns "mock" when NameFn is not set.
func (p *Parser) Name() string {
	if p.NameFn == nil {
		return "mock"
	}
	return p.NameFn()
}

// Parse delegates to ParseFn.
func (p *Parser) Parse(f chatstream.Frame) ([]chatstream.Event, error) {
	return p.ParseFn(f)
}
