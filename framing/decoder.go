// Package framing splits raw transport chunks into logical frames. It owns
// the partial-frame buffer: chunk boundaries from the transport are
// arbitrary and a record may span any number of chunks.
package framing

import (
	"bytes"
	"io"
	"strings"

	"github.com/xenophobed/chatstream"
	"github.com/xenophobed/chatstream/transport"
)

// Mode selects the frame boundary rule.
type Mode int

const (
	// ModeSSE frames are `data: ...` records terminated by a blank line.
	// The stream ends cleanly only at the `[DONE]` sentinel; a raw EOF
	// without it is a stream interruption.
	ModeSSE Mode = iota

	// ModeNDJSON frames are newline-delimited JSON objects. Orderly EOF is
	// a clean end.
	ModeNDJSON

	// ModeMessage frames are discrete transport-level messages (socket
	// mode); no prefix stripping applies. Orderly close is a clean end.
	ModeMessage
)

const doneSentinel = "[DONE]"

// Interface compliance check.
var _ chatstream.FrameStream = (*Decoder)(nil)

// Decoder turns a chunk stream into a lazy, finite, non-restartable frame
// sequence. It is not safe for concurrent use; one stream has one cursor.
type Decoder struct {
	src      transport.ChunkStream
	mode     Mode
	buf      bytes.Buffer
	data     strings.Builder // data lines of the SSE record in progress
	received int64
	srcEOF   bool
	terminal bool
	closed   bool
	err      error
}

// NewDecoder creates a Decoder over src with the given framing mode.
func NewDecoder(src transport.ChunkStream, mode Mode) *Decoder {
	return &Decoder{src: src, mode: mode}
}

// Next returns the next frame. It returns io.EOF after the terminal sentinel
// (or an orderly close in NDJSON/message modes) and never returns a frame
// for the sentinel itself. Malformed records are skipped, not fatal.
func (d *Decoder) Next() (chatstream.Frame, error) {
	switch {
	case d.err != nil:
		return chatstream.Frame{}, d.err
	case d.terminal:
		return chatstream.Frame{}, io.EOF
	case d.closed:
		return chatstream.Frame{}, chatstream.ErrStreamClosed
	}

	if d.mode == ModeMessage {
		return d.nextMessage()
	}

	for {
		payload, ok := d.scan()
		if ok {
			if payload == doneSentinel {
				d.terminal = true
				return chatstream.Frame{}, io.EOF
			}
			return chatstream.Frame{Payload: payload}, nil
		}

		if d.srcEOF {
			if d.mode == ModeSSE {
				// The legacy wire requires the sentinel for a clean end.
				d.err = &chatstream.StreamInterruptedError{
					BytesReceived: d.received,
					Err:           io.ErrUnexpectedEOF,
				}
				return chatstream.Frame{}, d.err
			}
			d.terminal = true
			return chatstream.Frame{}, io.EOF
		}

		if err := d.fill(); err != nil {
			return chatstream.Frame{}, err
		}
	}
}

// Close releases the underlying connection. Safe to call at any point.
func (d *Decoder) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	return d.src.Close()
}

// fill pulls one chunk from the transport into the record buffer.
func (d *Decoder) fill() error {
	chunk, err := d.src.Next()
	if err == io.EOF {
		d.srcEOF = true
		// A trailing record may lack its final delimiter; terminate it so
		// the scanner can pick it up.
		if d.buf.Len() > 0 {
			d.buf.WriteString("\n\n")
		}
		return nil
	}
	if err != nil {
		d.err = err
		return err
	}
	d.received += int64(len(chunk))
	d.buf.Write(chunk)
	return nil
}

// scan extracts one complete record from the buffer, if available.
func (d *Decoder) scan() (string, bool) {
	if d.mode == ModeNDJSON {
		return d.scanLine()
	}
	return d.scanSSE()
}

// scanSSE consumes buffered lines, collecting `data:` payloads until a
// blank line completes the record. The single space after the colon is
// optional and stripped when present. Records with no recognized data lines
// are skipped.
func (d *Decoder) scanSSE() (string, bool) {
	for {
		line, ok := d.line()
		if !ok {
			return "", false
		}
		if line == "" {
			if d.data.Len() > 0 {
				payload := d.data.String()
				d.data.Reset()
				return payload, true
			}
			// Empty record; keep scanning.
			continue
		}
		if rest, found := strings.CutPrefix(line, "data:"); found {
			if d.data.Len() > 0 {
				d.data.WriteByte('\n')
			}
			d.data.WriteString(strings.TrimPrefix(rest, " "))
		}
		// Unrecognized prefixes (comments, event:, garbage) are skipped.
	}
}

// scanLine consumes one non-empty newline-delimited payload.
func (d *Decoder) scanLine() (string, bool) {
	for {
		line, ok := d.line()
		if !ok {
			return "", false
		}
		line = strings.TrimSpace(line)
		if line != "" {
			return line, true
		}
	}
}

// line extracts one complete buffered line, stripping the \r of CRLF
// terminators. A partial line stays buffered until more chunks arrive.
func (d *Decoder) line() (string, bool) {
	raw := d.buf.Bytes()
	end := bytes.IndexByte(raw, '\n')
	if end < 0 {
		return "", false
	}
	line := strings.TrimSuffix(string(raw[:end]), "\r")
	d.buf.Next(end + 1)
	return line, true
}

// nextMessage returns one discrete transport message as a frame.
func (d *Decoder) nextMessage() (chatstream.Frame, error) {
	for {
		msg, err := d.src.Next()
		if err == io.EOF {
			d.terminal = true
			return chatstream.Frame{}, io.EOF
		}
		if err != nil {
			d.err = err
			return chatstream.Frame{}, err
		}
		d.received += int64(len(msg))
		payload := strings.TrimSpace(string(msg))
		if payload == "" {
			continue
		}
		if payload == doneSentinel {
			d.terminal = true
			return chatstream.Frame{}, io.EOF
		}
		return chatstream.Frame{Payload: payload}, nil
	}
}
