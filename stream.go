package chatstream

// Frame is one decoded logical record from the wire stream, prior to schema
// interpretation. Frames exist only between the decoder and the parsers;
// nothing past the parsing layer ever sees one.
type Frame struct {
	Payload string
}

// FrameStream is a lazy, finite, non-restartable sequence of frames produced
// by a decoder. It uses a pull-based iterator pattern: cancellation flows
// through the context passed to the transport, and stopping a stream is a
// matter of not pulling again and calling Close.
//
// Next returns io.EOF after the terminal sentinel (or an orderly
// transport-level close, depending on the framing mode). A raw end of input
// where the framing mode requires a sentinel yields a *StreamInterruptedError.
type FrameStream interface {
	Next() (Frame, error)
	Close() error
}

// Parser converts one frame into zero or more normalized events.
//
// A nil slice means the frame was recognized but non-semantic (for example a
// buffered token batch). A *ParseError return is always non-fatal to the
// stream: the caller drops the frame and continues with the next one.
type Parser interface {
	// Name identifies the parser in diagnostics.
	Name() string
	Parse(Frame) ([]Event, error)
}
