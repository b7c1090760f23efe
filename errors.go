package chatstream

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure modes.
var (
	// ErrValidation indicates a configuration or flag combination failed validation.
	ErrValidation = errors.New("validation error")

	// ErrStreamClosed indicates an operation on a closed frame stream.
	ErrStreamClosed = errors.New("stream closed")
)

// ConnectionError indicates the transport failed before any byte was
// received. Connection errors are retryable.
type ConnectionError struct {
	Endpoint string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection to %s failed: %v", e.Endpoint, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// StreamInterruptedError indicates the transport failed mid-stream after
// receiving BytesReceived bytes. Retryable once via the fallback pipeline.
type StreamInterruptedError struct {
	BytesReceived int64
	Err           error
}

func (e *StreamInterruptedError) Error() string {
	return fmt.Sprintf("stream interrupted after %d bytes: %v", e.BytesReceived, e.Err)
}

func (e *StreamInterruptedError) Unwrap() error { return e.Err }

// ParseError indicates a single frame could not be interpreted by a parser.
// Parse errors are always non-fatal: the frame is dropped and the stream
// continues.
type ParseError struct {
	Parser  string
	Payload string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: cannot parse frame %q: %v", e.Parser, truncate(e.Payload, 120), e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// CallbackError indicates a consumer callback panicked. It is isolated by
// the dispatcher and never aborts the stream.
type CallbackError struct {
	Callback  string
	Recovered any
}

func (e *CallbackError) Error() string {
	return fmt.Sprintf("callback %s panicked: %v", e.Callback, e.Recovered)
}

// ProtocolError carries an error reported by the backend itself through a
// RunError event.
type ProtocolError struct {
	Code    string
	Message string
}

func (e *ProtocolError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// transientCodes are backend error codes that do not mark the run as failed;
// everything else is fatal.
var transientCodes = map[string]bool{
	"rate_limited": true,
	"overloaded":   true,
	"timeout":      true,
}

// Fatal reports whether the error code is classified fatal for the run.
func (e *ProtocolError) Fatal() bool {
	return !transientCodes[e.Code]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
