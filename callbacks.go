package chatstream

import "time"

// Callbacks is the consumer-facing callback set. Every field is optional; a
// nil callback is silently a no-op, never an error. The dispatcher invokes
// callbacks in the exact order their source frames were decoded.
type Callbacks struct {
	// OnStreamStart receives the run ID and a placeholder string when the
	// backend starts processing.
	OnStreamStart func(id, placeholder string)

	// OnStreamContent receives each text delta.
	OnStreamContent func(delta string)

	// OnStreamStatus receives human-readable status lines (tool calls,
	// cancellation).
	OnStreamStatus func(status string)

	// OnError receives all error kinds once registered. When set, the
	// pipeline call itself resolves normally and errors are delivered here
	// instead of being returned.
	OnError func(err error)

	// OnHILInterruptDetected receives human-in-the-loop interrupts.
	OnHILInterruptDetected func(interrupt Interrupt)

	// OnStreamComplete fires exactly once per call that reaches a terminal
	// state after streaming started, including failures.
	OnStreamComplete func()
}

// Interrupt is the payload delivered to OnHILInterruptDetected.
type Interrupt struct {
	ID        string
	Title     string
	Type      string
	Message   string
	Timestamp time.Time
	ThreadID  string
}
