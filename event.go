package chatstream

import "time"

// Event is a sealed interface representing one normalized streaming event.
// Events are purely semantic. Transport and framing errors come from the
// frame sequence's error return, not from events.
// The unexported marker method prevents external implementations.
type Event interface {
	event()
}

// RunStarted signals that the backend began processing a conversation turn.
type RunStarted struct {
	ThreadID  string
	RunID     string
	Timestamp time.Time
}

func (RunStarted) event() {}

// TextDelta carries one increment of streamed message content.
type TextDelta struct {
	ThreadID  string
	MessageID string
	Delta     string
	Timestamp time.Time
}

func (TextDelta) event() {}

// ToolCallStarted signals that the backend began invoking a tool.
type ToolCallStarted struct {
	ThreadID   string
	ToolCallID string
	ToolName   string
	Timestamp  time.Time
}

func (ToolCallStarted) event() {}

// HILInterrupt signals that the run is paused pending human approval or input.
type HILInterrupt struct {
	ThreadID    string
	InterruptID string
	Title       string
	Kind        string
	Timestamp   time.Time
}

func (HILInterrupt) event() {}

// RunError signals that the run terminated with an error. No further events
// follow for the same run except StreamEnd.
type RunError struct {
	ThreadID     string
	RunID        string
	ErrorCode    string
	ErrorMessage string
	Timestamp    time.Time
}

func (RunError) event() {}

// RunFinished signals successful completion of a run.
type RunFinished struct {
	ThreadID  string
	RunID     string
	Timestamp time.Time
}

func (RunFinished) event() {}

// StreamEnd is the terminal sentinel. It is never carried over the wire; the
// frame-decoding loop synthesizes it when the frame sequence ends cleanly.
type StreamEnd struct{}

func (StreamEnd) event() {}

// Interface compliance checks.
var (
	_ Event = RunStarted{}
	_ Event = TextDelta{}
	_ Event = ToolCallStarted{}
	_ Event = HILInterrupt{}
	_ Event = RunError{}
	_ Event = RunFinished{}
	_ Event = StreamEnd{}
)
