// Package dispatch maps normalized events onto the consumer callback set,
// preserving exactly the call sequence and argument shapes legacy consumers
// expect. The mapping is a fixed, pure per-variant table; the dispatcher adds
// only two pieces of state: the exactly-once completion latch and the thread
// pin.
package dispatch

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/xenophobed/chatstream"
)

// Dispatcher delivers events to one callback set. It is synchronous from the
// orchestrator's viewpoint and serves exactly one stream; it is not safe for
// concurrent use.
type Dispatcher struct {
	cb        chatstream.Callbacks
	log       *logrus.Logger
	threadID  string
	completed bool
}

// Option configures a [Dispatcher].
type Option func(*Dispatcher)

// WithLogger sets the logger for dropped events and recovered callback
// panics. Nil (the default) is silent.
func WithLogger(l *logrus.Logger) Option {
	return func(d *Dispatcher) { d.log = l }
}

// New creates a Dispatcher for the given callback set. Missing callbacks are
// silently no-ops.
func New(cb chatstream.Callbacks, opts ...Option) *Dispatcher {
	d := &Dispatcher{cb: cb}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Dispatch delivers one event. A callback that panics never propagates into
// the stream loop: the panic is recovered and reported through OnError when
// present, otherwise logged.
func (d *Dispatcher) Dispatch(evt chatstream.Event) {
	if !d.admit(evt) {
		return
	}

	switch e := evt.(type) {
	case chatstream.RunStarted:
		if d.cb.OnStreamStart != nil {
			d.invoke("onStreamStart", func() { d.cb.OnStreamStart(e.RunID, "Starting...") })
		}
	case chatstream.TextDelta:
		if d.cb.OnStreamContent != nil {
			d.invoke("onStreamContent", func() { d.cb.OnStreamContent(e.Delta) })
		}
	case chatstream.ToolCallStarted:
		if d.cb.OnStreamStatus != nil {
			status := fmt.Sprintf("🔧 Calling %s...", e.ToolName)
			d.invoke("onStreamStatus", func() { d.cb.OnStreamStatus(status) })
		}
	case chatstream.HILInterrupt:
		if d.cb.OnHILInterruptDetected != nil {
			interrupt := chatstream.Interrupt{
				ID:        e.InterruptID,
				Title:     e.Title,
				Type:      e.Kind,
				Message:   e.Title,
				Timestamp: e.Timestamp,
				ThreadID:  e.ThreadID,
			}
			d.invoke("onHILInterruptDetected", func() { d.cb.OnHILInterruptDetected(interrupt) })
		}
	case chatstream.RunError:
		d.Error(&chatstream.ProtocolError{Code: e.ErrorCode, Message: e.ErrorMessage})
	case chatstream.RunFinished:
		d.Complete()
	case chatstream.StreamEnd:
		d.Complete()
	}
}

// Status delivers an out-of-band status line (e.g. "cancelled").
func (d *Dispatcher) Status(status string) {
	if d.cb.OnStreamStatus != nil {
		d.invoke("onStreamStatus", func() { d.cb.OnStreamStatus(status) })
	}
}

// Error delivers an error through OnError when registered.
// HasErrorSink tells the orchestrator whether that route exists.
func (d *Dispatcher) Error(err error) {
	if d.cb.OnError == nil {
		if d.log != nil {
			d.log.WithError(err).Warn("stream error with no onError callback registered")
		}
		return
	}
	d.invoke("onError", func() { d.cb.OnError(err) })
}

// HasErrorSink reports whether an OnError callback is registered.
func (d *Dispatcher) HasErrorSink() bool { return d.cb.OnError != nil }

// Complete fires OnStreamComplete exactly once per dispatcher lifetime.
// Subsequent calls are no-ops.
func (d *Dispatcher) Complete() {
	if d.completed {
		return
	}
	d.completed = true
	if d.cb.OnStreamComplete != nil {
		d.invoke("onStreamComplete", func() { d.cb.OnStreamComplete() })
	}
}

// Completed reports whether the completion callback already fired.
func (d *Dispatcher) Completed() bool { return d.completed }

// admit pins the dispatcher to the first thread it sees and drops events
// from any other thread; one callback sequence never interleaves two
// threads.
func (d *Dispatcher) admit(evt chatstream.Event) bool {
	tid := threadOf(evt)
	if tid == "" {
		return true
	}
	if d.threadID == "" {
		d.threadID = tid
		return true
	}
	if tid != d.threadID {
		if d.log != nil {
			d.log.WithFields(logrus.Fields{
				"pinned": d.threadID,
				"got":    tid,
			}).Warn("dropping event from foreign thread")
		}
		return false
	}
	return true
}

// invoke runs one callback with panic isolation. A recovered panic is
// reported through OnError when present (unless OnError itself faulted),
// otherwise logged.
func (d *Dispatcher) invoke(name string, fn func()) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		cbErr := &chatstream.CallbackError{Callback: name, Recovered: r}
		if d.cb.OnError != nil && name != "onError" {
			defer func() {
				if rr := recover(); rr != nil && d.log != nil {
					d.log.WithField("callback", "onError").Warnf("panic while reporting callback fault: %v", rr)
				}
			}()
			d.cb.OnError(cbErr)
			return
		}
		if d.log != nil {
			d.log.Warn(cbErr.Error())
		}
	}()
	fn()
}

func threadOf(evt chatstream.Event) string {
	switch e := evt.(type) {
	case chatstream.RunStarted:
		return e.ThreadID
	case chatstream.TextDelta:
		return e.ThreadID
	case chatstream.ToolCallStarted:
		return e.ThreadID
	case chatstream.HILInterrupt:
		return e.ThreadID
	case chatstream.RunError:
		return e.ThreadID
	case chatstream.RunFinished:
		return e.ThreadID
	default:
		return ""
	}
}
