package dispatch_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xenophobed/chatstream"
	"github.com/xenophobed/chatstream/dispatch"
)

// recorder captures callback invocations in order.
type recorder struct {
	calls      []string
	interrupts []chatstream.Interrupt
	errs       []error
}

func (r *recorder) callbacks() chatstream.Callbacks {
	return chatstream.Callbacks{
		OnStreamStart:   func(id, placeholder string) { r.calls = append(r.calls, "start:"+id+":"+placeholder) },
		OnStreamContent: func(delta string) { r.calls = append(r.calls, "content:"+delta) },
		OnStreamStatus:  func(status string) { r.calls = append(r.calls, "status:"+status) },
		OnError: func(err error) {
			r.calls = append(r.calls, "error")
			r.errs = append(r.errs, err)
		},
		OnHILInterruptDetected: func(i chatstream.Interrupt) {
			r.calls = append(r.calls, "hil:"+i.ID)
			r.interrupts = append(r.interrupts, i)
		},
		OnStreamComplete: func() { r.calls = append(r.calls, "complete") },
	}
}

func TestDispatch_MappingTable(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	d := dispatch.New(rec.callbacks())

	d.Dispatch(chatstream.RunStarted{ThreadID: "th_1", RunID: "run_1"})
	d.Dispatch(chatstream.TextDelta{ThreadID: "th_1", Delta: "Hello"})
	d.Dispatch(chatstream.ToolCallStarted{ThreadID: "th_1", ToolName: "web_search"})
	d.Dispatch(chatstream.RunFinished{ThreadID: "th_1"})

	assert.Equal(t, []string{
		"start:run_1:Starting...",
		"content:Hello",
		"status:🔧 Calling web_search...",
		"complete",
	}, rec.calls)
}

func TestDispatch_HILInterruptArgumentShape(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	d := dispatch.New(rec.callbacks())
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	d.Dispatch(chatstream.HILInterrupt{
		ThreadID:    "th_1",
		InterruptID: "int_1",
		Title:       "Approval Required",
		Kind:        "approval_required",
		Timestamp:   ts,
	})

	require.Len(t, rec.interrupts, 1)
	assert.Equal(t, chatstream.Interrupt{
		ID:        "int_1",
		Title:     "Approval Required",
		Type:      "approval_required",
		Message:   "Approval Required",
		Timestamp: ts,
		ThreadID:  "th_1",
	}, rec.interrupts[0])
}

func TestDispatch_RunErrorRoutesToOnError(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	d := dispatch.New(rec.callbacks())

	d.Dispatch(chatstream.RunError{ThreadID: "th_1", ErrorCode: "internal_error", ErrorMessage: "boom"})

	require.Len(t, rec.errs, 1)
	var pe *chatstream.ProtocolError
	require.ErrorAs(t, rec.errs[0], &pe)
	assert.Equal(t, "internal_error", pe.Code)
	assert.Equal(t, "boom", pe.Message)
	// RunError itself does not synthesize a completion.
	assert.NotContains(t, rec.calls, "complete")
}

func TestDispatch_CompleteFiresExactlyOnce(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	d := dispatch.New(rec.callbacks())

	d.Dispatch(chatstream.RunFinished{ThreadID: "th_1"})
	d.Dispatch(chatstream.StreamEnd{})
	d.Complete()

	count := 0
	for _, c := range rec.calls {
		if c == "complete" {
			count++
		}
	}
	assert.Equal(t, 1, count)
	assert.True(t, d.Completed())
}

func TestDispatch_StreamEndCompletesWhenRunFinishedNeverArrived(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	d := dispatch.New(rec.callbacks())

	d.Dispatch(chatstream.StreamEnd{})

	assert.Equal(t, []string{"complete"}, rec.calls)
}

func TestDispatch_MissingCallbacksAreNoOps(t *testing.T) {
	t.Parallel()
	d := dispatch.New(chatstream.Callbacks{})

	assert.NotPanics(t, func() {
		d.Dispatch(chatstream.RunStarted{RunID: "run_1"})
		d.Dispatch(chatstream.TextDelta{Delta: "x"})
		d.Dispatch(chatstream.RunError{ErrorCode: "internal_error"})
		d.Dispatch(chatstream.StreamEnd{})
	})
}

func TestDispatch_CallbackPanicIsIsolated(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	cb := rec.callbacks()
	first := true
	cb.OnStreamContent = func(delta string) {
		if first {
			first = false
			panic("consumer bug")
		}
		rec.calls = append(rec.calls, "content:"+delta)
	}
	d := dispatch.New(cb)

	assert.NotPanics(t, func() {
		d.Dispatch(chatstream.TextDelta{ThreadID: "th_1", Delta: "one"})
		d.Dispatch(chatstream.TextDelta{ThreadID: "th_1", Delta: "two"})
		d.Dispatch(chatstream.StreamEnd{})
	})

	// The fault was reported through onError, the second delta still
	// arrived, and completion still fired.
	assert.Equal(t, []string{"error", "content:two", "complete"}, rec.calls)
	require.Len(t, rec.errs, 1)
	var cbErr *chatstream.CallbackError
	assert.ErrorAs(t, rec.errs[0], &cbErr)
}

func TestDispatch_PanicWithoutOnErrorIsSwallowed(t *testing.T) {
	t.Parallel()
	var deltas []string
	d := dispatch.New(chatstream.Callbacks{
		OnStreamContent: func(delta string) {
			if delta == "bad" {
				panic("consumer bug")
			}
			deltas = append(deltas, delta)
		},
	})

	assert.NotPanics(t, func() {
		d.Dispatch(chatstream.TextDelta{Delta: "bad"})
		d.Dispatch(chatstream.TextDelta{Delta: "good"})
	})
	assert.Equal(t, []string{"good"}, deltas)
}

func TestDispatch_ForeignThreadEventsAreDropped(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	d := dispatch.New(rec.callbacks())

	d.Dispatch(chatstream.RunStarted{ThreadID: "th_1", RunID: "run_1"})
	d.Dispatch(chatstream.TextDelta{ThreadID: "th_2", Delta: "intruder"})
	d.Dispatch(chatstream.TextDelta{ThreadID: "th_1", Delta: "ours"})

	assert.Equal(t, []string{"start:run_1:Starting...", "content:ours"}, rec.calls)
}

func TestStatus_OutOfBand(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	d := dispatch.New(rec.callbacks())

	d.Status("cancelled")

	assert.Equal(t, []string{"status:cancelled"}, rec.calls)
}
