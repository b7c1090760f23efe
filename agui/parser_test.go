package agui_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xenophobed/chatstream"
	"github.com/xenophobed/chatstream/agui"
)

func parseOne(t *testing.T, payload string) chatstream.Event {
	t.Helper()
	events, err := agui.New().Parse(chatstream.Frame{Payload: payload})
	require.NoError(t, err)
	require.Len(t, events, 1)
	return events[0]
}

func TestParse_RunStarted(t *testing.T) {
	t.Parallel()
	evt := parseOne(t, `{"type":"run_started","thread_id":"th_1","run_id":"run_1","timestamp":"2025-06-01T12:00:00Z"}`)

	started, ok := evt.(chatstream.RunStarted)
	require.True(t, ok)
	assert.Equal(t, "th_1", started.ThreadID)
	assert.Equal(t, "run_1", started.RunID)
	assert.Equal(t, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), started.Timestamp)
}

func TestParse_TextMessageContent(t *testing.T) {
	t.Parallel()
	evt := parseOne(t, `{"type":"text_message_content","thread_id":"th_1","message_id":"m1","delta":"Hello","timestamp":"2025-06-01T12:00:01Z"}`)

	delta, ok := evt.(chatstream.TextDelta)
	require.True(t, ok)
	assert.Equal(t, "Hello", delta.Delta)
	assert.Equal(t, "m1", delta.MessageID)
}

func TestParse_ToolCallStart(t *testing.T) {
	t.Parallel()
	evt := parseOne(t, `{"type":"tool_call_start","thread_id":"th_1","tool_call_id":"tc_1","tool_call_name":"web_search","timestamp":"2025-06-01T12:00:02Z"}`)

	tc, ok := evt.(chatstream.ToolCallStarted)
	require.True(t, ok)
	assert.Equal(t, "tc_1", tc.ToolCallID)
	assert.Equal(t, "web_search", tc.ToolName)
}

func TestParse_HILInterruptDetected(t *testing.T) {
	t.Parallel()
	evt := parseOne(t, `{"type":"hil_interrupt_detected","thread_id":"th_1","id":"int_1","title":"Approval Required","interrupt_type":"approval_required","timestamp":"2025-06-01T12:00:03Z"}`)

	hil, ok := evt.(chatstream.HILInterrupt)
	require.True(t, ok)
	assert.Equal(t, "int_1", hil.InterruptID)
	assert.Equal(t, "Approval Required", hil.Title)
	assert.Equal(t, "approval_required", hil.Kind)
}

func TestParse_RunError(t *testing.T) {
	t.Parallel()
	evt := parseOne(t, `{"type":"run_error","thread_id":"th_1","run_id":"run_1","code":"internal_error","message":"model exploded","timestamp":"2025-06-01T12:00:04Z"}`)

	runErr, ok := evt.(chatstream.RunError)
	require.True(t, ok)
	assert.Equal(t, "internal_error", runErr.ErrorCode)
	assert.Equal(t, "model exploded", runErr.ErrorMessage)
}

func TestParse_RunFinished(t *testing.T) {
	t.Parallel()
	evt := parseOne(t, `{"type":"run_finished","thread_id":"th_1","run_id":"run_1","timestamp":"2025-06-01T12:00:05Z"}`)

	_, ok := evt.(chatstream.RunFinished)
	assert.True(t, ok)
}

func TestParse_LifecycleChatterIsNonSemantic(t *testing.T) {
	t.Parallel()
	for _, typ := range []string{"text_message_start", "text_message_end", "tool_call_args", "tool_call_end", "step_started", "step_finished"} {
		events, err := agui.New().Parse(chatstream.Frame{Payload: `{"type":"` + typ + `","thread_id":"th_1","timestamp":"2025-06-01T12:00:00Z"}`})
		require.NoError(t, err, typ)
		assert.Empty(t, events, typ)
	}
}

func TestParse_UnknownTypeIsNonFatalParseError(t *testing.T) {
	t.Parallel()
	_, err := agui.New().Parse(chatstream.Frame{Payload: `{"type":"telepathy_established","thread_id":"th_1"}`})

	var pe *chatstream.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "agui", pe.Parser)
}

func TestParse_InvalidJSON(t *testing.T) {
	t.Parallel()
	_, err := agui.New().Parse(chatstream.Frame{Payload: `{invalid json}`})

	var pe *chatstream.ParseError
	assert.ErrorAs(t, err, &pe)
}

func TestParse_BadTimestampDegradesToReceiveTime(t *testing.T) {
	t.Parallel()
	before := time.Now()
	evt := parseOne(t, `{"type":"run_started","thread_id":"th_1","run_id":"run_1","timestamp":"yesterday-ish"}`)

	started := evt.(chatstream.RunStarted)
	assert.False(t, started.Timestamp.Before(before))
}
