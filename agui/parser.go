// Package agui decodes the normalized protocol-event schema (wire format B):
// newline-delimited JSON objects with a mandatory `type`, `thread_id` and
// ISO-8601 `timestamp`, mapped 1:1 onto the event union by type.
package agui

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tidwall/gjson"
	"github.com/xenophobed/chatstream"
)

// Interface compliance check.
var _ chatstream.Parser = (*Parser)(nil)

// Parser converts protocol-event frames into normalized events. It is
// stateless; the same instance may serve multiple sequential streams.
type Parser struct{}

// New creates a Parser.
func New() *Parser { return &Parser{} }

// Name identifies the parser in diagnostics.
func (p *Parser) Name() string { return "agui" }

// wireEvent is the flat protocol-event record. Only the fields used by the
// event's type are populated.
type wireEvent struct {
	Type      string `json:"type"`
	ThreadID  string `json:"thread_id"`
	Timestamp string `json:"timestamp"`

	RunID     string `json:"run_id"`
	MessageID string `json:"message_id"`
	Delta     string `json:"delta"`

	ToolCallID   string `json:"tool_call_id"`
	ToolCallName string `json:"tool_call_name"`

	InterruptID   string `json:"id"`
	Title         string `json:"title"`
	InterruptType string `json:"interrupt_type"`

	Code    string `json:"code"`
	Message string `json:"message"`
}

// Parse converts one frame. An unrecognized type yields a non-fatal
// *chatstream.ParseError: the frame is dropped and parsing continues with
// the next one.
func (p *Parser) Parse(f chatstream.Frame) ([]chatstream.Event, error) {
	if !gjson.Valid(f.Payload) {
		return nil, p.parseErr(f, fmt.Errorf("invalid JSON"))
	}

	var evt wireEvent
	if err := json.Unmarshal([]byte(f.Payload), &evt); err != nil {
		return nil, p.parseErr(f, err)
	}

	ts := parseTimestamp(evt.Timestamp)

	switch evt.Type {
	case "run_started":
		return []chatstream.Event{chatstream.RunStarted{
			ThreadID:  evt.ThreadID,
			RunID:     evt.RunID,
			Timestamp: ts,
		}}, nil

	case "text_message_content":
		return []chatstream.Event{chatstream.TextDelta{
			ThreadID:  evt.ThreadID,
			MessageID: evt.MessageID,
			Delta:     evt.Delta,
			Timestamp: ts,
		}}, nil

	case "tool_call_start":
		return []chatstream.Event{chatstream.ToolCallStarted{
			ThreadID:   evt.ThreadID,
			ToolCallID: evt.ToolCallID,
			ToolName:   evt.ToolCallName,
			Timestamp:  ts,
		}}, nil

	case "hil_interrupt_detected":
		return []chatstream.Event{chatstream.HILInterrupt{
			ThreadID:    evt.ThreadID,
			InterruptID: evt.InterruptID,
			Title:       evt.Title,
			Kind:        evt.InterruptType,
			Timestamp:   ts,
		}}, nil

	case "run_error":
		return []chatstream.Event{chatstream.RunError{
			ThreadID:     evt.ThreadID,
			RunID:        evt.RunID,
			ErrorCode:    evt.Code,
			ErrorMessage: evt.Message,
			Timestamp:    ts,
		}}, nil

	case "run_finished":
		return []chatstream.Event{chatstream.RunFinished{
			ThreadID:  evt.ThreadID,
			RunID:     evt.RunID,
			Timestamp: ts,
		}}, nil

	// Recognized lifecycle chatter with no observable mapping.
	case "text_message_start", "text_message_end",
		"tool_call_args", "tool_call_end",
		"step_started", "step_finished", "raw", "custom":
		return nil, nil

	case "":
		return nil, p.parseErr(f, fmt.Errorf("missing type field"))
	default:
		return nil, p.parseErr(f, fmt.Errorf("unknown type %q", evt.Type))
	}
}

func (p *Parser) parseErr(f chatstream.Frame, err error) error {
	return &chatstream.ParseError{Parser: p.Name(), Payload: f.Payload, Err: err}
}

// parseTimestamp accepts RFC 3339 with or without sub-second precision.
// Unparseable timestamps degrade to the receive time rather than dropping
// the frame.
func parseTimestamp(s string) time.Time {
	if s != "" {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t
		}
	}
	return time.Now()
}
