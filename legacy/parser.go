// Package legacy decodes the original chat wire schema (wire format A) into
// normalized events. Records carry `type`, `status`, `content`,
// `full_content` and an optional `metadata.raw_chunk` envelope with
// streaming-batch tokens.
package legacy

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/xenophobed/chatstream"
)

// Interface compliance check.
var _ chatstream.Parser = (*Parser)(nil)

// Parser converts legacy frames into normalized events. It keeps per-message
// token-accumulation windows, so one Parser serves exactly one stream and is
// not safe for concurrent use.
type Parser struct {
	windows  map[string]*window
	threadID string
	runID    string
}

// window accumulates response_batch tokens for one message until the
// completion marker closes it.
type window struct {
	batches []batch
}

type batch struct {
	start int64
	text  string
}

// New creates a Parser for a single stream.
func New() *Parser {
	return &Parser{windows: make(map[string]*window)}
}

// Name identifies the parser in diagnostics.
func (p *Parser) Name() string { return "legacy" }

// Parse converts one frame. A nil event slice means the frame was recognized
// but produced nothing observable (e.g. a buffered token batch). Errors are
// *chatstream.ParseError and never fatal to the stream.
func (p *Parser) Parse(f chatstream.Frame) ([]chatstream.Event, error) {
	if !gjson.Valid(f.Payload) {
		return nil, p.parseErr(f, fmt.Errorf("invalid JSON"))
	}
	rec := gjson.Parse(f.Payload)

	if tid := rec.Get("thread_id"); tid.Exists() {
		p.threadID = tid.String()
	} else if sid := rec.Get("session_id"); sid.Exists() {
		p.threadID = sid.String()
	}

	// Batch envelopes take precedence over the outer type field.
	if raw := rec.Get("metadata.raw_chunk"); raw.Exists() {
		return p.parseRawChunk(rec, raw)
	}

	switch rec.Get("type").String() {
	case "start":
		p.runID = firstString(rec, "run_id", "message_id", "id")
		if p.runID == "" {
			p.runID = uuid.NewString()
		}
		return []chatstream.Event{chatstream.RunStarted{
			ThreadID:  p.threadID,
			RunID:     p.runID,
			Timestamp: timestamp(rec),
		}}, nil

	case "content", "custom_stream", "custom_event":
		delta := firstString(rec, "delta", "content")
		if delta == "" {
			// Frames carrying only full_content snapshots or bare status
			// are not re-emitted as deltas.
			return nil, nil
		}
		return []chatstream.Event{chatstream.TextDelta{
			ThreadID:  p.threadID,
			MessageID: rec.Get("message_id").String(),
			Delta:     delta,
			Timestamp: timestamp(rec),
		}}, nil

	case "complete", "end":
		events := p.flushAll(rec)
		return append(events, chatstream.RunFinished{
			ThreadID:  p.threadID,
			RunID:     p.runID,
			Timestamp: timestamp(rec),
		}), nil

	case "error":
		return []chatstream.Event{chatstream.RunError{
			ThreadID:     p.threadID,
			RunID:        p.runID,
			ErrorCode:    rec.Get("code").String(),
			ErrorMessage: firstString(rec, "message", "error", "content"),
			Timestamp:    timestamp(rec),
		}}, nil

	case "":
		return nil, p.parseErr(f, fmt.Errorf("missing type field"))
	default:
		return nil, p.parseErr(f, fmt.Errorf("unknown type %q", rec.Get("type").String()))
	}
}

// parseRawChunk handles the metadata.raw_chunk envelope: streamed token
// batches and the completion marker.
func (p *Parser) parseRawChunk(rec, raw gjson.Result) ([]chatstream.Event, error) {
	if rb := raw.Get("response_batch"); rb.Exists() {
		tokens := rb.Get("tokens").Array()
		if len(tokens) == 0 {
			// A zero-length batch is valid and produces nothing.
			return nil, nil
		}
		var text strings.Builder
		for _, tok := range tokens {
			text.WriteString(tok.String())
		}
		msgID := rec.Get("message_id").String()
		w := p.windows[msgID]
		if w == nil {
			w = &window{}
			p.windows[msgID] = w
		}
		w.batches = append(w.batches, batch{
			start: rb.Get("start_index").Int(),
			text:  text.String(),
		})
		return nil, nil
	}

	if rt := raw.Get("response_token"); rt.Exists() {
		if rt.Get("status").String() != "completed" {
			return nil, nil
		}
		events := p.flushAll(rec)
		return append(events, chatstream.RunFinished{
			ThreadID:  p.threadID,
			RunID:     p.runID,
			Timestamp: timestamp(rec),
		}), nil
	}

	return nil, nil
}

// flushAll closes every open token window, reassembling batches by
// start_index order regardless of arrival order.
func (p *Parser) flushAll(rec gjson.Result) []chatstream.Event {
	if len(p.windows) == 0 {
		return nil
	}
	msgIDs := make([]string, 0, len(p.windows))
	for id := range p.windows {
		msgIDs = append(msgIDs, id)
	}
	sort.Strings(msgIDs)

	var events []chatstream.Event
	for _, id := range msgIDs {
		w := p.windows[id]
		delete(p.windows, id)
		sort.SliceStable(w.batches, func(i, j int) bool {
			return w.batches[i].start < w.batches[j].start
		})
		var text strings.Builder
		for _, b := range w.batches {
			text.WriteString(b.text)
		}
		if text.Len() == 0 {
			continue
		}
		events = append(events, chatstream.TextDelta{
			ThreadID:  p.threadID,
			MessageID: id,
			Delta:     text.String(),
			Timestamp: timestamp(rec),
		})
	}
	return events
}

func (p *Parser) parseErr(f chatstream.Frame, err error) error {
	return &chatstream.ParseError{Parser: p.Name(), Payload: f.Payload, Err: err}
}

func firstString(rec gjson.Result, keys ...string) string {
	for _, k := range keys {
		if v := rec.Get(k); v.Exists() && v.String() != "" {
			return v.String()
		}
	}
	return ""
}

// timestamp passes through a wire timestamp when present; the pipeline never
// re-sorts, only forwards.
func timestamp(rec gjson.Result) time.Time {
	if ts := rec.Get("timestamp"); ts.Exists() {
		if t, err := time.Parse(time.RFC3339Nano, ts.String()); err == nil {
			return t
		}
	}
	return time.Now()
}
