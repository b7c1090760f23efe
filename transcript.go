package chatstream

import "time"

// Transcript records the observable callback sequence of one or more
// streams for later inspection or replay. It is not safe for concurrent
// use; record one stream at a time.
type Transcript struct {
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time
	Entries   []TranscriptEntry
}

// TranscriptEntry is one recorded callback invocation.
type TranscriptEntry struct {
	Kind      string // "prompt", "start", "content", "status", "interrupt", "error", "complete"
	Text      string
	Timestamp time.Time
}

// NewTranscript creates an empty transcript.
func NewTranscript(id string) *Transcript {
	now := time.Now()
	return &Transcript{ID: id, CreatedAt: now, UpdatedAt: now}
}

// Append adds one entry and bumps the update time.
func (t *Transcript) Append(kind, text string) {
	now := time.Now()
	t.Entries = append(t.Entries, TranscriptEntry{Kind: kind, Text: text, Timestamp: now})
	t.UpdatedAt = now
}

// Record returns callbacks that append each invocation to the transcript and
// then forward to next. Callbacks absent from next are still recorded.
func (t *Transcript) Record(next Callbacks) Callbacks {
	return Callbacks{
		OnStreamStart: func(id, placeholder string) {
			t.Append("start", id)
			if next.OnStreamStart != nil {
				next.OnStreamStart(id, placeholder)
			}
		},
		OnStreamContent: func(delta string) {
			t.Append("content", delta)
			if next.OnStreamContent != nil {
				next.OnStreamContent(delta)
			}
		},
		OnStreamStatus: func(status string) {
			t.Append("status", status)
			if next.OnStreamStatus != nil {
				next.OnStreamStatus(status)
			}
		},
		OnHILInterruptDetected: func(i Interrupt) {
			t.Append("interrupt", i.Message)
			if next.OnHILInterruptDetected != nil {
				next.OnHILInterruptDetected(i)
			}
		},
		OnError: func(err error) {
			t.Append("error", err.Error())
			if next.OnError != nil {
				next.OnError(err)
			}
		},
		OnStreamComplete: func() {
			t.Append("complete", "")
			if next.OnStreamComplete != nil {
				next.OnStreamComplete()
			}
		},
	}
}
