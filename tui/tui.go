// Package tui provides a Bubble Tea chat interface over a streaming pipeline.
package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/xenophobed/chatstream"
)

// StreamFunc issues one streaming call for the given prompt, delivering its
// events through cb. It blocks until the stream completes or the context is
// cancelled.
type StreamFunc func(ctx context.Context, prompt string, cb chatstream.Callbacks) error

// Run creates and runs the Bubble Tea TUI program. It blocks until the program
// exits. The context is used for graceful shutdown — when cancelled, the
// program quits.
func Run(ctx context.Context, m Model) error {
	p := tea.NewProgram(m, tea.WithAltScreen())
	go func() {
		<-ctx.Done()
		p.Quit()
	}()
	_, err := p.Run()
	return err
}

// EventKind classifies a callback invocation for rendering.
type EventKind int

const (
	KindStart EventKind = iota
	KindContent
	KindStatus
	KindInterrupt
	KindError
)

// Event is the model-facing projection of one callback invocation.
type Event struct {
	Kind EventKind
	Text string
}

// StreamEventMsg wraps a stream event for delivery to the Bubble Tea model.
type StreamEventMsg struct {
	Event Event
}

// StreamDoneMsg signals that the streaming call has completed.
type StreamDoneMsg struct {
	Err error
}

// channelCallbacks bridges pipeline callbacks onto the model's event channel.
// Sends yield to ctx so a cancelled stream never blocks on a full channel.
func channelCallbacks(ctx context.Context, ch chan<- Event) chatstream.Callbacks {
	send := func(e Event) {
		select {
		case ch <- e:
		case <-ctx.Done():
		}
	}
	return chatstream.Callbacks{
		OnStreamStart: func(id, placeholder string) {
			send(Event{Kind: KindStart, Text: placeholder})
		},
		OnStreamContent: func(delta string) {
			send(Event{Kind: KindContent, Text: delta})
		},
		OnStreamStatus: func(status string) {
			send(Event{Kind: KindStatus, Text: status})
		},
		OnHILInterruptDetected: func(i chatstream.Interrupt) {
			send(Event{Kind: KindInterrupt, Text: i.Message})
		},
		OnError: func(err error) {
			send(Event{Kind: KindError, Text: err.Error()})
		},
	}
}
