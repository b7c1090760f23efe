package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/xenophobed/chatstream"
)

var _ tea.Model = Model{}

// Model is the Bubble Tea model for the chat TUI. One streaming call runs at
// a time; its deltas accumulate into the reply line until the stream
// completes.
type Model struct {
	// Input is the text input component. Exported for test access.
	Input textinput.Model
	// Viewport is the scrollable transcript area. Exported for test access.
	Viewport viewport.Model
	// Spinner indicates an in-flight stream. Exported for test access.
	Spinner spinner.Model

	run    StreamFunc
	styles Styles

	lines []string // finished transcript lines
	reply strings.Builder

	streaming bool
	cancel    context.CancelFunc
	eventCh   chan Event
	doneCh    chan error
	err       error
	ready     bool
}

// New creates a TUI Model with the given stream function and theme.
func New(run StreamFunc, theme chatstream.Theme) Model {
	ti := textinput.New()
	ti.Placeholder = "Type a message..."
	ti.Prompt = ""
	ti.Focus()
	ti.CharLimit = 0

	styles := NewStyles(theme)
	sp := spinner.New(spinner.WithSpinner(spinner.Dot))
	sp.Style = styles.Accent

	return Model{
		Input:   ti,
		Spinner: sp,
		run:     run,
		styles:  styles,
	}
}

// Streaming returns whether a call is currently in flight.
func (m Model) Streaming() bool { return m.streaming }

// Err returns the last stream error, if any.
func (m Model) Err() error { return m.err }

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m = m.handleWindowSize(msg)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		if m.streaming {
			var cmd tea.Cmd
			m.Spinner, cmd = m.Spinner.Update(msg)
			return m, cmd
		}
		return m, nil

	case StreamEventMsg:
		m = m.processEvent(msg.Event)
		m.Viewport.SetContent(m.renderContent())
		m.Viewport.GotoBottom()
		if m.eventCh != nil {
			return m, listenForEvent(m.eventCh, m.doneCh)
		}
		return m, nil

	case StreamDoneMsg:
		m = m.finishStream(msg.Err)
		m.Viewport.SetContent(m.renderContent())
		m.Viewport.GotoBottom()
		cmd := m.Input.Focus()
		cmds = append(cmds, cmd)
		return m, tea.Batch(cmds...)
	}

	// Pass remaining messages to sub-components. The viewport always
	// receives messages for scrolling (keyboard and mouse).
	var cmd tea.Cmd
	m.Viewport, cmd = m.Viewport.Update(msg)
	cmds = append(cmds, cmd)

	if !m.streaming {
		m.Input, cmd = m.Input.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	var b strings.Builder
	b.WriteString(m.Viewport.View())
	b.WriteString("\n")
	b.WriteString(m.statusLine())
	b.WriteString("\n")
	b.WriteString(m.Input.View())
	return b.String()
}

func (m Model) handleWindowSize(msg tea.WindowSizeMsg) Model {
	inputH := 1
	statusHeight := 1
	borderHeight := 2 // newlines between sections
	vpHeight := msg.Height - inputH - statusHeight - borderHeight

	if vpHeight < 1 {
		vpHeight = 1
	}

	if !m.ready {
		m.Viewport = viewport.New(msg.Width, vpHeight)
		m.Viewport.SetContent(m.renderContent())
		m.ready = true
	} else {
		m.Viewport.Width = msg.Width
		m.Viewport.Height = vpHeight
	}

	m.Input.Width = msg.Width
	return m
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		if m.streaming {
			if m.cancel != nil {
				m.cancel()
			}
			return m, nil
		}
		return m, tea.Quit

	case tea.KeyEnter:
		if m.streaming {
			return m, nil
		}
		text := strings.TrimSpace(m.Input.Value())
		if text == "" {
			return m, nil
		}
		return m.submitPrompt(text)
	}

	if !m.streaming {
		var cmd tea.Cmd
		var cmds []tea.Cmd

		if msg.Type != tea.KeyRunes {
			m.Viewport, cmd = m.Viewport.Update(msg)
			cmds = append(cmds, cmd)
		}

		m.Input, cmd = m.Input.Update(msg)
		cmds = append(cmds, cmd)

		return m, tea.Batch(cmds...)
	}

	return m, nil
}

func (m Model) submitPrompt(text string) (tea.Model, tea.Cmd) {
	m.Input.SetValue("")
	m.err = nil

	m.lines = append(m.lines, m.styles.UserMsg.Render("> "+text))
	m.reply.Reset()
	m.Viewport.SetContent(m.renderContent())
	m.Viewport.GotoBottom()

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.eventCh = make(chan Event, 256)
	m.doneCh = make(chan error, 1)
	m.streaming = true

	m.Input.Blur()

	return m, tea.Batch(
		startStream(m.run, ctx, text, m.eventCh, m.doneCh),
		listenForEvent(m.eventCh, m.doneCh),
		m.Spinner.Tick,
	)
}

// processEvent folds one stream event into the transcript.
func (m Model) processEvent(evt Event) Model {
	switch evt.Kind {
	case KindStart:
		if evt.Text != "" {
			m.lines = append(m.lines, m.styles.Muted.Render(evt.Text))
		}
	case KindContent:
		m.reply.WriteString(evt.Text)
	case KindStatus:
		m.lines = append(m.lines, m.styles.Status.Render(evt.Text))
	case KindInterrupt:
		m.lines = append(m.lines, m.styles.Accent.Render("⏸ "+evt.Text))
	case KindError:
		m.lines = append(m.lines, m.styles.Error.Render("Error: "+evt.Text))
	}
	return m
}

// finishStream seals the current reply into the transcript and returns the
// model to its idle state.
func (m Model) finishStream(err error) Model {
	if m.reply.Len() > 0 {
		m.lines = append(m.lines, m.styles.Assistant.Render(m.reply.String()))
		m.reply.Reset()
	}
	m.streaming = false
	m.cancel = nil
	m.eventCh = nil
	m.doneCh = nil
	if err != nil && !errors.Is(err, context.Canceled) {
		m.err = err
	}
	return m
}

func (m Model) renderContent() string {
	var b strings.Builder
	for i, line := range m.lines {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(line)
	}
	if m.reply.Len() > 0 {
		if len(m.lines) > 0 {
			b.WriteString("\n")
		}
		b.WriteString(m.styles.Assistant.Render(m.reply.String()))
	}
	return b.String()
}

func (m Model) statusLine() string {
	if m.err != nil {
		return m.styles.Error.Render(fmt.Sprintf("Error: %v", m.err))
	}
	if m.streaming {
		return m.Spinner.View() + m.styles.Muted.Render("Streaming... (Ctrl+C to cancel)")
	}
	return m.styles.Muted.Render("Enter to send, Ctrl+C to quit")
}

// startStream runs the streaming call in a goroutine and signals completion.
func startStream(run StreamFunc, ctx context.Context, prompt string, eventCh chan Event, doneCh chan<- error) tea.Cmd {
	return func() tea.Msg {
		err := run(ctx, prompt, channelCallbacks(ctx, eventCh))
		close(eventCh)
		doneCh <- err
		return nil
	}
}

// listenForEvent waits for the next event from the channel. When the channel
// closes, it reads the error from doneCh and returns StreamDoneMsg.
func listenForEvent(ch <-chan Event, doneCh <-chan error) tea.Cmd {
	return func() tea.Msg {
		evt, ok := <-ch
		if !ok {
			err := <-doneCh
			return StreamDoneMsg{Err: err}
		}
		return StreamEventMsg{Event: evt}
	}
}
