// Package pipeline orchestrates one streaming call: transport → frame
// decoder → format parser → callback dispatch. It owns pipeline selection,
// connection retry with exponential backoff, cross-architecture fallback,
// and cancellation.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"github.com/xenophobed/chatstream"
	"github.com/xenophobed/chatstream/agui"
	"github.com/xenophobed/chatstream/dispatch"
	"github.com/xenophobed/chatstream/feature"
	"github.com/xenophobed/chatstream/framing"
	"github.com/xenophobed/chatstream/legacy"
	"github.com/xenophobed/chatstream/transport"
)

// Kind identifies which backend pipeline serves a call.
type Kind int

const (
	KindLegacy   Kind = iota // original wire-format-to-callback path
	KindProtocol             // normalized protocol-event path
)

// String returns the kind name for diagnostics.
func (k Kind) String() string {
	if k == KindProtocol {
		return "protocol"
	}
	return "legacy"
}

// Select is a pure function of the resolved flag snapshot. It is decided
// once per call and passed down explicitly; parsers and dispatchers never
// read flags as ambient state.
func Select(snap feature.Snapshot) Kind {
	if snap.UseNewArchitecture {
		return KindProtocol
	}
	return KindLegacy
}

// Endpoint describes one backend: where to connect, how frames are bounded,
// and which parser decodes them. NewParser is called once per stream because
// the legacy parser keeps per-message accumulation state.
type Endpoint struct {
	URL       string
	Transport transport.Transport
	Mode      framing.Mode
	NewParser func() chatstream.Parser
}

// LegacyEndpoint builds the endpoint for wire format A: SSE records decoded
// by the legacy parser.
func LegacyEndpoint(url string, t transport.Transport) *Endpoint {
	return &Endpoint{
		URL:       url,
		Transport: t,
		Mode:      framing.ModeSSE,
		NewParser: func() chatstream.Parser { return legacy.New() },
	}
}

// ProtocolEndpoint builds the endpoint for wire format B: newline-delimited
// (or socket-message) protocol events. Pass framing.ModeMessage for a
// WebSocket transport.
func ProtocolEndpoint(url string, t transport.Transport, mode framing.Mode) *Endpoint {
	return &Endpoint{
		URL:       url,
		Transport: t,
		Mode:      mode,
		NewParser: func() chatstream.Parser { return agui.New() },
	}
}

// Config wires a Pipeline. Legacy is required; Protocol is required whenever
// the flags can route a call to the new architecture.
type Config struct {
	Legacy   *Endpoint
	Protocol *Endpoint
	Flags    feature.Flags

	// Logger receives diagnostics. Nil is silent.
	Logger *logrus.Logger

	// BackoffBase is the initial connection retry delay. 0 means 500ms;
	// each retry doubles it.
	BackoffBase time.Duration
}

// Pipeline issues streaming calls. One Pipeline serves any number of
// concurrent calls; all per-call state lives in the call frame, and the only
// shared data are the read-only config and flag snapshot inputs.
type Pipeline struct {
	cfg Config
	log *logrus.Logger
}

// New validates the configuration and creates a Pipeline. Contradictory
// flag/endpoint combinations are rejected here, at startup, never at
// request time.
func New(cfg Config) (*Pipeline, error) {
	if err := cfg.Flags.Validate(); err != nil {
		return nil, err
	}
	if err := validateEndpoint("legacy", cfg.Legacy); err != nil {
		return nil, err
	}
	newArchPossible := cfg.Flags.UseNewArchitecture ||
		cfg.Flags.UseNewArchitectureFn != nil ||
		cfg.Flags.Rollout.Percent > 0 ||
		len(cfg.Flags.Rollout.Segments) > 0
	if cfg.Flags.EnableProtocolEvents || newArchPossible {
		if err := validateEndpoint("protocol", cfg.Protocol); err != nil {
			return nil, err
		}
	}
	if cfg.BackoffBase == 0 {
		cfg.BackoffBase = 500 * time.Millisecond
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.New()
		log.SetOutput(io.Discard)
	}
	return &Pipeline{cfg: cfg, log: log}, nil
}

func validateEndpoint(name string, ep *Endpoint) error {
	switch {
	case ep == nil:
		return fmt.Errorf("%s endpoint is required: %w", name, chatstream.ErrValidation)
	case ep.URL == "":
		return fmt.Errorf("%s endpoint URL is empty: %w", name, chatstream.ErrValidation)
	case ep.Transport == nil:
		return fmt.Errorf("%s endpoint has no transport: %w", name, chatstream.ErrValidation)
	case ep.NewParser == nil:
		return fmt.Errorf("%s endpoint has no parser: %w", name, chatstream.ErrValidation)
	}
	return nil
}

// Request is one streaming call.
type Request struct {
	// UserID buckets the call for flag resolution.
	UserID string

	// Body is the opaque request payload sent to the backend.
	Body []byte

	// HardFail disables graceful-close semantics: errors propagate
	// without a trailing onStreamComplete.
	HardFail bool
}

// runState is the per-call state machine:
// idle → connecting → streaming → {completed | failed | cancelled}.
type runState int

const (
	stateIdle runState = iota
	stateConnecting
	stateStreaming
	stateCompleted
	stateFailed
	stateCancelled
)

func (s runState) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateStreaming:
		return "streaming"
	case stateCompleted:
		return "completed"
	case stateFailed:
		return "failed"
	case stateCancelled:
		return "cancelled"
	default:
		return "idle"
	}
}

// call holds everything scoped to one Send invocation, including the retry
// counters; nothing here is shared across calls.
type call struct {
	p     *Pipeline
	snap  feature.Snapshot
	d     *dispatch.Dispatcher
	state runState
}

// Send issues one streaming call and dispatches its events to cb. Flags are
// resolved exactly once, before connecting.
//
// Error semantics: when cb.OnError is registered, all error kinds are
// delivered through it and Send returns nil (errors are data once a sink
// exists). Without it, connection-level failures are returned. Cancellation
// always returns the context error.
func (p *Pipeline) Send(ctx context.Context, req Request, cb chatstream.Callbacks) error {
	c := &call{
		p:    p,
		snap: p.cfg.Flags.Resolve(req.UserID),
		d:    dispatch.New(cb, dispatch.WithLogger(p.log)),
	}
	kind := Select(c.snap)
	c.transition(stateConnecting)
	if c.snap.EnableVerboseLogging {
		p.log.WithFields(logrus.Fields{"pipeline": kind.String(), "user": req.UserID}).Debug("stream starting")
	}

	frames, err := c.connect(ctx, p.endpoint(kind), req.Body)
	if err != nil && kind == KindProtocol {
		// Cross-architecture fallback: one retry through the legacy
		// pipeline before surfacing a connection failure.
		var connErr *chatstream.ConnectionError
		if errors.As(err, &connErr) && ctx.Err() == nil {
			p.log.WithError(err).Warn("protocol pipeline unreachable, falling back to legacy")
			kind = KindLegacy
			frames, err = c.connect(ctx, p.endpoint(kind), req.Body)
		}
	}
	if err != nil {
		return c.fail(ctx, req, err)
	}
	defer frames.Close()

	return c.stream(ctx, req, kind, frames)
}

// endpoint maps a pipeline kind to its configured endpoint.
func (p *Pipeline) endpoint(kind Kind) *Endpoint {
	if kind == KindProtocol {
		return p.cfg.Protocol
	}
	return p.cfg.Legacy
}

// connect opens the transport with exponential backoff. Only connection
// establishment retries; anything else is permanent. The resolved connect
// timeout bounds the whole establishment phase, retries included.
func (c *call) connect(ctx context.Context, ep *Endpoint, body []byte) (chatstream.FrameStream, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.p.cfg.BackoffBase
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = c.snap.ConnectTimeout

	attempts := c.snap.MaxFallbackRetries
	if attempts < 1 {
		attempts = 1
	}

	var chunks transport.ChunkStream
	operation := func() error {
		cs, err := ep.Transport.Open(ctx, ep.URL, body)
		if err != nil {
			var connErr *chatstream.ConnectionError
			if errors.As(err, &connErr) {
				return err
			}
			return backoff.Permanent(err)
		}
		chunks = cs
		return nil
	}

	err := backoff.Retry(operation,
		backoff.WithContext(backoff.WithMaxRetries(bo, uint64(attempts-1)), ctx))
	if err != nil {
		return nil, err
	}
	return framing.NewDecoder(chunks, ep.Mode), nil
}

// parsers builds the per-frame parser chain: with EnableProtocolEvents the
// protocol-event parser is tried first and the legacy parser catches the
// same frame on failure (first match wins); otherwise only the serving
// endpoint's parser applies.
func (c *call) parsers(kind Kind) []chatstream.Parser {
	if c.snap.EnableProtocolEvents && c.p.cfg.Protocol != nil {
		return []chatstream.Parser{c.p.cfg.Protocol.NewParser(), c.p.cfg.Legacy.NewParser()}
	}
	return []chatstream.Parser{c.p.endpoint(kind).NewParser()}
}

// stream runs the single-consumer decode loop. Parsing, adaptation, and
// dispatch are synchronous between transport reads; the transport read is
// the only suspension point.
func (c *call) stream(ctx context.Context, req Request, kind Kind, frames chatstream.FrameStream) error {
	chain := c.parsers(kind)
	failed := false

	for {
		// Cooperative cancellation, checked before each read. An
		// already-decoded frame's dispatch is never rolled back.
		if ctx.Err() != nil {
			return c.cancel(ctx)
		}

		frame, err := frames.Next()
		if err == io.EOF {
			c.d.Dispatch(chatstream.StreamEnd{})
			if failed {
				c.transition(stateFailed)
			} else {
				c.transition(stateCompleted)
			}
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return c.cancel(ctx)
			}
			return c.fail(ctx, req, err)
		}

		if c.state != stateStreaming {
			c.transition(stateStreaming)
		}

		events, ok := c.parse(chain, frame)
		if !ok {
			// Malformed frame: dropped, never fatal.
			continue
		}
		for _, evt := range events {
			c.d.Dispatch(evt)
			if re, isErr := evt.(chatstream.RunError); isErr {
				if (&chatstream.ProtocolError{Code: re.ErrorCode, Message: re.ErrorMessage}).Fatal() {
					failed = true
				}
			}
		}
	}
}

// parse applies the first-match parser chain to one frame.
func (c *call) parse(chain []chatstream.Parser, frame chatstream.Frame) ([]chatstream.Event, bool) {
	for _, parser := range chain {
		events, err := parser.Parse(frame)
		if err == nil {
			if c.snap.EnableVerboseLogging {
				c.p.log.WithFields(logrus.Fields{
					"parser": parser.Name(),
					"events": len(events),
				}).Debug("frame decoded")
			}
			return events, true
		}
		if c.snap.EnableVerboseLogging {
			c.p.log.WithError(err).WithField("parser", parser.Name()).Debug("parser rejected frame")
		}
	}
	c.p.log.WithField("payload", frame.Payload).Debug("dropping unparsable frame")
	return nil, false
}

// fail reaches the failed terminal state. With an OnError sink the error is
// delivered as data and the call resolves normally; otherwise it propagates.
// Graceful-close semantics still fire the completion callback exactly once
// unless the caller requested hard failure.
func (c *call) fail(ctx context.Context, req Request, err error) error {
	if ctx.Err() != nil {
		return c.cancel(ctx)
	}
	c.transition(stateFailed)
	if req.HardFail {
		return err
	}
	if c.d.HasErrorSink() {
		c.d.Error(err)
		c.d.Complete()
		return nil
	}
	c.d.Complete()
	return err
}

// cancel reaches the cancelled terminal state. If streaming had started the
// consumer gets a status line and the guaranteed completion; a call
// cancelled before its first frame fires no callbacks at all.
func (c *call) cancel(ctx context.Context) error {
	started := c.state == stateStreaming
	c.transition(stateCancelled)
	if started {
		c.d.Status("cancelled")
		c.d.Complete()
	}
	return ctx.Err()
}

func (c *call) transition(to runState) {
	if c.snap.EnableVerboseLogging {
		c.p.log.WithFields(logrus.Fields{"from": c.state.String(), "to": to.String()}).Debug("state transition")
	}
	c.state = to
}
