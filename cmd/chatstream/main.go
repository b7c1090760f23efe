// Command chatstream is an interactive terminal client for streaming chat
// backends. It speaks both supported wire formats: SSE records from the
// legacy endpoint and protocol events over NDJSON or WebSocket.
//
// Usage:
//
//	chatstream [flags]
//
// Flags:
//
//	-legacy-url string    Legacy SSE endpoint (default http://localhost:8000/chat/stream)
//	-protocol-url string  Protocol-event endpoint; ws:// and wss:// switch to WebSocket framing
//	-user string          User ID for feature flag bucketing
//	-new-arch             Route calls through the protocol pipeline
//	-protocol-events      Enable the protocol-event parser with legacy fallback
//	-rollout int          Percentage of users routed to the protocol pipeline (0-100)
//	-auth string          Bearer token sent with every request
//	-timeout duration     Connection timeout (default 30s)
//	-retries int          Connection attempts before giving up (default 3)
//	-transcript string    Save the conversation transcript to this JSON file on exit
//	-log-file string      Write diagnostics to this file instead of discarding them
//	-verbose              Log at debug level
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/xenophobed/chatstream"
	"github.com/xenophobed/chatstream/feature"
	"github.com/xenophobed/chatstream/framing"
	chatjson "github.com/xenophobed/chatstream/json"
	"github.com/xenophobed/chatstream/pipeline"
	"github.com/xenophobed/chatstream/transport"
	"github.com/xenophobed/chatstream/tui"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "chatstream: %v\n", err)
		os.Exit(1)
	}
}

// request is the JSON body POSTed (or written as the first socket message)
// when a stream opens.
type request struct {
	Message string `json:"message"`
	UserID  string `json:"user_id,omitempty"`
}

func run() error {
	var (
		legacyURL   = flag.String("legacy-url", "http://localhost:8000/chat/stream", "Legacy SSE endpoint")
		protocolURL = flag.String("protocol-url", "", "Protocol-event endpoint (http(s) or ws(s) scheme)")
		userID      = flag.String("user", "", "User ID for feature flag bucketing")
		newArch     = flag.Bool("new-arch", false, "Route calls through the protocol pipeline")
		protoEvents = flag.Bool("protocol-events", false, "Enable the protocol-event parser with legacy fallback")
		rollout     = flag.Int("rollout", 0, "Percentage of users routed to the protocol pipeline (0-100)")
		authToken   = flag.String("auth", "", "Bearer token sent with every request")
		timeout     = flag.Duration("timeout", feature.DefaultConnectTimeout, "Connection timeout")
		retries     = flag.Int("retries", feature.DefaultMaxFallbackRetries, "Connection attempts before giving up")
		transcript  = flag.String("transcript", "", "Save the conversation transcript to this JSON file on exit")
		logFile     = flag.String("log-file", "", "Write diagnostics to this file")
		verbose     = flag.Bool("verbose", false, "Log at debug level")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	log, cleanup, err := newLogger(*logFile, *verbose)
	if err != nil {
		return err
	}
	defer cleanup()

	cfg := pipeline.Config{
		Legacy: pipeline.LegacyEndpoint(*legacyURL, newHTTPTransport(*authToken, *timeout)),
		Flags: feature.Flags{
			UseNewArchitecture:   *newArch,
			Rollout:              feature.Rollout{Percent: *rollout},
			EnableProtocolEvents: *protoEvents,
			EnableVerboseLogging: *verbose,
			MaxFallbackRetries:   *retries,
			ConnectTimeout:       *timeout,
		},
		Logger: log,
	}
	if *protocolURL != "" {
		cfg.Protocol = protocolEndpoint(*protocolURL, *authToken, *timeout)
	}

	p, err := pipeline.New(cfg)
	if err != nil {
		return err
	}

	record := chatstream.NewTranscript(uuid.NewString())
	user := *userID
	stream := func(ctx context.Context, prompt string, cb chatstream.Callbacks) error {
		body, err := json.Marshal(request{Message: prompt, UserID: user})
		if err != nil {
			return err
		}
		record.Append("prompt", prompt)
		return p.Send(ctx, pipeline.Request{UserID: user, Body: body}, record.Record(cb))
	}

	if err := tui.Run(ctx, tui.New(stream, chatstream.DefaultTheme())); err != nil {
		return fmt.Errorf("TUI: %w", err)
	}

	if *transcript != "" && len(record.Entries) > 0 {
		if err := chatjson.Save(*transcript, *record); err != nil {
			return fmt.Errorf("save transcript: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Transcript saved to %s\n", *transcript)
	}
	return nil
}

func newHTTPTransport(authToken string, timeout time.Duration) *transport.HTTP {
	opts := []transport.HTTPOption{transport.WithConnectTimeout(timeout)}
	if authToken != "" {
		opts = append(opts, transport.WithHeader("Authorization", "Bearer "+authToken))
	}
	return transport.NewHTTP(opts...)
}

// protocolEndpoint picks transport and framing from the URL scheme: socket
// schemes stream discrete messages, HTTP schemes stream NDJSON.
func protocolEndpoint(url, authToken string, timeout time.Duration) *pipeline.Endpoint {
	if strings.HasPrefix(url, "ws://") || strings.HasPrefix(url, "wss://") {
		var opts []transport.WSOption
		if authToken != "" {
			opts = append(opts, transport.WithWSHeader("Authorization", "Bearer "+authToken))
		}
		return pipeline.ProtocolEndpoint(url, transport.NewWebSocket(opts...), framing.ModeMessage)
	}
	return pipeline.ProtocolEndpoint(url, newHTTPTransport(authToken, timeout), framing.ModeNDJSON)
}

// newLogger routes diagnostics away from the terminal the TUI owns: to a
// file when requested, otherwise discarded.
func newLogger(path string, verbose bool) (*logrus.Logger, func(), error) {
	log := logrus.New()
	cleanup := func() {}

	if path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		log.SetOutput(f)
		cleanup = func() { f.Close() }
	} else {
		log.SetOutput(io.Discard)
	}

	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	return log, cleanup, nil
}
