// Package feature resolves feature flag snapshots for the streaming
// pipeline. Flags are resolved once per call into an immutable Snapshot;
// mid-stream flag changes take effect on the next call only, which keeps one
// in-flight pipeline from being torn between implementations.
package feature

import (
	"fmt"
	"hash/fnv"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/xenophobed/chatstream"
)

const (
	// DefaultMaxFallbackRetries caps connection-establishment attempts.
	DefaultMaxFallbackRetries = 3

	// DefaultConnectTimeout bounds connection establishment.
	DefaultConnectTimeout = 30 * time.Second
)

// Flags is the static flag configuration. Zero value means the legacy
// pipeline with defaults.
type Flags struct {
	// UseNewArchitecture routes every call through the new pipeline.
	UseNewArchitecture bool

	// UseNewArchitectureFn, when set, decides per user and takes
	// precedence over UseNewArchitecture and Rollout.
	UseNewArchitectureFn func(userID string) bool

	// Rollout enables the new architecture for a deterministic share of
	// users when UseNewArchitecture is false.
	Rollout Rollout

	// EnableProtocolEvents tries the protocol-event parser first,
	// falling back to the legacy parser per frame.
	EnableProtocolEvents bool

	// EnableVerboseLogging turns on per-frame diagnostics.
	EnableVerboseLogging bool

	// MaxFallbackRetries caps connection retries. 0 means the default (3).
	MaxFallbackRetries int

	// ConnectTimeout bounds connection establishment. 0 means the
	// default (30s).
	ConnectTimeout time.Duration
}

// Rollout is a percentage rollout with segment allowlists.
type Rollout struct {
	// Percent of users bucketed into the new architecture, 0-100. A user's
	// bucket is a stable hash of the identifier: the same user always gets
	// the same answer for a fixed percentage, so a session never flaps.
	Percent int

	// Segments are glob patterns (doublestar syntax) matched against the
	// user/segment identifier; a match force-enables the new architecture
	// ahead of the percentage.
	Segments []string
}

// Snapshot is the per-call resolution of Flags, with defaults applied.
// It is immutable for the lifetime of the call.
type Snapshot struct {
	UseNewArchitecture   bool
	EnableProtocolEvents bool
	EnableVerboseLogging bool
	MaxFallbackRetries   int
	ConnectTimeout       time.Duration
}

// Validate rejects contradictory or malformed configuration at startup, not
// at request time.
func (f Flags) Validate() error {
	if f.Rollout.Percent < 0 || f.Rollout.Percent > 100 {
		return fmt.Errorf("rollout percent must be in [0, 100], got %d: %w", f.Rollout.Percent, chatstream.ErrValidation)
	}
	if f.MaxFallbackRetries < 0 {
		return fmt.Errorf("max fallback retries must be non-negative, got %d: %w", f.MaxFallbackRetries, chatstream.ErrValidation)
	}
	if f.ConnectTimeout < 0 {
		return fmt.Errorf("connect timeout must be non-negative, got %s: %w", f.ConnectTimeout, chatstream.ErrValidation)
	}
	for _, pat := range f.Rollout.Segments {
		if !doublestar.ValidatePattern(pat) {
			return fmt.Errorf("invalid segment pattern %q: %w", pat, chatstream.ErrValidation)
		}
	}
	return nil
}

// Resolve produces the flag snapshot for one call. It is a pure function of
// (userID, Flags): no ambient state, deterministic for a fixed config.
func (f Flags) Resolve(userID string) Snapshot {
	s := Snapshot{
		EnableProtocolEvents: f.EnableProtocolEvents,
		EnableVerboseLogging: f.EnableVerboseLogging,
		MaxFallbackRetries:   f.MaxFallbackRetries,
		ConnectTimeout:       f.ConnectTimeout,
	}
	if s.MaxFallbackRetries == 0 {
		s.MaxFallbackRetries = DefaultMaxFallbackRetries
	}
	if s.ConnectTimeout == 0 {
		s.ConnectTimeout = DefaultConnectTimeout
	}

	switch {
	case f.UseNewArchitectureFn != nil:
		s.UseNewArchitecture = f.UseNewArchitectureFn(userID)
	case f.UseNewArchitecture:
		s.UseNewArchitecture = true
	default:
		s.UseNewArchitecture = f.Rollout.enabled(userID)
	}
	return s
}

// enabled reports whether userID falls inside the rollout.
func (r Rollout) enabled(userID string) bool {
	for _, pat := range r.Segments {
		if ok, err := doublestar.Match(pat, userID); err == nil && ok {
			return true
		}
	}
	if userID == "" || r.Percent <= 0 {
		return false
	}
	if r.Percent >= 100 {
		return true
	}
	return bucket(userID) < r.Percent
}

// bucket maps an identifier to a stable value in [0, 100).
func bucket(id string) int {
	h := fnv.New64a()
	h.Write([]byte(id))
	return int(h.Sum64() % 100)
}
