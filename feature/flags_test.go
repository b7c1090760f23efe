package feature_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xenophobed/chatstream"
	"github.com/xenophobed/chatstream/feature"
)

func TestResolve_Defaults(t *testing.T) {
	t.Parallel()
	s := feature.Flags{}.Resolve("user_1")

	assert.False(t, s.UseNewArchitecture)
	assert.False(t, s.EnableProtocolEvents)
	assert.Equal(t, 3, s.MaxFallbackRetries)
	assert.Equal(t, 30*time.Second, s.ConnectTimeout)
}

func TestResolve_BucketingIsDeterministic(t *testing.T) {
	t.Parallel()
	flags := feature.Flags{Rollout: feature.Rollout{Percent: 50}}

	first := flags.Resolve("user_42").UseNewArchitecture
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, flags.Resolve("user_42").UseNewArchitecture,
			"same user must land in the same bucket on every call")
	}
}

func TestResolve_PercentBoundaries(t *testing.T) {
	t.Parallel()
	users := []string{"alice", "bob", "carol", "dave", "erin", "frank"}

	zero := feature.Flags{Rollout: feature.Rollout{Percent: 0}}
	full := feature.Flags{Rollout: feature.Rollout{Percent: 100}}
	for _, u := range users {
		assert.False(t, zero.Resolve(u).UseNewArchitecture, u)
		assert.True(t, full.Resolve(u).UseNewArchitecture, u)
	}
}

func TestResolve_PercentSplitsPopulation(t *testing.T) {
	t.Parallel()
	flags := feature.Flags{Rollout: feature.Rollout{Percent: 50}}

	enabled := 0
	for i := 0; i < 1000; i++ {
		if flags.Resolve(fmt.Sprintf("user_%d", i)).UseNewArchitecture {
			enabled++
		}
	}
	// Rough split; the hash is not required to be perfectly uniform.
	assert.Greater(t, enabled, 200)
	assert.Less(t, enabled, 800)
}

func TestResolve_SegmentAllowlistWinsOverPercent(t *testing.T) {
	t.Parallel()
	flags := feature.Flags{Rollout: feature.Rollout{
		Percent:  0,
		Segments: []string{"qa-*", "staff/**"},
	}}

	assert.True(t, flags.Resolve("qa-7").UseNewArchitecture)
	assert.True(t, flags.Resolve("staff/alice").UseNewArchitecture)
	assert.False(t, flags.Resolve("user_1").UseNewArchitecture)
}

func TestResolve_PredicateTakesPrecedence(t *testing.T) {
	t.Parallel()
	flags := feature.Flags{
		UseNewArchitecture:   true,
		UseNewArchitectureFn: func(userID string) bool { return userID == "vip" },
	}

	assert.True(t, flags.Resolve("vip").UseNewArchitecture)
	assert.False(t, flags.Resolve("pleb").UseNewArchitecture)
}

func TestResolve_EmptyUserNeverBuckets(t *testing.T) {
	t.Parallel()
	flags := feature.Flags{Rollout: feature.Rollout{Percent: 99}}
	assert.False(t, flags.Resolve("").UseNewArchitecture)
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		flags   feature.Flags
		wantErr bool
	}{
		{"zero value", feature.Flags{}, false},
		{"full config", feature.Flags{UseNewArchitecture: true, EnableProtocolEvents: true, MaxFallbackRetries: 5, ConnectTimeout: time.Minute, Rollout: feature.Rollout{Percent: 25, Segments: []string{"qa-*"}}}, false},
		{"percent too high", feature.Flags{Rollout: feature.Rollout{Percent: 101}}, true},
		{"percent negative", feature.Flags{Rollout: feature.Rollout{Percent: -1}}, true},
		{"negative retries", feature.Flags{MaxFallbackRetries: -1}, true},
		{"negative timeout", feature.Flags{ConnectTimeout: -time.Second}, true},
		{"bad segment pattern", feature.Flags{Rollout: feature.Rollout{Segments: []string{"[unterminated"}}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.flags.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, chatstream.ErrValidation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
