package distributor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/agenthive/types"
)

func newTestBreaker(now *time.Time) *Breaker {
	b := NewBreaker("io", BreakerConfig{
		FailureThreshold:           3,
		RecoveryTimeout:            time.Minute,
		HalfOpenMaxProbes:          2,
		SuccessThresholdInHalfOpen: 2,
	}, nil, zap.NewNop())
	b.now = func() time.Time { return *now }
	return b
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := newTestBreaker(&now)

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	assert.Equal(t, BreakerClosed, b.State())
	assert.Zero(t, b.Failures(), "success resets the streak")

	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	assert.Equal(t, BreakerOpen, b.State())
	assert.False(t, b.Permits())

	ok, err := b.AllowRequest()
	assert.False(t, ok)
	assert.True(t, types.IsCode(err, types.ErrCircuitOpen))
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := newTestBreaker(&now)
	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}

	now = now.Add(time.Minute)
	assert.True(t, b.Permits())
	ok, err := b.AllowRequest()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, BreakerHalfOpen, b.State())

	ok, _ = b.AllowRequest()
	assert.True(t, ok, "second probe")
	assert.False(t, b.Permits())
	ok, err = b.AllowRequest()
	assert.False(t, ok)
	assert.Error(t, err)

	b.RecordSuccess()
	b.RecordSuccess()
	assert.Equal(t, BreakerClosed, b.State())
	assert.True(t, b.Permits())
}

func TestBreaker_ReleaseProbe(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := newTestBreaker(&now)

	b.ReleaseProbe()
	assert.Equal(t, BreakerClosed, b.State(), "no-op when closed")

	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	now = now.Add(time.Minute)
	for i := 0; i < 2; i++ {
		ok, _ := b.AllowRequest()
		require.True(t, ok)
	}
	assert.False(t, b.Permits())

	b.ReleaseProbe()
	assert.True(t, b.Permits())
	ok, _ := b.AllowRequest()
	assert.True(t, ok)
	assert.False(t, b.Permits())

	// 多余的归还不会让名额超过上限
	for i := 0; i < 5; i++ {
		b.ReleaseProbe()
	}
	for i := 0; i < 2; i++ {
		ok, _ := b.AllowRequest()
		assert.True(t, ok)
	}
	ok, _ = b.AllowRequest()
	assert.False(t, ok)
	assert.Equal(t, BreakerHalfOpen, b.State())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := newTestBreaker(&now)
	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	now = now.Add(2 * time.Minute)
	ok, _ := b.AllowRequest()
	require.True(t, ok)

	b.RecordFailure()
	assert.Equal(t, BreakerOpen, b.State())
	assert.False(t, b.Permits())

	b.Reset()
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreakerState_Text(t *testing.T) {
	for state, want := range map[BreakerState]string{
		BreakerClosed:   "closed",
		BreakerOpen:     "open",
		BreakerHalfOpen: "half_open",
		BreakerState(9): "unknown",
	} {
		text, err := state.MarshalText()
		require.NoError(t, err)
		assert.Equal(t, want, string(text))
	}
}

func TestBreakers_GetOrCreate(t *testing.T) {
	r := NewBreakers(DefaultBreakerConfig(), nil, nil)
	a := r.GetOrCreate("io")
	assert.Same(t, a, r.GetOrCreate("io"))
	r.GetOrCreate("network")
	assert.Equal(t, map[string]BreakerState{"io": BreakerClosed, "network": BreakerClosed}, r.States())
}
