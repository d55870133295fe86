package resource

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		cores int
		mem   float64
		want  HardwareClass
	}{
		{2, 1024, HardwareEdge},
		{4, 8192, HardwareDesktop},
		{16, 32000, HardwareServer},
		{64, 256000, HardwareCloud},
		{2, 8192, HardwareDesktop},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.cores, tt.mem), "%d cores / %v MB", tt.cores, tt.mem)
	}
	assert.Equal(t, 20, ProfileFor(HardwareDesktop).MaxAgents)
	assert.Equal(t, 500*time.Millisecond, ProfileFor(HardwareCloud).UpdateInterval)
}

func TestMonitor_Alerts(t *testing.T) {
	m := NewMonitor(Fixed(0.95, 0.2), 0, false, zap.NewNop())
	u, alerts, err := m.Update(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 0.95, u.CPU, 1e-9)
	assert.Equal(t, []Alert{{Resource: "cpu", Usage: 0.95}}, alerts)
	assert.Equal(t, u, m.Latest())

	m = NewMonitor(Fixed(0.1, 0.91), 0, false, nil)
	_, alerts, err = m.Update(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Alert{{Resource: "memory", Usage: 0.91}}, alerts)

	_, alerts, _ = NewMonitor(Fixed(0.9, 0.9), 0, false, nil).Update(context.Background())
	assert.Empty(t, alerts, "threshold is exclusive")
}

func TestMonitor_SamplerError(t *testing.T) {
	boom := errors.New("no procfs")
	m := NewMonitor(SamplerFunc(func(context.Context) (Usage, error) { return Usage{}, boom }), 0, false, nil)
	_, _, err := m.Update(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestMonitor_AutoOptimize(t *testing.T) {
	cpu := 0.95
	sampler := SamplerFunc(func(context.Context) (Usage, error) { return Usage{CPU: cpu}, nil })
	m := NewMonitor(sampler, 0, true, nil)
	optimal := m.Profile()

	_, _, err := m.Update(context.Background())
	require.NoError(t, err)
	shrunk := m.Profile()
	assert.Equal(t, int(float64(optimal.MaxAgents)*0.8), shrunk.MaxAgents)
	assert.Greater(t, shrunk.UpdateInterval, optimal.UpdateInterval)

	cpu = 0.1
	for i := 0; i < 200; i++ {
		_, _, err = m.Update(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, optimal.MaxAgents, m.Profile().MaxAgents)
	assert.Equal(t, optimal.UpdateInterval, m.Profile().UpdateInterval)

	m.SetProfile(Profile{Name: "custom", MaxAgents: 1})
	assert.Equal(t, "custom", m.Info().Profile.Name)
}

func TestProcessSampler(t *testing.T) {
	s := NewProcessSampler(1024)
	clock := time.Now()
	s.now = func() time.Time { return clock }

	first, err := s.Sample(context.Background())
	require.NoError(t, err)
	assert.Zero(t, first.CPU, "first sample has no baseline")
	assert.Positive(t, first.Goroutines)
	assert.Equal(t, float64(1024), first.MemoryLimitMB)
	assert.GreaterOrEqual(t, first.Memory, 0.0)
	assert.LessOrEqual(t, first.Memory, 1.0)

	clock = clock.Add(time.Second)
	second, err := s.Sample(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, second.CPU, 0.0)
	assert.LessOrEqual(t, second.CPU, 1.0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Sample(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
