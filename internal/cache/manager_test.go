package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// =============================================================================
// 🧪 Manager 测试
// =============================================================================

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *Manager) {
	t.Helper()
	mr := miniredis.RunT(t)

	config := DefaultConfig()
	config.Addr = mr.Addr()
	config.DefaultTTL = time.Minute
	config.HealthCheckInterval = 0

	manager, err := NewManager(config, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })

	return mr, manager
}

func TestManager_SetGetDelete(t *testing.T) {
	_, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.Set(ctx, "k", "v", 0))

	value, err := manager.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", value)

	require.NoError(t, manager.Delete(ctx, "k"))
	_, err = manager.Get(ctx, "k")
	assert.True(t, IsCacheMiss(err))

	n, err := manager.Exists(ctx, "k")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestManager_JSONRoundTrip(t *testing.T) {
	_, manager := setupTestRedis(t)
	ctx := context.Background()

	type snapshot struct {
		Name  string  `json:"name"`
		Score float64 `json:"score"`
	}
	in := snapshot{Name: "worker-1", Score: 0.75}
	require.NoError(t, manager.SetJSON(ctx, manager.Key("agent", "1"), in, time.Minute))

	var out snapshot
	require.NoError(t, manager.GetJSON(ctx, manager.Key("agent", "1"), &out))
	assert.Equal(t, in, out)

	require.NoError(t, manager.Set(ctx, "bad", "not a json", time.Minute))
	assert.Error(t, manager.GetJSON(ctx, "bad", &out))
	assert.Error(t, manager.SetJSON(ctx, "chan", make(chan int), time.Minute))
}

func TestManager_KeyPrefix(t *testing.T) {
	_, manager := setupTestRedis(t)
	assert.Equal(t, "agenthive:agent:abc", manager.Key("agent", "abc"))
}

func TestManager_TTLExpiry(t *testing.T) {
	mr, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.Set(ctx, "ttl", "value", 100*time.Millisecond))
	mr.FastForward(200 * time.Millisecond)

	_, err := manager.Get(ctx, "ttl")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestManager_Stats(t *testing.T) {
	_, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.Set(ctx, "a", "1", 0))
	_, _ = manager.Get(ctx, "a")
	_, _ = manager.Get(ctx, "a")
	_, _ = manager.Get(ctx, "missing")

	stats, err := manager.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.InDelta(t, 2.0/3.0, stats.HitRate, 1e-9)
	assert.Equal(t, int64(1), stats.Keys)
}

func TestManager_ClosedRejectsCalls(t *testing.T) {
	_, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.Close())
	require.NoError(t, manager.Close())

	_, err := manager.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, manager.Ping(ctx), ErrClosed)
}

func TestManager_ConnectFailure(t *testing.T) {
	manager, err := NewManager(Config{Addr: "localhost:1"}, zap.NewNop())
	assert.Nil(t, manager)
	assert.Error(t, err)
}
