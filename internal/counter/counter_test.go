package counter

import (
	"context"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/openapigw/internal/metering"
)

var (
	_ metering.Counter = (*Memory)(nil)
	_ metering.Counter = (*Redis)(nil)
	_ metering.Counter = (*Postgres)(nil)
)

func TestMemory_RecordInvocation(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.RecordInvocation(context.Background(), 1, 2)
		}()
	}
	wg.Wait()
	require.NoError(t, m.RecordInvocation(context.Background(), 3, 2))

	assert.Equal(t, int64(100), m.Count(1, 2))
	assert.Equal(t, int64(1), m.Count(3, 2))
	assert.Zero(t, m.Count(2, 1))
	assert.Equal(t, map[Key]int64{{1, 2}: 100, {3, 2}: 1}, m.Snapshot())
}

func TestMemory_CancelledContext(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, m.RecordInvocation(ctx, 1, 2), context.Canceled)
	assert.Zero(t, m.Count(1, 2))
}

func setupRedis(t *testing.T) (*miniredis.Miniredis, *Redis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedis(client, "")
}

func TestRedis_RecordInvocation(t *testing.T) {
	t.Parallel()

	mr, r := setupRedis(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, r.RecordInvocation(ctx, 11, 22))
	}
	require.NoError(t, r.RecordInvocation(ctx, 11, 23))

	n, err := r.Count(ctx, 11, 22)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = r.Count(ctx, 99, 22)
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.Equal(t, "3", mr.HGet(DefaultRedisPrefix+"11", "22"))
	assert.Equal(t, "1", mr.HGet(DefaultRedisPrefix+"11", "23"))
	require.NoError(t, r.Ping(ctx))
}

func TestRedis_Unavailable(t *testing.T) {
	t.Parallel()

	mr, r := setupRedis(t)
	mr.Close()

	assert.Error(t, r.RecordInvocation(context.Background(), 1, 2))
	_, err := r.Count(context.Background(), 1, 2)
	assert.Error(t, err)
}

func TestRedis_WithDispatcher(t *testing.T) {
	t.Parallel()

	_, r := setupRedis(t)
	d := metering.NewDispatcher(r, metering.WithWorkers(4))
	for i := 0; i < 25; i++ {
		require.True(t, d.Submit(context.Background(), 5, 6))
	}
	require.NoError(t, d.Close(context.Background()))

	n, err := r.Count(context.Background(), 5, 6)
	require.NoError(t, err)
	assert.Equal(t, int64(25), n)
}
