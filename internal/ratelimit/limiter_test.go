package ratelimit

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGate(store WindowStore) *Gate {
	return NewGate(store, zerolog.New(io.Discard))
}

func TestGateDeniesOverLimit(t *testing.T) {
	gate := testGate(NewMemoryStore())
	ctx := context.Background()
	key := Key("user-1", "video")

	for i := 0; i < 4; i++ {
		d := gate.Admit(ctx, key, 4, time.Minute)
		require.True(t, d.Allowed, "call %d should be admitted", i+1)
	}
	d := gate.Admit(ctx, key, 4, time.Minute)
	assert.False(t, d.Allowed)
	assert.Greater(t, d.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, d.RetryAfter, time.Minute)
}

func TestGateResetsAfterWindow(t *testing.T) {
	store := NewMemoryStore()
	current := time.Now()
	store.now = func() time.Time { return current }
	gate := testGate(store)
	ctx := context.Background()
	key := Key("user-2", "image")

	for i := 0; i < 3; i++ {
		gate.Admit(ctx, key, 2, time.Minute)
	}
	require.False(t, gate.Admit(ctx, key, 2, time.Minute).Allowed)

	current = current.Add(time.Minute + time.Second)
	assert.True(t, gate.Admit(ctx, key, 2, time.Minute).Allowed)
}

func TestGateKeysAreIndependent(t *testing.T) {
	gate := testGate(NewMemoryStore())
	ctx := context.Background()

	require.True(t, gate.Admit(ctx, Key("a", "video"), 1, time.Minute).Allowed)
	require.False(t, gate.Admit(ctx, Key("a", "video"), 1, time.Minute).Allowed)
	assert.True(t, gate.Admit(ctx, Key("a", "image"), 1, time.Minute).Allowed)
	assert.True(t, gate.Admit(ctx, Key("b", "video"), 1, time.Minute).Allowed)
}

func TestGateConcurrentIncrements(t *testing.T) {
	gate := testGate(NewMemoryStore())
	ctx := context.Background()
	key := Key("user-3", "site")

	const calls = 50
	const limit = 20
	var wg sync.WaitGroup
	allowed := make(chan bool, calls)
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			allowed <- gate.Admit(ctx, key, limit, time.Minute).Allowed
		}()
	}
	wg.Wait()
	close(allowed)

	count := 0
	for ok := range allowed {
		if ok {
			count++
		}
	}
	assert.Equal(t, limit, count)
}

func TestGateZeroLimitAdmits(t *testing.T) {
	gate := testGate(NewMemoryStore())
	d := gate.Admit(context.Background(), "any", 0, time.Minute)
	assert.True(t, d.Allowed)
}

func TestRedisStoreWindow(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	gate := testGate(NewRedisStore(client))
	ctx := context.Background()
	key := Key("user-redis", "video")

	for i := 0; i < 4; i++ {
		require.True(t, gate.Admit(ctx, key, 4, time.Minute).Allowed)
	}
	d := gate.Admit(ctx, key, 4, time.Minute)
	require.False(t, d.Allowed)
	require.Greater(t, d.RetryAfter, time.Duration(0))

	srv.FastForward(time.Minute + time.Second)
	assert.True(t, gate.Admit(ctx, key, 4, time.Minute).Allowed)
}

func TestGateFailsOpenOnStoreError(t *testing.T) {
	gate := testGate(failingStore{})
	d := gate.Admit(context.Background(), "k", 1, time.Minute)
	assert.True(t, d.Allowed)
}

type failingStore struct{}

func (failingStore) Incr(context.Context, string, time.Duration) (int, time.Time, error) {
	return 0, time.Time{}, context.DeadlineExceeded
}
