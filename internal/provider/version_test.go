package provider

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDescriber struct {
	calls    atomic.Int64
	versions map[string]string
	err      error
}

func (f *fakeDescriber) LatestVersion(_ context.Context, model string) (string, error) {
	f.calls.Add(1)
	if f.err != nil {
		return "", f.err
	}
	return f.versions[model], nil
}

func TestVersionResolverCachesDiscovery(t *testing.T) {
	desc := &fakeDescriber{versions: map[string]string{"acme/wan-video": "v-abc123"}}
	r, err := NewVersionResolver(desc, nil)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		v, err := r.Resolve(context.Background(), "acme/wan-video")
		require.NoError(t, err)
		assert.Equal(t, "v-abc123", v)
	}
	assert.Equal(t, int64(1), desc.calls.Load())
}

func TestVersionResolverPinnedSkipsDiscovery(t *testing.T) {
	desc := &fakeDescriber{versions: map[string]string{"acme/sdxl": "latest"}}
	r, err := NewVersionResolver(desc, map[string]string{"acme/sdxl": "v-pinned"})
	require.NoError(t, err)

	v, err := r.Resolve(context.Background(), "acme/sdxl")
	require.NoError(t, err)
	assert.Equal(t, "v-pinned", v)
	assert.Zero(t, desc.calls.Load())
}

func TestVersionResolverConcurrentSingleFlight(t *testing.T) {
	desc := &fakeDescriber{versions: map[string]string{"acme/model": "v1"}}
	r, err := NewVersionResolver(desc, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := r.Resolve(context.Background(), "acme/model")
			assert.NoError(t, err)
			assert.Equal(t, "v1", v)
		}()
	}
	wg.Wait()
	// Concurrent racers collapse into at most a handful of upstream calls;
	// with singleflight plus the cache it is effectively one.
	assert.LessOrEqual(t, desc.calls.Load(), int64(2))
}

func TestVersionResolverErrors(t *testing.T) {
	desc := &fakeDescriber{err: errors.New("boom")}
	r, err := NewVersionResolver(desc, nil)
	require.NoError(t, err)

	_, err = r.Resolve(context.Background(), "acme/model")
	assert.Error(t, err)

	_, err = r.Resolve(context.Background(), "  ")
	assert.Error(t, err)

	empty := &fakeDescriber{versions: map[string]string{}}
	r2, err := NewVersionResolver(empty, nil)
	require.NoError(t, err)
	_, err = r2.Resolve(context.Background(), "acme/unknown")
	assert.Error(t, err)
}
