package reconcile

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"genserver/internal/domain"
	"genserver/internal/provider"
	"genserver/internal/store"
)

// scriptedAdapter returns queued snapshots until the scripted sequence runs
// out, then repeats the final one.
type scriptedAdapter struct {
	mu    sync.Mutex
	snaps []provider.StatusSnapshot
	calls int
	subID string
}

func (a *scriptedAdapter) Name() string                                   { return "scripted" }
func (a *scriptedAdapter) Kind() domain.ResourceKind                      { return domain.ResourceVideo }
func (a *scriptedAdapter) ResolveVersion(context.Context) (string, error) { return "v-test", nil }

func (a *scriptedAdapter) Submit(context.Context, provider.Input) (provider.JobHandle, error) {
	id := a.subID
	if id == "" {
		id = "job-sub"
	}
	return provider.JobHandle{Provider: "scripted", JobID: id, Version: "v-test"}, nil
}

func (a *scriptedAdapter) FetchStatus(context.Context, string) (provider.StatusSnapshot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	i := a.calls
	if i >= len(a.snaps) {
		i = len(a.snaps) - 1
	}
	a.calls++
	return a.snaps[i], nil
}

func newEngine(t *testing.T, jobs domain.JobRepository, cfg Config) *Engine {
	t.Helper()
	return NewEngine(jobs, nil, cfg, zerolog.New(io.Discard), nil)
}

func testStore() *store.MemoryJobStore {
	return store.NewMemoryJobStore(zerolog.New(io.Discard))
}

func TestSubmitPersistsQueuedRecord(t *testing.T) {
	jobs := testStore()
	e := newEngine(t, jobs, Config{})
	adapter := &scriptedAdapter{subID: "pred-1"}

	job, err := e.Submit(context.Background(), adapter, provider.Input{
		Kind:   domain.ResourceVideo,
		Prompt: "a drone shot",
		Params: map[string]any{"duration": 6.0},
	}, "caller-1")
	require.NoError(t, err)
	assert.Equal(t, "pred-1", job.ID)
	assert.Equal(t, domain.JobStatusQueued, job.Status)

	stored, err := jobs.GetByID(context.Background(), "pred-1")
	require.NoError(t, err)
	assert.Equal(t, "caller-1", stored.CallerID)
	assert.Equal(t, "v-test", stored.Version)
}

func TestAwaitStopsOnSuccess(t *testing.T) {
	jobs := testStore()
	e := newEngine(t, jobs, Config{PollAttempts: 10, PollInterval: time.Millisecond})
	adapter := &scriptedAdapter{snaps: []provider.StatusSnapshot{
		{Status: domain.JobStatusStarting},
		{Status: domain.JobStatusProcessing},
		{Status: domain.JobStatusSucceeded, Raw: json.RawMessage(`{"video":"https://x/a.mp4","duration":6}`)},
	}}

	job, err := e.Await(context.Background(), adapter, "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusSucceeded, job.Status)
	require.Len(t, job.PrimaryOutputs(), 1)
	assert.Equal(t, "https://x/a.mp4", job.PrimaryOutputs()[0].URL)
	require.NotNil(t, job.Duration)
	assert.Equal(t, 6.0, *job.Duration)
	assert.Equal(t, 3, adapter.calls)
}

func TestAwaitTimeoutDistinctFromFailure(t *testing.T) {
	jobs := testStore()
	e := newEngine(t, jobs, Config{PollAttempts: 3, PollInterval: time.Millisecond})
	adapter := &scriptedAdapter{snaps: []provider.StatusSnapshot{{Status: domain.JobStatusProcessing}}}

	_, err := e.Await(context.Background(), adapter, "job-2")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrReconcileTimeout)
	assert.NotErrorIs(t, err, domain.ErrProviderFailed)

	// The record stays non-terminal so a later event can still finish it.
	job, err := jobs.GetByID(context.Background(), "job-2")
	require.NoError(t, err)
	assert.False(t, job.Status.IsTerminal())
}

func TestAwaitReturnsWithoutTrailingWait(t *testing.T) {
	jobs := testStore()
	// With an hour-long interval, any wait after the last attempt would hang
	// the test well past its deadline.
	e := newEngine(t, jobs, Config{PollAttempts: 1, PollInterval: time.Hour})
	adapter := &scriptedAdapter{snaps: []provider.StatusSnapshot{{Status: domain.JobStatusProcessing}}}

	start := time.Now()
	_, err := e.Await(context.Background(), adapter, "job-9")
	assert.ErrorIs(t, err, domain.ErrReconcileTimeout)
	assert.Less(t, time.Since(start), time.Second)
}

func TestAwaitProviderFailure(t *testing.T) {
	jobs := testStore()
	e := newEngine(t, jobs, Config{PollAttempts: 5, PollInterval: time.Millisecond})
	adapter := &scriptedAdapter{snaps: []provider.StatusSnapshot{
		{Status: domain.JobStatusFailed, Error: "NSFW content detected"},
	}}

	job, err := e.Await(context.Background(), adapter, "job-3")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrProviderFailed)
	require.NotNil(t, job)
	assert.Equal(t, domain.JobStatusFailed, job.Status)
	assert.Equal(t, "NSFW content detected", job.ErrorMessage)
}

func TestSuccessWithoutMediaIsFailure(t *testing.T) {
	jobs := testStore()
	e := newEngine(t, jobs, Config{PollAttempts: 2, PollInterval: time.Millisecond})
	adapter := &scriptedAdapter{snaps: []provider.StatusSnapshot{
		{Status: domain.JobStatusSucceeded, Raw: json.RawMessage(`{"note":"all done"}`)},
	}}

	job, err := e.Await(context.Background(), adapter, "job-4")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrEmptyResult)
	require.NotNil(t, job)
	assert.Equal(t, domain.JobStatusFailed, job.Status)
	assert.Equal(t, domain.ErrorKindEmpty, job.ErrorKind)
}

func TestWebhookThenLatePollDoesNotRegress(t *testing.T) {
	jobs := testStore()
	e := newEngine(t, jobs, Config{})
	ctx := context.Background()

	job, err := e.ApplyWebhook(ctx, "job-5", WebhookPayload{
		Status: "succeeded",
		Output: json.RawMessage(`["https://x/a.mp4"]`),
	})
	require.NoError(t, err)
	require.Equal(t, domain.JobStatusSucceeded, job.Status)

	// A slow poll response arrives afterwards still claiming processing.
	adapter := &scriptedAdapter{snaps: []provider.StatusSnapshot{{Status: domain.JobStatusProcessing}}}
	job, err = e.Observe(ctx, adapter, "job-5")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusSucceeded, job.Status)
	assert.Len(t, job.PrimaryOutputs(), 1)
}

func TestWebhookToleratesStatusSpelling(t *testing.T) {
	jobs := testStore()
	e := newEngine(t, jobs, Config{})

	// Some providers push "cancelled"; it converges the same as "canceled".
	job, err := e.ApplyWebhook(context.Background(), "job-8", WebhookPayload{Status: "cancelled"})
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCanceled, job.Status)
}

func TestWebhookUnknownStatusRejected(t *testing.T) {
	jobs := testStore()
	e := newEngine(t, jobs, Config{})
	_, err := e.ApplyWebhook(context.Background(), "job-6", WebhookPayload{Status: "exploded"})
	require.Error(t, err)

	_, err = jobs.GetByID(context.Background(), "job-6")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestWebhookFailureFallbackMessage(t *testing.T) {
	jobs := testStore()
	e := newEngine(t, jobs, Config{})
	job, err := e.ApplyWebhook(context.Background(), "job-7", WebhookPayload{Status: "failed"})
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, job.Status)
	assert.NotEmpty(t, job.ErrorMessage)
}

func TestManagerTracksToTerminal(t *testing.T) {
	jobs := testStore()
	e := newEngine(t, jobs, Config{PollAttempts: 10, PollInterval: time.Millisecond})
	m := NewManager(e, zerolog.New(io.Discard))
	defer m.Close()

	adapter := &scriptedAdapter{snaps: []provider.StatusSnapshot{
		{Status: domain.JobStatusProcessing},
		{Status: domain.JobStatusSucceeded, Raw: json.RawMessage(`["https://x/b.mp4"]`)},
	}}
	m.Track(adapter, "job-8")
	m.Track(adapter, "job-8") // duplicate is a no-op

	require.Eventually(t, func() bool {
		job, err := jobs.GetByID(context.Background(), "job-8")
		return err == nil && job.Status == domain.JobStatusSucceeded
	}, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool { return m.Inflight() == 0 }, time.Second, 5*time.Millisecond)
}
