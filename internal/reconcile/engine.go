// Package reconcile owns the state machine for a single provider job: it
// resolves the job's current state from poll responses or pushed webhooks and
// persists every observation through the idempotent job store.
package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"genserver/internal/domain"
	"genserver/internal/infra"
	"genserver/internal/metrics"
	"genserver/internal/provider"
)

// Config tunes the poll loop. Providers with slower inference get a larger
// attempt budget from configuration.
type Config struct {
	PollAttempts int
	PollInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.PollAttempts <= 0 {
		c.PollAttempts = 40
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 3 * time.Second
	}
	return c
}

// Engine drives submission and reconciliation for provider jobs.
type Engine struct {
	jobs      domain.JobRepository
	extractor provider.Extractor
	cfg       Config
	logger    infra.Logger
	metrics   *metrics.Metrics
}

// NewEngine builds an engine over the given store. extractor may be nil, in
// which case the generic tree extractor is used.
func NewEngine(jobs domain.JobRepository, extractor provider.Extractor, cfg Config, logger infra.Logger, m *metrics.Metrics) *Engine {
	if extractor == nil {
		extractor = provider.TreeExtractor{}
	}
	return &Engine{
		jobs:      jobs,
		extractor: extractor,
		cfg:       cfg.withDefaults(),
		logger:    logger,
		metrics:   m,
	}
}

// Submit sends the normalized input to the adapter and records the accepted
// job. It returns as soon as the provider has assigned an id.
func (e *Engine) Submit(ctx context.Context, adapter provider.Adapter, in provider.Input, callerID string) (*domain.Job, error) {
	handle, err := adapter.Submit(ctx, in)
	if err != nil {
		return nil, err
	}
	params, _ := json.Marshal(in.Params)
	job := &domain.Job{
		ID:       handle.JobID,
		CallerID: callerID,
		Kind:     in.Kind,
		Provider: handle.Provider,
		Version:  handle.Version,
		Status:   domain.JobStatusQueued,
		Params:   params,
	}
	if err := e.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("persist accepted job %s: %w", handle.JobID, err)
	}
	if e.metrics != nil {
		e.metrics.JobsSubmitted.WithLabelValues(string(in.Kind), handle.Provider).Inc()
	}
	e.logger.Info().
		Str("job_id", handle.JobID).
		Str("kind", string(in.Kind)).
		Str("version", handle.Version).
		Msg("reconcile: job submitted")
	return job, nil
}

// Observe runs one reconciliation pass: fetch the provider's view, normalize
// it, and merge it into the store. Safe to call at any time, from any caller;
// late or duplicate observations converge on the stored record.
func (e *Engine) Observe(ctx context.Context, adapter provider.Adapter, jobID string) (*domain.Job, error) {
	snap, err := adapter.FetchStatus(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("fetch status for %s: %w", jobID, err)
	}
	return e.apply(ctx, jobID, snap)
}

// Await polls until the job reaches a terminal state or the attempt budget
// runs out. Budget exhaustion returns ErrReconcileTimeout and leaves the
// record non-terminal so a later poll or webhook can still finish it; a
// timeout is not a provider failure.
func (e *Engine) Await(ctx context.Context, adapter provider.Adapter, jobID string) (*domain.Job, error) {
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for attempt := 1; attempt <= e.cfg.PollAttempts; attempt++ {
		job, err := e.Observe(ctx, adapter, jobID)
		if err != nil {
			// Transient fetch errors consume an attempt but do not abort the
			// loop; the provider may recover within the budget.
			e.logger.Warn().Err(err).Str("job_id", jobID).Int("attempt", attempt).Msg("reconcile: poll failed")
		} else if job.Status.IsTerminal() {
			if e.metrics != nil {
				e.metrics.PollAttempts.Observe(float64(attempt))
			}
			return job, terminalError(job)
		}
		if attempt == e.cfg.PollAttempts {
			// The budget is spent; do not wait out another interval.
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
	e.logger.Warn().
		Str("job_id", jobID).
		Int("attempts", e.cfg.PollAttempts).
		Dur("interval", e.cfg.PollInterval).
		Msg("reconcile: poll budget exhausted")
	return nil, fmt.Errorf("job %s after %d attempts: %w", jobID, e.cfg.PollAttempts, domain.ErrReconcileTimeout)
}

// WebhookPayload is the provider push format accepted by ApplyWebhook.
type WebhookPayload struct {
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  string          `json:"error"`
}

// ApplyWebhook folds a pushed terminal-state payload into the store. It uses
// the same merge path as polling, so whichever arrives first wins and the
// later arrival is a no-op.
func (e *Engine) ApplyWebhook(ctx context.Context, jobID string, payload WebhookPayload) (*domain.Job, error) {
	status, ok := domain.ParseJobStatus(payload.Status)
	if !ok {
		return nil, fmt.Errorf("webhook for %s: unknown status %q", jobID, payload.Status)
	}
	return e.apply(ctx, jobID, provider.StatusSnapshot{
		Status: status,
		Raw:    payload.Output,
		Error:  payload.Error,
	})
}

// apply normalizes a snapshot into a patch and merges it.
func (e *Engine) apply(ctx context.Context, jobID string, snap provider.StatusSnapshot) (*domain.Job, error) {
	patch, err := e.normalize(snap)
	if err != nil {
		return nil, err
	}
	job, err := e.jobs.Merge(ctx, jobID, patch)
	if err != nil {
		return nil, fmt.Errorf("merge job %s: %w", jobID, err)
	}
	if e.metrics != nil && patch.Status.IsTerminal() && job.Status == patch.Status {
		e.metrics.ReconcileResults.WithLabelValues(string(job.Status)).Inc()
	}
	return job, nil
}

// normalize turns a raw provider snapshot into a merge patch, classifying
// outputs and mapping failures onto the error taxonomy.
func (e *Engine) normalize(snap provider.StatusSnapshot) (domain.JobPatch, error) {
	switch {
	case snap.Status == domain.JobStatusSucceeded:
		ex, err := e.extractor.Extract(snap.Raw)
		if err != nil {
			return domain.JobPatch{}, err
		}
		if len(ex.Media) == 0 {
			// The provider claimed success but returned nothing usable.
			msg := "provider reported success without any primary media"
			return domain.JobPatch{
				Status:       domain.JobStatusFailed,
				ErrorKind:    domain.ErrorKindEmpty,
				ErrorMessage: &msg,
			}, nil
		}
		return domain.JobPatch{
			Status:   domain.JobStatusSucceeded,
			Outputs:  ex.Outputs(),
			Duration: ex.Duration,
		}, nil
	case snap.Status == domain.JobStatusFailed:
		msg := snap.Error
		if msg == "" {
			msg = "provider reported failure without detail"
		}
		return domain.JobPatch{
			Status:       domain.JobStatusFailed,
			ErrorKind:    domain.ErrorKindProvider,
			ErrorMessage: &msg,
		}, nil
	case snap.Status == domain.JobStatusCanceled:
		msg := snap.Error
		if msg == "" {
			msg = "canceled by provider"
		}
		return domain.JobPatch{
			Status:       domain.JobStatusCanceled,
			ErrorKind:    domain.ErrorKindCanceled,
			ErrorMessage: &msg,
		}, nil
	default:
		return domain.JobPatch{Status: snap.Status}, nil
	}
}

// terminalError maps a terminal record onto the caller-facing error taxonomy
// so "provider said no" stays distinguishable from "we gave up waiting".
func terminalError(job *domain.Job) error {
	switch job.ErrorKind {
	case domain.ErrorKindProvider:
		return fmt.Errorf("%s: %w", job.ErrorMessage, domain.ErrProviderFailed)
	case domain.ErrorKindCanceled:
		return fmt.Errorf("%s: %w", job.ErrorMessage, domain.ErrProviderCanceled)
	case domain.ErrorKindEmpty:
		return fmt.Errorf("%s: %w", job.ErrorMessage, domain.ErrEmptyResult)
	default:
		return nil
	}
}
