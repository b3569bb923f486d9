package reconcile

import (
	"context"
	"errors"
	"sync"

	"genserver/internal/domain"
	"genserver/internal/infra"
	"genserver/internal/provider"
)

// Manager runs one background reconciler per submitted job so the submit
// handler can return immediately. The job store is the single source of
// truth: the manager only feeds it, status reads never depend on it.
type Manager struct {
	engine *Engine
	logger infra.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewManager builds a manager over the engine. Close releases its workers.
func NewManager(engine *Engine, logger infra.Logger) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		engine:   engine,
		logger:   logger,
		inflight: make(map[string]struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Track starts a background reconciler for the job unless one is already
// running. Duplicate tracking of the same id is a no-op.
func (m *Manager) Track(adapter provider.Adapter, jobID string) {
	m.mu.Lock()
	if _, ok := m.inflight[jobID]; ok {
		m.mu.Unlock()
		return
	}
	m.inflight[jobID] = struct{}{}
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			m.mu.Lock()
			delete(m.inflight, jobID)
			m.mu.Unlock()
		}()
		_, err := m.engine.Await(m.ctx, adapter, jobID)
		switch {
		case err == nil:
		case errors.Is(err, context.Canceled):
		case errors.Is(err, domain.ErrReconcileTimeout):
			// The record stays non-terminal; a webhook, a caller poll, or
			// the sweep worker can still finish it.
			m.logger.Warn().Str("job_id", jobID).Msg("reconcile: background poll gave up")
		default:
			m.logger.Info().Err(err).Str("job_id", jobID).Msg("reconcile: job finished unsuccessfully")
		}
	}()
}

// Inflight reports how many background reconcilers are running.
func (m *Manager) Inflight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inflight)
}

// Close stops all background reconcilers and waits for them to exit.
func (m *Manager) Close() {
	m.cancel()
	m.wg.Wait()
}
