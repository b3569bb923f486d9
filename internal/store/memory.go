// Package store provides in-process implementations of the domain
// repositories, used in development mode and tests where Postgres is not
// available.
package store

import (
	"context"
	"sync"
	"time"

	"genserver/internal/domain"
	"genserver/internal/infra"
)

// MemoryJobStore keeps job records in a map. Merges are serialized per store,
// which satisfies the per-id transactionality the reconciliation engine
// relies on.
type MemoryJobStore struct {
	mu     sync.Mutex
	jobs   map[string]*domain.Job
	logger infra.Logger
	now    func() time.Time
}

// NewMemoryJobStore builds an empty job store.
func NewMemoryJobStore(logger infra.Logger) *MemoryJobStore {
	return &MemoryJobStore{
		jobs:   make(map[string]*domain.Job),
		logger: logger,
		now:    time.Now,
	}
}

// Create implements domain.JobRepository.
func (s *MemoryJobStore) Create(_ context.Context, job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	stored := *job
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	s.jobs[stored.ID] = &stored
	return nil
}

// Merge implements domain.JobRepository. A patch that would regress a
// terminal status is logged and dropped; the stored record wins.
func (s *MemoryJobStore) Merge(_ context.Context, jobID string, patch domain.JobPatch) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		now := s.now()
		job = &domain.Job{ID: jobID, Status: domain.JobStatusQueued, CreatedAt: now}
		s.jobs[jobID] = job
	}
	if err := job.ApplyPatch(patch, s.now()); err != nil {
		s.logger.Warn().
			Str("job_id", jobID).
			Str("stored", string(job.Status)).
			Str("incoming", string(patch.Status)).
			Msg("store: dropping stale status transition")
		copied := *job
		return &copied, nil
	}
	copied := *job
	return &copied, nil
}

// GetByID implements domain.JobRepository.
func (s *MemoryJobStore) GetByID(_ context.Context, jobID string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *job
	return &copied, nil
}

// ListStale implements domain.JobRepository.
func (s *MemoryJobStore) ListStale(_ context.Context, cutoff time.Time, limit int) ([]domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Job
	for _, job := range s.jobs {
		if job.Status.IsTerminal() || job.UpdatedAt.After(cutoff) {
			continue
		}
		out = append(out, *job)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// MemoryProjectStore keeps refinement projects in a map.
type MemoryProjectStore struct {
	mu       sync.Mutex
	projects map[string]*domain.RefinementProject
}

// NewMemoryProjectStore builds an empty project store.
func NewMemoryProjectStore() *MemoryProjectStore {
	return &MemoryProjectStore{projects: make(map[string]*domain.RefinementProject)}
}

// Create implements domain.ProjectRepository.
func (s *MemoryProjectStore) Create(_ context.Context, project *domain.RefinementProject) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := cloneProject(project)
	s.projects[project.ID] = copied
	return nil
}

// Save implements domain.ProjectRepository.
func (s *MemoryProjectStore) Save(_ context.Context, project *domain.RefinementProject) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[project.ID]; !ok {
		return domain.ErrNotFound
	}
	s.projects[project.ID] = cloneProject(project)
	return nil
}

// GetByID implements domain.ProjectRepository.
func (s *MemoryProjectStore) GetByID(_ context.Context, projectID string) (*domain.RefinementProject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	project, ok := s.projects[projectID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneProject(project), nil
}

func cloneProject(p *domain.RefinementProject) *domain.RefinementProject {
	copied := *p
	copied.Notes = append([]string(nil), p.Notes...)
	copied.Events = append([]domain.ProjectEvent(nil), p.Events...)
	return &copied
}

var (
	_ domain.JobRepository     = (*MemoryJobStore)(nil)
	_ domain.ProjectRepository = (*MemoryProjectStore)(nil)
)
