package domain

import (
	"context"
	"time"
)

// JobRepository defines idempotent persistence for job records. Merge must be
// transactional per job id so concurrent reconciliation events cannot
// interleave into a corrupted partial state.
type JobRepository interface {
	Create(ctx context.Context, job *Job) error
	// Merge folds the patch into the stored record and returns the merged
	// view. A patch regressing a terminal status is dropped without error;
	// implementations log the rejection.
	Merge(ctx context.Context, jobID string, patch JobPatch) (*Job, error)
	GetByID(ctx context.Context, jobID string) (*Job, error)
	// ListStale returns non-terminal jobs untouched since the cutoff, for
	// the background reconciliation sweep.
	ListStale(ctx context.Context, cutoff time.Time, limit int) ([]Job, error)
}

// ProjectRepository persists refinement projects.
type ProjectRepository interface {
	Create(ctx context.Context, project *RefinementProject) error
	Save(ctx context.Context, project *RefinementProject) error
	GetByID(ctx context.Context, projectID string) (*RefinementProject, error)
}

// CredentialRepository resolves provider API tokens.
type CredentialRepository interface {
	Token(ctx context.Context, provider string) (string, error)
}

// KeyRepository resolves API key hashes to caller identities.
type KeyRepository interface {
	Resolve(ctx context.Context, keyHash string) (*CallerIdentity, error)
}
