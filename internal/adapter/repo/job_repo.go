// Package repo implements the domain repositories on PostgreSQL.
package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"genserver/internal/domain"
	"genserver/internal/infra"
)

// JobRepositoryPG implements domain.JobRepository.
type JobRepositoryPG struct {
	pool   *pgxpool.Pool
	logger infra.Logger
}

// NewJobRepository creates a job repository backed by PostgreSQL.
func NewJobRepository(pool *pgxpool.Pool, logger infra.Logger) *JobRepositoryPG {
	return &JobRepositoryPG{pool: pool, logger: logger}
}

// Create inserts a freshly accepted job record.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.Job) error {
	query := `
INSERT INTO jobs (id, caller_id, kind, provider, version, status, params)
VALUES ($1, $2, $3, $4, $5, $6, $7);
`
	_, err := r.pool.Exec(ctx, query,
		job.ID,
		job.CallerID,
		job.Kind,
		job.Provider,
		job.Version,
		job.Status,
		nullableBytes(job.Params),
	)
	return err
}

// Merge folds a patch into the stored record inside a single statement, so
// two concurrent reconciliation events cannot interleave. The WHERE guard on
// the upsert drops any patch that would regress a terminal status; the
// current row is returned either way.
func (r *JobRepositoryPG) Merge(ctx context.Context, jobID string, patch domain.JobPatch) (*domain.Job, error) {
	var outputs []byte
	if len(patch.Outputs) > 0 {
		var err error
		outputs, err = json.Marshal(patch.Outputs)
		if err != nil {
			return nil, fmt.Errorf("encode outputs: %w", err)
		}
	}
	query := `
INSERT INTO jobs (id, status, outputs, duration, error_kind, error_message)
VALUES ($1, COALESCE(NULLIF($2, ''), 'queued'), $3, $4, NULLIF($5, ''), COALESCE($6, ''))
ON CONFLICT (id) DO UPDATE SET
    status        = COALESCE(NULLIF($2, ''), jobs.status),
    outputs       = COALESCE(EXCLUDED.outputs, jobs.outputs),
    duration      = COALESCE(EXCLUDED.duration, jobs.duration),
    error_kind    = COALESCE(EXCLUDED.error_kind, jobs.error_kind),
    error_message = COALESCE($6, jobs.error_message),
    updated_at    = NOW()
WHERE jobs.status NOT IN ('succeeded', 'failed', 'canceled')
   OR jobs.status = $2;
`
	tag, err := r.pool.Exec(ctx, query,
		jobID,
		string(patch.Status),
		outputs,
		patch.Duration,
		string(patch.ErrorKind),
		patch.ErrorMessage,
	)
	if err != nil {
		return nil, fmt.Errorf("merge job %s: %w", jobID, err)
	}
	if tag.RowsAffected() == 0 {
		r.logger.Warn().
			Str("job_id", jobID).
			Str("incoming", string(patch.Status)).
			Msg("repo: dropping stale status transition")
	}
	return r.GetByID(ctx, jobID)
}

// GetByID fetches a job by its identifier.
func (r *JobRepositoryPG) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	query := `
SELECT id, caller_id, kind, provider, version, status, params, outputs, duration, error_kind, error_message, created_at, updated_at
FROM jobs
WHERE id = $1;
`
	return scanJob(r.pool.QueryRow(ctx, query, jobID))
}

// ListStale returns non-terminal jobs untouched since the cutoff.
func (r *JobRepositoryPG) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]domain.Job, error) {
	query := `
SELECT id, caller_id, kind, provider, version, status, params, outputs, duration, error_kind, error_message, created_at, updated_at
FROM jobs
WHERE status NOT IN ('succeeded', 'failed', 'canceled')
  AND updated_at < $1
ORDER BY updated_at ASC
LIMIT $2;
`
	rows, err := r.pool.Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var jobs []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var job domain.Job
	var outputs []byte
	var errorKind *string
	if err := row.Scan(
		&job.ID,
		&job.CallerID,
		&job.Kind,
		&job.Provider,
		&job.Version,
		&job.Status,
		&job.Params,
		&outputs,
		&job.Duration,
		&errorKind,
		&job.ErrorMessage,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if len(outputs) > 0 {
		if err := json.Unmarshal(outputs, &job.Outputs); err != nil {
			return nil, fmt.Errorf("decode outputs for %s: %w", job.ID, err)
		}
	}
	if errorKind != nil {
		job.ErrorKind = domain.ErrorKind(*errorKind)
	}
	return &job, nil
}

func nullableBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}

var _ domain.JobRepository = (*JobRepositoryPG)(nil)
