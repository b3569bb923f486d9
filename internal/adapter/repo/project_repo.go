package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"genserver/internal/domain"
)

// ProjectRepositoryPG implements domain.ProjectRepository.
type ProjectRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewProjectRepository creates a project repository backed by PostgreSQL.
func NewProjectRepository(pool *pgxpool.Pool) *ProjectRepositoryPG {
	return &ProjectRepositoryPG{pool: pool}
}

// Create inserts a new refinement project.
func (r *ProjectRepositoryPG) Create(ctx context.Context, project *domain.RefinementProject) error {
	notes, events, err := encodeProjectJSON(project)
	if err != nil {
		return err
	}
	query := `
INSERT INTO projects (id, caller_id, brief, iteration, max_iterations, status, last_score, notes, artifact_key, fallback_used, events)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11);
`
	_, err = r.pool.Exec(ctx, query,
		project.ID,
		project.CallerID,
		project.Brief,
		project.Iteration,
		project.MaxIterations,
		project.Status,
		project.LastScore,
		notes,
		project.ArtifactKey,
		project.FallbackUsed,
		events,
	)
	return err
}

// Save writes the controller's view of the project back. The controller is
// the only writer per project, so this is a plain last-write-wins update.
func (r *ProjectRepositoryPG) Save(ctx context.Context, project *domain.RefinementProject) error {
	notes, events, err := encodeProjectJSON(project)
	if err != nil {
		return err
	}
	query := `
UPDATE projects
SET iteration     = $2,
    status        = $3,
    last_score    = $4,
    notes         = $5,
    artifact_key  = $6,
    fallback_used = $7,
    events        = $8,
    updated_at    = NOW()
WHERE id = $1;
`
	tag, err := r.pool.Exec(ctx, query,
		project.ID,
		project.Iteration,
		project.Status,
		project.LastScore,
		notes,
		project.ArtifactKey,
		project.FallbackUsed,
		events,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetByID fetches a project by its identifier.
func (r *ProjectRepositoryPG) GetByID(ctx context.Context, projectID string) (*domain.RefinementProject, error) {
	query := `
SELECT id, caller_id, brief, iteration, max_iterations, status, last_score, notes, artifact_key, fallback_used, events, created_at, updated_at
FROM projects
WHERE id = $1;
`
	row := r.pool.QueryRow(ctx, query, projectID)
	var project domain.RefinementProject
	var notes, events []byte
	if err := row.Scan(
		&project.ID,
		&project.CallerID,
		&project.Brief,
		&project.Iteration,
		&project.MaxIterations,
		&project.Status,
		&project.LastScore,
		&notes,
		&project.ArtifactKey,
		&project.FallbackUsed,
		&events,
		&project.CreatedAt,
		&project.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if len(notes) > 0 {
		if err := json.Unmarshal(notes, &project.Notes); err != nil {
			return nil, fmt.Errorf("decode notes for %s: %w", projectID, err)
		}
	}
	if len(events) > 0 {
		if err := json.Unmarshal(events, &project.Events); err != nil {
			return nil, fmt.Errorf("decode events for %s: %w", projectID, err)
		}
	}
	return &project, nil
}

func encodeProjectJSON(project *domain.RefinementProject) (notes, events []byte, err error) {
	notes, err = json.Marshal(project.Notes)
	if err != nil {
		return nil, nil, fmt.Errorf("encode notes: %w", err)
	}
	events, err = json.Marshal(project.Events)
	if err != nil {
		return nil, nil, fmt.Errorf("encode events: %w", err)
	}
	return notes, events, nil
}

var _ domain.ProjectRepository = (*ProjectRepositoryPG)(nil)
