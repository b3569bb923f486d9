package refine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"genserver/internal/domain"
	"genserver/internal/infra"
	"genserver/internal/storage"
)

// Controller drives the generate, score, decide loop for one refinement
// project at a time. Every transition lands in the project's append-only
// event log; progress is derived from status and never stored.
type Controller struct {
	projects domain.ProjectRepository
	planner  Planner
	fallback Planner
	builder  Builder
	reviewer Reviewer
	store    *storage.FileStore

	threshold     float64
	maxIterations int
	logger        infra.Logger
	now           func() time.Time
}

// Options configures the controller.
type Options struct {
	Projects domain.ProjectRepository
	Planner  Planner
	// Fallback is used when Planner or the builder fails; leaving it nil
	// disables degraded-mode planning and surfaces the failure instead.
	Fallback      Planner
	Builder       Builder
	Reviewer      Reviewer
	Store         *storage.FileStore
	Threshold     float64
	MaxIterations int
	Logger        infra.Logger
}

// NewController wires the loop.
func NewController(opts Options) (*Controller, error) {
	if opts.Projects == nil || opts.Planner == nil || opts.Builder == nil || opts.Reviewer == nil {
		return nil, fmt.Errorf("refine: projects, planner, builder, and reviewer are required")
	}
	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = 8
	}
	maxIter := opts.MaxIterations
	if maxIter <= 0 {
		maxIter = 3
	}
	return &Controller{
		projects:      opts.Projects,
		planner:       opts.Planner,
		fallback:      opts.Fallback,
		builder:       opts.Builder,
		reviewer:      opts.Reviewer,
		store:         opts.Store,
		threshold:     threshold,
		maxIterations: maxIter,
		logger:        opts.Logger,
		now:           time.Now,
	}, nil
}

// Start creates a project ready for its first iteration.
func (c *Controller) Start(ctx context.Context, callerID, brief string, maxIterations int) (*domain.RefinementProject, error) {
	if brief == "" {
		return nil, fmt.Errorf("brief is required")
	}
	if maxIterations <= 0 || maxIterations > c.maxIterations {
		maxIterations = c.maxIterations
	}
	now := c.now()
	project := &domain.RefinementProject{
		ID:            uuid.NewString(),
		CallerID:      callerID,
		Brief:         brief,
		Iteration:     1,
		MaxIterations: maxIterations,
		CreatedAt:     now,
	}
	project.Advance(domain.ProjectBlueprintPending, domain.EventInfo, "project created", now)
	if err := c.projects.Create(ctx, project); err != nil {
		return nil, fmt.Errorf("persist project: %w", err)
	}
	return project, nil
}

// Advance runs one full iteration: plan, build, review, decide. Calling it on
// a terminal project returns the project unchanged.
func (c *Controller) Advance(ctx context.Context, projectID string) (*domain.RefinementProject, error) {
	project, err := c.projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project.Status.IsTerminal() {
		return project, nil
	}

	bp, err := c.plan(ctx, project)
	if err != nil {
		return c.fail(ctx, project, fmt.Errorf("plan iteration %d: %w", project.Iteration, err))
	}
	project.Advance(domain.ProjectBlueprintReady, domain.EventInfo,
		fmt.Sprintf("blueprint ready with %d sections", len(bp.Sections)), c.now())

	project.Advance(domain.ProjectAssetsGenerating, domain.EventInfo, "building artifacts", c.now())
	art, err := c.builder.Build(ctx, bp)
	if err != nil {
		art, err = c.buildFallback(ctx, project, err)
		if err != nil {
			return c.fail(ctx, project, err)
		}
	}
	if key, err := c.persistArtifact(ctx, project, art); err != nil {
		c.logger.Warn().Err(err).Str("project_id", project.ID).Msg("refine: artifact persistence failed")
	} else {
		project.ArtifactKey = key
	}
	project.Advance(domain.ProjectAssetsReady, domain.EventInfo, "artifacts built", c.now())

	project.Advance(domain.ProjectReviewing, domain.EventInfo, "scoring against rubric", c.now())
	review, err := c.reviewer.Review(ctx, bp, art)
	if err != nil {
		return c.fail(ctx, project, fmt.Errorf("review iteration %d: %w", project.Iteration, err))
	}
	score := review.Score
	project.LastScore = &score
	project.Advance(domain.ProjectReviewDone, domain.EventInfo,
		fmt.Sprintf("iteration %d scored %.1f", project.Iteration, score), c.now())

	c.decide(project, review)
	if err := c.projects.Save(ctx, project); err != nil {
		return nil, fmt.Errorf("persist project %s: %w", projectID, err)
	}
	return project, nil
}

// decide applies the quality gate: accept on threshold or exhausted budget,
// otherwise loop with the reviewer's notes folded into the next pass.
func (c *Controller) decide(project *domain.RefinementProject, review Review) {
	now := c.now()
	switch {
	case review.Score >= c.threshold:
		project.Advance(domain.ProjectCompleted, domain.EventInfo,
			fmt.Sprintf("score %.1f met threshold %.1f", review.Score, c.threshold), now)
	case project.Iteration >= project.MaxIterations:
		project.Advance(domain.ProjectCompleted, domain.EventWarn,
			fmt.Sprintf("iteration budget %d exhausted at score %.1f", project.MaxIterations, review.Score), now)
	default:
		project.Iteration++
		project.Notes = review.Notes
		project.Advance(domain.ProjectBlueprintPending, domain.EventInfo,
			fmt.Sprintf("retrying as iteration %d of %d", project.Iteration, project.MaxIterations), now)
	}
}

func (c *Controller) plan(ctx context.Context, project *domain.RefinementProject) (*Blueprint, error) {
	bp, err := c.planner.Plan(ctx, project.Brief, project.Notes)
	if err == nil {
		return bp, nil
	}
	if c.fallback == nil {
		return nil, err
	}
	c.logger.Warn().Err(err).Str("project_id", project.ID).Msg("refine: planner failed, using template fallback")
	project.FallbackUsed = true
	project.Advance(project.Status, domain.EventWarn, "planner unavailable, template fallback in use", c.now())
	return c.fallback.Plan(ctx, project.Brief, project.Notes)
}

func (c *Controller) buildFallback(ctx context.Context, project *domain.RefinementProject, cause error) (*Artifact, error) {
	if c.fallback == nil {
		return nil, fmt.Errorf("build iteration %d: %w", project.Iteration, cause)
	}
	c.logger.Warn().Err(cause).Str("project_id", project.ID).Msg("refine: build failed, using template fallback")
	project.FallbackUsed = true
	project.Advance(project.Status, domain.EventWarn, "builder unavailable, template fallback in use", c.now())
	bp, err := c.fallback.Plan(ctx, project.Brief, project.Notes)
	if err != nil {
		return nil, fmt.Errorf("fallback plan: %w", err)
	}
	builder := NewSiteBuilder(nil, nil, c.logger)
	return builder.Build(ctx, bp)
}

func (c *Controller) persistArtifact(ctx context.Context, project *domain.RefinementProject, art *Artifact) (string, error) {
	if c.store == nil || art == nil {
		return "", nil
	}
	prefix := fmt.Sprintf("projects/%s/iter-%d", project.ID, project.Iteration)
	return c.store.WriteBundle(ctx, prefix, art.Files)
}

func (c *Controller) fail(ctx context.Context, project *domain.RefinementProject, cause error) (*domain.RefinementProject, error) {
	c.logger.Error().Err(cause).Str("project_id", project.ID).Msg("refine: iteration failed")
	project.Advance(domain.ProjectFailed, domain.EventErr, cause.Error(), c.now())
	if err := c.projects.Save(ctx, project); err != nil {
		return nil, fmt.Errorf("persist failed project %s: %w", project.ID, err)
	}
	return project, cause
}
