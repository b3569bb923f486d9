package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/time/rate"

	"genserver/internal/adapter/repo"
	"genserver/internal/domain"
	"genserver/internal/infra"
	"genserver/internal/metrics"
	"genserver/internal/provider"
	"genserver/internal/provider/replicate"
	"genserver/internal/reconcile"
)

const (
	sweepInterval = 30 * time.Second
	staleAfter    = 2 * time.Minute
	sweepBatch    = 50
)

// The sweeper converges jobs whose webhook never arrived and whose API-side
// poll budget ran out: anything non-terminal and untouched past the cutoff
// gets one reconciliation pass per sweep.
type sweeper struct {
	jobs     domain.JobRepository
	engine   *reconcile.Engine
	adapters map[domain.ResourceKind]provider.Adapter
	logger   infra.Logger
}

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	if cfg.DatabaseURL == "" {
		logger.Fatal().Msg("worker: DATABASE_URL is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()

	jobs := repo.NewJobRepository(pool, logger)
	creds := repo.NewCredentialRepository(pool)

	token := strings.TrimSpace(cfg.ReplicateAPIToken)
	if token == "" {
		loadCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		stored, err := creds.Token(loadCtx, repo.ProviderReplicate)
		cancel()
		if err != nil {
			logger.Warn().Err(err).Msg("worker: failed to load provider token from store")
		} else {
			token = stored
		}
	}
	if token == "" {
		logger.Fatal().Msg("worker: provider token missing")
	}

	client, err := replicate.NewClient(replicate.Options{
		APIToken: token,
		BaseURL:  cfg.ReplicateBaseURL,
		Logger:   &logger,
		PollRate: rate.Limit(cfg.PollRate),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure provider client")
	}

	adapters := map[domain.ResourceKind]provider.Adapter{}
	for kind, model := range map[domain.ResourceKind]string{
		domain.ResourceImage: cfg.ImageModel,
		domain.ResourceVideo: cfg.VideoModel,
		domain.ResourceSite:  cfg.SiteModel,
	} {
		if model == "" {
			continue
		}
		adapter, err := replicate.NewAdapter(client, kind, model, cfg.PinnedVersions[model])
		if err != nil {
			logger.Warn().Err(err).Str("kind", string(kind)).Msg("worker: skipping adapter")
			continue
		}
		adapters[kind] = adapter
	}

	engine := reconcile.NewEngine(jobs, provider.TreeExtractor{}, reconcile.Config{
		PollAttempts: cfg.PollAttempts,
		PollInterval: cfg.PollInterval,
	}, logger, metrics.New())

	w := &sweeper{jobs: jobs, engine: engine, adapters: adapters, logger: logger}
	if err := w.run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
	logger.Info().Msg("worker: stopped")
}

func (w *sweeper) run(ctx context.Context) error {
	w.logger.Info().Msg("worker: started")
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *sweeper) sweep(ctx context.Context) {
	stale, err := w.jobs.ListStale(ctx, time.Now().Add(-staleAfter), sweepBatch)
	if err != nil {
		w.logger.Error().Err(err).Msg("worker: stale listing failed")
		return
	}
	for _, job := range stale {
		adapter, ok := w.adapters[job.Kind]
		if !ok {
			w.logger.Warn().Str("job_id", job.ID).Str("kind", string(job.Kind)).Msg("worker: no adapter for stale job")
			continue
		}
		if _, err := w.engine.Observe(ctx, adapter, job.ID); err != nil {
			w.logger.Warn().Err(err).Str("job_id", job.ID).Msg("worker: reconcile pass failed")
		}
		if ctx.Err() != nil {
			return
		}
	}
	if len(stale) > 0 {
		w.logger.Info().Int("count", len(stale)).Msg("worker: swept stale jobs")
	}
}
