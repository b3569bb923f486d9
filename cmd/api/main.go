package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"genserver/internal/adapter/repo"
	"genserver/internal/domain"
	"genserver/internal/http/handlers"
	"genserver/internal/http/httpapi"
	"genserver/internal/infra"
	"genserver/internal/infra/geoip"
	"genserver/internal/metrics"
	mw "genserver/internal/middleware"
	"genserver/internal/provider"
	"genserver/internal/provider/replicate"
	"genserver/internal/ratelimit"
	"genserver/internal/reconcile"
	"genserver/internal/refine"
	"genserver/internal/storage"
	"genserver/internal/store"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()

	// Persistence. Without DATABASE_URL everything runs on in-memory
	// stores, which is fine for local development but loses state on
	// restart.
	var (
		jobs     domain.JobRepository
		projects domain.ProjectRepository
		keys     domain.KeyRepository
		creds    domain.CredentialRepository
		ping     func(context.Context) error
	)
	if cfg.DatabaseURL != "" {
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect database")
		}
		defer pool.Close()
		jobs = repo.NewJobRepository(pool, logger)
		projects = repo.NewProjectRepository(pool)
		keys = repo.NewKeyRepository(pool)
		creds = repo.NewCredentialRepository(pool)
		ping = pool.Ping
	} else {
		logger.Warn().Msg("DATABASE_URL not set, using in-memory stores")
		jobs = store.NewMemoryJobStore(logger)
		projects = store.NewMemoryProjectStore()
	}

	// Admission window counters live in Redis when available so multiple
	// replicas share one view; otherwise a per-process map.
	var windowStore ratelimit.WindowStore
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid REDIS_URL")
		}
		client := redis.NewClient(redisOpts)
		defer client.Close()
		windowStore = ratelimit.NewRedisStore(client)
	} else {
		windowStore = ratelimit.NewMemoryStore()
	}
	gate := ratelimit.NewGate(windowStore, logger)

	countryResolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip unavailable, continuing without country lookups")
	}
	var countryLookup mw.CountryLookup
	if countryResolver != nil {
		countryLookup = countryResolver.CountryCode
	}

	files, err := storage.NewFileStore(cfg.StoragePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure storage")
	}

	m := metrics.New()
	engine := reconcile.NewEngine(jobs, provider.TreeExtractor{}, reconcile.Config{
		PollAttempts: cfg.PollAttempts,
		PollInterval: cfg.PollInterval,
	}, logger, m)
	manager := reconcile.NewManager(engine, logger)

	adapters := buildAdapters(ctx, cfg, creds, logger)

	controller, err := refine.NewController(refine.Options{
		Projects:      projects,
		Planner:       refine.NewTemplatePlanner(),
		Fallback:      refine.NewTemplatePlanner(),
		Builder:       refine.NewSiteBuilder(adapters[domain.ResourceImage], engine, logger),
		Reviewer:      refine.NewRubricReviewer(),
		Store:         files,
		Threshold:     cfg.RefineScoreThreshold,
		MaxIterations: cfg.RefineMaxIterations,
		Logger:        logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to wire refinement controller")
	}

	app := &handlers.App{
		Logger:        logger,
		Jobs:          jobs,
		Projects:      projects,
		Keys:          keys,
		Adapters:      adapters,
		Engine:        engine,
		Manager:       manager,
		Controller:    controller,
		Files:         files,
		Metrics:       m,
		JWTSecret:     cfg.JWTSecret,
		WebhookSecret: cfg.WebhookSecret,
		Ping:          ping,
	}

	router := httpapi.NewRouter(app, httpapi.Options{
		Gate:            gate,
		RateLimitPerMin: cfg.RateLimitPerMin,
		CountryLookup:   countryLookup,
	})
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	manager.Close()
	if countryResolver != nil {
		if closer, ok := countryResolver.(*geoip.Resolver); ok {
			_ = closer.Close()
		}
	}
	logger.Info().Msg("server stopped")
}

// buildAdapters wires one provider adapter per configured resource kind. A
// missing API token is not fatal: the API still serves status reads, and
// submissions answer with a configuration error until a token is stored.
func buildAdapters(ctx context.Context, cfg *infra.Config, creds domain.CredentialRepository, logger infra.Logger) map[domain.ResourceKind]provider.Adapter {
	token := strings.TrimSpace(cfg.ReplicateAPIToken)
	if token == "" && creds != nil {
		loadCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		stored, err := creds.Token(loadCtx, repo.ProviderReplicate)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to load provider token from store")
		} else {
			token = stored
		}
	}
	if token == "" {
		logger.Warn().Msg("provider token missing, generation submissions will be rejected")
		return map[domain.ResourceKind]provider.Adapter{}
	}

	webhookURL := ""
	if cfg.WebhookBaseURL != "" {
		webhookURL = strings.TrimRight(cfg.WebhookBaseURL, "/") + "/v1/webhooks/replicate?secret=" + cfg.WebhookSecret
	}
	client, err := replicate.NewClient(replicate.Options{
		APIToken:   token,
		BaseURL:    cfg.ReplicateBaseURL,
		WebhookURL: webhookURL,
		Logger:     &logger,
		PollRate:   rate.Limit(cfg.PollRate),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure provider client")
	}

	adapters := map[domain.ResourceKind]provider.Adapter{}
	models := map[domain.ResourceKind]string{
		domain.ResourceImage: cfg.ImageModel,
		domain.ResourceVideo: cfg.VideoModel,
		domain.ResourceSite:  cfg.SiteModel,
	}
	for kind, model := range models {
		if model == "" {
			continue
		}
		adapter, err := replicate.NewAdapter(client, kind, model, cfg.PinnedVersions[model])
		if err != nil {
			logger.Warn().Err(err).Str("kind", string(kind)).Msg("skipping adapter")
			continue
		}
		adapters[kind] = adapter
	}
	return adapters
}
