package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"genserver/internal/http/handlers"
	mw "genserver/internal/middleware"
	"genserver/internal/ratelimit"
)

// Options carries the router's cross-cutting dependencies.
type Options struct {
	Gate            *ratelimit.Gate
	RateLimitPerMin int
	CountryLookup   mw.CountryLookup
	AllowedOrigins  []string
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		mw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		mw.Logger(app.Logger),
		mw.CORS(opts.AllowedOrigins),
		mw.I18N("en", opts.CountryLookup),
	)

	r.Get("/v1/healthz", app.Health)
	if app.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", app.Metrics.Handler())
	}

	// Provider callbacks authenticate by shared secret, not caller
	// credentials. The httprate guard caps abusive unauthenticated
	// traffic before the secret check runs.
	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(120, time.Minute))
		r.Post("/v1/webhooks/replicate", app.ProviderWebhook)
		r.Post("/v1/webhooks/replicate/{job_id}", app.ProviderWebhook)
	})

	r.Group(func(r chi.Router) {
		r.Use(mw.Auth(app.JWTSecret, app.Keys))

		r.Route("/v1/generations", func(r chi.Router) {
			r.With(mw.Admission(opts.Gate, "generations", opts.RateLimitPerMin, app.Metrics)).
				Post("/", app.GenerationsCreate)
			r.Get("/{job_id}", app.GenerationStatus)
			r.Get("/{job_id}/assets", app.GenerationAssets)
		})

		r.Route("/v1/projects", func(r chi.Router) {
			r.With(mw.Admission(opts.Gate, "projects", opts.RateLimitPerMin, app.Metrics)).
				Post("/", app.ProjectsCreate)
			r.Get("/{project_id}", app.ProjectGet)
			r.Post("/{project_id}/advance", app.ProjectAdvance)
			r.Get("/{project_id}/archive", app.ProjectArchive)
		})
	})

	return r
}
