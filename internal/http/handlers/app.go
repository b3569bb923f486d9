package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"genserver/internal/domain"
	"genserver/internal/infra"
	"genserver/internal/metrics"
	"genserver/internal/middleware"
	"genserver/internal/provider"
	"genserver/internal/reconcile"
	"genserver/internal/refine"
	"genserver/internal/storage"
)

// App bundles the dependencies shared by all HTTP handlers.
type App struct {
	Logger     infra.Logger
	Jobs       domain.JobRepository
	Projects   domain.ProjectRepository
	Keys       domain.KeyRepository
	Adapters   map[domain.ResourceKind]provider.Adapter
	Engine     *reconcile.Engine
	Manager    *reconcile.Manager
	Controller *refine.Controller
	Files      *storage.FileStore
	Metrics    *metrics.Metrics

	JWTSecret     string
	WebhookSecret string

	// Ping checks persistence reachability for the health endpoint; nil when
	// running on in-memory stores.
	Ping func(ctx context.Context) error
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code domain.ErrorCode, message string) {
	a.json(w, status, map[string]any{
		"error": map[string]any{
			"code":    string(code),
			"message": message,
		},
	})
}

// errorFrom classifies err through the domain error taxonomy and writes the
// matching envelope.
func (a *App) errorFrom(w http.ResponseWriter, status int, err error) {
	a.error(w, status, domain.ClassifyError(err), err.Error())
}

func (a *App) currentCallerID(r *http.Request) string {
	return middleware.CallerIDFromContext(r.Context())
}
