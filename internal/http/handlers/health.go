package handlers

import (
	"context"
	"net/http"
	"time"
)

func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok"}
	if a.Ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.Ping(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("health: database unreachable")
			body["status"] = "degraded"
			body["database"] = "unreachable"
			a.json(w, http.StatusServiceUnavailable, body)
			return
		}
		body["database"] = "ok"
	}
	if a.Manager != nil {
		body["inflight"] = a.Manager.Inflight()
	}
	a.json(w, http.StatusOK, body)
}
