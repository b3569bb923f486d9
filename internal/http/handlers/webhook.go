package handlers

import (
	"crypto/hmac"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"genserver/internal/domain"
	"genserver/internal/reconcile"
)

// ProviderWebhook ingests a provider push callback. A bad secret rejects the
// delivery before any state is touched; a valid payload converges through the
// same merge path the poller uses, so duplicate or late deliveries are no-ops.
func (a *App) ProviderWebhook(w http.ResponseWriter, r *http.Request) {
	secret := r.URL.Query().Get("secret")
	if secret == "" {
		secret = r.Header.Get("X-Webhook-Secret")
	}
	if !hmac.Equal([]byte(secret), []byte(a.WebhookSecret)) {
		if a.Metrics != nil {
			a.Metrics.WebhookRejected.Inc()
		}
		a.Logger.Warn().Str("remote", r.RemoteAddr).Msg("webhook rejected: bad secret")
		a.error(w, http.StatusUnauthorized, domain.ErrorCodeUnauthorized, "invalid webhook secret")
		return
	}

	var body struct {
		ID string `json:"id"`
		reconcile.WebhookPayload
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		a.error(w, http.StatusBadRequest, domain.ErrorCodeInvalidRequest, "invalid payload")
		return
	}
	jobID := chi.URLParam(r, "job_id")
	if jobID == "" {
		jobID = body.ID
	}
	if jobID == "" {
		a.error(w, http.StatusBadRequest, domain.ErrorCodeInvalidRequest, "job id required")
		return
	}

	job, err := a.Engine.ApplyWebhook(r.Context(), jobID, body.WebhookPayload)
	if err != nil {
		a.error(w, http.StatusBadRequest, domain.ErrorCodeInvalidRequest, err.Error())
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"job_id": job.ID,
		"status": string(job.Status),
	})
}
