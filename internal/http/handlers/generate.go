package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"genserver/internal/domain"
	"genserver/internal/middleware"
	"genserver/internal/provider"
)

type generateRequest struct {
	Kind         string         `json:"kind"`
	Prompt       string         `json:"prompt"`
	Params       map[string]any `json:"params"`
	ReferenceURL string         `json:"reference_url"`
}

type jobResponse struct {
	JobID    string          `json:"job_id"`
	Kind     string          `json:"kind"`
	Provider string          `json:"provider"`
	Status   string          `json:"status"`
	Outputs  []outputDTO     `json:"outputs,omitempty"`
	Duration *float64        `json:"duration_seconds,omitempty"`
	Error    *jobErrorDTO    `json:"error,omitempty"`
	Params   json.RawMessage `json:"params,omitempty"`
}

type outputDTO struct {
	URL  string `json:"url"`
	Role string `json:"role"`
}

type jobErrorDTO struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func jobToResponse(job *domain.Job) jobResponse {
	resp := jobResponse{
		JobID:    job.ID,
		Kind:     string(job.Kind),
		Provider: job.Provider,
		Status:   string(job.Status),
		Duration: job.Duration,
		Params:   job.Params,
	}
	for _, out := range job.Outputs {
		resp.Outputs = append(resp.Outputs, outputDTO{URL: out.URL, Role: string(out.Role)})
	}
	if job.ErrorKind != domain.ErrorKindNone {
		resp.Error = &jobErrorDTO{Kind: string(job.ErrorKind), Message: job.ErrorMessage}
	}
	return resp
}

// GenerationsCreate accepts a generation request, submits it to the matching
// provider adapter, and hands the job to the background reconciler. The
// response returns immediately with the queued record; callers follow up via
// status polling or wait for the provider webhook to land.
func (a *App) GenerationsCreate(w http.ResponseWriter, r *http.Request) {
	callerID := a.currentCallerID(r)
	if callerID == "" {
		a.error(w, http.StatusUnauthorized, domain.ErrorCodeUnauthorized, "missing caller context")
		return
	}
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, domain.ErrorCodeInvalidRequest, "invalid payload")
		return
	}
	kind := domain.ResourceKind(strings.ToLower(strings.TrimSpace(req.Kind)))
	if !kind.IsValid() {
		a.error(w, http.StatusBadRequest, domain.ErrorCodeInvalidRequest, "unsupported kind")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		a.error(w, http.StatusBadRequest, domain.ErrorCodeInvalidRequest, "prompt required")
		return
	}
	adapter, ok := a.Adapters[kind]
	if !ok {
		a.error(w, http.StatusServiceUnavailable, domain.ErrorCodeConfigMissing, "no provider configured for kind")
		return
	}
	if req.Params == nil {
		req.Params = map[string]any{}
	}
	if _, ok := req.Params["locale"]; !ok {
		req.Params["locale"] = middleware.LocaleFromContext(r.Context())
	}

	job, err := a.Engine.Submit(r.Context(), adapter, provider.Input{
		Kind:         kind,
		Prompt:       req.Prompt,
		Params:       req.Params,
		ReferenceURL: req.ReferenceURL,
	}, callerID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrProviderRejected):
			a.errorFrom(w, http.StatusUnprocessableEntity, err)
		case errors.Is(err, domain.ErrConfigMissing):
			a.errorFrom(w, http.StatusServiceUnavailable, err)
		default:
			a.Logger.Error().Err(err).Str("kind", string(kind)).Msg("generation submit failed")
			a.error(w, http.StatusInternalServerError, domain.ErrorCodeInternal, "failed to submit generation")
		}
		return
	}

	a.Manager.Track(adapter, job.ID)
	a.json(w, http.StatusAccepted, jobToResponse(job))
}

// GenerationStatus returns the stored view of a job, refreshed by a single
// reconciliation pass when the record is still in flight.
func (a *App) GenerationStatus(w http.ResponseWriter, r *http.Request) {
	callerID := a.currentCallerID(r)
	if callerID == "" {
		a.error(w, http.StatusUnauthorized, domain.ErrorCodeUnauthorized, "missing caller context")
		return
	}
	jobID := chi.URLParam(r, "job_id")
	if jobID == "" {
		a.error(w, http.StatusBadRequest, domain.ErrorCodeInvalidRequest, "job_id required")
		return
	}
	job, err := a.loadJobForCaller(r, jobID, callerID)
	if err != nil {
		a.error(w, http.StatusNotFound, domain.ErrorCodeNotFound, "job not found")
		return
	}
	if !job.Status.IsTerminal() {
		if adapter, ok := a.Adapters[job.Kind]; ok {
			if refreshed, err := a.Engine.Observe(r.Context(), adapter, job.ID); err == nil {
				job = refreshed
			} else {
				a.Logger.Warn().Err(err).Str("job_id", job.ID).Msg("status refresh failed, serving stored view")
			}
		}
	}
	a.json(w, http.StatusOK, jobToResponse(job))
}

// GenerationAssets lists the extracted output URLs for a finished job.
func (a *App) GenerationAssets(w http.ResponseWriter, r *http.Request) {
	callerID := a.currentCallerID(r)
	if callerID == "" {
		a.error(w, http.StatusUnauthorized, domain.ErrorCodeUnauthorized, "missing caller context")
		return
	}
	jobID := chi.URLParam(r, "job_id")
	if jobID == "" {
		a.error(w, http.StatusBadRequest, domain.ErrorCodeInvalidRequest, "job_id required")
		return
	}
	job, err := a.loadJobForCaller(r, jobID, callerID)
	if err != nil {
		a.error(w, http.StatusNotFound, domain.ErrorCodeNotFound, "job not found")
		return
	}
	items := make([]outputDTO, 0, len(job.Outputs))
	for _, out := range job.Outputs {
		items = append(items, outputDTO{URL: out.URL, Role: string(out.Role)})
	}
	a.json(w, http.StatusOK, map[string]any{
		"job_id": job.ID,
		"status": string(job.Status),
		"items":  items,
	})
}

func (a *App) loadJobForCaller(r *http.Request, jobID, callerID string) (*domain.Job, error) {
	job, err := a.Jobs.GetByID(r.Context(), jobID)
	if err != nil {
		return nil, err
	}
	if job.CallerID != callerID {
		return nil, domain.ErrNotFound
	}
	return job, nil
}
