package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"

	"genserver/internal/domain"
	"genserver/pkg/zip"
)

type projectCreateRequest struct {
	Brief         string `json:"brief"`
	MaxIterations int    `json:"max_iterations"`
}

type projectResponse struct {
	ID            string            `json:"id"`
	Status        string            `json:"status"`
	Progress      int               `json:"progress"`
	Iteration     int               `json:"iteration"`
	MaxIterations int               `json:"max_iterations"`
	LastScore     *float64          `json:"last_score,omitempty"`
	Notes         []string          `json:"notes,omitempty"`
	ArtifactKey   string            `json:"artifact_key,omitempty"`
	FallbackUsed  bool              `json:"fallback_used"`
	Events        []projectEventDTO `json:"events"`
}

type projectEventDTO struct {
	At       string `json:"at"`
	Step     string `json:"step"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

func projectToResponse(p *domain.RefinementProject) projectResponse {
	resp := projectResponse{
		ID:            p.ID,
		Status:        string(p.Status),
		Progress:      p.Status.Progress(),
		Iteration:     p.Iteration,
		MaxIterations: p.MaxIterations,
		LastScore:     p.LastScore,
		Notes:         p.Notes,
		ArtifactKey:   p.ArtifactKey,
		FallbackUsed:  p.FallbackUsed,
	}
	resp.Events = make([]projectEventDTO, 0, len(p.Events))
	for _, ev := range p.Events {
		resp.Events = append(resp.Events, projectEventDTO{
			At:       ev.At.UTC().Format("2006-01-02T15:04:05Z07:00"),
			Step:     string(ev.Step),
			Severity: string(ev.Severity),
			Message:  ev.Message,
		})
	}
	return resp
}

// ProjectsCreate opens a refinement project for the caller's brief.
func (a *App) ProjectsCreate(w http.ResponseWriter, r *http.Request) {
	callerID := a.currentCallerID(r)
	if callerID == "" {
		a.error(w, http.StatusUnauthorized, domain.ErrorCodeUnauthorized, "missing caller context")
		return
	}
	var req projectCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, domain.ErrorCodeInvalidRequest, "invalid payload")
		return
	}
	if strings.TrimSpace(req.Brief) == "" {
		a.error(w, http.StatusBadRequest, domain.ErrorCodeInvalidRequest, "brief required")
		return
	}
	project, err := a.Controller.Start(r.Context(), callerID, req.Brief, req.MaxIterations)
	if err != nil {
		a.Logger.Error().Err(err).Msg("project start failed")
		a.error(w, http.StatusInternalServerError, domain.ErrorCodeInternal, "failed to start project")
		return
	}
	a.json(w, http.StatusCreated, projectToResponse(project))
}

// ProjectGet returns the project with derived progress and its event log.
func (a *App) ProjectGet(w http.ResponseWriter, r *http.Request) {
	project, ok := a.loadProjectForCaller(w, r)
	if !ok {
		return
	}
	a.json(w, http.StatusOK, projectToResponse(project))
}

// ProjectAdvance runs one iteration of the blueprint-build-score-decide loop.
func (a *App) ProjectAdvance(w http.ResponseWriter, r *http.Request) {
	project, ok := a.loadProjectForCaller(w, r)
	if !ok {
		return
	}
	advanced, err := a.Controller.Advance(r.Context(), project.ID)
	if err != nil {
		if advanced != nil {
			// The failure is recorded on the project; surface both.
			a.json(w, http.StatusOK, projectToResponse(advanced))
			return
		}
		a.errorFrom(w, http.StatusInternalServerError, err)
		return
	}
	a.json(w, http.StatusOK, projectToResponse(advanced))
}

// ProjectArchive streams the latest generated site bundle as a zip download.
func (a *App) ProjectArchive(w http.ResponseWriter, r *http.Request) {
	project, ok := a.loadProjectForCaller(w, r)
	if !ok {
		return
	}
	if project.ArtifactKey == "" {
		a.error(w, http.StatusConflict, domain.ErrorCodeInvalidRequest, "project has no generated bundle yet")
		return
	}
	keys, err := a.Files.ListBundle(r.Context(), project.ArtifactKey)
	if err != nil {
		a.Logger.Error().Err(err).Str("project_id", project.ID).Msg("archive listing failed")
		a.error(w, http.StatusInternalServerError, domain.ErrorCodeInternal, "failed to read bundle")
		return
	}
	assets := make([]zip.Asset, 0, len(keys))
	for _, key := range keys {
		// ListBundle names are relative to the prefix.
		data, err := a.Files.Read(r.Context(), path.Join(project.ArtifactKey, key))
		if err != nil {
			continue
		}
		assets = append(assets, zip.Asset{Filename: key, Data: data})
	}
	if len(assets) == 0 {
		a.error(w, http.StatusNotFound, domain.ErrorCodeNotFound, "bundle is empty")
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="`+project.ID+`.zip"`)
	_, _ = w.Write(zip.ArchiveAssets(assets))
}

func (a *App) loadProjectForCaller(w http.ResponseWriter, r *http.Request) (*domain.RefinementProject, bool) {
	callerID := a.currentCallerID(r)
	if callerID == "" {
		a.error(w, http.StatusUnauthorized, domain.ErrorCodeUnauthorized, "missing caller context")
		return nil, false
	}
	projectID := chi.URLParam(r, "project_id")
	if projectID == "" {
		a.error(w, http.StatusBadRequest, domain.ErrorCodeInvalidRequest, "project_id required")
		return nil, false
	}
	project, err := a.Projects.GetByID(r.Context(), projectID)
	if err != nil || project.CallerID != callerID {
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			a.Logger.Error().Err(err).Str("project_id", projectID).Msg("project lookup failed")
		}
		a.error(w, http.StatusNotFound, domain.ErrorCodeNotFound, "project not found")
		return nil, false
	}
	return project, true
}
