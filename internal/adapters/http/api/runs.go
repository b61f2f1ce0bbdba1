package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/okian/autotrain/internal/adapters/repository"
	service "github.com/okian/autotrain/internal/app"
	"github.com/okian/autotrain/internal/domain/model"
)

const defaultRunsLimit = 20

// RunsDependencies defines the interface for run control.
type RunsDependencies interface {
	SubmitRun(ctx context.Context, trigger string) (model.RunRecord, error)
	Run(ctx context.Context, id string) (model.RunRecord, error)
	Runs(ctx context.Context, limit int) ([]model.RunRecord, error)
}

// RunsHandler handles pipeline run requests.
type RunsHandler struct {
	deps RunsDependencies
}

// NewRunsHandler creates a new runs handler.
func NewRunsHandler(deps RunsDependencies) *RunsHandler {
	return &RunsHandler{deps: deps}
}

type runsResponse struct {
	Runs []model.RunRecord `json:"runs"`
}

// HandleSubmit handles POST /runs requests. The run executes asynchronously;
// poll GET /runs/{id} for its state.
func (h *RunsHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	rec, err := h.deps.SubmitRun(r.Context(), service.TriggerAPI)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrQueueFull):
			writeError(w, http.StatusTooManyRequests, "backpressure", fmt.Errorf("%w: %w", ErrBackpressure, err))
		case errors.Is(err, service.ErrNotStarted):
			writeError(w, http.StatusServiceUnavailable, "unavailable", err)
		default:
			writeError(w, http.StatusInternalServerError, "internal_error", err)
		}
		return
	}
	w.Header().Set("Location", "/runs/"+rec.ID)
	writeJSON(w, http.StatusAccepted, rec)
}

// HandleGet handles GET /runs/{id} requests.
func (h *RunsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}
	rec, err := h.deps.Run(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// HandleList handles GET /runs requests. ?limit=N caps the result, newest first.
func (h *RunsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: invalid limit %q", ErrBadRequest, raw))
			return
		}
		limit = n
	}
	runs, err := h.deps.Runs(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	if runs == nil {
		runs = []model.RunRecord{}
	}
	writeJSON(w, http.StatusOK, runsResponse{Runs: runs})
}
