package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/okian/autotrain/internal/domain/failure"
	"github.com/okian/autotrain/internal/domain/model"
)

// ModelDependencies defines the interface for registry reads.
type ModelDependencies interface {
	CurrentModel(ctx context.Context) (model.RegistryEntry, error)
	Versions(ctx context.Context) ([]model.RegistryEntry, error)
}

// ModelHandler handles model registry requests.
type ModelHandler struct {
	deps ModelDependencies
}

// NewModelHandler creates a new model handler.
func NewModelHandler(deps ModelDependencies) *ModelHandler {
	return &ModelHandler{deps: deps}
}

type versionsResponse struct {
	Versions []model.RegistryEntry `json:"versions"`
}

// HandleCurrent handles GET /model requests.
func (h *ModelHandler) HandleCurrent(w http.ResponseWriter, r *http.Request) {
	entry, err := h.deps.CurrentModel(r.Context())
	if err != nil {
		if errors.Is(err, failure.ErrNoModelAvailable) {
			writeError(w, http.StatusServiceUnavailable, "no_model", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// HandleVersions handles GET /model/versions requests.
func (h *ModelHandler) HandleVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := h.deps.Versions(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	if versions == nil {
		versions = []model.RegistryEntry{}
	}
	writeJSON(w, http.StatusOK, versionsResponse{Versions: versions})
}
