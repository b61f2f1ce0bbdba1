package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/okian/autotrain/internal/domain/dataset"
	"github.com/okian/autotrain/internal/domain/failure"
	"github.com/okian/autotrain/internal/domain/model"
)

// PredictDependencies defines the interface for prediction operations.
type PredictDependencies interface {
	RunPrediction(ctx context.Context, row dataset.Record) (model.Prediction, error)
	PredictBatch(ctx context.Context, rows []dataset.Record) ([]model.Prediction, error)
}

// PredictHandler handles prediction requests.
type PredictHandler struct {
	deps PredictDependencies
}

// NewPredictHandler creates a new predict handler.
func NewPredictHandler(deps PredictDependencies) *PredictHandler {
	return &PredictHandler{deps: deps}
}

// predictRequest carries either one row or a batch, never both.
type predictRequest struct {
	Row  dataset.Record   `json:"row"`
	Rows []dataset.Record `json:"rows"`
}

func (p predictRequest) validate() error {
	switch {
	case p.Row == nil && p.Rows == nil:
		return fmt.Errorf("%w: expected \"row\" or \"rows\"", ErrBadRequest)
	case p.Row != nil && p.Rows != nil:
		return fmt.Errorf("%w: \"row\" and \"rows\" are exclusive", ErrBadRequest)
	}
	return nil
}

type batchResponse struct {
	Predictions []model.Prediction `json:"predictions"`
}

// HandlePredict handles POST /predict requests.
func (h *PredictHandler) HandlePredict(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	if req.Row != nil {
		p, err := h.deps.RunPrediction(r.Context(), req.Row)
		if err != nil {
			writePredictionError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
		return
	}

	out, err := h.deps.PredictBatch(r.Context(), req.Rows)
	if err != nil {
		writePredictionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, batchResponse{Predictions: out})
}

// writePredictionError maps a missing model to 503 and bad rows to 400.
func writePredictionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, failure.ErrNoModelAvailable):
		writeError(w, http.StatusServiceUnavailable, "no_model", err)
	case errors.Is(err, failure.ErrMalformedInput):
		writeError(w, http.StatusBadRequest, "malformed_input", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}
