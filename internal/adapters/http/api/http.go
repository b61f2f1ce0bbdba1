// Package api exposes the prediction service and run control over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/okian/autotrain/pkg/metrics"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	PredictDependencies
	ModelDependencies
	RunsDependencies
}

// StatsProvider reports service statistics for /healthz.
type StatsProvider interface {
	Stats(ctx context.Context) map[string]any
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler  *HealthHandler
	predictHandler *PredictHandler
	modelHandler   *ModelHandler
	runsHandler    *RunsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:  NewHealthHandler(statsProvider),
		predictHandler: NewPredictHandler(deps),
		modelHandler:   NewModelHandler(deps),
		runsHandler:    NewRunsHandler(deps),
	}
}

// Register attaches all HTTP routes to r.
func (s *Server) Register(r chi.Router) {
	r.Get("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Post("/predict", MetricsMiddleware(s.predictHandler.HandlePredict, "predict"))
	r.Get("/model", MetricsMiddleware(s.modelHandler.HandleCurrent, "model"))
	r.Get("/model/versions", MetricsMiddleware(s.modelHandler.HandleVersions, "model_versions"))

	r.Post("/runs", MetricsMiddleware(s.runsHandler.HandleSubmit, "runs_submit"))
	r.Get("/runs", MetricsMiddleware(s.runsHandler.HandleList, "runs_list"))
	r.Get("/runs/{id}", MetricsMiddleware(s.runsHandler.HandleGet, "runs_get"))
}

// Router returns a chi router carrying every route behind the standard
// request-id and panic-recovery middleware.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	s.Register(r)
	return r
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
