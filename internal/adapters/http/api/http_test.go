package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/autotrain/internal/adapters/http/api"
	"github.com/okian/autotrain/internal/adapters/repository"
	service "github.com/okian/autotrain/internal/app"
	"github.com/okian/autotrain/internal/domain/dataset"
	"github.com/okian/autotrain/internal/domain/failure"
	"github.com/okian/autotrain/internal/domain/model"
)

// mockService implements api.Dependencies and api.StatsProvider.
type mockService struct {
	current   *model.RegistryEntry
	submitErr error
	runs      map[string]model.RunRecord
	rows      []dataset.Record
}

func newMockService() *mockService {
	return &mockService{runs: map[string]model.RunRecord{}}
}

func (m *mockService) predict(row dataset.Record) (model.Prediction, error) {
	if m.current == nil {
		return model.Prediction{}, fmt.Errorf("registry: %w", failure.ErrNoModelAvailable)
	}
	year, ok := row["year"].(float64)
	if !ok {
		return model.Prediction{}, fmt.Errorf("%w: year must be numeric", failure.ErrMalformedInput)
	}
	return model.Prediction{Value: year * 10, Version: m.current.Version}, nil
}

func (m *mockService) RunPrediction(_ context.Context, row dataset.Record) (model.Prediction, error) {
	m.rows = append(m.rows, row)
	return m.predict(row)
}

func (m *mockService) PredictBatch(_ context.Context, rows []dataset.Record) ([]model.Prediction, error) {
	out := make([]model.Prediction, 0, len(rows))
	for i, row := range rows {
		p, err := m.predict(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out = append(out, p)
	}
	return out, nil
}

func (m *mockService) CurrentModel(context.Context) (model.RegistryEntry, error) {
	if m.current == nil {
		return model.RegistryEntry{}, failure.ErrNoModelAvailable
	}
	return *m.current, nil
}

func (m *mockService) Versions(context.Context) ([]model.RegistryEntry, error) {
	if m.current == nil {
		return nil, nil
	}
	return []model.RegistryEntry{*m.current}, nil
}

func (m *mockService) SubmitRun(_ context.Context, trigger string) (model.RunRecord, error) {
	if m.submitErr != nil {
		return model.RunRecord{}, m.submitErr
	}
	rec := model.RunRecord{ID: fmt.Sprintf("run-%d", len(m.runs)+1), Trigger: trigger, State: model.StatePending, StartedAt: time.Now()}
	m.runs[rec.ID] = rec
	return rec, nil
}

func (m *mockService) Run(_ context.Context, id string) (model.RunRecord, error) {
	rec, ok := m.runs[id]
	if !ok {
		return model.RunRecord{}, fmt.Errorf("%w: %s", repository.ErrNotFound, id)
	}
	return rec, nil
}

func (m *mockService) Runs(_ context.Context, limit int) ([]model.RunRecord, error) {
	out := make([]model.RunRecord, 0, len(m.runs))
	for _, rec := range m.runs {
		out = append(out, rec)
	}
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockService) Stats(context.Context) map[string]any {
	return map[string]any{"started": true}
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, http.NoBody)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func errorCode(w *httptest.ResponseRecorder) string {
	var body struct {
		Code string `json:"code"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return body.Code
}

func TestPredictEndpoint(t *testing.T) {
	Convey("Given the API over a service without a promoted model", t, func() {
		svc := newMockService()
		h := api.NewServer(svc, svc).Router()

		Convey("When a row is posted", func() {
			w := do(h, http.MethodPost, "/predict", `{"row":{"make":"ford","year":2019}}`)

			Convey("Then the service is unavailable", func() {
				So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
				So(errorCode(w), ShouldEqual, "no_model")
			})
		})

		Convey("When a model is promoted", func() {
			svc.current = &model.RegistryEntry{Version: "v1", Metric: "r2", Score: 0.8}

			Convey("Then a single row is predicted", func() {
				w := do(h, http.MethodPost, "/predict", `{"row":{"make":"ford","year":2019}}`)
				So(w.Code, ShouldEqual, http.StatusOK)

				var p model.Prediction
				So(json.Unmarshal(w.Body.Bytes(), &p), ShouldBeNil)
				So(p.Value, ShouldEqual, 20190)
				So(p.Version, ShouldEqual, "v1")
				So(svc.rows[0]["make"], ShouldEqual, "ford")
			})

			Convey("Then a batch is predicted", func() {
				w := do(h, http.MethodPost, "/predict", `{"rows":[{"year":2019},{"year":2020}]}`)
				So(w.Code, ShouldEqual, http.StatusOK)

				var body struct {
					Predictions []model.Prediction `json:"predictions"`
				}
				So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
				So(body.Predictions, ShouldHaveLength, 2)
				So(body.Predictions[1].Value, ShouldEqual, 20200)
			})

			Convey("Then a malformed row is a bad request", func() {
				w := do(h, http.MethodPost, "/predict", `{"row":{"year":"soon"}}`)
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(errorCode(w), ShouldEqual, "malformed_input")
			})

			Convey("Then invalid JSON is a bad request", func() {
				w := do(h, http.MethodPost, "/predict", `{"row":`)
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(errorCode(w), ShouldEqual, "bad_request")
			})

			Convey("Then a body with neither row nor rows is a bad request", func() {
				w := do(h, http.MethodPost, "/predict", `{}`)
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})

			Convey("Then a body with both row and rows is a bad request", func() {
				w := do(h, http.MethodPost, "/predict", `{"row":{"year":1},"rows":[]}`)
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When predict is called with GET", func() {
			w := do(h, http.MethodGet, "/predict", "")

			Convey("Then the method is not allowed", func() {
				So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
			})
		})
	})
}

func TestModelEndpoints(t *testing.T) {
	Convey("Given the API", t, func() {
		svc := newMockService()
		h := api.NewServer(svc, svc).Router()

		Convey("When no model is promoted", func() {
			Convey("Then GET /model is unavailable", func() {
				w := do(h, http.MethodGet, "/model", "")
				So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
			})

			Convey("Then GET /model/versions is an empty list", func() {
				w := do(h, http.MethodGet, "/model/versions", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, `"versions":[]`)
			})
		})

		Convey("When a model is promoted", func() {
			svc.current = &model.RegistryEntry{Version: "v7", Metric: "r2", Score: 0.91, Kind: "linear"}

			Convey("Then GET /model returns it", func() {
				w := do(h, http.MethodGet, "/model", "")
				So(w.Code, ShouldEqual, http.StatusOK)

				var entry model.RegistryEntry
				So(json.Unmarshal(w.Body.Bytes(), &entry), ShouldBeNil)
				So(entry.Version, ShouldEqual, "v7")
				So(entry.Kind, ShouldEqual, "linear")
			})
		})
	})
}

func TestRunsEndpoints(t *testing.T) {
	Convey("Given the API", t, func() {
		svc := newMockService()
		h := api.NewServer(svc, svc).Router()

		Convey("When a run is submitted", func() {
			w := do(h, http.MethodPost, "/runs", "")

			Convey("Then it is accepted as pending", func() {
				So(w.Code, ShouldEqual, http.StatusAccepted)
				var rec model.RunRecord
				So(json.Unmarshal(w.Body.Bytes(), &rec), ShouldBeNil)
				So(rec.State, ShouldEqual, model.StatePending)
				So(rec.Trigger, ShouldEqual, service.TriggerAPI)
				So(w.Header().Get("Location"), ShouldEqual, "/runs/"+rec.ID)

				Convey("And it can be fetched by id", func() {
					w := do(h, http.MethodGet, "/runs/"+rec.ID, "")
					So(w.Code, ShouldEqual, http.StatusOK)
				})

				Convey("And it is listed", func() {
					w := do(h, http.MethodGet, "/runs?limit=5", "")
					So(w.Code, ShouldEqual, http.StatusOK)
					So(w.Body.String(), ShouldContainSubstring, rec.ID)
				})
			})
		})

		Convey("When the queue is full", func() {
			svc.submitErr = fmt.Errorf("%w: capacity 1", service.ErrQueueFull)
			w := do(h, http.MethodPost, "/runs", "")

			Convey("Then the client is told to back off", func() {
				So(w.Code, ShouldEqual, http.StatusTooManyRequests)
				So(errorCode(w), ShouldEqual, "backpressure")
			})
		})

		Convey("When the service is not started", func() {
			svc.submitErr = service.ErrNotStarted
			w := do(h, http.MethodPost, "/runs", "")

			Convey("Then it is unavailable", func() {
				So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
			})
		})

		Convey("When an unknown run is requested", func() {
			w := do(h, http.MethodGet, "/runs/missing", "")

			Convey("Then it is not found", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
			})
		})

		Convey("When the limit is invalid", func() {
			w := do(h, http.MethodGet, "/runs?limit=-1", "")

			Convey("Then it is a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})
	})
}

func TestHealthAndMetrics(t *testing.T) {
	Convey("Given the API", t, func() {
		svc := newMockService()
		h := api.NewServer(svc, svc).Router()

		Convey("Then /healthz reports ok with stats", func() {
			w := do(h, http.MethodGet, "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"status":"ok"`)
			So(w.Body.String(), ShouldContainSubstring, `"started":true`)
		})

		Convey("Then /metrics exposes the request counters", func() {
			do(h, http.MethodGet, "/healthz", "")
			w := do(h, http.MethodGet, "/metrics", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "autotrain_pipeline_http_requests_total")
		})
	})
}
