package service_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/autotrain/internal/adapters/objectstore"
	"github.com/okian/autotrain/internal/adapters/registry"
	"github.com/okian/autotrain/internal/adapters/repository"
	"github.com/okian/autotrain/internal/adapters/source"
	service "github.com/okian/autotrain/internal/app"
	"github.com/okian/autotrain/internal/domain/dataset"
	"github.com/okian/autotrain/internal/domain/failure"
	"github.com/okian/autotrain/internal/domain/model"
	"github.com/okian/autotrain/internal/domain/schema"
	"github.com/okian/autotrain/internal/pipeline"
	"github.com/okian/autotrain/internal/synth"
	"github.com/okian/autotrain/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

// countingModels counts bundle loads.
type countingModels struct {
	*registry.Registry
	loads atomic.Int64
}

func (c *countingModels) Load(ctx context.Context, version string) (model.Bundle, error) {
	c.loads.Add(1)
	return c.Registry.Load(ctx, version)
}

type harness struct {
	svc    *service.Service
	models *countingModels
	runs   *repository.RunStore
	rows   []dataset.Record
}

func newHarness(opts ...service.Option) *harness {
	contract, err := schema.Load("../../config/schema.yaml")
	So(err, ShouldBeNil)

	gen := synth.DefaultOptions()
	gen.Rows = 250
	rows := synth.Generate(gen)
	src := source.NewMemory()
	src.Add("vehicles", rows...)

	store := objectstore.NewMemory()
	models := &countingModels{Registry: registry.New(store)}
	runs := repository.NewRunStore()

	p, err := pipeline.New(src, contract, models.Registry, store, pipeline.DefaultConfig(),
		pipeline.WithObserver(service.Recorder(runs)),
	)
	So(err, ShouldBeNil)

	opts = append([]service.Option{service.WithRunStore(runs)}, opts...)
	return &harness{
		svc:    service.New(p, models, opts...),
		models: models,
		runs:   runs,
		rows:   rows,
	}
}

func waitForRun(svc *service.Service, id string) model.RunRecord {
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		rec, err := svc.Run(context.Background(), id)
		if err == nil && rec.State.Terminal() {
			return rec
		}
		time.Sleep(10 * time.Millisecond)
	}
	rec, _ := svc.Run(context.Background(), id)
	return rec
}

func TestService_Prediction(t *testing.T) {
	Convey("Given a service over an empty registry", t, func() {
		h := newHarness()
		ctx := context.Background()

		Convey("When predicting before any promotion", func() {
			_, err := h.svc.RunPrediction(ctx, h.rows[0])

			Convey("Then no model is available", func() {
				So(errors.Is(err, failure.ErrNoModelAvailable), ShouldBeTrue)
			})
		})

		Convey("When a training run promotes a model", func() {
			res := h.svc.RunTrainingPipeline(ctx)
			So(res.Status, ShouldEqual, model.StateSucceeded)
			So(res.Promoted, ShouldBeTrue)

			Convey("Then a well-formed row is scored by that version", func() {
				row := dataset.Record{}
				for k, v := range h.rows[3] {
					if k != "price" {
						row[k] = v
					}
				}
				p, err := h.svc.RunPrediction(ctx, row)
				So(err, ShouldBeNil)
				So(p.Version, ShouldEqual, res.Version)
				So(p.Value, ShouldNotEqual, 0)
			})

			Convey("Then the run is in the history", func() {
				rec, err := h.svc.Run(ctx, res.RunID)
				So(err, ShouldBeNil)
				So(rec.State, ShouldEqual, model.StateSucceeded)
				So(rec.Version, ShouldEqual, res.Version)
				So(rec.Trigger, ShouldEqual, service.TriggerManual)
			})

			Convey("Then a row missing a feature column is malformed", func() {
				_, err := h.svc.RunPrediction(ctx, dataset.Record{"make": "ford"})
				So(errors.Is(err, failure.ErrMalformedInput), ShouldBeTrue)
			})

			Convey("Then an empty batch is malformed", func() {
				_, err := h.svc.PredictBatch(ctx, nil)
				So(errors.Is(err, failure.ErrMalformedInput), ShouldBeTrue)
			})

			Convey("Then a batch carries one version for every row", func() {
				out, err := h.svc.PredictBatch(ctx, h.rows[:5])
				So(err, ShouldBeNil)
				So(out, ShouldHaveLength, 5)
				for _, p := range out {
					So(p.Version, ShouldEqual, res.Version)
				}
			})

			Convey("Then concurrent predictions load the bundle once", func() {
				var wg sync.WaitGroup
				errs := make(chan error, 32)
				for i := 0; i < 32; i++ {
					wg.Add(1)
					go func(i int) {
						defer wg.Done()
						_, err := h.svc.RunPrediction(ctx, h.rows[i])
						errs <- err
					}(i)
				}
				wg.Wait()
				close(errs)
				for err := range errs {
					So(err, ShouldBeNil)
				}
				So(h.models.loads.Load(), ShouldEqual, 1)
			})

			Convey("Then the registry reports the version", func() {
				cur, err := h.svc.CurrentModel(ctx)
				So(err, ShouldBeNil)
				So(cur.Version, ShouldEqual, res.Version)

				versions, err := h.svc.Versions(ctx)
				So(err, ShouldBeNil)
				So(versions, ShouldHaveLength, 1)
			})
		})
	})
}

func TestService_SubmitRun(t *testing.T) {
	Convey("Given a service that is not started", t, func() {
		h := newHarness()

		Convey("Then submissions are refused", func() {
			_, err := h.svc.SubmitRun(context.Background(), service.TriggerAPI)
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
		})
	})

	Convey("Given a started service", t, func() {
		h := newHarness(service.WithWorkerCount(2), service.WithQueueSize(4))
		ctx := context.Background()
		So(h.svc.Start(ctx), ShouldBeNil)
		defer h.svc.Stop()

		Convey("When a run is submitted", func() {
			rec, err := h.svc.SubmitRun(ctx, service.TriggerAPI)
			So(err, ShouldBeNil)
			So(rec.State, ShouldEqual, model.StatePending)
			So(rec.Trigger, ShouldEqual, service.TriggerAPI)

			Convey("Then a worker runs it to completion", func() {
				done := waitForRun(h.svc, rec.ID)
				So(done.State, ShouldEqual, model.StateSucceeded)
				So(done.Promoted, ShouldBeTrue)
				So(done.Transitions, ShouldNotBeEmpty)

				list, err := h.svc.Runs(ctx, 10)
				So(err, ShouldBeNil)
				So(list, ShouldNotBeEmpty)
			})
		})

		Convey("Then stats report the workers", func() {
			stats := h.svc.Stats(ctx)
			So(stats["started"], ShouldEqual, true)
			So(stats["worker_count"], ShouldEqual, 2)
		})

		Convey("When the service is stopped", func() {
			h.svc.Stop()

			Convey("Then further submissions are refused", func() {
				_, err := h.svc.SubmitRun(ctx, service.TriggerAPI)
				So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			})
		})
	})
}

func TestService_RetrainSchedule(t *testing.T) {
	Convey("Given a service with a short retrain interval", t, func() {
		h := newHarness(service.WithRetrainInterval(20 * time.Millisecond))
		ctx := context.Background()
		So(h.svc.Start(ctx), ShouldBeNil)
		defer h.svc.Stop()

		Convey("Then scheduled runs appear in the history", func() {
			deadline := time.Now().Add(5 * time.Second)
			var found bool
			for !found && time.Now().Before(deadline) {
				list, _ := h.runs.List(ctx, 0)
				for _, rec := range list {
					if rec.Trigger == service.TriggerSchedule {
						found = true
					}
				}
				time.Sleep(10 * time.Millisecond)
			}
			So(found, ShouldBeTrue)
		})
	})
}
