// Package service ties the training pipeline, the run queue and the model
// registry together behind the operations the HTTP API and the CLI call.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/okian/autotrain/internal/adapters/mq/queue"
	"github.com/okian/autotrain/internal/adapters/mq/worker"
	"github.com/okian/autotrain/internal/adapters/repository"
	"github.com/okian/autotrain/internal/domain/model"
	"github.com/okian/autotrain/internal/pipeline"
	"github.com/okian/autotrain/pkg/logger"
	"github.com/okian/autotrain/pkg/metrics"
)

// Run triggers.
const (
	TriggerManual    = "manual"
	TriggerAPI       = "api"
	TriggerSchedule  = "schedule"
	TriggerBootstrap = "bootstrap"
)

const (
	defaultWorkerCount = 1
	defaultQueueSize   = 16
	defaultRunTimeout  = 30 * time.Minute
	stopTimeout        = 30 * time.Second
)

// Pipeline executes one training run.
type Pipeline interface {
	Execute(ctx context.Context, req model.RunRequest) pipeline.Result
}

// Models is the read side of the model registry.
type Models interface {
	Current(ctx context.Context) (model.RegistryEntry, error)
	Load(ctx context.Context, version string) (model.Bundle, error)
	Versions(ctx context.Context) ([]model.RegistryEntry, error)
}

// Service implements the training and prediction operations.
type Service struct {
	mu sync.RWMutex

	// Core components
	pipeline Pipeline
	models   Models
	runs     repository.Store
	queue    queue.Queue
	pool     *worker.Pool

	// Configuration
	workerCount  int
	queueSize    int
	runTimeout   time.Duration
	retrainEvery time.Duration
	now          func() time.Time

	// Prediction bundles, one per registry version
	bundleMu sync.RWMutex
	bundles  map[string]model.Bundle
	loads    singleflight.Group

	// State
	started bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	logger logger.Logger
}

// New constructs a Service. The run queue and workers are created by Start.
func New(p Pipeline, models Models, opts ...Option) *Service {
	s := &Service{
		pipeline:    p,
		models:      models,
		workerCount: defaultWorkerCount,
		queueSize:   defaultQueueSize,
		runTimeout:  defaultRunTimeout,
		now:         time.Now,
		bundles:     make(map[string]model.Bundle),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if s.runs == nil {
		s.runs = repository.NewRunStore()
	}
	return s
}

// Recorder returns a pipeline observer that saves every run snapshot to store.
func Recorder(store repository.Store) func(context.Context, model.RunRecord) {
	log := logger.Get().Named("runs")
	return func(ctx context.Context, rec model.RunRecord) {
		if err := store.Save(ctx, rec); err != nil {
			log.Warn(ctx, "run record not saved",
				logger.String("run_id", rec.ID),
				logger.String("state", string(rec.State)),
				logger.Error(err),
			)
		}
	}
}

// Start creates the run queue, starts the workers and, when configured, the
// retrain schedule. Starting a started service is a no-op.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.pool = worker.NewPool(s.workerCount, s.queue, s,
		worker.WithRunTimeout(s.runTimeout),
		worker.WithLogger(s.logger.Named("worker")),
	)
	s.pool.Start(ctx)

	s.stopCh = make(chan struct{})
	if s.retrainEvery > 0 {
		s.wg.Add(1)
		go s.retrainLoop(ctx, s.retrainEvery, s.stopCh)
	}

	s.started = true
	s.logger.Info(ctx, "service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queue_size", s.queueSize),
		logger.Duration("run_timeout", s.runTimeout),
		logger.Duration("retrain_every", s.retrainEvery),
	)
	return nil
}

// Stop stops scheduling, closes the queue and waits for in-flight runs.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	close(s.stopCh)
	pool := s.pool
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	s.logger.Info(ctx, "stopping service...")
	s.wg.Wait()
	if err := pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "workers did not stop cleanly", logger.Error(err))
	}
	s.logger.Info(ctx, "service stopped")
}

func (s *Service) retrainLoop(ctx context.Context, every time.Duration, stop <-chan struct{}) {
	defer s.wg.Done()
	t := time.NewTicker(every)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-t.C:
			if _, err := s.SubmitRun(ctx, TriggerSchedule); err != nil {
				s.logger.Warn(ctx, "scheduled run not submitted", logger.Error(err))
			}
		}
	}
}

// RunTrainingPipeline runs the pipeline synchronously on the calling goroutine.
func (s *Service) RunTrainingPipeline(ctx context.Context) pipeline.Result {
	return s.pipeline.Execute(ctx, model.RunRequest{
		ID:         uuid.NewString(),
		Trigger:    TriggerManual,
		EnqueuedAt: s.now().UTC(),
	})
}

// Execute runs one queued request. It implements worker.Runner.
func (s *Service) Execute(ctx context.Context, r queue.Request) error {
	res := s.pipeline.Execute(ctx, r)
	if res.Err != nil {
		return res.Err
	}
	return nil
}

// SubmitRun queues a pipeline run and returns its PENDING record.
func (s *Service) SubmitRun(ctx context.Context, trigger string) (model.RunRecord, error) {
	s.mu.RLock()
	q, started := s.queue, s.started
	s.mu.RUnlock()
	if !started {
		return model.RunRecord{}, ErrNotStarted
	}

	now := s.now().UTC()
	req := model.RunRequest{ID: uuid.NewString(), Trigger: trigger, EnqueuedAt: now}
	rec := model.RunRecord{ID: req.ID, Trigger: trigger, State: model.StatePending, StartedAt: now}
	if err := s.runs.Save(ctx, rec); err != nil {
		return model.RunRecord{}, fmt.Errorf("save run %s: %w", req.ID, err)
	}

	if err := q.Enqueue(ctx, req); err != nil {
		rec.State = model.StateFailed
		rec.Reason = "not queued: " + err.Error()
		rec.FinishedAt = s.now().UTC()
		if serr := s.runs.Save(ctx, rec); serr != nil {
			s.logger.Warn(ctx, "run record not saved", logger.String("run_id", rec.ID), logger.Error(serr))
		}
		switch {
		case errors.Is(err, queue.ErrFull):
			return rec, fmt.Errorf("%w: %w", ErrQueueFull, err)
		case errors.Is(err, queue.ErrClosed):
			return rec, fmt.Errorf("%w: %w", ErrNotStarted, err)
		default:
			return rec, err
		}
	}

	s.logger.Info(ctx, "run submitted", logger.String("run_id", req.ID), logger.String("trigger", trigger))
	return rec, nil
}

// Run returns the record of a submitted or executed run.
func (s *Service) Run(ctx context.Context, id string) (model.RunRecord, error) {
	return s.runs.Get(ctx, id)
}

// Runs returns up to limit records, newest first.
func (s *Service) Runs(ctx context.Context, limit int) ([]model.RunRecord, error) {
	return s.runs.List(ctx, limit)
}

// CurrentModel returns the promoted registry entry.
func (s *Service) CurrentModel(ctx context.Context) (model.RegistryEntry, error) {
	return s.models.Current(ctx)
}

// Versions returns every promoted version, oldest first.
func (s *Service) Versions(ctx context.Context) ([]model.RegistryEntry, error) {
	return s.models.Versions(ctx)
}

// Stats returns service statistics for health reporting.
func (s *Service) Stats(ctx context.Context) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":      s.started,
		"worker_count": s.workerCount,
		"queue_size":   s.queueSize,
		"runs":         s.runs.Count(ctx),
	}
	if s.started {
		queueLen := s.queue.Len(ctx)
		stats["queue_length"] = queueLen
		stats["active_workers"] = s.pool.Active()
		metrics.UpdateQueueSize(queueLen)
	}

	s.bundleMu.RLock()
	stats["cached_bundles"] = len(s.bundles)
	s.bundleMu.RUnlock()
	return stats
}
