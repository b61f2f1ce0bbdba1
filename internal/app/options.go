package service

import (
	"time"

	"github.com/okian/autotrain/internal/adapters/repository"
	"github.com/okian/autotrain/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of concurrent pipeline workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets how many submitted runs may wait for a worker.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithRunTimeout bounds each queued run. Zero disables the bound.
func WithRunTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.runTimeout = d
		}
	}
}

// WithRetrainInterval submits a scheduled run every d while the service is
// started. Zero disables scheduling.
func WithRetrainInterval(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.retrainEvery = d
		}
	}
}

// WithRunStore sets the run history store. Pass the same store to
// Recorder so the pipeline's transitions land in it.
func WithRunStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.runs = store
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the clock used for run requests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}
