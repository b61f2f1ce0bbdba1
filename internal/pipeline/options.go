package pipeline

import (
	"context"
	"time"

	"github.com/okian/autotrain/internal/domain/model"
	"github.com/okian/autotrain/pkg/logger"
)

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.log = l
		}
	}
}

// WithClock overrides the clock used for transitions and artifacts.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// WithIDFunc overrides run id generation.
func WithIDFunc(fn func() string) Option {
	return func(p *Pipeline) {
		if fn != nil {
			p.newID = fn
		}
	}
}

// WithObserver registers a callback invoked with a snapshot of the run
// record after every state transition.
func WithObserver(fn func(context.Context, model.RunRecord)) Option {
	return func(p *Pipeline) {
		if fn != nil {
			p.observers = append(p.observers, fn)
		}
	}
}
