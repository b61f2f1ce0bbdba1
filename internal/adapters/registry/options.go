package registry

import (
	"time"

	"github.com/okian/autotrain/pkg/logger"
)

// Option configures a Registry.
type Option func(*Registry)

// WithConflictPolicy selects how a promotion that lost a race is resolved.
func WithConflictPolicy(p ConflictPolicy) Option {
	return func(r *Registry) { r.policy = p }
}

// WithClock overrides the clock used for version ids and timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithVersionFunc overrides version id generation.
func WithVersionFunc(fn func(time.Time) string) Option {
	return func(r *Registry) {
		if fn != nil {
			r.newVersion = fn
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.log = l
		}
	}
}
