package objectstore

import "time"

// Option configures an FS store.
type Option func(*FS)

// WithStaleLockAge sets how old a CAS lock file may get before it is
// considered abandoned and removed.
func WithStaleLockAge(d time.Duration) Option {
	return func(s *FS) {
		if d > 0 {
			s.staleLockAge = d
		}
	}
}

// WithLockRetry sets the delay between attempts to take a CAS lock.
func WithLockRetry(d time.Duration) Option {
	return func(s *FS) {
		if d > 0 {
			s.lockRetry = d
		}
	}
}
