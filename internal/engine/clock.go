package engine

import "time"

// Timer is a handle to a scheduled future action
type Timer interface {
	// Stop cancels the action. It reports whether the cancellation
	// happened before the action ran.
	Stop() bool
}

// Clock abstracts time for the engine so tests can inject a fake clock and
// advance it deterministically instead of waiting on real timers.
type Clock interface {
	// Now returns the current time
	Now() time.Time

	// AfterFunc runs fn in its own goroutine after d has elapsed
	AfterFunc(d time.Duration, fn func()) Timer
}

// SystemClock implements Clock using the runtime's real timers
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}
