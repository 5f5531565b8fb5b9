// Package clockwork abstracts wall-clock reads and timer scheduling so the
// merge-window, debounce and throttle logic can be driven deterministically
// in tests.
package clockwork

import "time"

// Timer is a cancellable, re-armable single-shot timer.
type Timer interface {
	// Stop prevents the timer from firing. It reports whether the timer was
	// still pending.
	Stop() bool
	// Reset re-arms the timer to fire after the provided duration.
	Reset(d time.Duration) bool
}

// Clock provides the current time and timer construction.
type Clock interface {
	Now() time.Time
	// AfterFunc schedules fn to run once after d elapses.
	AfterFunc(d time.Duration, fn func()) Timer
}

type systemClock struct{}

// System returns a Clock backed by the time package.
func System() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) AfterFunc(d time.Duration, fn func()) Timer {
	return systemTimer{timer: time.AfterFunc(d, fn)}
}

type systemTimer struct {
	timer *time.Timer
}

func (t systemTimer) Stop() bool {
	return t.timer.Stop()
}

func (t systemTimer) Reset(d time.Duration) bool {
	return t.timer.Reset(d)
}
