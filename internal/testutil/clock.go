// Package testutil provides shared test doubles.
package testutil

import (
	"sort"
	"sync"
	"time"

	"github.com/chordfold/chordfold/internal/clockwork"
)

// FakeClock implements clockwork.Clock with manually advanced time. Timers
// fire synchronously inside Advance, in due order.
type FakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

// NewFakeClock returns a FakeClock starting at the provided instant.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// Now returns the fake current time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AfterFunc registers fn to run when the fake clock advances past d.
func (c *FakeClock) AfterFunc(d time.Duration, fn func()) clockwork.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	timer := &fakeTimer{clock: c, fn: fn, deadline: c.now.Add(d), armed: true}
	c.timers = append(c.timers, timer)
	return timer
}

// Advance moves the clock forward and fires every timer whose deadline has
// passed. Callbacks run without the clock lock held, so they may re-arm
// timers or read Now.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	for {
		timer := c.nextDueLocked(target)
		if timer == nil {
			break
		}
		if timer.deadline.After(c.now) {
			c.now = timer.deadline
		}
		timer.armed = false
		fn := timer.fn
		c.mu.Unlock()
		fn()
		c.mu.Lock()
	}
	c.now = target
	c.mu.Unlock()
}

func (c *FakeClock) nextDueLocked(target time.Time) *fakeTimer {
	due := make([]*fakeTimer, 0, len(c.timers))
	for _, timer := range c.timers {
		if timer.armed && !timer.deadline.After(target) {
			due = append(due, timer)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool { return due[i].deadline.Before(due[j].deadline) })
	return due[0]
}

type fakeTimer struct {
	clock    *FakeClock
	fn       func()
	deadline time.Time
	armed    bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	wasArmed := t.armed
	t.armed = false
	return wasArmed
}

func (t *fakeTimer) Reset(d time.Duration) bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	wasArmed := t.armed
	t.deadline = t.clock.now.Add(d)
	t.armed = true
	return wasArmed
}
