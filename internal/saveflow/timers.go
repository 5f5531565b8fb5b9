package saveflow

import (
	"sync"
	"time"

	"github.com/chordfold/chordfold/internal/clockwork"
)

// Debouncer delays a callback until triggers pause for the configured
// interval. Each Trigger pushes the deadline out again.
type Debouncer struct {
	clock clockwork.Clock
	delay time.Duration
	fn    func()

	mu      sync.Mutex
	timer   clockwork.Timer
	pending bool
}

// NewDebouncer constructs a debouncer around fn.
func NewDebouncer(clock clockwork.Clock, delay time.Duration, fn func()) *Debouncer {
	return &Debouncer{clock: clock, delay: delay, fn: fn}
}

// Trigger arms or re-arms the debounce window.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = true
	if d.timer == nil {
		d.timer = d.clock.AfterFunc(d.delay, d.fire)
		return
	}
	d.timer.Reset(d.delay)
}

// Flush runs the callback immediately if a call is pending.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	if !d.pending {
		d.mu.Unlock()
		return
	}
	d.pending = false
	if d.timer != nil {
		d.timer.Stop()
	}
	d.mu.Unlock()
	d.fn()
}

// Cancel drops any pending call.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = false
	if d.timer != nil {
		d.timer.Stop()
	}
}

func (d *Debouncer) fire() {
	d.mu.Lock()
	if !d.pending {
		d.mu.Unlock()
		return
	}
	d.pending = false
	d.mu.Unlock()
	d.fn()
}

// Throttler limits a callback to at most once per interval, trailing edge
// only: the first trigger after construction or after a fire schedules the
// callback for the end of the window, never immediately.
type Throttler struct {
	clock    clockwork.Clock
	interval time.Duration
	fn       func()

	mu       sync.Mutex
	timer    clockwork.Timer
	pending  bool
	lastFire time.Time
}

// NewThrottler constructs a throttler around fn. The window is measured from
// construction, so no call happens before one full interval has elapsed.
func NewThrottler(clock clockwork.Clock, interval time.Duration, fn func()) *Throttler {
	return &Throttler{clock: clock, interval: interval, fn: fn, lastFire: clock.Now()}
}

// Trigger schedules the trailing call if one is not already scheduled.
func (t *Throttler) Trigger() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pending {
		return
	}
	t.pending = true
	wait := t.interval - t.clock.Now().Sub(t.lastFire)
	if wait <= 0 {
		wait = t.interval
	}
	if t.timer == nil {
		t.timer = t.clock.AfterFunc(wait, t.fire)
		return
	}
	t.timer.Reset(wait)
}

// Flush runs the callback immediately if a call is scheduled.
func (t *Throttler) Flush() {
	t.mu.Lock()
	if !t.pending {
		t.mu.Unlock()
		return
	}
	t.pending = false
	if t.timer != nil {
		t.timer.Stop()
	}
	t.lastFire = t.clock.Now()
	t.mu.Unlock()
	t.fn()
}

// Cancel drops any scheduled call.
func (t *Throttler) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending = false
	if t.timer != nil {
		t.timer.Stop()
	}
}

func (t *Throttler) fire() {
	t.mu.Lock()
	if !t.pending {
		t.mu.Unlock()
		return
	}
	t.pending = false
	t.lastFire = t.clock.Now()
	t.mu.Unlock()
	t.fn()
}
