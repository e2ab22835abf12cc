// Package debounce coalesces bursts of signals into single flushes.
//
// A flush fires once no Signal has arrived for the quiet interval, but never
// later than maxWait after the first Signal of the burst:
//
//	IDLE --Signal--> PENDING --Signal--> PENDING (deadline moved, capped at burstStart+maxWait)
//	PENDING --deadline--> flush --> IDLE
//
// Signals arriving while a flush callback runs start a new burst.
package debounce

import (
	"sync"
	"time"

	"github.com/juju/clock"
)

const (
	// DefaultQuiet is the idle time after the last signal before a flush
	DefaultQuiet = 1000 * time.Millisecond
	// DefaultMaxWait bounds how long a continuous burst can postpone a flush
	DefaultMaxWait = 5000 * time.Millisecond
)

// Debouncer schedules fn with debounce-with-max-wait semantics
type Debouncer struct {
	clock   clock.Clock
	quiet   time.Duration
	maxWait time.Duration
	fn      func()

	mu         sync.Mutex
	timer      clock.Timer
	burstStart time.Time
	generation uint64
	stopped    bool
}

// New creates a debouncer. Non-positive durations fall back to the defaults
// and maxWait is raised to quiet when smaller.
func New(clk clock.Clock, quiet, maxWait time.Duration, fn func()) *Debouncer {
	if clk == nil {
		clk = clock.WallClock
	}
	if quiet <= 0 {
		quiet = DefaultQuiet
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}
	if maxWait < quiet {
		maxWait = quiet
	}
	return &Debouncer{
		clock:   clk,
		quiet:   quiet,
		maxWait: maxWait,
		fn:      fn,
	}
}

// Signal records a change now and (re)arms the flush timer
func (d *Debouncer) Signal() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	now := d.clock.Now()
	if d.burstStart.IsZero() {
		d.burstStart = now
	}

	deadline := now.Add(d.quiet)
	if ceiling := d.burstStart.Add(d.maxWait); ceiling.Before(deadline) {
		deadline = ceiling
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.generation++
	gen := d.generation
	d.timer = d.clock.AfterFunc(deadline.Sub(now), func() {
		d.fire(gen)
	})
}

// Flush fires immediately if a burst is pending
func (d *Debouncer) Flush() {
	d.mu.Lock()
	if d.burstStart.IsZero() {
		d.mu.Unlock()
		return
	}
	d.reset()
	d.mu.Unlock()

	d.fn()
}

// Pending reports whether a flush is scheduled
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return !d.burstStart.IsZero()
}

// Stop disarms the timer; later signals are ignored
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	d.reset()
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.generation || d.burstStart.IsZero() {
		// Replaced by a later signal, flushed or stopped
		d.mu.Unlock()
		return
	}
	d.reset()
	d.mu.Unlock()

	d.fn()
}

// reset resets burst state. Caller holds mu.
func (d *Debouncer) reset() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.generation++
	d.burstStart = time.Time{}
}
