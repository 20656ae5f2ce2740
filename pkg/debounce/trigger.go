// Package debounce coalesces bursts of notifications into a single call
// after a quiet period.
package debounce

import (
	"sync"
	"time"
)

// DefaultInterval is the quiet period used for search-as-you-type.
const DefaultInterval = 500 * time.Millisecond

// Trigger runs fn once no Notify call has happened for the interval.
type Trigger struct {
	mu       sync.Mutex
	interval time.Duration
	fn       func()
	timer    *time.Timer
	gen      uint64
	stopped  bool
}

// New creates a trigger. A non-positive interval uses DefaultInterval.
func New(interval time.Duration, fn func()) *Trigger {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Trigger{
		interval: interval,
		fn:       fn,
	}
}

// Notify (re)starts the quiet period, cancelling any pending call.
func (t *Trigger) Notify() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return
	}
	if t.timer != nil {
		t.timer.Stop()
	}

	t.gen++
	gen := t.gen
	t.timer = time.AfterFunc(t.interval, func() {
		t.fire(gen)
	})
}

// Flush runs a pending call immediately. It is a no-op when nothing is pending.
func (t *Trigger) Flush() {
	t.mu.Lock()
	if t.stopped || t.timer == nil {
		t.mu.Unlock()
		return
	}
	t.timer.Stop()
	t.timer = nil
	t.gen++
	t.mu.Unlock()

	t.fn()
}

// Pending reports whether a call is scheduled.
func (t *Trigger) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.timer != nil
}

// Cancel drops a pending call without stopping the trigger.
func (t *Trigger) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.gen++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

// Stop cancels any pending call. Later Notify calls are ignored.
func (t *Trigger) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopped = true
	t.gen++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

// fire runs fn if gen is still the latest schedule. A timer that already
// fired while Stop or Notify raced with it is ignored.
func (t *Trigger) fire(gen uint64) {
	t.mu.Lock()
	if t.stopped || gen != t.gen {
		t.mu.Unlock()
		return
	}
	t.timer = nil
	t.mu.Unlock()

	t.fn()
}
