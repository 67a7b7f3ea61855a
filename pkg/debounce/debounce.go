// Package debounce collapses bursts of completion notifications into a single
// settle event per quiet window.
package debounce

import (
	"sync"
	"time"

	bep "github.com/bep/debounce"
)

// DefaultWindow is the quiet period after the last notification before it settles.
const DefaultWindow = 50 * time.Millisecond

// Debouncer forwards only the last value received inside a quiet window.
// Every Notify restarts the window; there is never more than one pending timer.
type Debouncer[T any] struct {
	mu      sync.Mutex
	trigger func(func())
	settle  func(T)

	latest  T
	pending bool
	gen     uint64
}

// New creates a debouncer that calls settle once per quiet window.
// settle runs on a timer goroutine unless triggered through Flush.
func New[T any](window time.Duration, settle func(T)) *Debouncer[T] {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Debouncer[T]{
		trigger: bep.New(window),
		settle:  settle,
	}
}

// Notify records v as the latest value and restarts the window.
func (d *Debouncer[T]) Notify(v T) {
	d.mu.Lock()
	d.latest = v
	d.pending = true
	gen := d.gen
	d.mu.Unlock()

	d.trigger(func() { d.fire(gen) })
}

// Flush settles the pending value now, if any, and disarms the timer.
// It reports whether a value was settled.
func (d *Debouncer[T]) Flush() bool {
	v, ok := d.take(true)
	if ok {
		d.settle(v)
	}
	return ok
}

// Cancel drops the pending value without settling it.
func (d *Debouncer[T]) Cancel() {
	d.take(true)
}

// Pending reports whether a value is waiting for its window to close.
func (d *Debouncer[T]) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

func (d *Debouncer[T]) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen {
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()

	if v, ok := d.take(false); ok {
		d.settle(v)
	}
}

// take clears the pending value. When invalidate is set, timers armed before
// this call become no-ops.
func (d *Debouncer[T]) take(invalidate bool) (T, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var zero T
	if invalidate {
		d.gen++
	}
	if !d.pending {
		return zero, false
	}
	v := d.latest
	d.latest = zero
	d.pending = false
	return v, true
}
