package jobs

import (
	"sync"
	"time"
)

// Debouncer coalesces bursts of triggers per key into a single callback
// invocation after a quiet window. A newer trigger supersedes the pending
// one, which is safe for idempotent recomputation jobs.
type Debouncer struct {
	window time.Duration
	fn     func(key string)

	mu      sync.Mutex
	pending map[string]*time.Timer
	closed  bool
}

// NewDebouncer builds a debouncer invoking fn at most once per window per key.
func NewDebouncer(window time.Duration, fn func(key string)) *Debouncer {
	if window <= 0 {
		window = time.Minute
	}
	return &Debouncer{
		window:  window,
		fn:      fn,
		pending: make(map[string]*time.Timer),
	}
}

// Trigger schedules (or reschedules) the callback for key.
func (d *Debouncer) Trigger(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	if timer, ok := d.pending[key]; ok {
		timer.Reset(d.window)
		return
	}
	d.pending[key] = time.AfterFunc(d.window, func() {
		d.mu.Lock()
		delete(d.pending, key)
		closed := d.closed
		d.mu.Unlock()
		if !closed {
			d.fn(key)
		}
	})
}

// Flush fires all pending callbacks immediately. Used by the nightly batch
// and in shutdown paths.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	keys := make([]string, 0, len(d.pending))
	for key, timer := range d.pending {
		timer.Stop()
		keys = append(keys, key)
	}
	d.pending = make(map[string]*time.Timer)
	d.mu.Unlock()

	for _, key := range keys {
		d.fn(key)
	}
}

// Close stops all pending timers without firing them.
func (d *Debouncer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	for key, timer := range d.pending {
		timer.Stop()
		delete(d.pending, key)
	}
}
