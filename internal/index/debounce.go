// ABOUTME: Cancellable scheduled-task arena for fetch debouncing
// ABOUTME: One pending timer per key; scheduling again cancels and reschedules

package index

import (
	"sync"
	"time"
)

// Debouncer coalesces bursts of filter changes into one fetch. Each key
// holds at most one pending task; scheduling under an occupied key cancels
// the pending task and starts the clock over, so the task that eventually
// fires sees the final combined state.
type Debouncer struct {
	mu      sync.Mutex
	pending map[string]*time.Timer
	stopped bool
}

// NewDebouncer creates an empty debouncer.
func NewDebouncer() *Debouncer {
	return &Debouncer{
		pending: make(map[string]*time.Timer),
	}
}

// Schedule arranges for fn to run after delay, replacing any pending task
// under the same key. fn runs on a timer goroutine.
func (d *Debouncer) Schedule(key string, delay time.Duration, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	if t, ok := d.pending[key]; ok {
		t.Stop()
	}

	d.pending[key] = time.AfterFunc(delay, func() {
		d.mu.Lock()
		delete(d.pending, key)
		stopped := d.stopped
		d.mu.Unlock()

		if !stopped {
			fn()
		}
	})
}

// Cancel drops the pending task for key, if any. Returns true if a task was
// pending.
func (d *Debouncer) Cancel(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	t, ok := d.pending[key]
	if !ok {
		return false
	}
	t.Stop()
	delete(d.pending, key)
	return true
}

// Stop cancels everything and rejects future scheduling.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	for key, t := range d.pending {
		t.Stop()
		delete(d.pending, key)
	}
}
