// Package mirror keeps in-memory copies of a user's rows for the week on
// screen, applies edits optimistically, and persists them after a quiet
// period so the backend is not hit on every keystroke.
package mirror

import (
	"sync"
	"time"
)

// DefaultWindow is the quiet period used when a caller passes a
// non-positive window.
const DefaultWindow = time.Second

// Debouncer schedules one pending function per key. Triggering a key that
// already has a pending function cancels and reschedules it, so only the
// work scheduled last ever runs.
type Debouncer struct {
	mu      sync.Mutex
	window  time.Duration
	pending map[string]*pendingCall
}

type pendingCall struct {
	timer *time.Timer
	fn    func()
}

// NewDebouncer creates a debouncer with the given quiet period.
func NewDebouncer(window time.Duration) *Debouncer {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Debouncer{
		window:  window,
		pending: make(map[string]*pendingCall),
	}
}

// Trigger schedules fn to run after the quiet period. A previous pending
// call for the same key is dropped; its timer never fires.
func (d *Debouncer) Trigger(key string, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if prev, ok := d.pending[key]; ok {
		prev.timer.Stop()
	}
	call := &pendingCall{fn: fn}
	call.timer = time.AfterFunc(d.window, func() {
		d.mu.Lock()
		// A Trigger or Cancel may have replaced this call while the timer
		// was firing; only the currently registered call may run.
		cur, ok := d.pending[key]
		if !ok || cur != call {
			d.mu.Unlock()
			return
		}
		delete(d.pending, key)
		d.mu.Unlock()
		fn()
	})
	d.pending[key] = call
}

// Flush runs the pending call for key immediately, if any.
func (d *Debouncer) Flush(key string) {
	d.mu.Lock()
	call, ok := d.pending[key]
	if ok {
		call.timer.Stop()
		delete(d.pending, key)
	}
	d.mu.Unlock()
	if ok {
		call.fn()
	}
}

// FlushAll runs every pending call immediately.
func (d *Debouncer) FlushAll() {
	d.mu.Lock()
	calls := make([]func(), 0, len(d.pending))
	for key, call := range d.pending {
		call.timer.Stop()
		delete(d.pending, key)
		calls = append(calls, call.fn)
	}
	d.mu.Unlock()
	for _, fn := range calls {
		fn()
	}
}

// Cancel drops the pending call for key without running it.
func (d *Debouncer) Cancel(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if call, ok := d.pending[key]; ok {
		call.timer.Stop()
		delete(d.pending, key)
	}
}

// CancelAll drops every pending call. Used when the mirror's scope (the
// week on screen) changes and the old week's saves no longer apply.
func (d *Debouncer) CancelAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for key, call := range d.pending {
		call.timer.Stop()
		delete(d.pending, key)
	}
}

// Pending reports whether a call is scheduled for key.
func (d *Debouncer) Pending(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.pending[key]
	return ok
}
