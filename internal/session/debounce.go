package session

import (
	"context"
	"sync"
	"time"
)

// DefaultSaveDelay is how long a remote write waits for more mutations.
const DefaultSaveDelay = 300 * time.Millisecond

// Debouncer runs at most one pending task after a quiet period. Scheduling a
// new task replaces the pending one and restarts the delay.
type Debouncer struct {
	delay time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	pending func(context.Context)
	seq     uint64
}

// NewDebouncer returns a debouncer with the given delay.
func NewDebouncer(delay time.Duration) *Debouncer {
	if delay <= 0 {
		delay = DefaultSaveDelay
	}
	return &Debouncer{delay: delay}
}

// Schedule cancels any pending task and runs fn once the delay elapses.
func (d *Debouncer) Schedule(fn func(context.Context)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelLocked()
	d.pending = fn
	seq := d.seq
	d.timer = time.AfterFunc(d.delay, func() { d.fire(seq) })
}

// Flush runs the pending task now, if there is one. It reports whether a task ran.
func (d *Debouncer) Flush(ctx context.Context) bool {
	d.mu.Lock()
	fn := d.pending
	d.cancelLocked()
	d.mu.Unlock()
	if fn == nil {
		return false
	}
	fn(ctx)
	return true
}

// Stop drops the pending task. It reports whether one was dropped.
func (d *Debouncer) Stop() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	had := d.pending != nil
	d.cancelLocked()
	return had
}

// Pending reports whether a task is waiting.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending != nil
}

func (d *Debouncer) fire(seq uint64) {
	d.mu.Lock()
	if seq != d.seq || d.pending == nil {
		d.mu.Unlock()
		return
	}
	fn := d.pending
	d.pending = nil
	d.timer = nil
	d.seq++
	d.mu.Unlock()
	fn(context.Background())
}

// cancelLocked invalidates the current timer so a fire already in flight is
// ignored.
func (d *Debouncer) cancelLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending = nil
	d.seq++
}
