package terminal

import (
	"context"
	"sync"
	"time"
)

// resizeDebounce coalesces bursts of window-change signals.
const resizeDebounce = 150 * time.Millisecond

// Debouncer calls fn with the latest size once no new size has arrived for
// the debounce interval. Repeated identical sizes are reported once.
type Debouncer struct {
	delay time.Duration
	fn    func(cols, rows int)

	mu         sync.Mutex
	timer      *time.Timer
	cols, rows int
	lastCols   int
	lastRows   int
}

// NewDebouncer returns a Debouncer with the given delay.
func NewDebouncer(delay time.Duration, fn func(cols, rows int)) *Debouncer {
	return &Debouncer{delay: delay, fn: fn}
}

// Trigger records a new size and restarts the delay.
func (d *Debouncer) Trigger(cols, rows int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cols, d.rows = cols, rows
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.fire)
}

func (d *Debouncer) fire() {
	d.mu.Lock()
	cols, rows := d.cols, d.rows
	if cols == d.lastCols && rows == d.lastRows {
		d.mu.Unlock()
		return
	}
	d.lastCols, d.lastRows = cols, rows
	d.mu.Unlock()
	d.fn(cols, rows)
}

// Stop cancels a pending call.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
}

// WatchResize calls fn, debounced, whenever the window size changes, until
// ctx is done.
func (t *Terminal) WatchResize(ctx context.Context, fn func(cols, rows int)) {
	d := NewDebouncer(resizeDebounce, fn)
	go func() {
		defer d.Stop()
		watchSize(ctx, t, d)
	}()
}
