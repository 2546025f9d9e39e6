//go:build windows

package terminal

import (
	"context"
	"time"
)

// Windows has no SIGWINCH; poll instead.
func watchSize(ctx context.Context, t *Terminal, d *Debouncer) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Trigger(t.Size())
		}
	}
}
