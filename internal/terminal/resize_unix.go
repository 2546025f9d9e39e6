//go:build !windows

package terminal

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func watchSize(ctx context.Context, t *Terminal, d *Debouncer) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGWINCH)
	defer signal.Stop(ch)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ch:
			d.Trigger(t.Size())
		}
	}
}
