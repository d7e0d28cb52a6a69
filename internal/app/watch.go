package app

import (
	"context"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"devstack/internal/watcher"
	"devstack/pkg/logging"
)

// ApplyFunc brings the stack of a to its desired state.
type ApplyFunc func(ctx context.Context, a *Application) error

var (
	sdNotify      = daemon.SdNotify
	watchDebounce = watcher.DefaultDebounceInterval
)

func notify(state string) {
	if sent, err := sdNotify(false, state); err != nil {
		logging.Warn("Watch", "Failed to notify systemd (%s): %v", state, err)
	} else if sent {
		logging.Debug("Watch", "Notified systemd: %s", state)
	}
}

// Watch applies the stack, then re-applies it every time one of
// WatchedFiles changes until ctx is done. Each re-apply rebuilds the
// application from the same Config, so edits to the stack file take
// effect. A failed re-apply is logged and the previous application stays
// current; only the first apply's error is returned.
func (a *Application) Watch(ctx context.Context, apply ApplyFunc) error {
	if err := apply(ctx, a); err != nil {
		return err
	}
	notify(daemon.SdNotifyReady)
	defer notify(daemon.SdNotifyStopping)

	changes := make(chan []string, 1)
	w := watcher.New(watcher.Config{
		Files:    a.WatchedFiles(),
		Debounce: watchDebounce,
		OnChange: func(changed []string) {
			select {
			case changes <- changed:
			default:
			}
		},
	})
	if err := w.Start(); err != nil {
		return err
	}
	defer w.Stop()

	current := a
	for {
		select {
		case <-ctx.Done():
			logging.Info("Watch", "Stopped watching")
			return nil

		case changed := <-changes:
			logging.Warn("Watch", "Detected change in %s, re-applying", strings.Join(changed, ", "))
			notify(daemon.SdNotifyReloading)
			start := time.Now()

			next, err := NewApplication(current.config)
			if err != nil {
				logging.Error("Watch", err, "Keeping the previous configuration")
				notify(daemon.SdNotifyReady)
				continue
			}
			if err := apply(ctx, next); err != nil {
				logging.Error("Watch", err, "Re-apply failed")
			} else {
				current = next
				logging.Info("Watch", "Re-applied in %s", time.Since(start).Round(time.Millisecond))
			}
			notify(daemon.SdNotifyReady)
		}
	}
}
