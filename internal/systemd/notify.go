// Package systemd reports service state to the service manager when the
// process runs under a unit with Type=notify. Outside systemd every call is
// a no-op.
package systemd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// Ready tells systemd that startup finished. It reports whether the
// notification was delivered.
func Ready() (bool, error) {
	return notify(daemon.SdNotifyReady)
}

// Stopping tells systemd that shutdown began.
func Stopping() (bool, error) {
	return notify(daemon.SdNotifyStopping)
}

// Status sets the free-form status line shown by systemctl status.
func Status(format string, args ...any) (bool, error) {
	return notify("STATUS=" + fmt.Sprintf(format, args...))
}

func notify(state string) (bool, error) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		return false, fmt.Errorf("sd_notify %q: %w", state, err)
	}
	return sent, nil
}

// RunWatchdog pings the systemd watchdog at half the configured interval
// until ctx ends. It returns immediately when the unit has no watchdog.
func RunWatchdog(ctx context.Context, logger *slog.Logger) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		logger.Warn("Invalid watchdog settings", "error", err)
		return
	}
	if interval == 0 {
		return
	}

	logger.Info("Watchdog enabled", "interval", interval)
	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := notify(daemon.SdNotifyWatchdog); err != nil {
				logger.Warn("Watchdog ping failed", "error", err)
			}
		}
	}
}
