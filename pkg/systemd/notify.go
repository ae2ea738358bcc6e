// Package systemd reports service state to systemd over the notify socket.
// Every call is a no-op when the process was not started by systemd.
package systemd

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// notifyFunc matches daemon.SdNotify.
type notifyFunc func(unsetEnvironment bool, state string) (bool, error)

type Notifier struct {
	notify   notifyFunc
	watchdog func(unsetEnvironment bool) (time.Duration, error)
}

func NewNotifier() *Notifier {
	return &Notifier{notify: daemon.SdNotify, watchdog: daemon.SdWatchdogEnabled}
}

func (n *Notifier) send(state string) (bool, error) {
	if n == nil || n.notify == nil {
		return false, nil
	}
	return n.notify(false, state)
}

func (n *Notifier) Ready() (bool, error)    { return n.send(daemon.SdNotifyReady) }
func (n *Notifier) Stopping() (bool, error) { return n.send(daemon.SdNotifyStopping) }

// Reloading must be followed by Ready once the new config is applied.
func (n *Notifier) Reloading() (bool, error) { return n.send(daemon.SdNotifyReloading) }

// Status sets the free-form status line shown by systemctl status.
func (n *Notifier) Status(s string) (bool, error) { return n.send("STATUS=" + s) }

// WatchdogInterval returns how often the unit expects a keep-alive, or 0.
func (n *Notifier) WatchdogInterval() time.Duration {
	if n == nil || n.watchdog == nil {
		return 0
	}
	d, err := n.watchdog(false)
	if err != nil {
		return 0
	}
	return d
}

// RunWatchdog pings at half the watchdog interval until ctx is done.
// It returns immediately when the unit has no watchdog configured.
func (n *Notifier) RunWatchdog(ctx context.Context) {
	every := n.WatchdogInterval() / 2
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			_, _ = n.send(daemon.SdNotifyWatchdog)
		}
	}
}
