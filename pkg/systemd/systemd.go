// Package systemd reports runner lifecycle to systemd via sd_notify.
//
// Every call is a no-op when the process was not started by systemd
// (NOTIFY_SOCKET unset), so callers never need to check.
package systemd

import (
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "taskd/pkg/logx"
)

type Notifier struct {
	log logx.Logger

	once     sync.Once
	watchdog time.Duration
}

func New(log logx.Logger) *Notifier {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Notifier{log: log}
}

func (n *Notifier) Ready()    { n.send(daemon.SdNotifyReady) }
func (n *Notifier) Stopping() { n.send(daemon.SdNotifyStopping) }

// Watchdog pings the service watchdog if WatchdogSec is configured for the
// unit. The unit's WatchdogSec must exceed the poll interval plus the longest
// job, since pings are only sent between scans.
func (n *Notifier) Watchdog() {
	n.once.Do(func() {
		d, err := daemon.SdWatchdogEnabled(false)
		if err != nil {
			n.log.Debug("watchdog detection failed", logx.Err(err))
			return
		}
		n.watchdog = d
		if d > 0 {
			n.log.Debug("watchdog enabled", logx.Duration("timeout", d))
		}
	})
	if n.watchdog > 0 {
		n.send(daemon.SdNotifyWatchdog)
	}
}

func (n *Notifier) Status(msg string) { n.send("STATUS=" + msg) }

func (n *Notifier) send(state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		n.log.Debug("sd_notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		n.log.Trace("sd_notify", logx.String("state", state))
	}
}
