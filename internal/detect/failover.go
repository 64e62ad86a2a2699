package detect

import (
	"fmt"
	"time"

	"github.com/sznuper/poolwatch/internal/alert"
)

// FailoverTracker follows which pool is serving traffic.
//
// Every change of the observed pool is a failover event. The remembered pool
// always advances, whether or not the cooldown lets the alert through, so
// state tracking and alert suppression stay independent.
type FailoverTracker struct {
	active   string
	current  string
	cooldown *Cooldown
}

// NewFailoverTracker starts in the primary state on the active pool.
func NewFailoverTracker(active string, cooldown time.Duration) *FailoverTracker {
	return &FailoverTracker{
		active:   active,
		current:  active,
		cooldown: NewCooldown(cooldown),
	}
}

// Observe records pool as the serving pool and returns an alert when the
// change should be announced.
func (f *FailoverTracker) Observe(pool string, now time.Time) (alert.Alert, bool) {
	if pool == f.current {
		return alert.Alert{}, false
	}

	prev := f.current
	f.current = pool
	if !f.cooldown.Allow(now) {
		return alert.Alert{}, false
	}

	if pool == f.active {
		return alert.New(alert.ClassInfo, alert.KindPrimaryRestored,
			fmt.Sprintf("Primary pool `%s` is now serving traffic again (was `%s`).", f.active, prev),
			now,
		).WithPool(f.active), true
	}

	return alert.New(alert.ClassFailover, alert.KindFailover,
		fmt.Sprintf("Failover detected! Pool switched from `%s` → `%s`", prev, pool),
		now,
	).WithPool(pool), true
}

// Current returns the remembered serving pool.
func (f *FailoverTracker) Current() string { return f.current }

// FailedOver reports whether traffic is served by a pool other than the active one.
func (f *FailoverTracker) FailedOver() bool { return f.current != f.active }
