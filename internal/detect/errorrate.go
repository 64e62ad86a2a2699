package detect

import (
	"fmt"
	"time"

	"github.com/sznuper/poolwatch/internal/alert"
)

// ErrorRateLatch alternates between breach and recovery announcements.
// The latch only flips when an alert is allowed by the cooldown, so a rate
// bouncing around the threshold produces at most one flip per cooldown period.
type ErrorRateLatch struct {
	threshold float64
	breached  bool
	cooldown  *Cooldown
}

// NewErrorRateLatch returns a clear latch whose cooldown has never fired.
func NewErrorRateLatch(threshold float64, cooldown time.Duration) *ErrorRateLatch {
	return &ErrorRateLatch{
		threshold: threshold,
		cooldown:  NewCooldown(cooldown),
	}
}

// Evaluate checks rate against the threshold. window is the number of
// requests the rate was measured over and only feeds the alert text.
func (l *ErrorRateLatch) Evaluate(rate float64, window int, pool string, now time.Time) (alert.Alert, bool) {
	switch {
	case rate > l.threshold && !l.breached:
		if !l.cooldown.Allow(now) {
			return alert.Alert{}, false
		}
		l.breached = true
		return alert.New(alert.ClassErrorRate, alert.KindErrorRateHigh,
			fmt.Sprintf("High error rate detected: %.2f%% 5xx responses over last %d requests", rate, window),
			now,
		).WithPool(pool).WithErrorRate(rate, window), true

	case rate <= l.threshold && l.breached:
		if !l.cooldown.Allow(now) {
			return alert.Alert{}, false
		}
		l.breached = false
		return alert.New(alert.ClassInfo, alert.KindErrorRateRecovered,
			fmt.Sprintf("Error rate recovered: %.2f%% 5xx responses over last %d requests", rate, window),
			now,
		).WithPool(pool).WithErrorRate(rate, window), true
	}
	return alert.Alert{}, false
}

// Breached reports the latch state.
func (l *ErrorRateLatch) Breached() bool { return l.breached }

// Threshold returns the configured threshold in percent.
func (l *ErrorRateLatch) Threshold() float64 { return l.threshold }
