package detect

import "time"

// Cooldown enforces a minimum interval between accepted alerts of one class.
// The zero lastFired means the class has never fired.
type Cooldown struct {
	period    time.Duration
	lastFired time.Time
}

// NewCooldown returns a cooldown that has never fired.
func NewCooldown(period time.Duration) *Cooldown {
	return &Cooldown{period: period}
}

// Ready reports whether an alert may fire at now.
func (c *Cooldown) Ready(now time.Time) bool {
	return c.lastFired.IsZero() || now.Sub(c.lastFired) >= c.period
}

// Allow is Ready followed by recording now as the last fire time when ready.
func (c *Cooldown) Allow(now time.Time) bool {
	if !c.Ready(now) {
		return false
	}
	c.lastFired = now
	return true
}

// LastFired returns the time of the last accepted alert, or the zero time.
func (c *Cooldown) LastFired() time.Time { return c.lastFired }
