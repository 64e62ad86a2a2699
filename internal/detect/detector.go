// Package detect holds the stateful detection engine: the error window, the
// failover tracker, and the error-rate latch, each with its own cooldown.
//
// A Detector is not safe for concurrent use. It is owned by a single loop
// that feeds it observations in log order.
package detect

import (
	"time"

	"github.com/sznuper/poolwatch/internal/alert"
	"github.com/sznuper/poolwatch/internal/extract"
)

// Config holds the detection parameters.
type Config struct {
	ActivePool string
	Threshold  float64 // percent
	WindowSize int
	Cooldown   time.Duration
}

// Detector combines the window, the failover tracker and the error-rate latch.
type Detector struct {
	cfg      Config
	window   *Window
	failover *FailoverTracker
	latch    *ErrorRateLatch
}

// New creates a Detector in its initial state: empty window, tracker on the
// active pool, latch clear, both cooldowns never fired.
func New(cfg Config) *Detector {
	return &Detector{
		cfg:      cfg,
		window:   NewWindow(cfg.WindowSize),
		failover: NewFailoverTracker(cfg.ActivePool, cfg.Cooldown),
		latch:    NewErrorRateLatch(cfg.Threshold, cfg.Cooldown),
	}
}

// Observe feeds one matched log line into the detector and returns the
// alerts to attempt, failover first. Alert attempts have already updated the
// cooldowns and the latch; the caller must not roll them back if dispatch fails.
func (d *Detector) Observe(obs extract.Observation, now time.Time) []alert.Alert {
	var out []alert.Alert

	d.window.Push(obs.Status)

	if a, ok := d.failover.Observe(obs.Pool, now); ok {
		a.Release = obs.Release
		out = append(out, a)
	}

	if d.window.Full() {
		if a, ok := d.latch.Evaluate(d.window.ErrorRate(), d.window.Size(), d.cfg.ActivePool, now); ok {
			out = append(out, a)
		}
	}

	return out
}

// Snapshot is a read-only copy of the detector state.
type Snapshot struct {
	ActivePool  string
	CurrentPool string
	FailedOver  bool
	WindowLen   int
	WindowSize  int
	WindowFull  bool
	Errors      int
	ErrorRate   float64 // only meaningful when WindowFull
	Threshold   float64
	Breached    bool
}

// Snapshot returns the current state.
func (d *Detector) Snapshot() Snapshot {
	return Snapshot{
		ActivePool:  d.cfg.ActivePool,
		CurrentPool: d.failover.Current(),
		FailedOver:  d.failover.FailedOver(),
		WindowLen:   d.window.Len(),
		WindowSize:  d.window.Size(),
		WindowFull:  d.window.Full(),
		Errors:      d.window.Errors(),
		ErrorRate:   d.window.ErrorRate(),
		Threshold:   d.latch.Threshold(),
		Breached:    d.latch.Breached(),
	}
}
