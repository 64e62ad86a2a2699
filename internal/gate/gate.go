// Package gate is the last stop before an alert leaves the process. It drops
// everything while maintenance mode is active and bounds each send with a
// timeout. Failures are logged and swallowed.
//
// A Gate holds no detection state, so the watch loop, the control server and
// the heartbeat scheduler may share one.
package gate

import (
	"context"
	"log/slog"
	"time"

	"github.com/sznuper/poolwatch/internal/alert"
	"github.com/sznuper/poolwatch/internal/metrics"
)

// DefaultTimeout bounds a single dispatch.
const DefaultTimeout = 5 * time.Second

// Sender delivers an alert to the outside world.
type Sender interface {
	Send(ctx context.Context, a alert.Alert) error
}

// Probe reports whether alerts are currently suppressed.
type Probe interface {
	Active() bool
}

// Outcome is what happened to an alert at the gate.
type Outcome string

const (
	Dispatched Outcome = "dispatched"
	Suppressed Outcome = "suppressed"
	Failed     Outcome = "failed"
)

// Gate wraps a Sender with maintenance suppression.
type Gate struct {
	probe   Probe
	sender  Sender
	timeout time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New creates a Gate. A zero timeout uses DefaultTimeout; m may be nil.
func New(probe Probe, sender Sender, timeout time.Duration, logger *slog.Logger, m *metrics.Metrics) *Gate {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Gate{
		probe:   probe,
		sender:  sender,
		timeout: timeout,
		logger:  logger,
		metrics: m,
	}
}

// Dispatch sends a unless maintenance is active. The marker is probed at
// call time, so a notice about maintenance being enabled is itself dropped.
func (g *Gate) Dispatch(ctx context.Context, a alert.Alert) Outcome {
	log := g.logger.With("alert_id", a.ID, "kind", string(a.Kind), "class", string(a.Class))

	active := g.probe.Active()
	g.metrics.SetMaintenance(active)
	if active {
		log.Info("maintenance mode: suppressed alert", "text", a.Text)
		g.metrics.ObserveAlert(string(a.Kind), string(Suppressed))
		return Suppressed
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	err := g.sender.Send(ctx, a)
	g.metrics.ObserveDispatch(time.Since(start))
	if err != nil {
		log.Error("failed to send alert", "error", err)
		g.metrics.ObserveAlert(string(a.Kind), string(Failed))
		return Failed
	}

	log.Info("alert sent", "pool", a.Pool)
	g.metrics.ObserveAlert(string(a.Kind), string(Dispatched))
	return Dispatched
}
