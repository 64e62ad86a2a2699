// Package metrics exposes Prometheus collectors for the watcher.
//
// All methods are safe to call on a nil *Metrics, which records nothing.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "poolwatch"

// Line results.
const (
	LineMatched   = "matched"
	LineUnmatched = "unmatched"
)

// Metrics holds the watcher collectors.
type Metrics struct {
	linesTotal       *prometheus.CounterVec
	alertsTotal      *prometheus.CounterVec
	dispatchDuration prometheus.Histogram
	errorRate        prometheus.Gauge
	windowFill       prometheus.Gauge
	failedOver       prometheus.Gauge
	maintenance      prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		linesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lines_total",
				Help:      "Log lines read, partitioned by whether they matched the extraction pattern.",
			},
			[]string{"result"},
		),
		alertsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "alerts_total",
				Help:      "Alerts attempted, partitioned by kind and gate outcome.",
			},
			[]string{"kind", "outcome"}, // outcome: dispatched, suppressed, failed
		),
		dispatchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "dispatch_seconds",
				Help:      "Time spent sending an alert to the notification sinks.",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
		),
		errorRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "error_rate_percent",
			Help:      "5xx percentage over the request window, once the window is full.",
		}),
		windowFill: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "window_fill",
			Help:      "Number of status codes currently held in the request window.",
		}),
		failedOver: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "failed_over",
			Help:      "1 while traffic is served by a pool other than the active pool.",
		}),
		maintenance: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "maintenance_active",
			Help:      "1 while the maintenance marker is present.",
		}),
	}

	collectors := []prometheus.Collector{
		m.linesTotal,
		m.alertsTotal,
		m.dispatchDuration,
		m.errorRate,
		m.windowFill,
		m.failedOver,
		m.maintenance,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("registering collector: %w", err)
		}
	}
	return m, nil
}

// ObserveLine counts one line read from the log.
func (m *Metrics) ObserveLine(result string) {
	if m == nil {
		return
	}
	m.linesTotal.WithLabelValues(result).Inc()
}

// ObserveAlert counts one alert attempt and its gate outcome.
func (m *Metrics) ObserveAlert(kind, outcome string) {
	if m == nil {
		return
	}
	m.alertsTotal.WithLabelValues(kind, outcome).Inc()
}

// ObserveDispatch records how long a send took.
func (m *Metrics) ObserveDispatch(d time.Duration) {
	if m == nil {
		return
	}
	if d < 0 {
		d = 0
	}
	m.dispatchDuration.Observe(d.Seconds())
}

// SetDetection publishes the detector state.
func (m *Metrics) SetDetection(windowLen int, full bool, rate float64, failedOver bool) {
	if m == nil {
		return
	}
	m.windowFill.Set(float64(windowLen))
	if full {
		m.errorRate.Set(rate)
	}
	m.failedOver.Set(boolGauge(failedOver))
}

// SetMaintenance publishes the maintenance marker state.
func (m *Metrics) SetMaintenance(active bool) {
	if m == nil {
		return
	}
	m.maintenance.Set(boolGauge(active))
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
