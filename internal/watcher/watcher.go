// Package watcher drives the per-line pipeline: maintenance toggle, extraction,
// detection and dispatch through the gate.
package watcher

import (
	"context"
	"iter"
	"log/slog"
	"time"

	"github.com/sznuper/poolwatch/internal/alert"
	"github.com/sznuper/poolwatch/internal/detect"
	"github.com/sznuper/poolwatch/internal/extract"
	"github.com/sznuper/poolwatch/internal/gate"
	"github.com/sznuper/poolwatch/internal/maintenance"
	"github.com/sznuper/poolwatch/internal/metrics"
)

// Dispatcher is the gate as seen by the watcher.
type Dispatcher interface {
	Dispatch(ctx context.Context, a alert.Alert) gate.Outcome
}

// Deps are the collaborators of a Watcher. Toggle and Metrics may be nil;
// Now defaults to time.Now.
type Deps struct {
	Detector  *detect.Detector
	Extractor extract.Extractor
	Toggle    *maintenance.Toggle
	Gate      Dispatcher
	Metrics   *metrics.Metrics
	Now       func() time.Time
	// OnResult, if set, is called after every line from the processing goroutine.
	OnResult func(Result)
}

// Watcher owns all detection state. It is not safe for concurrent use; one
// goroutine feeds it lines in log order.
type Watcher struct {
	deps   Deps
	logger *slog.Logger
}

// New creates a Watcher with the given collaborators and logger.
func New(deps Deps, logger *slog.Logger) *Watcher {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Watcher{deps: deps, logger: logger}
}

// Process runs one line through the pipeline.
func (w *Watcher) Process(ctx context.Context, line string) Result {
	now := w.deps.Now()
	result := Result{Line: line}

	// Stage 1: maintenance toggle, probed once per line.
	if w.deps.Toggle != nil {
		if a, ok := w.deps.Toggle.Poll(now); ok {
			w.logger.Info("maintenance marker changed", "kind", string(a.Kind))
			result.Deliveries = append(result.Deliveries, w.dispatch(ctx, a))
		}
		result.Maintenance = w.deps.Toggle.Active()
	}

	// Stage 2: extraction.
	obs, ok := w.deps.Extractor.Extract(line)
	if !ok {
		w.deps.Metrics.ObserveLine(metrics.LineUnmatched)
		w.logger.Debug("skipping unmatched line", "line", line)
		result.Snapshot = w.deps.Detector.Snapshot()
		return result
	}
	w.deps.Metrics.ObserveLine(metrics.LineMatched)
	result.Matched = true
	result.Observation = obs

	// Stage 3: detection, failover before error rate.
	for _, a := range w.deps.Detector.Observe(obs, now) {
		result.Deliveries = append(result.Deliveries, w.dispatch(ctx, a))
	}

	snap := w.deps.Detector.Snapshot()
	result.Snapshot = snap
	w.deps.Metrics.SetDetection(snap.WindowLen, snap.WindowFull, snap.ErrorRate, snap.FailedOver)
	if snap.WindowFull {
		w.logger.Debug("error rate evaluated",
			"rate", snap.ErrorRate, "errors", snap.Errors, "window", snap.WindowSize, "breached", snap.Breached)
	}

	return result
}

func (w *Watcher) dispatch(ctx context.Context, a alert.Alert) Delivery {
	return Delivery{Alert: a, Outcome: w.deps.Gate.Dispatch(ctx, a)}
}

// Run processes lines until the sequence ends or ctx is done.
func (w *Watcher) Run(ctx context.Context, lines iter.Seq[string]) Summary {
	summary := Summary{Outcomes: map[gate.Outcome]int{}}
	for line := range lines {
		if ctx.Err() != nil {
			break
		}
		result := w.Process(ctx, line)
		summary.add(result)
		if w.deps.OnResult != nil {
			w.deps.OnResult(result)
		}
	}
	w.logger.Info("watcher stopped", "lines", summary.Lines, "matched", summary.Matched, "alerts", summary.Attempted)
	return summary
}
