// Package heartbeat periodically sends an "alive" notice through the gate so
// a silent channel can be told apart from a dead watcher.
package heartbeat

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/sznuper/poolwatch/internal/alert"
	"github.com/sznuper/poolwatch/internal/gate"
)

// DefaultText is sent when Options.Text is empty.
const DefaultText = "💓 Watcher heartbeat: still watching the access log"

// Dispatcher is the gate as seen by the scheduler.
type Dispatcher interface {
	Dispatch(ctx context.Context, a alert.Alert) gate.Outcome
}

type Options struct {
	// Schedule uses standard five-field cron syntax or descriptors such as "@hourly".
	Schedule string
	Text     string
	Now      func() time.Time
}

// Scheduler fires heartbeats on a cron schedule.
type Scheduler struct {
	cron   *cron.Cron
	gate   Dispatcher
	opts   Options
	logger *slog.Logger
}

// New validates the schedule and registers the heartbeat job.
func New(g Dispatcher, opts Options, logger *slog.Logger) (*Scheduler, error) {
	if opts.Text == "" {
		opts.Text = DefaultText
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Scheduler{gate: g, opts: opts, logger: logger}
	s.cron = cron.New(cron.WithLogger(cronLogger{logger}))
	if _, err := s.cron.AddFunc(opts.Schedule, func() { s.Beat(context.Background()) }); err != nil {
		return nil, fmt.Errorf("parsing heartbeat schedule %q: %w", opts.Schedule, err)
	}
	return s, nil
}

// Beat dispatches one heartbeat now.
func (s *Scheduler) Beat(ctx context.Context) gate.Outcome {
	a := alert.New(alert.ClassInfo, alert.KindHeartbeat, s.opts.Text, s.opts.Now())
	outcome := s.gate.Dispatch(ctx, a)
	s.logger.Debug("heartbeat", "outcome", string(outcome))
	return outcome
}

// Next returns the next scheduled fire time after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Schedule.Next(t)
}

// Run starts the schedule and blocks until ctx is done and any running
// heartbeat has finished.
func (s *Scheduler) Run(ctx context.Context) {
	s.cron.Start()
	s.logger.Info("heartbeat scheduled", "schedule", s.opts.Schedule, "next", s.Next(time.Now()))
	<-ctx.Done()
	<-s.cron.Stop().Done()
}

// cronLogger routes cron's own messages to slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append([]any{"error", err}, keysAndValues...)...)
}
