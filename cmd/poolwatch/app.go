package main

import (
	"bufio"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/sznuper/poolwatch/internal/alert"
	"github.com/sznuper/poolwatch/internal/config"
	"github.com/sznuper/poolwatch/internal/detect"
	"github.com/sznuper/poolwatch/internal/extract"
	"github.com/sznuper/poolwatch/internal/gate"
	"github.com/sznuper/poolwatch/internal/maintenance"
	"github.com/sznuper/poolwatch/internal/metrics"
	"github.com/sznuper/poolwatch/internal/notify"
	"github.com/sznuper/poolwatch/internal/watcher"
)

// loadConfig resolves the effective config: env file, then config file or
// defaults, then environment, then flags. Field constraints are validated;
// commands that send alerts also call CheckDestination.
func loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	if err := config.LoadEnvFile(envFile); err != nil {
		return nil, "", err
	}
	cfg, path, err := config.Resolve(cfgFile)
	if err != nil {
		return nil, "", err
	}
	if err := applyConfigFlags(cmd, cfg); err != nil {
		return nil, "", err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func newExtractor(cfg *config.Config) (extract.Extractor, error) {
	if cfg.Source.Format == "json" {
		f := cfg.Source.JSONFields
		return extract.NewJSON(extract.JSONFields{Pool: f.Pool, Status: f.Status, Release: f.Release}), nil
	}
	return extract.NewRegex(cfg.Source.Pattern)
}

func newDetector(cfg *config.Config) *detect.Detector {
	return detect.New(detect.Config{
		ActivePool: cfg.Detection.ActivePool,
		Threshold:  cfg.Detection.ErrorRateThreshold,
		WindowSize: cfg.Detection.WindowSize,
		Cooldown:   cfg.Detection.Cooldown.Duration,
	})
}

func notifyOptions(cfg *config.Config) notify.Options {
	templates := make(map[alert.Class]notify.Templates, len(cfg.Notify.Templates))
	for class, t := range cfg.Notify.Templates {
		templates[alert.Class(class)] = notify.Templates{Title: t.Title, Body: t.Body}
	}
	return notify.Options{
		URLs:      cfg.NotifyURLs(),
		Params:    cfg.Notify.Params,
		Templates: templates,
		Globals:   cfg.Globals,
		Timeout:   cfg.Notify.Timeout.Duration,
	}
}

// newDispatcher builds the Shoutrrr dispatcher and attaches the NATS
// publisher when one is configured. The returned func closes NATS.
func newDispatcher(cfg *config.Config, logger *slog.Logger) (*notify.Dispatcher, func(), error) {
	d, err := notify.NewDispatcher(notifyOptions(cfg), logger)
	if err != nil {
		return nil, nil, err
	}
	if cfg.NATS.URL == "" {
		return d, func() {}, nil
	}
	pub, err := notify.ConnectNATS(cfg.NATS.URL, cfg.NATS.Subject, logger)
	if err != nil {
		return nil, nil, err
	}
	d.AddPublisher(pub)
	logger.Info("publishing alerts to NATS", "subject", cfg.NATS.Subject)
	return d, pub.Close, nil
}

// pipeline is the detection stack shared by watch, replay and top.
type pipeline struct {
	watcher  *watcher.Watcher
	detector *detect.Detector
	gate     *gate.Gate
}

type pipelineOpts struct {
	sender   gate.Sender
	metrics  *metrics.Metrics
	now      func() time.Time
	onResult func(watcher.Result)
}

func newPipeline(cfg *config.Config, opts pipelineOpts, logger *slog.Logger) (*pipeline, error) {
	ext, err := newExtractor(cfg)
	if err != nil {
		return nil, err
	}
	det := newDetector(cfg)
	marker := maintenance.NewMarker(cfg.Maintenance.File)
	g := gate.New(marker, opts.sender, cfg.Notify.Timeout.Duration, logger, opts.metrics)

	w := watcher.New(watcher.Deps{
		Detector:  det,
		Extractor: ext,
		Toggle:    maintenance.NewToggle(marker),
		Gate:      g,
		Metrics:   opts.metrics,
		Now:       opts.now,
		OnResult:  opts.onResult,
	}, logger)

	return &pipeline{watcher: w, detector: det, gate: g}, nil
}

// fileLines iterates over the lines of r. The returned func reports the
// scan error once iteration is over.
func fileLines(r io.Reader) (iter.Seq[string], func() error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	seq := func(yield func(string) bool) {
		for sc.Scan() {
			if !yield(sc.Text()) {
				return
			}
		}
	}
	return seq, func() error {
		if err := sc.Err(); err != nil {
			return fmt.Errorf("reading lines: %w", err)
		}
		return nil
	}
}
