package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sznuper/poolwatch/internal/heartbeat"
	"github.com/sznuper/poolwatch/internal/metrics"
	"github.com/sznuper/poolwatch/internal/server"
	"github.com/sznuper/poolwatch/internal/tail"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Tail the access log and send alerts",
	Long: "Follows the access log, runs every line through the failover and error-rate detectors, " +
		"and sends alerts. Also serves the control endpoints and the optional heartbeat.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := cfg.CheckDestination(); err != nil {
			return err
		}
		logger := setupLogger(cfg.Log.Level)
		if path == "" {
			path = "(defaults)"
		}
		logger.Info("starting poolwatch",
			"config", path,
			"log_path", cfg.Source.Path,
			"active_pool", cfg.Detection.ActivePool,
			"threshold", cfg.Detection.ErrorRateThreshold,
			"window", cfg.Detection.WindowSize,
			"cooldown", cfg.Detection.Cooldown.Duration,
			"maintenance_file", cfg.Maintenance.File,
		)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		m, err := metrics.New(reg)
		if err != nil {
			return err
		}

		dispatcher, closeNATS, err := newDispatcher(cfg, logger)
		if err != nil {
			return err
		}
		defer closeNATS()

		p, err := newPipeline(cfg, pipelineOpts{sender: dispatcher, metrics: m}, logger)
		if err != nil {
			return err
		}

		var hb *heartbeat.Scheduler
		if cfg.Heartbeat.Schedule != "" {
			hb, err = heartbeat.New(p.gate, heartbeat.Options{Schedule: cfg.Heartbeat.Schedule}, logger)
			if err != nil {
				return err
			}
		}

		follower := tail.New(cfg.Source.Path, tail.Options{
			FromStart: cfg.Source.FromStart,
			Poll:      cfg.Source.Poll.Duration,
		}, logger)

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			p.watcher.Run(ctx, follower.Lines(ctx))
			return follower.Err()
		})
		if cfg.Control.Listen != "" {
			srv := server.New(p.gate, server.Options{
				Listen:          cfg.Control.Listen,
				TriggerCooldown: cfg.Control.TriggerCooldown.Duration,
				Gatherer:        reg,
			}, logger)
			g.Go(func() error { return srv.Run(ctx) })
		}
		if hb != nil {
			g.Go(func() error {
				hb.Run(ctx)
				return nil
			})
		}

		err = g.Wait()
		logger.Info("poolwatch stopped")
		return err
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
