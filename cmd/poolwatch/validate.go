package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/sznuper/poolwatch/internal/heartbeat"
	"github.com/sznuper/poolwatch/internal/notify"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the poolwatch configuration",
	Long:  "Loads the effective configuration, checks every field, the extraction pattern, the destinations and the heartbeat schedule, and prints a summary.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		var errs []error
		if _, err := newExtractor(cfg); err != nil {
			errs = append(errs, err)
		}
		if err := cfg.CheckDestination(); err != nil {
			errs = append(errs, err)
		} else if err := notify.Validate(cfg.NotifyURLs()); err != nil {
			errs = append(errs, err)
		}

		heartbeatDesc := "off"
		if cfg.Heartbeat.Schedule != "" {
			quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
			hb, err := heartbeat.New(nil, heartbeat.Options{Schedule: cfg.Heartbeat.Schedule}, quiet)
			if err != nil {
				errs = append(errs, err)
			} else {
				heartbeatDesc = fmt.Sprintf("%s (next %s)", cfg.Heartbeat.Schedule, hb.Next(time.Now()).Format(time.RFC3339))
			}
		}

		if path == "" {
			path = "(defaults)"
		}
		if err := errors.Join(errs...); err != nil {
			fmt.Printf("✗ Config: %s\n", path)
			return err
		}

		control := cfg.Control.Listen
		if control == "" {
			control = "off"
		}
		natsDesc := "off"
		if cfg.NATS.URL != "" {
			natsDesc = cfg.NATS.URL + " → " + cfg.NATS.Subject
		}

		fmt.Printf("✓ Config: %s\n", path)
		fmt.Printf("  Log:          %s (%s)\n", cfg.Source.Path, cfg.Source.Format)
		fmt.Printf("  Active pool:  %s\n", cfg.Detection.ActivePool)
		fmt.Printf("  Error rate:   > %.2f%% over %d requests\n", cfg.Detection.ErrorRateThreshold, cfg.Detection.WindowSize)
		fmt.Printf("  Cooldown:     %s\n", cfg.Detection.Cooldown.Duration)
		fmt.Printf("  Maintenance:  %s\n", cfg.Maintenance.File)
		fmt.Printf("  Destinations: %d\n", len(cfg.NotifyURLs()))
		fmt.Printf("  NATS:         %s\n", natsDesc)
		fmt.Printf("  Control:      %s\n", control)
		fmt.Printf("  Heartbeat:    %s\n", heartbeatDesc)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
