package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sznuper/poolwatch/internal/alert"
	"github.com/sznuper/poolwatch/internal/gate"
	"github.com/sznuper/poolwatch/internal/maintenance"
	"github.com/sznuper/poolwatch/internal/notify"
)

var notifyTestCmd = &cobra.Command{
	Use:   "notify-test",
	Short: "Send a manual test alert",
	Long: "Renders and sends a manual info alert through the maintenance gate. " +
		"Use --dry-run to validate the destinations and print the message without sending.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		text, _ := cmd.Flags().GetString("text")

		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := cfg.CheckDestination(); err != nil {
			return err
		}
		logger := setupLogger(cfg.Log.Level)

		a := alert.New(alert.ClassInfo, alert.KindManual, text, time.Now())

		if dryRun {
			if err := notify.Validate(cfg.NotifyURLs()); err != nil {
				return err
			}
			d, err := notify.NewDispatcher(notifyOptions(cfg), logger)
			if err != nil {
				return err
			}
			title, body, _, err := d.Render(a)
			if err != nil {
				return err
			}
			fmt.Printf("✓ Destinations: %d valid\n", len(cfg.NotifyURLs()))
			fmt.Printf("  Title: %q\n", title)
			fmt.Printf("  Body:  %q\n", body)
			return nil
		}

		dispatcher, closeNATS, err := newDispatcher(cfg, logger)
		if err != nil {
			return err
		}
		defer closeNATS()

		g := gate.New(maintenance.NewMarker(cfg.Maintenance.File), dispatcher, cfg.Notify.Timeout.Duration, logger, nil)
		switch outcome := g.Dispatch(context.Background(), a); outcome {
		case gate.Dispatched:
			fmt.Printf("✓ Sent test alert %s\n", a.ID)
		case gate.Suppressed:
			fmt.Printf("- Suppressed: maintenance marker %s is present\n", cfg.Maintenance.File)
		default:
			return fmt.Errorf("test alert %s failed, see log", a.ID)
		}
		return nil
	},
}

func init() {
	notifyTestCmd.Flags().Bool("dry-run", false, "validate destinations and print the message without sending")
	notifyTestCmd.Flags().String("text", "Test alert from poolwatch", "alert text")
	rootCmd.AddCommand(notifyTestCmd)
}
