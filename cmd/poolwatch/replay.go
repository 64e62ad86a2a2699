package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sznuper/poolwatch/internal/gate"
	"github.com/sznuper/poolwatch/internal/notify"
	"github.com/sznuper/poolwatch/internal/watcher"
)

var replayCmd = &cobra.Command{
	Use:   "replay <file>",
	Short: "Run a finished log through a fresh detector",
	Long: "Replays a log file through a fresh detector and prints every alert it would raise. " +
		"Nothing is sent unless --send is given. Log lines carry no timestamps, so cooldowns run on " +
		"the wall clock unless --line-interval advances a simulated clock per line.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		send, _ := cmd.Flags().GetBool("send")
		interval, _ := cmd.Flags().GetDuration("line-interval")

		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger := setupLogger(cfg.Log.Level)

		var sender gate.Sender = &notify.Recorder{}
		if send {
			if err := cfg.CheckDestination(); err != nil {
				return err
			}
			dispatcher, closeNATS, err := newDispatcher(cfg, logger)
			if err != nil {
				return err
			}
			defer closeNATS()
			sender = dispatcher
		}

		var now func() time.Time
		if interval > 0 {
			clock := time.Now()
			now = func() time.Time {
				clock = clock.Add(interval)
				return clock
			}
		}

		lineNo := 0
		p, err := newPipeline(cfg, pipelineOpts{
			sender: sender,
			now:    now,
			onResult: func(r watcher.Result) {
				lineNo++
				for _, d := range r.Deliveries {
					printDelivery(lineNo, d, !send)
				}
			},
		}, logger)
		if err != nil {
			return err
		}

		file, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("opening replay file: %w", err)
		}
		defer file.Close()

		lines, scanErr := fileLines(file)
		summary := p.watcher.Run(context.Background(), lines)
		if err := scanErr(); err != nil {
			return err
		}

		printSummary(summary, !send)
		if summary.Outcomes[gate.Failed] > 0 {
			return fmt.Errorf("%d alerts failed to send", summary.Outcomes[gate.Failed])
		}
		return nil
	},
}

func init() {
	replayCmd.Flags().Bool("send", false, "dispatch alerts instead of only printing them")
	replayCmd.Flags().Duration("line-interval", 0, "simulated time between lines (0 uses the wall clock)")
	rootCmd.AddCommand(replayCmd)
}

func printDelivery(line int, d watcher.Delivery, dryRun bool) {
	mark := "✓"
	switch d.Outcome {
	case gate.Failed:
		mark = "✗"
	case gate.Suppressed:
		mark = "-"
	}
	label := string(d.Outcome)
	if dryRun && d.Outcome == gate.Dispatched {
		label = "would send"
	}

	text, _, _ := strings.Cut(d.Alert.Text, "\n")
	fmt.Printf("%s line %d: [%s] %s\n", mark, line, d.Alert.Kind, text)
	fmt.Printf("  %s\n", label)
}

func printSummary(s watcher.Summary, dryRun bool) {
	fmt.Printf("Lines: %d (%d matched)\n", s.Lines, s.Matched)
	sent := "Dispatched"
	if dryRun {
		sent = "Would send"
	}
	fmt.Printf("Alerts: %d (%s: %d, suppressed: %d, failed: %d)\n",
		s.Attempted, sent, s.Outcomes[gate.Dispatched], s.Outcomes[gate.Suppressed], s.Outcomes[gate.Failed])
}
