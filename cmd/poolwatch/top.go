package main

import (
	"context"
	"io"
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/sznuper/poolwatch/internal/gate"
	"github.com/sznuper/poolwatch/internal/notify"
	"github.com/sznuper/poolwatch/internal/tail"
	"github.com/sznuper/poolwatch/internal/tui"
	"github.com/sznuper/poolwatch/internal/watcher"
)

var topCmd = &cobra.Command{
	Use:   "top",
	Short: "Live dashboard of the detector state",
	Long: "Follows the access log with a private detector and shows pool, window and error rate live. " +
		"Alerts are only recorded unless --send is given.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		send, _ := cmd.Flags().GetBool("send")

		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		// The dashboard owns the terminal.
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))

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

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		var prog *tea.Program
		p, err := newPipeline(cfg, pipelineOpts{
			sender:   sender,
			onResult: func(r watcher.Result) { prog.Send(tui.ResultMsg(r)) },
		}, logger)
		if err != nil {
			return err
		}
		prog = tea.NewProgram(tui.New(cfg.Source.Path, p.detector.Snapshot()), tea.WithAltScreen(), tea.WithContext(ctx))

		follower := tail.New(cfg.Source.Path, tail.Options{
			FromStart: cfg.Source.FromStart,
			Poll:      cfg.Source.Poll.Duration,
		}, logger)

		done := make(chan struct{})
		go func() {
			defer close(done)
			p.watcher.Run(ctx, follower.Lines(ctx))
			prog.Send(tui.DoneMsg{Err: follower.Err()})
		}()

		_, runErr := prog.Run()
		cancel()
		<-done
		if runErr != nil {
			return runErr
		}
		return follower.Err()
	},
}

func init() {
	topCmd.Flags().Bool("send", false, "dispatch alerts instead of only recording them")
	rootCmd.AddCommand(topCmd)
}
