package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"scour/internal/batch"
	"scour/internal/config"
	"scour/internal/engine"
	"scour/internal/tui"
)

var cleanCmd = &cobra.Command{
	Use:   "clean [flags] <path>",
	Short: "Clean every selected file under path",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile, cmd.Flags())
		if err != nil {
			return err
		}

		interactive := !cfg.NoTUI && term.IsTerminal(int(os.Stdout.Fd()))
		var logOut io.Writer = os.Stderr
		if interactive {
			// the TUI owns the terminal
			logOut = io.Discard
		}
		logger, closer, err := cfg.NewLogger(logOut)
		if err != nil {
			return err
		}
		defer closer.Close()
		if cfg.File != "" {
			logger.Debug("using config file", slog.String("path", cfg.File))
		}

		cleaner, err := newCleaner(cfg, logger)
		if err != nil {
			return err
		}
		opts := planOptions(cfg)
		items, err := batch.Plan(args[0], opts)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(items) == 0 {
			fmt.Fprintln(out, "Nothing to clean.")
			return nil
		}

		// one slot per result plus the finished event, so plain output
		// never loses a line
		events := make(chan engine.Event, len(items)+1)
		ctrl := engine.NewController(cleaner, engine.Options{
			Logger: logger,
			Events: events,
			Window: cfg.Window,
		})
		if err := ctrl.Start(context.Background(), items, cfg.Concurrency); err != nil {
			return err
		}

		// SIGINT/SIGTERM let in-flight files finish before exiting.
		sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stopSignals()
		go func() {
			select {
			case <-sigCtx.Done():
				logger.Info("signal received, finishing in-flight files")
				_ = ctrl.Shutdown(context.Background())
			case <-ctrl.Done():
			}
		}()

		if interactive {
			program := tea.NewProgram(tui.NewModel(events, ctrl, len(items)), tea.WithAltScreen())
			if _, err := program.Run(); err != nil {
				logger.Error("tui failed", slog.Any("error", err))
				_ = ctrl.Stop()
			}
		} else {
			reason := printEvents(out, events)
			logger.Debug("run ended", slog.String("reason", reason.String()))
		}
		if err := ctrl.Wait(context.Background()); err != nil {
			return err
		}
		settleCtx, cancelSettle := context.WithTimeout(context.Background(), settleTimeout)
		defer cancelSettle()
		if err := ctrl.Settle(settleCtx); err != nil {
			logger.Warn("abandoned cleans still running at exit", slog.Any("error", err))
		}

		fmt.Fprintln(out, tui.RenderSummary(tui.SummaryRows(ctrl.Stats(), len(items))))
		if opts.InPlace {
			fmt.Fprintln(out, "In-place clean complete.")
		} else {
			outPath := opts.OutputDir
			if abs, absErr := filepath.Abs(outPath); absErr == nil {
				outPath = abs
			}
			fmt.Fprintf(out, "Cleaned files written to: %s\n", outPath)
		}
		return nil
	},
}

// settleTimeout bounds how long exit waits for cleans a hard stop
// abandoned, such as an external cleaner still inside its kill grace period.
const settleTimeout = 5 * time.Second

// printEvents writes one line per delivered result until the run's finished
// event (or a closed channel) and returns why the run ended.
func printEvents(w io.Writer, events <-chan engine.Event) engine.FinishReason {
	for ev := range events {
		switch ev.Kind {
		case engine.EventResult:
			fmt.Fprintf(w, "[%d/%d] %s\n", ev.Stats.Observed(), ev.Total, tui.RenderResult(ev.Result, 0))
		case engine.EventFinished:
			if ev.Reason != engine.FinishCompleted {
				fmt.Fprintf(w, "Run %s with %d files left.\n", ev.Reason, ev.Total-ev.Stats.Observed())
			}
			return ev.Reason
		}
	}
	return engine.FinishCompleted
}

func init() {
	addSelectionFlags(cleanCmd.Flags())
	cleanCmd.Flags().IntP("concurrency", "j", 0, "number of parallel workers (default: CPU count)")
	cleanCmd.Flags().Bool("preserve-icc", false, "keep ICC colour profiles")
	cleanCmd.Flags().Bool("no-tui", false, "print plain progress lines instead of the interactive view")
	cleanCmd.Flags().Int("window", config.DefaultWindow, "rows of recent results to keep on screen before the terminal size is known")

	rootCmd.AddCommand(cleanCmd)
}
