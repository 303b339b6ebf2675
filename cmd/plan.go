package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"scour/internal/batch"
	"scour/internal/config"
	"scour/internal/tui"
)

var planCmd = &cobra.Command{
	Use:   "plan [flags] <path>",
	Short: "List the files a clean would process, without touching them",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile, cmd.Flags())
		if err != nil {
			return err
		}
		items, err := batch.Plan(args[0], planOptions(cfg))
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(items) == 0 {
			fmt.Fprintln(out, planDimStyle.Render("nothing to clean"))
			return nil
		}
		for _, item := range items {
			fmt.Fprintf(out, "%s %s %s\n",
				planFileStyle.Render(item.Input),
				planBulletStyle.Render("->"),
				planValueStyle.Render(item.Output),
			)
		}

		lanes := min(cfg.Concurrency, len(items))
		fmt.Fprintln(out)
		fmt.Fprintln(out, planDimStyle.Render(fmt.Sprintf("%d files, %d workers", len(items), lanes)))
		if cfg.File != "" {
			if abs, err := filepath.Abs(cfg.File); err == nil {
				fmt.Fprintln(os.Stderr, planDimStyle.Render("config: "+abs))
			}
		}
		return nil
	},
}

var (
	planFileStyle   = lipgloss.NewStyle().Bold(true).Foreground(tui.ColorAccent)
	planValueStyle  = lipgloss.NewStyle().Foreground(tui.ColorInk)
	planDimStyle    = lipgloss.NewStyle().Foreground(tui.ColorDim)
	planBulletStyle = lipgloss.NewStyle().Foreground(tui.ColorAccentAlt)
)

func init() {
	addSelectionFlags(planCmd.Flags())
	planCmd.Flags().IntP("concurrency", "j", 0, "number of parallel workers (default: CPU count)")
	rootCmd.AddCommand(planCmd)
}
