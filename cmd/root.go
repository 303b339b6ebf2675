package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "scour",
	Short: "scour - batch-clean files in parallel",
	Long: `scour cleans a tree of files with a configurable number of parallel workers.

By default it strips EXIF/XMP/IPTC metadata from JPEG and PNG images. With
--command it runs an external cleaner (for example svgcleaner) once per file,
substituting {input} and {output} in its arguments.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./scour.yaml or ~/.config/scour/scour.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().String("log-format", "text", `log format ("text" or "json")`)
	rootCmd.PersistentFlags().String("log-file", "", "write logs to this file instead of stderr")
}
