package cmd

import (
	"log/slog"

	"github.com/spf13/pflag"

	"scour/internal/batch"
	"scour/internal/cleaner"
	"scour/internal/config"
	"scour/internal/engine"
	"scour/pkg/imgutil"
)

const defaultOutputDir = "scoured"

// addSelectionFlags registers the flags shared by clean and plan.
func addSelectionFlags(fs *pflag.FlagSet) {
	fs.StringP("output", "o", "", "destination folder for cleaned copies (default \""+defaultOutputDir+"\")")
	fs.BoolP("inplace", "i", false, "replace files in place")
	fs.String("suffix", "", "insert this suffix before each output file's extension")
	fs.StringSlice("include", nil, "only clean files whose name matches these glob patterns")
	fs.String("command", "", `external cleaner, e.g. "svgcleaner {input} {output}"`)
}

func planOptions(cfg config.Config) batch.Options {
	opts := batch.Options{
		InPlace:   cfg.InPlace,
		OutputDir: cfg.Output,
		Suffix:    cfg.Suffix,
		Include:   cfg.Include,
	}
	if !opts.InPlace && opts.OutputDir == "" {
		opts.OutputDir = defaultOutputDir
	}
	if len(cfg.Command) == 0 {
		opts.Kinds = []imgutil.Kind{imgutil.KindJPEG, imgutil.KindPNG}
	}
	return opts
}

func newCleaner(cfg config.Config, logger *slog.Logger) (engine.Cleaner, error) {
	if len(cfg.Command) > 0 {
		return cleaner.NewExec(cfg.Command, logger)
	}
	return cleaner.NewMetadata(cleaner.MetadataOptions{PreserveICC: cfg.PreserveICC}, logger), nil
}
