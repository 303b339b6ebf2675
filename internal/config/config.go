// Package config merges defaults, an optional YAML file, SCOUR_* environment
// variables and command-line flags into a Config, and builds the logger.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	EnvPrefix  = "SCOUR"
	ConfigName = "scour"

	DefaultWindow = 10
)

var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	Concurrency int
	Output      string
	InPlace     bool
	Suffix      string
	PreserveICC bool
	// Command selects the exec cleaner when set.
	Command   []string
	Include   []string
	NoTUI     bool
	Verbose   bool
	LogFormat string
	LogFile   string
	Window    int

	// File is the config file that was read, if any.
	File string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("concurrency", runtime.NumCPU())
	v.SetDefault("output", "")
	v.SetDefault("inplace", false)
	v.SetDefault("suffix", "")
	v.SetDefault("preserve-icc", false)
	v.SetDefault("command", []string{})
	v.SetDefault("include", []string{})
	v.SetDefault("no-tui", false)
	v.SetDefault("verbose", false)
	v.SetDefault("log-format", "text")
	v.SetDefault("log-file", "")
	v.SetDefault("window", DefaultWindow)
}

// Load reads configuration. cfgFile, when set, must exist; otherwise
// scour.yaml is looked up in the working directory and
// $HOME/.config/scour. flags may be nil.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(ConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", ConfigName))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || cfgFile != "" {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	cfg := Config{
		Concurrency: v.GetInt("concurrency"),
		Output:      v.GetString("output"),
		InPlace:     v.GetBool("inplace"),
		Suffix:      v.GetString("suffix"),
		PreserveICC: v.GetBool("preserve-icc"),
		Command:     v.GetStringSlice("command"),
		Include:     v.GetStringSlice("include"),
		NoTUI:       v.GetBool("no-tui"),
		Verbose:     v.GetBool("verbose"),
		LogFormat:   strings.ToLower(v.GetString("log-format")),
		LogFile:     v.GetString("log-file"),
		Window:      v.GetInt("window"),
		File:        v.ConfigFileUsed(),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field rules and clamps numeric settings.
func (c *Config) Validate() error {
	if c.InPlace && c.Output != "" {
		return fmt.Errorf("%w: inplace cannot be combined with output", ErrInvalid)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("%w: log-format must be text or json, got %q", ErrInvalid, c.LogFormat)
	}
	if c.Concurrency < 1 {
		c.Concurrency = 1
	}
	if c.Window < 1 {
		c.Window = DefaultWindow
	}
	return nil
}

// NewLogger builds the run logger writing to w, or to LogFile when set. The
// returned closer releases the log file.
func (c Config) NewLogger(w io.Writer) (*slog.Logger, io.Closer, error) {
	var closer io.Closer = io.NopCloser(nil)
	if c.LogFile != "" {
		f, err := os.OpenFile(c.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		w, closer = f, f
	}

	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if c.LogFormat == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler), closer, nil
}
