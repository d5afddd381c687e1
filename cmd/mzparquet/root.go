package main

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/VanDung-dev/MzParquet-Engine/config"
)

type rootFlags struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:           "mzparquet",
		Short:         "Convert mzML mass spectrometry data to Parquet",
		Long:          "mzparquet streams mzML files into columnar mzparquet files,\none row per spectrum (wide layout) or one row per peak (long layout).",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "YAML config file")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn, error")

	cmd.AddCommand(newConvertCmd(flags))
	cmd.AddCommand(newVerifyCmd(flags))
	return cmd
}

// loadConfig returns the config file merged over defaults, with the log level
// flag applied.
func (f *rootFlags) loadConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()
	if f.configPath != "" {
		var err error
		if cfg, err = config.Load(f.configPath); err != nil {
			return nil, err
		}
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
	return cfg, cfg.Validate()
}

func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	level, err := cfg.Level()
	if err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
