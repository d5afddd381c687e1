package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/VanDung-dev/MzParquet-Engine/api"
	"github.com/VanDung-dev/MzParquet-Engine/arrow"
	"github.com/VanDung-dev/MzParquet-Engine/config"
	"github.com/VanDung-dev/MzParquet-Engine/engine"
	"github.com/VanDung-dev/MzParquet-Engine/network"
	"github.com/VanDung-dev/MzParquet-Engine/storage"
)

func newConvertCmd(root *rootFlags) *cobra.Command {
	fv := config.DefaultConfig()
	cmd := &cobra.Command{
		Use:   "convert <file.mzML>...",
		Short: "Convert mzML files to mzparquet",
		Long: "Convert each mzML file (optionally .gz, local or gs://) into an mzparquet file.\n" +
			"Without -o the output is written next to its source.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return &exitError{code: engine.ExitInvalid, err: err}
			}
			applyConvertFlags(cmd, cfg, fv)
			if err := cfg.Validate(); err != nil {
				return &exitError{code: engine.ExitInvalid, err: err}
			}
			return runConvert(cmd, cfg, args)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&fv.OutputDir, "output-dir", "o", "", "output directory (local or gs://)")
	f.StringVar(&fv.Layout, "layout", fv.Layout, "row layout: wide or long")
	f.StringVar(&fv.Format, "format", fv.Format, "output format: parquet or ipc")
	f.BoolVar(&fv.Strict, "strict", false, "abort on the first unusable spectrum")
	f.BoolVar(&fv.KeepPartial, "keep-partial", false, "keep the .partial output of a failed conversion")
	f.BoolVar(&fv.Concurrent, "concurrent", false, "read and write on separate goroutines")
	f.IntVarP(&fv.Jobs, "jobs", "j", fv.Jobs, "files converted in parallel")
	f.IntVar(&fv.BatchRows, "batch-rows", fv.BatchRows, "maximum rows per row group")
	f.IntVar(&fv.BatchMB, "batch-mb", fv.BatchMB, "maximum estimated MiB per row group")
	f.IntVar(&fv.Compression, "compression-level", fv.Compression, "ZSTD compression level")
	f.BoolVar(&fv.DeriveTIC, "derive-tic", false, "sum intensities when total ion current is missing")
	f.StringVar(&fv.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	f.StringVar(&fv.NotifyAddr, "notify-addr", "", "publish ZeroMQ progress events on this endpoint")
	return cmd
}

// applyConvertFlags copies explicitly set flags over the file configuration.
func applyConvertFlags(cmd *cobra.Command, cfg, fv *config.Config) {
	f := cmd.Flags()
	set := map[string]func(){
		"output-dir":        func() { cfg.OutputDir = fv.OutputDir },
		"layout":            func() { cfg.Layout = fv.Layout },
		"format":            func() { cfg.Format = fv.Format },
		"strict":            func() { cfg.Strict = fv.Strict },
		"keep-partial":      func() { cfg.KeepPartial = fv.KeepPartial },
		"concurrent":        func() { cfg.Concurrent = fv.Concurrent },
		"jobs":              func() { cfg.Jobs = fv.Jobs },
		"batch-rows":        func() { cfg.BatchRows = fv.BatchRows },
		"batch-mb":          func() { cfg.BatchMB = fv.BatchMB },
		"compression-level": func() { cfg.Compression = fv.Compression },
		"derive-tic":        func() { cfg.DeriveTIC = fv.DeriveTIC },
		"metrics-addr":      func() { cfg.MetricsAddr = fv.MetricsAddr },
		"notify-addr":       func() { cfg.NotifyAddr = fv.NotifyAddr },
	}
	for name, apply := range set {
		if f.Changed(name) {
			apply()
		}
	}
}

func runConvert(cmd *cobra.Command, cfg *config.Config, sources []string) error {
	ctx := cmd.Context()
	logger := newLogger(cmd.ErrOrStderr(), cfg)

	opts := cfg.Options()
	opts.Logger = logger

	store := storage.New()
	defer store.Close()
	opts.Store = store

	if cfg.MetricsAddr != "" {
		metrics := api.NewMetrics("mzparquet")
		srv := api.NewMetricsServer(cfg.MetricsAddr, metrics)
		srv.StartAsync(func(err error) {
			logger.Error("metrics server failed", "addr", cfg.MetricsAddr, "error", err)
		})
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Stop(stopCtx)
		}()
		opts.Metrics = metrics
		logger.Info("serving metrics", "addr", cfg.MetricsAddr)
	}

	if cfg.NotifyAddr != "" {
		pub := network.NewZmqPublisher(cfg.NotifyAddr)
		if err := pub.Start(); err != nil {
			return &exitError{code: engine.ExitIO, err: fmt.Errorf("start progress publisher: %w", err)}
		}
		defer pub.Stop()
		opts.Notifier = pub
		logger.Info("publishing progress", "endpoint", cfg.NotifyAddr, "topic", network.Topic)
	}

	ext := arrow.Format(cfg.Format).Extension()
	jobs := make([]engine.Job, len(sources))
	for i, src := range sources {
		jobs[i] = engine.Job{Src: src, Dst: storage.OutputPath(src, cfg.OutputDir, ext)}
	}

	results := engine.ConvertAll(ctx, opts, jobs)
	out := cmd.OutOrStdout()
	for _, r := range results {
		if r.Result == nil {
			fmt.Fprintf(out, "%s: %v\n", r.Src, r.Err)
			continue
		}
		fmt.Fprintf(out, "%s -> %s: %s, %d converted, %d skipped, %d row groups, %s\n",
			r.Src, r.Dst, r.Result.State, r.Result.Converted, r.Result.Skipped,
			r.Result.RowGroups, r.Result.Duration.Round(time.Millisecond))
		if r.Err != nil {
			fmt.Fprintf(out, "  error: %v\n", r.Err)
		}
	}

	if code := engine.ExitCodeAll(results); code != engine.ExitOK {
		return &exitError{code: code}
	}
	return nil
}
