package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	prettyjson "github.com/hokaccha/go-prettyjson"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/lurcv/config"
	"github.com/YuminosukeSato/lurcv/crossval"
	"github.com/YuminosukeSato/lurcv/dataset"
	"github.com/YuminosukeSato/lurcv/pkg/errors"
	"github.com/YuminosukeSato/lurcv/pkg/log"
	"github.com/YuminosukeSato/lurcv/report"
)

type runFlags struct {
	configPath string
	printJSON  bool
}

func newRunCmd() *cobra.Command {
	var rf runFlags
	cfg := config.Default()

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run cross validation",
		Long: `Run repeated k-fold cross validation of one strategy on a measurement table.

Settings are read from defaults, the --config YAML file, LURCV_* environment
variables and finally the command line flags.`,
		Example: `  lurcv run --data pm_ha.csv --strategy forward-selection --iterations 40 --folds 10
  lurcv run --config lurcv.yaml --strategy random-search --time-budget 60s --refit --out results`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := config.Read(rf.configPath)
			if err != nil {
				return err
			}
			applyFlags(cmd, cfg, loaded)
			if err := loaded.Validate(); err != nil {
				return err
			}
			return run(cmd.Context(), cmd.OutOrStdout(), loaded, rf.printJSON)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&rf.configPath, "config", "c", "", "YAML configuration file")
	f.BoolVar(&rf.printJSON, "json", false, "print the summary as JSON instead of a table")
	f.StringVar(&cfg.Data, "data", "", "measurement CSV with header")
	f.StringVar(&cfg.Superset, "superset", "", "inference-only CSV keyed by x, y")
	f.StringVar(&cfg.Target, "target", cfg.Target, "target column")
	f.StringSliceVar(&cfg.Features, "features", nil, "feature columns (default: every column except x, y and the target)")
	f.StringVarP(&cfg.Strategy, "strategy", "s", cfg.Strategy, "forward-selection, random-search or external-gam")
	f.IntVarP(&cfg.Iterations, "iterations", "i", cfg.Iterations, "repetitions of the k-fold split")
	f.IntVarP(&cfg.Folds, "folds", "k", cfg.Folds, "number of folds")
	f.IntVarP(&cfg.Jobs, "jobs", "j", cfg.Jobs, "concurrent fold tasks (0: all CPUs)")
	f.Uint64Var(&cfg.Seed, "seed", cfg.Seed, "run seed")
	f.Float64Var(&cfg.Forward.Threshold, "threshold", cfg.Forward.Threshold, "minimum R² gain for forward selection")
	f.DurationVarP(&cfg.Search.TimeBudget, "time-budget", "t", cfg.Search.TimeBudget, "random search time per fold")
	f.BoolVarP(&cfg.Search.Refit, "refit", "r", cfg.Search.Refit, "refit the best candidate on the whole train fold")
	f.BoolVar(&cfg.Search.Extended, "extended-space", cfg.Search.Extended, "also search max_features, min_samples_leaf and min_samples_split")
	f.StringVar(&cfg.GAM.Rscript, "rscript", cfg.GAM.Rscript, "Rscript binary for external-gam")
	f.StringVarP(&cfg.Output.Dir, "out", "o", "", "directory for summary.txt, records.csv and summary.json")
	f.BoolVar(&cfg.Output.Plot, "plot", false, "also write rmse_hist.png")
	f.StringVar(&cfg.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address during the run")
	f.StringVar(&cfg.Log.Level, "log-level", cfg.Log.Level, "debug, info, warn or error")
	f.StringVar(&cfg.Log.Format, "log-format", cfg.Log.Format, "console, json or cloud")

	return cmd
}

// applyFlags copies every flag the user set from flagged onto cfg.
func applyFlags(cmd *cobra.Command, flagged, cfg *config.Config) {
	set := func(name string, apply func()) {
		if cmd.Flags().Changed(name) {
			apply()
		}
	}
	set("data", func() { cfg.Data = flagged.Data })
	set("superset", func() { cfg.Superset = flagged.Superset })
	set("target", func() { cfg.Target = flagged.Target })
	set("features", func() { cfg.Features = flagged.Features })
	set("strategy", func() { cfg.Strategy = flagged.Strategy })
	set("iterations", func() { cfg.Iterations = flagged.Iterations })
	set("folds", func() { cfg.Folds = flagged.Folds })
	set("jobs", func() { cfg.Jobs = flagged.Jobs })
	set("seed", func() { cfg.Seed = flagged.Seed })
	set("threshold", func() { cfg.Forward.Threshold = flagged.Forward.Threshold })
	set("time-budget", func() { cfg.Search.TimeBudget = flagged.Search.TimeBudget })
	set("refit", func() { cfg.Search.Refit = flagged.Search.Refit })
	set("extended-space", func() { cfg.Search.Extended = flagged.Search.Extended })
	set("rscript", func() { cfg.GAM.Rscript = flagged.GAM.Rscript })
	set("out", func() { cfg.Output.Dir = flagged.Output.Dir })
	set("plot", func() { cfg.Output.Plot = flagged.Output.Plot })
	set("metrics-addr", func() { cfg.MetricsAddr = flagged.MetricsAddr })
	set("log-level", func() { cfg.Log.Level = flagged.Log.Level })
	set("log-format", func() { cfg.Log.Format = flagged.Log.Format })
}

func newLogger(cfg config.Log) (log.Logger, error) {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	switch cfg.Format {
	case "json":
		return log.NewZerologLogger(os.Stderr, level), nil
	case "cloud":
		return log.NewSlogLogger(os.Stderr, level), nil
	default:
		return log.NewZerologLogger(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}, level), nil
	}
}

func run(ctx context.Context, out io.Writer, cfg *config.Config, printJSON bool) error {
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	log.SetLogger(logger)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	data, err := dataset.ReadCSVFile(cfg.Data)
	if err != nil {
		return err
	}
	factory, err := cfg.Factory()
	if err != nil {
		return err
	}
	features := selectFeatures(cfg, data)

	opts := []crossval.Option{
		crossval.WithIterations(cfg.Iterations),
		crossval.WithFolds(cfg.Folds),
		crossval.WithParallelism(cfg.Jobs),
		crossval.WithSeed(cfg.Seed),
		crossval.WithLogger(logger),
	}
	if cfg.Superset != "" {
		superset, err := dataset.ReadCSVFile(cfg.Superset)
		if err != nil {
			return err
		}
		opts = append(opts, crossval.WithSuperset(superset))
	}
	if cfg.MetricsAddr != "" {
		collector, shutdown, err := serveMetrics(cfg.MetricsAddr, factory.Name, logger)
		if err != nil {
			return err
		}
		defer shutdown()
		opts = append(opts, crossval.WithObserver(collector))
	}

	summary, err := crossval.NewOrchestrator(factory, opts...).Run(ctx, data, features, cfg.Target)
	if err != nil {
		return err
	}

	if printJSON {
		b, err := prettyjson.Marshal(report.JSON(summary))
		if err != nil {
			return errors.Wrap(err, "failed to encode summary")
		}
		fmt.Fprintln(out, string(b))
	} else if err := report.WriteText(out, summary); err != nil {
		return err
	}

	if cfg.Output.Dir != "" {
		if err := report.WriteDir(cfg.Output.Dir, summary, cfg.Output.Plot); err != nil {
			return err
		}
		logger.Info("results written", "dir", cfg.Output.Dir)
	}
	return nil
}

// selectFeatures returns the configured features, the GAM terms for
// external-gam, or every column except the keys and the target.
func selectFeatures(cfg *config.Config, data *dataset.Frame) []string {
	if len(cfg.Features) > 0 {
		return cfg.Features
	}
	if cfg.Strategy == config.ExternalGAM {
		return cfg.GAMConfig().Columns()
	}
	var features []string
	for _, c := range data.Columns() {
		if c != dataset.XColumn && c != dataset.YColumn && c != cfg.Target {
			features = append(features, c)
		}
	}
	return features
}

func serveMetrics(addr, strategy string, logger log.Logger) (*crossval.Collector, func(), error) {
	reg := prometheus.NewRegistry()
	collector, err := crossval.NewCollector(strategy, reg)
	if err != nil {
		return nil, nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", err)
		}
	}()
	logger.Info("serving metrics", "addr", addr)

	shutdown := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
	return collector, shutdown, nil
}
