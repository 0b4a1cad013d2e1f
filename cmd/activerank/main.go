// Package main implements the activerank binary.
// It runs a single active ranking or a Monte-Carlo batch of runs and prints
// the result as JSON.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/activerank/activerank/internal/config"
	rankerrors "github.com/activerank/activerank/internal/errors"
	"github.com/activerank/activerank/internal/experiment"
	"github.com/activerank/activerank/internal/logger"
	"github.com/activerank/activerank/internal/observability"
	"github.com/activerank/activerank/internal/ranking"
	"github.com/activerank/activerank/pkg/types"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(exitCode(newRootCommand(os.Stdout).Execute()))
}

// exitCode maps a command error to the process exit status: 2 when a run
// aborted on a statistical, protocol or internal error, 1 for anything else
// (bad flags, unreadable config).
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case rankerrors.IsFatal(err):
		return 2
	default:
		return 1
	}
}

// benchOutput is what the bench command prints: one report per strategy and
// the run statistics accumulated across all of them.
type benchOutput struct {
	Reports    []*experiment.Report          `json:"reports"`
	Strategies []observability.StrategyStats `json:"strategies"`
}

// flags holds every command line override. Only flags the user actually set
// are applied on top of file and environment configuration.
type flags struct {
	configFile string

	items          int
	workers        int
	delta          float64
	epsilon        float64
	scores         []float64
	noise          string
	noiseParameter float64
	strategy       string
	active         bool
	cacheSize      int
	seed           uint64

	trials      int
	concurrency int
	baseSeed    uint64
	shuffle     bool
	compare     []string
	metricsOut  string

	logFormat string
	logLevel  string
}

func newRootCommand(out io.Writer) *cobra.Command {
	f := &flags{}

	root := &cobra.Command{
		Use:           "activerank",
		Short:         "Active ranking from noisy pairwise comparisons",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&f.configFile, "config", "", "Path to configuration file (YAML or JSON)")
	root.PersistentFlags().IntVar(&f.items, "items", 0, "Number of items to rank")
	root.PersistentFlags().IntVar(&f.workers, "workers", 0, "Size of the worker pool")
	root.PersistentFlags().Float64Var(&f.delta, "delta", 0, "Global failure probability")
	root.PersistentFlags().Float64Var(&f.epsilon, "epsilon", 0, "Comparison resolution")
	root.PersistentFlags().Float64SliceVar(&f.scores, "scores", nil, "Latent item scores (default 1..N)")
	root.PersistentFlags().StringVar(&f.noise, "noise", "", "Noise model: uniform, hbtl")
	root.PersistentFlags().Float64Var(&f.noiseParameter, "noise-parameter", 0, "Gamma of the noise model")
	root.PersistentFlags().StringVar(&f.strategy, "strategy", "", "Elimination strategy: aggregate, halving, ucb")
	root.PersistentFlags().BoolVar(&f.active, "active-elimination", true, "Enable worker elimination")
	root.PersistentFlags().IntVar(&f.cacheSize, "cache-size", 0, "Pre-drawn worker indices per active-set size")
	root.PersistentFlags().Uint64Var(&f.seed, "seed", 0, "Random seed of a single run")
	root.PersistentFlags().StringVar(&f.logFormat, "log-format", "", "Log format: json, text")
	root.PersistentFlags().StringVar(&f.logLevel, "log-level", "", "Log level: none, debug, info, warn, error")

	root.AddCommand(newRunCommand(f, out), newBenchCommand(f, out), newVersionCommand(out))
	return root
}

func newRunCommand(f *flags, out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Rank the items once and print the outcome",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup(cmd, f)
			if err != nil {
				return err
			}
			defer log.Sync()

			r, err := ranking.New(cfg.Run, ranking.WithLogger(log))
			if err != nil {
				return err
			}
			outcome, err := r.Rank()
			if err != nil {
				log.Error("ranking failed",
					zap.Int64("queries", r.State().SampleComplexity()),
					zap.Error(err))
				return err
			}

			log.Info("ranking complete",
				zap.Int64("sample_complexity", outcome.SampleComplexity),
				zap.Int("comparisons", outcome.Comparisons),
				zap.Int("final_active", len(outcome.FinalActive)))
			return writeJSON(out, outcome)
		},
	}
}

func newBenchCommand(f *flags, out io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Run Monte-Carlo batches and print the reports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup(cmd, f)
			if err != nil {
				return err
			}
			defer log.Sync()

			reg := prometheus.NewRegistry()
			metrics, err := observability.NewMetrics(reg)
			if err != nil {
				return err
			}
			stats := observability.NewRunStats()

			strategies := []types.StrategyName{cfg.Run.Strategy}
			if len(f.compare) > 0 {
				strategies = strategies[:0]
				for _, name := range f.compare {
					strategies = append(strategies, types.StrategyName(name))
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			result := benchOutput{}
			for _, strategy := range strategies {
				run := cfg.Run
				run.Strategy = strategy
				runner, err := experiment.NewRunner(run, cfg.Experiment,
					experiment.WithLogger(log),
					experiment.WithMetrics(metrics),
					experiment.WithStats(stats))
				if err != nil {
					return err
				}

				report, err := runner.Run(ctx)
				if err != nil {
					return err
				}
				result.Reports = append(result.Reports, report)
			}
			result.Strategies = stats.Snapshot()

			for _, s := range result.Strategies {
				log.Info("strategy summary",
					zap.String("strategy", string(s.Strategy)),
					zap.Int64("runs", s.Runs),
					zap.Int64("correct", s.Correct),
					zap.Float64("mean_complexity", s.MeanComplexity()),
					zap.Any("failures", s.Failures))
			}

			if f.metricsOut != "" {
				if err := prometheus.WriteToTextfile(f.metricsOut, reg); err != nil {
					return fmt.Errorf("failed to write metrics: %w", err)
				}
			}
			return writeJSON(out, result)
		},
	}
	cmd.Flags().IntVar(&f.trials, "trials", 0, "Number of independent runs")
	cmd.Flags().IntVar(&f.concurrency, "concurrency", 0, "Runs executed in parallel")
	cmd.Flags().Uint64Var(&f.baseSeed, "base-seed", 0, "Seed every trial seed is derived from")
	cmd.Flags().BoolVar(&f.shuffle, "shuffle-scores", false, "Permute the scores for every trial")
	cmd.Flags().StringSliceVar(&f.compare, "compare", nil, "Run one batch per listed strategy instead of the configured one")
	cmd.Flags().StringVar(&f.metricsOut, "metrics-out", "", "Write Prometheus metrics to this file")
	return cmd
}

func newVersionCommand(out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(out, "activerank version %s (commit: %s)\n", version, commit)
		},
	}
}

func setup(cmd *cobra.Command, f *flags) (*config.Config, *logger.ZapLogger, error) {
	cfg, err := loadConfig(cmd, f)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	log, err := logger.NewLogger(cfg.Log.Format, cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

// loadConfig loads configuration from file, environment, and command line flags.
func loadConfig(cmd *cobra.Command, f *flags) (*config.Config, error) {
	var cfg *config.Config
	var err error

	// Start with defaults or load from file
	if f.configFile != "" {
		cfg, err = config.LoadFromFile(f.configFile)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.DefaultConfig()
	}

	// Apply environment variables
	config.LoadFromEnv(cfg)

	// Apply command line flags (highest priority)
	set := cmd.Flags().Changed
	if set("items") {
		cfg.Run.Items = f.items
	}
	if set("workers") {
		cfg.Run.Workers = f.workers
	}
	if set("delta") {
		cfg.Run.Delta = f.delta
	}
	if set("epsilon") {
		cfg.Run.Epsilon = f.epsilon
	}
	if set("scores") {
		cfg.Run.Scores = f.scores
	}
	if set("noise") {
		cfg.Run.Noise = types.NoiseKind(f.noise)
	}
	if set("noise-parameter") {
		cfg.Run.NoiseParameter = f.noiseParameter
	}
	if set("strategy") {
		cfg.Run.Strategy = types.StrategyName(f.strategy)
	}
	if set("active-elimination") {
		cfg.Run.ActiveElimination = f.active
	}
	if set("cache-size") {
		cfg.Run.CacheSize = f.cacheSize
	}
	if set("seed") {
		cfg.Run.Seed = f.seed
	}
	if set("trials") {
		cfg.Experiment.Trials = f.trials
	}
	if set("concurrency") {
		cfg.Experiment.Concurrency = f.concurrency
	}
	if set("base-seed") {
		cfg.Experiment.BaseSeed = f.baseSeed
	}
	if set("shuffle-scores") {
		cfg.Experiment.ShuffleScores = f.shuffle
	}
	if set("log-format") {
		cfg.Log.Format = f.logFormat
	}
	if set("log-level") {
		cfg.Log.Level = f.logLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
