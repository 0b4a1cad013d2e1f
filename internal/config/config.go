// Package config provides layered configuration for ranking runs and
// Monte-Carlo experiments.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	rankerrors "github.com/activerank/activerank/internal/errors"
	"github.com/activerank/activerank/pkg/types"
)

// Config holds the unified configuration for the activerank binary.
type Config struct {
	// Run configures a single ranking run
	Run RunConfig `json:"run" yaml:"run"`

	// Experiment configures Monte-Carlo batches of runs
	Experiment ExperimentConfig `json:"experiment" yaml:"experiment"`

	// Log configures structured logging
	Log LogConfig `json:"log" yaml:"log"`
}

// RunConfig holds the parameters accepted by one ranking run.
type RunConfig struct {
	// Items is the number of items to rank (N)
	Items int `json:"items" yaml:"items"`

	// Workers is the size of the worker pool (M)
	Workers int `json:"workers" yaml:"workers"`

	// Delta is the global failure probability of the run
	Delta float64 `json:"delta" yaml:"delta"`

	// Epsilon is the comparison resolution the sort oracle asks ATC to honor
	Epsilon float64 `json:"epsilon" yaml:"epsilon"`

	// Scores are the latent item scores, consumed only by the noise model.
	// Empty means item i has score i+1.
	Scores []float64 `json:"scores,omitempty" yaml:"scores,omitempty"`

	// Noise selects the reference comparison model: uniform, hbtl
	Noise types.NoiseKind `json:"noise" yaml:"noise"`

	// NoiseParameter is gamma for the selected noise model
	NoiseParameter float64 `json:"noise_parameter" yaml:"noise_parameter"`

	// Strategy selects the elimination policy: aggregate, halving, ucb
	Strategy types.StrategyName `json:"strategy" yaml:"strategy"`

	// ActiveElimination disables the elimination policy when false;
	// the full worker pool is then always queried
	ActiveElimination bool `json:"active_elimination" yaml:"active_elimination"`

	// CacheSize is the number of pre-drawn worker indices per active-set size
	CacheSize int `json:"cache_size" yaml:"cache_size"`

	// Seed makes the run reproducible
	Seed uint64 `json:"seed" yaml:"seed"`
}

// ExperimentConfig holds Monte-Carlo batch configuration.
type ExperimentConfig struct {
	// Trials is the number of independent runs
	Trials int `json:"trials" yaml:"trials"`

	// Concurrency is the number of runs executed in parallel
	Concurrency int `json:"concurrency" yaml:"concurrency"`

	// BaseSeed derives every trial seed
	BaseSeed uint64 `json:"base_seed" yaml:"base_seed"`

	// ShuffleScores permutes the scores independently for every trial
	ShuffleScores bool `json:"shuffle_scores" yaml:"shuffle_scores"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	// Format is json or text
	Format string `json:"format" yaml:"format"`

	// Level is none, debug, info, warn or error
	Level string `json:"level" yaml:"level"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Run: RunConfig{
			Items:             5,
			Workers:           10,
			Delta:             0.1,
			Epsilon:           0.1,
			Noise:             types.NoiseUniform,
			NoiseParameter:    0.3,
			Strategy:          types.StrategyAggregate,
			ActiveElimination: true,
			CacheSize:         1000,
			Seed:              1,
		},
		Experiment: ExperimentConfig{
			Trials:      200,
			Concurrency: 4,
			BaseSeed:    1,
		},
		Log: LogConfig{
			Format: "text",
			Level:  "info",
		},
	}
}

// ItemScores returns the configured scores, or the default ascending scores
// 1..N when none are configured.
func (r *RunConfig) ItemScores() []float64 {
	if len(r.Scores) > 0 {
		out := make([]float64, len(r.Scores))
		copy(out, r.Scores)
		return out
	}
	out := make([]float64, r.Items)
	for i := range out {
		out[i] = float64(i + 1)
	}
	return out
}

// Validate validates a run configuration.
func (r *RunConfig) Validate() error {
	if r.Items < 1 {
		return invalid("run.items must be at least 1, got %d", r.Items)
	}
	if r.Workers < 1 {
		return invalid("run.workers must be at least 1, got %d", r.Workers)
	}
	if r.Delta <= 0 || r.Delta >= 1 {
		return invalid("run.delta must be in (0, 1), got %g", r.Delta)
	}
	if r.Epsilon <= 0 || r.Epsilon > 0.5 {
		return invalid("run.epsilon must be in (0, 0.5], got %g", r.Epsilon)
	}
	if len(r.Scores) != 0 && len(r.Scores) != r.Items {
		return invalid("run.scores has %d entries, want %d", len(r.Scores), r.Items)
	}
	if !r.Strategy.Valid() {
		return invalid("invalid strategy: %s (must be aggregate, halving, or ucb)", r.Strategy)
	}
	if r.Strategy == types.StrategyHalving && r.Items < 2 {
		return invalid("halving strategy needs at least 2 items to calibrate, got %d", r.Items)
	}
	switch r.Noise {
	case types.NoiseUniform:
		if r.NoiseParameter < 0 || r.NoiseParameter > 0.5 {
			return invalid("uniform noise_parameter must be in [0, 0.5], got %g", r.NoiseParameter)
		}
	case types.NoiseHBTL:
		if r.NoiseParameter <= 0 {
			return invalid("hbtl noise_parameter must be positive, got %g", r.NoiseParameter)
		}
	default:
		return invalid("invalid noise model: %s (must be uniform or hbtl)", r.Noise)
	}
	if r.CacheSize < 1 {
		return invalid("run.cache_size must be at least 1, got %d", r.CacheSize)
	}
	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.Run.Validate(); err != nil {
		return err
	}

	if c.Experiment.Trials < 1 {
		return invalid("experiment.trials must be at least 1, got %d", c.Experiment.Trials)
	}
	if c.Experiment.Concurrency < 1 {
		return invalid("experiment.concurrency must be at least 1, got %d", c.Experiment.Concurrency)
	}

	switch c.Log.Format {
	case "json", "text":
	default:
		return invalid("invalid log format: %s (must be json or text)", c.Log.Format)
	}

	return nil
}

func invalid(format string, args ...interface{}) error {
	return rankerrors.NewValidationError(fmt.Sprintf(format, args...))
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the ACTIVERANK_ prefix. Malformed numbers are
// ignored and leave the previous value in place.
func LoadFromEnv(cfg *Config) {
	// Run configuration
	if v := os.Getenv("ACTIVERANK_ITEMS"); v != "" {
		setInt(v, &cfg.Run.Items)
	}
	if v := os.Getenv("ACTIVERANK_WORKERS"); v != "" {
		setInt(v, &cfg.Run.Workers)
	}
	if v := os.Getenv("ACTIVERANK_DELTA"); v != "" {
		setFloat(v, &cfg.Run.Delta)
	}
	if v := os.Getenv("ACTIVERANK_EPSILON"); v != "" {
		setFloat(v, &cfg.Run.Epsilon)
	}
	if v := os.Getenv("ACTIVERANK_NOISE"); v != "" {
		cfg.Run.Noise = types.NoiseKind(v)
	}
	if v := os.Getenv("ACTIVERANK_NOISE_PARAMETER"); v != "" {
		setFloat(v, &cfg.Run.NoiseParameter)
	}
	if v := os.Getenv("ACTIVERANK_STRATEGY"); v != "" {
		cfg.Run.Strategy = types.StrategyName(v)
	}
	if v := os.Getenv("ACTIVERANK_ACTIVE_ELIMINATION"); v != "" {
		cfg.Run.ActiveElimination = v == "true" || v == "1"
	}
	if v := os.Getenv("ACTIVERANK_SEED"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Run.Seed = n
		}
	}

	// Experiment configuration
	if v := os.Getenv("ACTIVERANK_TRIALS"); v != "" {
		setInt(v, &cfg.Experiment.Trials)
	}
	if v := os.Getenv("ACTIVERANK_CONCURRENCY"); v != "" {
		setInt(v, &cfg.Experiment.Concurrency)
	}
	if v := os.Getenv("ACTIVERANK_BASE_SEED"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Experiment.BaseSeed = n
		}
	}

	// Log configuration
	if v := os.Getenv("ACTIVERANK_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("ACTIVERANK_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

func setInt(v string, dst *int) {
	if n, err := strconv.Atoi(v); err == nil {
		*dst = n
	}
}

func setFloat(v string, dst *float64) {
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		*dst = f
	}
}
