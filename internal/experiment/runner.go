// Package experiment runs Monte-Carlo batches of independent ranking runs
// and summarizes their sample complexity and correctness.
package experiment

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
	"github.com/spaolacci/murmur3"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/activerank/activerank/internal/config"
	rankerrors "github.com/activerank/activerank/internal/errors"
	"github.com/activerank/activerank/internal/logger"
	"github.com/activerank/activerank/internal/observability"
	"github.com/activerank/activerank/internal/ranking"
	"github.com/activerank/activerank/internal/sampler"
	"github.com/activerank/activerank/pkg/types"
)

// TrialResult is the record of one run in a batch.
type TrialResult struct {
	Trial            int              `json:"trial"`
	RunID            string           `json:"run_id"`
	Seed             uint64           `json:"seed"`
	Scores           []float64        `json:"scores,omitempty"`
	SampleComplexity int64            `json:"sample_complexity"`
	Ordered          []types.ItemID   `json:"ordered,omitempty"`
	FinalActive      []types.WorkerID `json:"final_active,omitempty"`
	Correct          bool             `json:"correct"`
	ErrorCode        string           `json:"error_code,omitempty"`
	Error            string           `json:"error,omitempty"`
}

// Failed reports whether the run ended with an error.
func (t TrialResult) Failed() bool {
	return t.ErrorCode != ""
}

// Report summarizes a batch.
type Report struct {
	BatchID   string             `json:"batch_id"`
	Strategy  types.StrategyName `json:"strategy"`
	Trials    int                `json:"trials"`
	Succeeded int                `json:"succeeded"`
	Failed    int                `json:"failed"`
	Correct   int                `json:"correct"`

	// Accuracy is Correct / Trials.
	Accuracy float64 `json:"accuracy"`

	// Complexity statistics over successful trials.
	MeanComplexity   float64 `json:"mean_complexity"`
	StdDevComplexity float64 `json:"stddev_complexity"`
	MinComplexity    int64   `json:"min_complexity"`
	MaxComplexity    int64   `json:"max_complexity"`

	Failures map[string]int `json:"failures,omitempty"`
	Duration time.Duration  `json:"duration_ns"`
	Results  []TrialResult  `json:"results"`
}

// Runner executes a batch of ranking runs.
type Runner struct {
	run     config.RunConfig
	exp     config.ExperimentConfig
	logger  logger.Logger
	stats   *observability.RunStats
	metrics *observability.Metrics
	extra   func(trial int) []ranking.Option
}

// Option customizes a Runner.
type Option func(*Runner)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithStats shares a run statistics tracker across batches.
func WithStats(s *observability.RunStats) Option {
	return func(r *Runner) { r.stats = s }
}

// WithMetrics exports every trial to Prometheus collectors.
func WithMetrics(m *observability.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithRankerOptions adds per-trial options to every ranking run.
func WithRankerOptions(fn func(trial int) []ranking.Option) Option {
	return func(r *Runner) { r.extra = fn }
}

// NewRunner creates a Runner. Both configurations are validated up front so
// that per-trial failures can only come from the runs themselves.
func NewRunner(run config.RunConfig, exp config.ExperimentConfig, opts ...Option) (*Runner, error) {
	if err := run.Validate(); err != nil {
		return nil, err
	}
	if exp.Trials < 1 {
		return nil, rankerrors.NewValidationError(fmt.Sprintf("experiment.trials must be at least 1, got %d", exp.Trials))
	}
	if exp.Concurrency < 1 {
		return nil, rankerrors.NewValidationError(fmt.Sprintf("experiment.concurrency must be at least 1, got %d", exp.Concurrency))
	}

	r := &Runner{run: run, exp: exp}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logger.NewNoopLogger()
	}
	if r.stats == nil {
		r.stats = observability.NewRunStats()
	}
	return r, nil
}

// Stats returns the run statistics tracker fed by this Runner.
func (r *Runner) Stats() *observability.RunStats {
	return r.stats
}

// TrialSeed derives the seed of trial k from the batch seed.
func TrialSeed(base uint64, k int) uint64 {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], base)
	binary.LittleEndian.PutUint64(buf[8:], uint64(k))
	return murmur3.Sum64(buf[:])
}

// Run executes every trial and returns the batch report. Trial failures are
// recorded in the report; only context cancellation aborts the batch.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	batchID := uuid.New().String()
	log := r.logger.With(zap.String("batch_id", batchID), zap.String("strategy", string(r.run.Strategy)))

	log.Info("starting batch",
		zap.Int("trials", r.exp.Trials),
		zap.Int("concurrency", r.exp.Concurrency),
		zap.Int("items", r.run.Items),
		zap.Int("workers", r.run.Workers))

	results := make([]TrialResult, r.exp.Trials)

	p := pool.New().WithContext(ctx).WithMaxGoroutines(r.exp.Concurrency)
	for k := 0; k < r.exp.Trials; k++ {
		if ctx.Err() != nil {
			break
		}
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[k] = r.trial(k, log)
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report := summarize(results)
	report.BatchID = batchID
	report.Strategy = r.run.Strategy
	report.Duration = time.Since(start)

	log.Info("batch complete",
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
		zap.Int("correct", report.Correct),
		zap.Float64("mean_complexity", report.MeanComplexity),
		zap.Duration("duration", report.Duration))

	return report, nil
}

func (r *Runner) trial(k int, log logger.Logger) TrialResult {
	cfg := r.run
	cfg.Seed = TrialSeed(r.exp.BaseSeed, k)
	scores := cfg.ItemScores()

	res := TrialResult{
		Trial: k,
		RunID: uuid.New().String(),
		Seed:  cfg.Seed,
	}

	if r.exp.ShuffleScores {
		rng := sampler.NewRand(cfg.Seed ^ 0x5851f42d4c957f2d)
		rng.Shuffle(len(scores), func(i, j int) { scores[i], scores[j] = scores[j], scores[i] })
		cfg.Scores = scores
		res.Scores = append([]float64(nil), scores...)
	}

	var opts []ranking.Option
	if r.extra != nil {
		opts = r.extra(k)
	}

	var queries int64
	out, err := func() (*ranking.Outcome, error) {
		rk, err := ranking.New(cfg, opts...)
		if err != nil {
			return nil, err
		}
		out, err := rk.Rank()
		queries = rk.State().SampleComplexity()
		return out, err
	}()

	if err != nil {
		res.SampleComplexity = queries
		res.ErrorCode = rankerrors.GetCode(err)
		if res.ErrorCode == "" {
			res.ErrorCode = rankerrors.CodeUnexpected
		}
		res.Error = err.Error()

		log.Warn("trial failed",
			zap.Int("trial", k),
			zap.String("run_id", res.RunID),
			zap.Uint64("seed", res.Seed),
			zap.String("code", res.ErrorCode),
			zap.Error(err))

		r.stats.RecordFailure(cfg.Strategy, res.ErrorCode, queries)
		if r.metrics != nil {
			r.metrics.ObserveFailure(cfg.Strategy, res.ErrorCode, queries)
		}
		return res
	}

	res.SampleComplexity = out.SampleComplexity
	res.Ordered = out.Ordered
	res.FinalActive = out.FinalActive
	res.Correct = IsSorted(out.Ordered, scores)

	r.stats.RecordRun(cfg.Strategy, out.SampleComplexity, res.Correct)
	if r.metrics != nil {
		r.metrics.ObserveRun(cfg.Strategy, out.SampleComplexity, len(out.FinalActive), res.Correct)
	}
	return res
}

// IsSorted reports whether ordered matches the argsort of scores. Items with
// equal scores may appear in either order.
func IsSorted(ordered []types.ItemID, scores []float64) bool {
	if len(ordered) != len(scores) || !types.IsPermutation(ordered, len(scores)) {
		return false
	}
	sorted := append([]float64(nil), scores...)
	inds := make([]int, len(sorted))
	floats.Argsort(sorted, inds)
	for i, it := range ordered {
		if int(it) != inds[i] && scores[it] != scores[inds[i]] {
			return false
		}
	}
	return true
}

func summarize(results []TrialResult) *Report {
	report := &Report{
		Trials:   len(results),
		Failures: make(map[string]int),
		Results:  results,
	}

	var complexities []float64
	for _, res := range results {
		if res.Failed() {
			report.Failed++
			report.Failures[res.ErrorCode]++
			continue
		}
		report.Succeeded++
		if res.Correct {
			report.Correct++
		}
		if len(complexities) == 0 || res.SampleComplexity < report.MinComplexity {
			report.MinComplexity = res.SampleComplexity
		}
		if res.SampleComplexity > report.MaxComplexity {
			report.MaxComplexity = res.SampleComplexity
		}
		complexities = append(complexities, float64(res.SampleComplexity))
	}

	if report.Trials > 0 {
		report.Accuracy = float64(report.Correct) / float64(report.Trials)
	}
	switch len(complexities) {
	case 0:
	case 1:
		report.MeanComplexity = complexities[0]
	default:
		report.MeanComplexity, report.StdDevComplexity = stat.MeanStdDev(complexities, nil)
	}
	if len(report.Failures) == 0 {
		report.Failures = nil
	}
	return report
}
