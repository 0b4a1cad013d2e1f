// Package ranking drives an insertion-sort oracle with Attempt-To-Compare
// decisions and an optional worker elimination policy.
//
// A Ranker performs exactly one run. All of its state lives in a
// state.RunState owned by the Ranker; independent runs share nothing and may
// execute on separate goroutines.
package ranking

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/activerank/activerank/internal/atc"
	"github.com/activerank/activerank/internal/config"
	"github.com/activerank/activerank/internal/elimination"
	rankerrors "github.com/activerank/activerank/internal/errors"
	"github.com/activerank/activerank/internal/logger"
	"github.com/activerank/activerank/internal/noise"
	"github.com/activerank/activerank/internal/oracle"
	"github.com/activerank/activerank/internal/sampler"
	"github.com/activerank/activerank/internal/state"
	"github.com/activerank/activerank/pkg/types"
)

// Oracle is the insertion-sort controller the Ranker answers.
type Oracle interface {
	Done() bool

	// NextPair returns the item being inserted and the position to compare
	// it against: types.BeforeAll, InsertedCount() (after-all) or a real
	// position in between.
	NextPair() (types.ItemID, int)

	// Feedback consumes one decision and reports whether the item was
	// inserted, and where.
	Feedback(types.Decision) (bool, int)

	InsertedCount() int
	ItemAt(pos int) types.ItemID
	Ordered() []types.ItemID

	// Params is the confidence budget each comparison must honor.
	Params() atc.Params
}

// Outcome is the result of a completed run.
type Outcome struct {
	Strategy         types.StrategyName `json:"strategy"`
	SampleComplexity int64              `json:"sample_complexity"`
	Ordered          []types.ItemID     `json:"ordered"`
	Comparisons      int                `json:"comparisons"`
	ActiveSizes      []int              `json:"active_sizes"`
	FinalActive      []types.WorkerID   `json:"final_active"`
}

// Ranker runs one active ranking.
type Ranker struct {
	cfg      config.RunConfig
	logger   logger.Logger
	model    noise.Model
	oracle   Oracle
	strategy elimination.Strategy
	comparer atc.Comparer
	state    *state.RunState
	started  bool
}

// Option customizes a Ranker.
type Option func(*options)

type options struct {
	logger logger.Logger
	wrap   func(noise.Model) noise.Model
	model  noise.Model
	oracle Oracle
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l logger.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithModel replaces the configured noise model.
func WithModel(m noise.Model) Option {
	return func(o *options) { o.model = m }
}

// WithModelWrapper wraps whichever noise model the Ranker ends up using.
func WithModelWrapper(wrap func(noise.Model) noise.Model) Option {
	return func(o *options) { o.wrap = wrap }
}

// WithOracle replaces the reference interval oracle.
func WithOracle(or Oracle) Option {
	return func(o *options) { o.oracle = or }
}

// New creates a Ranker for the given run configuration.
func New(cfg config.RunConfig, opts ...Option) (*Ranker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.NewNoopLogger()
	}

	rng := sampler.NewRand(cfg.Seed)

	model := o.model
	if model == nil {
		var err error
		model, err = noise.New(cfg.Noise, cfg.ItemScores(), cfg.NoiseParameter, cfg.Workers, rng)
		if err != nil {
			return nil, rankerrors.NewValidationError(err.Error())
		}
	}
	if o.wrap != nil {
		model = o.wrap(model)
	}

	or := o.oracle
	if or == nil {
		or = oracle.NewInterval(cfg.Items, cfg.Delta, cfg.Epsilon)
	}

	r := &Ranker{
		cfg:    cfg,
		logger: o.logger.With(zap.String("strategy", string(cfg.Strategy)), zap.Uint64("seed", cfg.Seed)),
		model:  model,
		oracle: or,
		state:  state.New(cfg.Items, cfg.Workers, cfg.Delta),
	}

	r.strategy = r.newStrategy()
	switch r.strategy.Discipline() {
	case atc.SingleDraw:
		r.comparer = atc.NewDraws(model, sampler.NewUserCache(rng, cfg.CacheSize), cfg.Workers)
	default:
		r.comparer = atc.NewRounds(model, cfg.Workers)
	}

	return r, nil
}

func (r *Ranker) newStrategy() elimination.Strategy {
	switch r.cfg.Strategy {
	case types.StrategyHalving:
		return elimination.NewHalving(r.model, r.calibrate, r.logger)
	case types.StrategyUCB:
		return elimination.NewUCB(r.cfg.Workers, r.logger)
	default:
		return elimination.NewAggregate(r.cfg.Workers, elimination.DefaultEliminationEpsilon)
	}
}

// calibrate ranks items 0 and 1 with the full pool and no elimination,
// sharing this run's noise model and random stream.
func (r *Ranker) calibrate() (types.Decision, int64, error) {
	sub := r.cfg
	sub.Items = 2
	sub.Scores = nil
	sub.Strategy = types.StrategyAggregate
	sub.ActiveElimination = false

	cal, err := New(sub, WithModel(r.model), WithLogger(r.logger))
	if err != nil {
		return types.Below, 0, err
	}
	out, err := cal.Rank()
	if err != nil {
		return types.Below, cal.State().SampleComplexity(), err
	}

	r.logger.Debug("calibrated ground truth",
		zap.Int64("queries", out.SampleComplexity),
		zap.Any("ordered", out.Ordered))

	if out.Ordered[0] == 0 {
		return types.Below, out.SampleComplexity, nil
	}
	return types.Above, out.SampleComplexity, nil
}

// State exposes the run state for inspection after Rank returns.
func (r *Ranker) State() *state.RunState {
	return r.state
}

// Strategy returns the elimination policy in use.
func (r *Ranker) Strategy() elimination.Strategy {
	return r.strategy
}

// Rank runs the oracle to completion. Fatal statistical or protocol
// conditions are returned as errors; the partial sample complexity is
// still available through State.
func (r *Ranker) Rank() (*Outcome, error) {
	if r.started {
		return nil, rankerrors.NewInternalError("ranker already used", nil)
	}
	r.started = true

	st := r.state
	active := r.cfg.ActiveElimination

	if active {
		initial, err := r.strategy.Initial(st)
		if err != nil {
			return nil, err
		}
		if err := st.SetActive(initial); err != nil {
			return nil, err
		}
	}

	comparisons := 0
	for !r.oracle.Done() {
		item, pos := r.oracle.NextPair()
		placed := r.oracle.InsertedCount()
		if item < 0 || int(item) >= r.cfg.Items || pos < types.BeforeAll || pos > placed {
			return nil, rankerrors.NewBoundsError(
				fmt.Sprintf("oracle asked for item %d at position %d with %d of %d items placed",
					item, pos, placed, r.cfg.Items))
		}

		ev := elimination.Evidence{Item: item}
		var decision types.Decision
		switch pos {
		case types.BeforeAll:
			decision = types.Above
		case placed:
			decision = types.Below
		default:
			ref := r.oracle.ItemAt(pos)
			res, err := r.comparer.Compare(item, ref, r.oracle.Params(), st.ActiveView())
			if err != nil {
				return nil, err
			}
			st.AddQueries(res.Queries)
			comparisons++

			decision = res.Decision
			ev.Reference = ref
			ev.Compared = true
			ev.Result = res
		}

		inserted, at := r.oracle.Feedback(decision)
		if !active || !(ev.Compared || inserted) {
			continue
		}

		ev.Inserted = inserted
		ev.Position = at
		if inserted {
			ev.Ordered = r.oracle.Ordered()
		}

		before := st.ActiveCount()
		next, err := r.strategy.Update(st, ev)
		if err != nil {
			return nil, err
		}
		if err := st.SetActive(next); err != nil {
			return nil, err
		}
		if st.ActiveCount() < before {
			r.logger.Debug("eliminated workers",
				zap.Int("before", before),
				zap.Int("after", st.ActiveCount()),
				zap.Int64("queries", st.SampleComplexity()))
		}
	}

	ordered := r.oracle.Ordered()
	if !types.IsPermutation(ordered, r.cfg.Items) {
		return nil, rankerrors.NewInternalError("oracle finished with an invalid ordering",
			fmt.Errorf("%v: %w", ordered, types.ErrNotPermutation))
	}

	return &Outcome{
		Strategy:         r.cfg.Strategy,
		SampleComplexity: st.SampleComplexity(),
		Ordered:          ordered,
		Comparisons:      comparisons,
		ActiveSizes:      st.ActiveSizes(),
		FinalActive:      st.Active(),
	}, nil
}
