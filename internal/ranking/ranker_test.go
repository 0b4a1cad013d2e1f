package ranking

import (
	"fmt"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/activerank/activerank/internal/atc"
	"github.com/activerank/activerank/internal/config"
	rankerrors "github.com/activerank/activerank/internal/errors"
	"github.com/activerank/activerank/internal/noise"
	"github.com/activerank/activerank/pkg/types"
)

var strategies = []types.StrategyName{
	types.StrategyAggregate,
	types.StrategyHalving,
	types.StrategyUCB,
}

func runConfig(n, m int, strategy types.StrategyName, seed uint64) config.RunConfig {
	cfg := config.DefaultConfig().Run
	cfg.Items = n
	cfg.Workers = m
	cfg.Strategy = strategy
	cfg.Seed = seed
	return cfg
}

func rank(t *testing.T, cfg config.RunConfig, opts ...Option) *Outcome {
	t.Helper()
	r, err := New(cfg, opts...)
	require.NoError(t, err)
	out, err := r.Rank()
	require.NoError(t, err)
	return out
}

func argsort(scores []float64) []types.ItemID {
	idx := make([]types.ItemID, len(scores))
	for i := range idx {
		idx[i] = types.ItemID(i)
	}
	sort.SliceStable(idx, func(a, b int) bool { return scores[idx[a]] < scores[idx[b]] })
	return idx
}

func TestRank_PerfectWorkersTwoItems(t *testing.T) {
	cfg := runConfig(2, 5, types.StrategyAggregate, 42)
	cfg.Scores = []float64{1, 2}
	cfg.NoiseParameter = 0.5

	out := rank(t, cfg)

	// Item 0 is placed between the sentinels for free. Item 1 is compared
	// with item 0 once during the search and once during verification; each
	// comparison stops after 4 rounds of 5 workers.
	assert.Equal(t, int64(40), out.SampleComplexity)
	assert.Equal(t, 2, out.Comparisons)
	assert.Equal(t, []types.ItemID{0, 1}, out.Ordered)
	assert.Equal(t, []int{5}, out.ActiveSizes)
	assert.Len(t, out.FinalActive, 5)
	assert.Equal(t, types.StrategyAggregate, out.Strategy)
}

func TestRank_SeededNoisyTwoItems(t *testing.T) {
	// Workers answer correctly with probability 0.8, so the stopping round
	// of each comparison depends on the seeded vote stream.
	cases := []struct {
		seed    uint64
		queries int64
		steps   [2]int64
	}{
		{seed: 42, queries: 95, steps: [2]int64{12, 7}},
		{seed: 43, queries: 80, steps: [2]int64{10, 6}},
		{seed: 7, queries: 110, steps: [2]int64{10, 12}},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("seed=%d", tc.seed), func(t *testing.T) {
			cfg := runConfig(2, 5, types.StrategyAggregate, tc.seed)
			cfg.Scores = []float64{1, 2}
			cfg.NoiseParameter = 0.3

			out := rank(t, cfg)
			assert.Equal(t, tc.queries, out.SampleComplexity)
			assert.Equal(t, 5*(tc.steps[0]+tc.steps[1]), out.SampleComplexity)
			assert.Equal(t, 2, out.Comparisons)
			assert.Equal(t, []types.ItemID{0, 1}, out.Ordered)
		})
	}
}

func TestRank_SingleItem(t *testing.T) {
	for _, s := range []types.StrategyName{types.StrategyAggregate, types.StrategyUCB} {
		out := rank(t, runConfig(1, 3, s, 7))
		assert.Equal(t, []types.ItemID{0}, out.Ordered, s)
		assert.Zero(t, out.SampleComplexity, s)
		assert.Zero(t, out.Comparisons, s)
	}
}

func TestRank_DescendingScores(t *testing.T) {
	cfg := runConfig(4, 4, types.StrategyAggregate, 3)
	cfg.Scores = []float64{4, 3, 2, 1}
	cfg.NoiseParameter = 0.5

	out := rank(t, cfg)
	assert.Equal(t, []types.ItemID{3, 2, 1, 0}, out.Ordered)
}

func TestRank_Deterministic(t *testing.T) {
	for _, s := range strategies {
		t.Run(string(s), func(t *testing.T) {
			cfg := runConfig(6, 8, s, 99)
			a := rank(t, cfg)
			b := rank(t, cfg)
			if diff := cmp.Diff(a, b); diff != "" {
				t.Errorf("same seed produced different outcomes (-first +second):\n%s", diff)
			}
		})
	}
}

func TestRank_SampleComplexityCountsEveryVote(t *testing.T) {
	for _, s := range strategies {
		t.Run(string(s), func(t *testing.T) {
			var counter *noise.Counting
			wrap := func(m noise.Model) noise.Model {
				counter = &noise.Counting{Model: m}
				return counter
			}
			out := rank(t, runConfig(5, 6, s, 17), WithModelWrapper(wrap))
			require.NotNil(t, counter)
			assert.Equal(t, counter.Calls, out.SampleComplexity)
			assert.Positive(t, out.SampleComplexity)
		})
	}
}

func TestRank_ActiveSetNeverGrows(t *testing.T) {
	for _, s := range strategies {
		t.Run(string(s), func(t *testing.T) {
			cfg := runConfig(8, 12, s, 5)
			cfg.NoiseParameter = 0.2
			out := rank(t, cfg)

			require.NotEmpty(t, out.ActiveSizes)
			assert.Equal(t, 12, out.ActiveSizes[0])
			for i := 1; i < len(out.ActiveSizes); i++ {
				assert.Less(t, out.ActiveSizes[i], out.ActiveSizes[i-1])
			}
			assert.Equal(t, out.ActiveSizes[len(out.ActiveSizes)-1], len(out.FinalActive))
			assert.NotEmpty(t, out.FinalActive)
		})
	}
}

func TestRank_HalvingLeavesOneWorker(t *testing.T) {
	r, err := New(runConfig(4, 9, types.StrategyHalving, 21))
	require.NoError(t, err)
	out, err := r.Rank()
	require.NoError(t, err)

	assert.Len(t, out.FinalActive, 1)
	assert.Equal(t, []int{9, 5, 3, 2, 1}, out.ActiveSizes)
}

func TestRank_PassiveKeepsFullPool(t *testing.T) {
	for _, s := range strategies {
		cfg := runConfig(6, 7, s, 8)
		cfg.ActiveElimination = false
		out := rank(t, cfg)
		assert.Equal(t, []int{7}, out.ActiveSizes, s)
		assert.Equal(t, types.Workers(7), out.FinalActive, s)
	}
}

func TestRank_RecoversOrderUnderNoise(t *testing.T) {
	if testing.Short() {
		t.Skip("monte-carlo test")
	}

	const trials = 200
	for _, s := range strategies {
		t.Run(string(s), func(t *testing.T) {
			correct := 0
			for k := 0; k < trials; k++ {
				cfg := runConfig(5, 10, s, uint64(1000+k))
				cfg.NoiseParameter = 0.3
				out := rank(t, cfg)
				if cmp.Equal(out.Ordered, argsort(cfg.ItemScores())) {
					correct++
				}
			}
			// delta = 0.1 bounds the failure rate of every run.
			assert.GreaterOrEqual(t, correct, trials*9/10)
		})
	}
}

func TestRank_HBTLNoise(t *testing.T) {
	cfg := runConfig(5, 6, types.StrategyUCB, 12)
	cfg.Noise = types.NoiseHBTL
	cfg.NoiseParameter = 2
	out := rank(t, cfg)
	assert.True(t, types.IsPermutation(out.Ordered, 5))
}

func TestRank_OrderedIsAlwaysAPermutation(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	properties := gopter.NewProperties(parameters)

	properties.Property("every run returns a permutation of its items", prop.ForAll(
		func(n, m, s int, gamma float64, seed uint64) bool {
			cfg := runConfig(n, m, strategies[s], seed)
			cfg.NoiseParameter = gamma
			r, err := New(cfg)
			if err != nil {
				return false
			}
			out, err := r.Rank()
			if err != nil {
				return false
			}
			return types.IsPermutation(out.Ordered, n) &&
				out.SampleComplexity == r.State().SampleComplexity()
		},
		gen.IntRange(2, 7),
		gen.IntRange(1, 6),
		gen.IntRange(0, len(strategies)-1),
		gen.Float64Range(0.15, 0.5),
		gen.UInt64(),
	))

	properties.TestingRun(t)
}

func TestRank_SingleUse(t *testing.T) {
	r, err := New(runConfig(3, 3, types.StrategyAggregate, 1))
	require.NoError(t, err)
	_, err = r.Rank()
	require.NoError(t, err)

	_, err = r.Rank()
	require.Error(t, err)
	assert.Equal(t, rankerrors.ErrCategoryInternal, rankerrors.GetCategory(err))
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := runConfig(1, 3, types.StrategyHalving, 1)
	_, err := New(cfg)
	require.Error(t, err)
	assert.Equal(t, rankerrors.ErrCategoryValidation, rankerrors.GetCategory(err))

	cfg = runConfig(3, 0, types.StrategyAggregate, 1)
	_, err = New(cfg)
	require.Error(t, err)
}

func TestNew_SelectsDiscipline(t *testing.T) {
	want := map[types.StrategyName]atc.Discipline{
		types.StrategyAggregate: atc.RoundBased,
		types.StrategyHalving:   atc.RoundBased,
		types.StrategyUCB:       atc.SingleDraw,
	}
	for s, d := range want {
		r, err := New(runConfig(3, 3, s, 1))
		require.NoError(t, err)
		assert.Equal(t, s, r.Strategy().Name())
		assert.Equal(t, d, r.comparer.Discipline())
	}
}

// badOracle asks for a position past the after-all sentinel.
type badOracle struct {
	item types.ItemID
	pos  int
}

func (o *badOracle) Done() bool { return false }
func (o *badOracle) NextPair() (types.ItemID, int) { return o.item, o.pos }
func (o *badOracle) Feedback(types.Decision) (bool, int) { return false, -1 }
func (o *badOracle) InsertedCount() int { return 0 }
func (o *badOracle) ItemAt(int) types.ItemID { return 0 }
func (o *badOracle) Ordered() []types.ItemID { return nil }
func (o *badOracle) Params() atc.Params { return atc.Params{Epsilon: 0.1, Delta: 0.01} }

func TestRank_BoundsViolation(t *testing.T) {
	cases := []struct {
		name string
		item types.ItemID
		pos  int
	}{
		{"position past after-all", 0, 1},
		{"position before before-all", 0, -2},
		{"item out of range", 3, 0},
		{"negative item", -1, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r, err := New(runConfig(3, 3, types.StrategyAggregate, 1),
				WithOracle(&badOracle{item: tc.item, pos: tc.pos}))
			require.NoError(t, err)

			_, err = r.Rank()
			require.Error(t, err)
			assert.True(t, rankerrors.IsBoundsViolation(err))
			assert.Zero(t, r.State().SampleComplexity())
		})
	}
}

// stuckOracle finishes with an ordering that drops an item.
type stuckOracle struct{ badOracle }

func (o *stuckOracle) Done() bool { return true }
func (o *stuckOracle) Ordered() []types.ItemID { return []types.ItemID{0, 0} }

func TestRank_RejectsNonPermutation(t *testing.T) {
	r, err := New(runConfig(2, 3, types.StrategyAggregate, 1), WithOracle(&stuckOracle{}))
	require.NoError(t, err)

	_, err = r.Rank()
	require.Error(t, err)
	assert.Equal(t, rankerrors.ErrCategoryInternal, rankerrors.GetCategory(err))
	assert.ErrorIs(t, err, types.ErrNotPermutation)
}
