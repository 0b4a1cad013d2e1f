package elimination

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/activerank/activerank/internal/atc"
	rankerrors "github.com/activerank/activerank/internal/errors"
	"github.com/activerank/activerank/internal/logger"
	"github.com/activerank/activerank/internal/state"
	"github.com/activerank/activerank/pkg/types"
)

// UCB prunes workers whose upper confidence bound on accuracy falls strictly
// below another active worker's lower bound.
//
// A worker's correct votes are credited only once the item it voted on has
// been inserted: votes against every reference compared during that
// insertion are judged by where the reference ended up relative to the new
// item. This credits workers through comparisons resolved by others and
// assumes reliability carries across item pairs.
type UCB struct {
	logger logger.Logger

	asked   []int64
	correct []int64

	// votes buffered per reference item for the insertion in progress
	pending map[types.ItemID]*tally
	refs    []types.ItemID
}

type tally struct {
	above []int
	below []int
}

// NewUCB creates the policy for a pool of the given size.
func NewUCB(workers int, log logger.Logger) *UCB {
	if log == nil {
		log = logger.NewNoopLogger()
	}
	return &UCB{
		logger:  log,
		asked:   make([]int64, workers),
		correct: make([]int64, workers),
		pending: make(map[types.ItemID]*tally),
	}
}

func (c *UCB) Name() types.StrategyName { return types.StrategyUCB }

func (c *UCB) Discipline() atc.Discipline { return atc.SingleDraw }

func (c *UCB) Initial(st *state.RunState) ([]types.WorkerID, error) {
	return st.Active(), nil
}

// Threshold returns the total query count 2*M^2*log(N*M/delta) after which
// pruning starts.
func Threshold(items, workers int, delta float64) float64 {
	m := float64(workers)
	return 2 * m * m * math.Log(float64(items)*m/delta)
}

// Counts returns copies of the per-worker (correct, asked) tallies.
func (c *UCB) Counts() (correct, asked []int64) {
	return append([]int64(nil), c.correct...), append([]int64(nil), c.asked...)
}

func (c *UCB) Update(st *state.RunState, ev Evidence) ([]types.WorkerID, error) {
	if ev.Compared {
		c.record(ev.Reference, ev.Result)
	}
	if !ev.Inserted {
		return st.Active(), nil
	}
	if ev.Position < 0 {
		return nil, rankerrors.NewInternalError("inserted item has no position",
			fmt.Errorf("item %d at %d", ev.Item, ev.Position))
	}

	c.fold(ev.Position, ev.Ordered)
	return c.eliminate(st)
}

func (c *UCB) record(ref types.ItemID, res atc.Result) {
	t, ok := c.pending[ref]
	if !ok {
		t = &tally{above: make([]int, len(c.asked)), below: make([]int, len(c.asked))}
		c.pending[ref] = t
		c.refs = append(c.refs, ref)
	}
	for u := range c.asked {
		c.asked[u] += int64(res.Above[u] + res.Below[u])
		t.above[u] += res.Above[u]
		t.below[u] += res.Below[u]
	}
}

// fold credits buffered votes against the final placement and clears the buffer.
func (c *UCB) fold(position int, ordered []types.ItemID) {
	at := make(map[types.ItemID]int, len(ordered))
	for p, it := range ordered {
		at[it] = p
	}
	for _, ref := range c.refs {
		p, ok := at[ref]
		if !ok {
			continue
		}
		t := c.pending[ref]
		switch {
		case position > p:
			for u, n := range t.above {
				c.correct[u] += int64(n)
			}
		case position < p:
			for u, n := range t.below {
				c.correct[u] += int64(n)
			}
		}
	}
	c.pending = make(map[types.ItemID]*tally)
	c.refs = c.refs[:0]
}

func (c *UCB) eliminate(st *state.RunState) ([]types.WorkerID, error) {
	active := st.ActiveView()
	if len(active) <= 1 {
		return st.Active(), nil
	}

	var total int64
	for _, n := range c.asked {
		total += n
	}
	if float64(total) <= Threshold(st.Items, st.Workers, st.Delta) {
		return st.Active(), nil
	}

	smin := c.asked[active[0]]
	for _, u := range active[1:] {
		if c.asked[u] < smin {
			smin = c.asked[u]
		}
	}
	if smin == 0 {
		return nil, rankerrors.NewPreconditionError(rankerrors.CodeUndefinedRadius,
			"an active worker has never been queried").
			WithDetails(map[string]interface{}{"total_queries": total})
	}

	spread := math.Log(2 * float64(len(active)) / st.Delta)
	r := math.Sqrt(spread / (2 * float64(smin)))
	if !(r > 0) || math.IsInf(r, 0) {
		return nil, rankerrors.NewPreconditionError(rankerrors.CodeUndefinedRadius,
			fmt.Sprintf("confidence radius %g from %d samples", r, smin))
	}

	ucb := make(map[types.WorkerID]float64, len(active))
	lcb := make(map[types.WorkerID]float64, len(active))
	for _, u := range active {
		mu := float64(c.correct[u]) / float64(c.asked[u])
		ucb[u] = mu + r
		lcb[u] = mu - r
	}

	next := make([]types.WorkerID, 0, len(active))
	for _, u := range active {
		dominated := false
		for _, v := range active {
			if ucb[u] < lcb[v] {
				dominated = true
				break
			}
		}
		if !dominated {
			next = append(next, u)
		}
	}
	if len(next) == 0 {
		return nil, rankerrors.NewPreconditionError(rankerrors.CodeEmptyActiveSet,
			"dominance pruning removed every worker").
			WithDetails(map[string]interface{}{"radius": r, "active": len(active)})
	}

	if len(next) < len(active) {
		c.logger.Debug("pruned dominated workers",
			zap.Int("removed", len(active)-len(next)),
			zap.Int("active", len(next)),
			zap.Float64("radius", r),
			zap.Int64("min_samples", smin))
	}
	return next, nil
}
