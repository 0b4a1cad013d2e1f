package elimination

import (
	"math"

	"github.com/activerank/activerank/internal/atc"
	"github.com/activerank/activerank/internal/state"
	"github.com/activerank/activerank/pkg/types"
)

// DefaultEliminationEpsilon is the accuracy resolution used to size the
// aggregate budget.
const DefaultEliminationEpsilon = 0.1

// Aggregate accumulates agreeing votes over every comparison of the run and,
// once enough rounds have been seen, collapses the pool to the single most
// accurate worker. The cut happens at most once.
type Aggregate struct {
	epsilon float64
	correct []int64
	rounds  int64
}

// NewAggregate creates the policy for a pool of the given size. epsilon <= 0
// selects DefaultEliminationEpsilon.
func NewAggregate(workers int, epsilon float64) *Aggregate {
	if epsilon <= 0 {
		epsilon = DefaultEliminationEpsilon
	}
	return &Aggregate{
		epsilon: epsilon,
		correct: make([]int64, workers),
	}
}

func (a *Aggregate) Name() types.StrategyName { return types.StrategyAggregate }

func (a *Aggregate) Discipline() atc.Discipline { return atc.RoundBased }

func (a *Aggregate) Initial(st *state.RunState) ([]types.WorkerID, error) {
	return st.Active(), nil
}

// Budget returns s_max = ceil(2/eps^2 * log(active/delta)).
func (a *Aggregate) Budget(active int, delta float64) int64 {
	return int64(math.Ceil(2 / (a.epsilon * a.epsilon) * math.Log(float64(active)/delta)))
}

// Rounds returns the number of rounds accumulated so far.
func (a *Aggregate) Rounds() int64 {
	return a.rounds
}

func (a *Aggregate) Update(st *state.RunState, ev Evidence) ([]types.WorkerID, error) {
	if ev.Compared {
		a.rounds += int64(ev.Result.Steps)
		for u, n := range ev.Result.Agreement() {
			a.correct[u] += int64(n)
		}
	}

	active := st.ActiveView()
	if len(active) <= 1 || a.rounds <= a.Budget(len(active), st.Delta) {
		return st.Active(), nil
	}

	// Every active worker answered every round, so the best accuracy is the
	// highest agreeing count.
	best := active[0]
	for _, u := range active[1:] {
		if a.correct[u] > a.correct[best] {
			best = u
		}
	}
	return []types.WorkerID{best}, nil
}
