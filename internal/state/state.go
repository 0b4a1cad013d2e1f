// Package state holds the run-scoped mutable state shared by the ranking
// orchestrator and the elimination strategies. A RunState belongs to exactly
// one ranking run and is never shared across goroutines.
package state

import (
	"fmt"

	rankerrors "github.com/activerank/activerank/internal/errors"
	"github.com/activerank/activerank/pkg/types"
)

// RunState tracks the active worker set and the sample complexity counter.
type RunState struct {
	// Items is N
	Items int

	// Workers is M
	Workers int

	// Delta is the global failure probability of the run
	Delta float64

	active  []types.WorkerID
	queries int64
	sizes   []int
}

// New creates the state for a run over n items and m workers with every
// worker active.
func New(n, m int, delta float64) *RunState {
	return &RunState{
		Items:   n,
		Workers: m,
		Delta:   delta,
		active:  types.Workers(m),
		sizes:   []int{m},
	}
}

// Active returns a copy of the active worker set.
func (s *RunState) Active() []types.WorkerID {
	return append([]types.WorkerID(nil), s.active...)
}

// ActiveView returns the active set without copying. Callers must not mutate it.
func (s *RunState) ActiveView() []types.WorkerID {
	return s.active
}

// ActiveCount returns |cU|.
func (s *RunState) ActiveCount() int {
	return len(s.active)
}

// SetActive installs the next active set. The set must be non-empty, must
// not grow, and must be drawn from the current active set.
func (s *RunState) SetActive(next []types.WorkerID) error {
	if len(next) == 0 {
		return rankerrors.NewPreconditionError(rankerrors.CodeEmptyActiveSet,
			"elimination would leave no active workers").
			WithDetails(map[string]interface{}{"active": len(s.active)})
	}
	if len(next) > len(s.active) {
		return rankerrors.NewInternalError("active worker set cannot grow",
			fmt.Errorf("%d workers active, %d proposed", len(s.active), len(next)))
	}

	current := make(map[types.WorkerID]bool, len(s.active))
	for _, u := range s.active {
		current[u] = true
	}
	for _, u := range next {
		if !current[u] {
			return rankerrors.NewInternalError("active worker set gained a worker",
				fmt.Errorf("worker %d: %w", u, types.ErrUnknownWorker))
		}
	}

	changed := len(next) != len(s.active)
	s.active = append(s.active[:0:0], next...)
	if changed {
		s.sizes = append(s.sizes, len(next))
	}
	return nil
}

// AddQueries charges n worker queries to the run.
func (s *RunState) AddQueries(n int) {
	if n > 0 {
		s.queries += int64(n)
	}
}

// SampleComplexity returns the total number of worker queries so far.
func (s *RunState) SampleComplexity() int64 {
	return s.queries
}

// ActiveSizes returns the history of |cU|, starting with M and appending
// every change.
func (s *RunState) ActiveSizes() []int {
	return append([]int(nil), s.sizes...)
}
