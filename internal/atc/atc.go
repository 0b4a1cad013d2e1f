// Package atc implements Attempt-To-Compare: a sequential test that resolves
// one noisy pairwise comparison from worker votes. It stops as soon as the
// empirical preference leaves an anytime confidence band around 0.5, and
// otherwise falls back to a fixed budget derived from (epsilon, delta).
package atc

import (
	"fmt"
	"math"

	rankerrors "github.com/activerank/activerank/internal/errors"
	"github.com/activerank/activerank/internal/noise"
	"github.com/activerank/activerank/internal/sampler"
	"github.com/activerank/activerank/pkg/types"
)

// Params is the confidence budget of one comparison.
type Params struct {
	Epsilon float64
	Delta   float64
}

// Validate checks that the budget defines a finite test.
func (p Params) Validate() error {
	if !(p.Epsilon > 0) || math.IsInf(p.Epsilon, 0) {
		return rankerrors.NewPreconditionError(rankerrors.CodeInvalidConfidence,
			fmt.Sprintf("epsilon must be positive, got %g", p.Epsilon))
	}
	if !(p.Delta > 0 && p.Delta < 1) {
		return rankerrors.NewPreconditionError(rankerrors.CodeInvalidConfidence,
			fmt.Sprintf("delta must be in (0, 1), got %g", p.Delta))
	}
	return nil
}

// Discipline names how workers are queried at each step.
type Discipline string

const (
	// RoundBased queries every active worker once per step.
	RoundBased Discipline = "round"

	// SingleDraw queries one uniformly sampled active worker per step.
	SingleDraw Discipline = "single"
)

// Comparer resolves which of two items the active population prefers.
type Comparer interface {
	Compare(i, j types.ItemID, p Params, active []types.WorkerID) (Result, error)
	Discipline() Discipline
}

// Result is the outcome of one comparison.
type Result struct {
	// Decision is Above when i is preferred over j.
	Decision types.Decision

	// Steps is the number of rounds (round-based) or draws (single-draw).
	Steps int

	// Queries is the number of individual worker votes consumed.
	Queries int

	// Above and Below hold, per worker, the votes cast for "i above j" and
	// "i below j". Both have one entry per worker in the pool.
	Above []int
	Below []int
}

func newResult(workers int) Result {
	return Result{
		Above: make([]int, workers),
		Below: make([]int, workers),
	}
}

// Agreement returns, per worker, the votes that agree with the decision.
func (r Result) Agreement() []int {
	if r.Decision == types.Above {
		return append([]int(nil), r.Above...)
	}
	return append([]int(nil), r.Below...)
}

// Asked returns, per worker, how many votes were drawn.
func (r Result) Asked() []int {
	out := make([]int, len(r.Above))
	for u := range out {
		out[u] = r.Above[u] + r.Below[u]
	}
	return out
}

// Radius is the anytime confidence half-width after t steps of batch votes:
// sqrt(log(pi^2 t^2 / (3 delta)) / (2 t batch)).
func Radius(t, batch int, delta float64) float64 {
	n := float64(t) * float64(batch)
	return math.Sqrt(math.Log(math.Pi*math.Pi*float64(t)*float64(t)/(3*delta)) / (2 * n))
}

// Budget returns the maximum number of steps, ceil(log(2/delta)/(2 eps^2))
// divided by batch, and never less than one.
func Budget(p Params, batch int) int {
	steps := math.Ceil(math.Log(2/p.Delta) / (2 * p.Epsilon * p.Epsilon) / float64(batch))
	if steps < 1 {
		return 1
	}
	return int(steps)
}

// sequentialTest holds the running state shared by both disciplines.
type sequentialTest struct {
	delta float64
	batch int
	wins  int
	steps int
	p     float64
}

// observe folds in one step and reports whether the band has been left.
func (s *sequentialTest) observe(wins int) (bool, error) {
	s.steps++
	s.wins += wins
	s.p = float64(s.wins) / float64(s.steps*s.batch)
	b := Radius(s.steps, s.batch, s.delta)
	if math.IsNaN(b) || b <= 0 {
		return false, rankerrors.NewPreconditionError(rankerrors.CodeUndefinedRadius,
			fmt.Sprintf("confidence radius %g at step %d", b, s.steps))
	}
	return s.p > 0.5+b || s.p < 0.5-b, nil
}

func (s *sequentialTest) decision() types.Decision {
	if s.p > 0.5 {
		return types.Above
	}
	return types.Below
}

func checkActive(active []types.WorkerID) error {
	if len(active) == 0 {
		return rankerrors.NewPreconditionError(rankerrors.CodeEmptyActiveSet,
			"cannot compare with an empty active worker set")
	}
	return nil
}

// Rounds queries every active worker once per step.
type Rounds struct {
	model   noise.Model
	workers int
}

// NewRounds creates a round-based comparer over a pool of the given size.
func NewRounds(model noise.Model, workers int) *Rounds {
	return &Rounds{model: model, workers: workers}
}

func (r *Rounds) Discipline() Discipline { return RoundBased }

// Compare runs the round-based test on (i, j).
func (r *Rounds) Compare(i, j types.ItemID, p Params, active []types.WorkerID) (Result, error) {
	if err := p.Validate(); err != nil {
		return Result{}, err
	}
	if err := checkActive(active); err != nil {
		return Result{}, err
	}

	res := newResult(r.workers)
	test := sequentialTest{delta: p.Delta, batch: len(active), p: 0.5}
	budget := Budget(p, len(active))

	for test.steps < budget {
		wins := 0
		for _, u := range active {
			if r.model.SamplePair(u, i, j) == 1 {
				wins++
				res.Above[u]++
			} else {
				res.Below[u]++
			}
		}
		stop, err := test.observe(wins)
		if err != nil {
			return Result{}, err
		}
		if stop {
			break
		}
	}

	res.Decision = test.decision()
	res.Steps = test.steps
	res.Queries = test.steps * len(active)
	return res, nil
}

// Draws queries one randomly sampled active worker per step.
type Draws struct {
	model   noise.Model
	users   *sampler.UserCache
	workers int
}

// NewDraws creates a single-draw comparer sampling workers from users.
func NewDraws(model noise.Model, users *sampler.UserCache, workers int) *Draws {
	return &Draws{model: model, users: users, workers: workers}
}

func (d *Draws) Discipline() Discipline { return SingleDraw }

// Compare runs the single-draw test on (i, j).
func (d *Draws) Compare(i, j types.ItemID, p Params, active []types.WorkerID) (Result, error) {
	if err := p.Validate(); err != nil {
		return Result{}, err
	}
	if err := checkActive(active); err != nil {
		return Result{}, err
	}

	res := newResult(d.workers)
	test := sequentialTest{delta: p.Delta, batch: 1, p: 0.5}
	budget := Budget(p, 1)

	for test.steps < budget {
		u := d.users.Sample(active)
		win := 0
		if d.model.SamplePair(u, i, j) == 1 {
			win = 1
			res.Above[u]++
		} else {
			res.Below[u]++
		}
		stop, err := test.observe(win)
		if err != nil {
			return Result{}, err
		}
		if stop {
			break
		}
	}

	res.Decision = test.decision()
	res.Steps = test.steps
	res.Queries = test.steps
	return res, nil
}
