// Package noise provides reference comparison models. A model answers
// "does worker u rank item a above item b" with a random bit derived from
// latent item scores; the ranking core treats it as an opaque vote source.
package noise

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/activerank/activerank/pkg/types"
)

// Model is a stochastic comparison oracle.
type Model interface {
	// SamplePair returns 1 if worker votes that a ranks above b, else 0.
	SamplePair(worker types.WorkerID, a, b types.ItemID) int
}

// New builds the reference model selected by kind.
func New(kind types.NoiseKind, scores []float64, gamma float64, workers int, rng *rand.Rand) (Model, error) {
	switch kind {
	case types.NoiseUniform:
		return NewUniform(scores, gamma, rng)
	case types.NoiseHBTL:
		return NewHBTL(scores, WorkerGammas(gamma, workers), rng)
	default:
		return nil, fmt.Errorf("noise: unknown model %q", kind)
	}
}

// Uniform gives every worker the same accuracy 0.5+gamma. Pairs with equal
// scores get a fair coin.
type Uniform struct {
	scores []float64
	vote   distuv.Bernoulli
	coin   distuv.Bernoulli
}

// NewUniform creates a uniform-accuracy model. gamma must lie in [0, 0.5].
func NewUniform(scores []float64, gamma float64, rng *rand.Rand) (*Uniform, error) {
	if gamma < 0 || gamma > 0.5 {
		return nil, fmt.Errorf("noise: uniform gamma must be in [0, 0.5], got %g", gamma)
	}
	return &Uniform{
		scores: scores,
		vote:   distuv.Bernoulli{P: 0.5 + gamma, Src: rng},
		coin:   distuv.Bernoulli{P: 0.5, Src: rng},
	}, nil
}

func (m *Uniform) SamplePair(_ types.WorkerID, a, b types.ItemID) int {
	sa, sb := m.scores[a], m.scores[b]
	if sa == sb {
		return int(m.coin.Rand())
	}
	correct := m.vote.Rand() == 1
	if (sa > sb) == correct {
		return 1
	}
	return 0
}

// Accuracy returns the probability that any worker votes correctly.
func (m *Uniform) Accuracy() float64 {
	return m.vote.P
}

// HBTL is a heterogeneous Bradley-Terry-Luce model: worker u prefers a over
// b with probability 1/(1+exp(-gamma_u*(s_a-s_b))).
type HBTL struct {
	scores []float64
	gammas []float64
	rng    *rand.Rand
}

// NewHBTL creates an HBTL model with one gamma per worker.
func NewHBTL(scores, gammas []float64, rng *rand.Rand) (*HBTL, error) {
	if len(gammas) == 0 {
		return nil, fmt.Errorf("noise: hbtl needs at least one worker gamma")
	}
	for u, g := range gammas {
		if g <= 0 {
			return nil, fmt.Errorf("noise: hbtl gamma for worker %d must be positive, got %g", u, g)
		}
	}
	return &HBTL{scores: scores, gammas: gammas, rng: rng}, nil
}

// WorkerGammas spreads gamma linearly over the pool: gamma*(u+1)/m, so the
// last worker is the most reliable.
func WorkerGammas(gamma float64, m int) []float64 {
	gs := make([]float64, m)
	for u := range gs {
		gs[u] = gamma * float64(u+1) / float64(m)
	}
	return gs
}

// Prob returns the probability that worker votes a above b.
func (m *HBTL) Prob(worker types.WorkerID, a, b types.ItemID) float64 {
	return 1 / (1 + math.Exp(-m.gammas[worker]*(m.scores[a]-m.scores[b])))
}

func (m *HBTL) SamplePair(worker types.WorkerID, a, b types.ItemID) int {
	v := distuv.Bernoulli{P: m.Prob(worker, a, b), Src: m.rng}
	return int(v.Rand())
}

// Counting wraps a model and counts every vote drawn through it.
type Counting struct {
	Model Model
	Calls int64
}

func (c *Counting) SamplePair(worker types.WorkerID, a, b types.ItemID) int {
	c.Calls++
	return c.Model.SamplePair(worker, a, b)
}
