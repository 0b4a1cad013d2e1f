package elimination

import (
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/activerank/activerank/internal/atc"
	"github.com/activerank/activerank/internal/logger"
	"github.com/activerank/activerank/internal/noise"
	"github.com/activerank/activerank/internal/state"
	"github.com/activerank/activerank/pkg/types"
)

// Calibrator resolves the true direction of items (0, 1) and reports the
// worker queries it spent doing so. Above means item 0 ranks above item 1.
type Calibrator func() (types.Decision, int64, error)

// Initial confidence budget of the median elimination sweep.
const (
	HalvingEpsilon = 0.5 / 4
	HalvingDelta   = 0.25 / 2
)

// Halving calibrates a ground-truth direction on the first two items, then
// runs median elimination on that pair until one worker remains. All work
// happens before ranking starts; Update leaves the set unchanged.
type Halving struct {
	model     noise.Model
	calibrate Calibrator
	logger    logger.Logger

	truth   types.Decision
	correct []int64
	asked   []int64
	sweeps  int
}

// NewHalving creates the policy. model answers the calibration pair during
// the sweep; calibrate supplies the reference direction.
func NewHalving(model noise.Model, calibrate Calibrator, log logger.Logger) *Halving {
	if log == nil {
		log = logger.NewNoopLogger()
	}
	return &Halving{model: model, calibrate: calibrate, logger: log}
}

func (h *Halving) Name() types.StrategyName { return types.StrategyHalving }

func (h *Halving) Discipline() atc.Discipline { return atc.RoundBased }

// SweepBudget returns b_max = ceil(4/eps^2 * log(3/delta)).
func SweepBudget(epsilon, delta float64) int {
	return int(math.Ceil(4 / (epsilon * epsilon) * math.Log(3/delta)))
}

// Truth returns the calibrated direction once Initial has run.
func (h *Halving) Truth() types.Decision {
	return h.truth
}

// Sweeps returns the number of halving rounds performed.
func (h *Halving) Sweeps() int {
	return h.sweeps
}

func (h *Halving) Initial(st *state.RunState) ([]types.WorkerID, error) {
	if st.Items < 2 || st.ActiveCount() <= 1 {
		return st.Active(), nil
	}

	truth, cost, err := h.calibrate()
	st.AddQueries(int(cost))
	if err != nil {
		return nil, err
	}
	h.truth = truth

	h.correct = make([]int64, st.Workers)
	h.asked = make([]int64, st.Workers)
	eps, delta := HalvingEpsilon, HalvingDelta

	for st.ActiveCount() > 1 {
		active := st.Active()
		budget := SweepBudget(eps, delta)
		for t := 0; t < budget; t++ {
			for _, u := range active {
				h.asked[u]++
				if types.DecisionFromBit(h.model.SamplePair(u, 0, 1)) == truth {
					h.correct[u]++
				}
			}
		}
		st.AddQueries(budget * len(active))

		sort.SliceStable(active, func(a, b int) bool {
			return h.accuracy(active[a]) < h.accuracy(active[b])
		})
		drop := len(active) / 2
		if err := st.SetActive(active[drop:]); err != nil {
			return nil, err
		}
		h.sweeps++

		h.logger.Debug("median elimination sweep",
			zap.Int("sweep", h.sweeps),
			zap.Int("budget", budget),
			zap.Int("dropped", drop),
			zap.Int("active", st.ActiveCount()),
			zap.Float64("epsilon", eps),
			zap.Float64("delta", delta))

		eps = 3 * eps / 4
		delta = delta / 2
	}

	return st.Active(), nil
}

func (h *Halving) accuracy(u types.WorkerID) float64 {
	if h.asked[u] == 0 {
		return 0
	}
	return float64(h.correct[u]) / float64(h.asked[u])
}

func (h *Halving) Update(st *state.RunState, _ Evidence) ([]types.WorkerID, error) {
	return st.Active(), nil
}
