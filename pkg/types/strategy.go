package types

// StrategyName selects a worker elimination policy.
type StrategyName string

const (
	// StrategyAggregate accumulates votes over the whole run and collapses
	// the pool to its best worker once the budget is reached.
	StrategyAggregate StrategyName = "aggregate"

	// StrategyHalving calibrates on a known pair and runs median elimination
	// before ranking starts.
	StrategyHalving StrategyName = "halving"

	// StrategyUCB prunes workers whose upper confidence bound falls below
	// another worker's lower bound.
	StrategyUCB StrategyName = "ucb"
)

// Valid reports whether s names a known strategy.
func (s StrategyName) Valid() bool {
	switch s {
	case StrategyAggregate, StrategyHalving, StrategyUCB:
		return true
	}
	return false
}

// NoiseKind selects the reference comparison model.
type NoiseKind string

const (
	// NoiseUniform gives every worker the same accuracy 0.5+gamma.
	NoiseUniform NoiseKind = "uniform"

	// NoiseHBTL is a heterogeneous Bradley-Terry-Luce model.
	NoiseHBTL NoiseKind = "hbtl"
)

// Valid reports whether k names a known noise model.
func (k NoiseKind) Valid() bool {
	return k == NoiseUniform || k == NoiseHBTL
}
