// Package observability provides run statistics tracking and Prometheus
// metrics for ranking runs and Monte-Carlo batches.
package observability

import (
	"sort"
	"sync"
	"time"

	"github.com/activerank/activerank/pkg/types"
)

// RunStats aggregates ranking runs per elimination strategy.
type RunStats struct {
	mu         sync.RWMutex
	byStrategy map[types.StrategyName]*StrategyStats
}

// StrategyStats holds the aggregate of every run recorded for one strategy.
type StrategyStats struct {
	Strategy      types.StrategyName `json:"strategy"`
	Runs          int64              `json:"runs"`
	Correct       int64              `json:"correct"`
	Failures      map[string]int64   `json:"failures,omitempty"` // error code → count
	TotalQueries  int64              `json:"total_queries"`      // queries of successful runs
	FailedQueries int64              `json:"failed_queries"`     // queries spent by runs that failed
	MinComplexity int64              `json:"min_complexity"`
	MaxComplexity int64              `json:"max_complexity"`
	LastSeen      time.Time          `json:"last_seen"`
}

// NewRunStats creates a new run statistics tracker.
func NewRunStats() *RunStats {
	return &RunStats{
		byStrategy: make(map[types.StrategyName]*StrategyStats),
	}
}

func (r *RunStats) entry(strategy types.StrategyName) *StrategyStats {
	stats, exists := r.byStrategy[strategy]
	if !exists {
		stats = &StrategyStats{
			Strategy: strategy,
			Failures: make(map[string]int64),
		}
		r.byStrategy[strategy] = stats
	}
	return stats
}

// RecordRun records a completed run and its sample complexity.
// This method is O(1) and thread-safe.
func (r *RunStats) RecordRun(strategy types.StrategyName, complexity int64, correct bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := r.entry(strategy)
	if stats.Runs == 0 || complexity < stats.MinComplexity {
		stats.MinComplexity = complexity
	}
	if complexity > stats.MaxComplexity {
		stats.MaxComplexity = complexity
	}
	stats.Runs++
	stats.TotalQueries += complexity
	if correct {
		stats.Correct++
	}
	stats.LastSeen = time.Now()
}

// RecordFailure records a run that ended with an error code along with the
// queries it spent before failing.
func (r *RunStats) RecordFailure(strategy types.StrategyName, code string, queries int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := r.entry(strategy)
	stats.Failures[code]++
	if queries > 0 {
		stats.FailedQueries += queries
	}
	stats.LastSeen = time.Now()
}

// MeanComplexity returns the mean sample complexity of successful runs.
func (s StrategyStats) MeanComplexity() float64 {
	if s.Runs == 0 {
		return 0
	}
	return float64(s.TotalQueries) / float64(s.Runs)
}

// Snapshot returns a copy of the per-strategy stats sorted by run count
// (descending), then by name.
func (r *RunStats) Snapshot() []StrategyStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := make([]StrategyStats, 0, len(r.byStrategy))
	for _, s := range r.byStrategy {
		statsCopy := *s
		statsCopy.Failures = make(map[string]int64, len(s.Failures))
		for code, n := range s.Failures {
			statsCopy.Failures[code] = n
		}
		stats = append(stats, statsCopy)
	}

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Runs != stats[j].Runs {
			return stats[i].Runs > stats[j].Runs
		}
		return stats[i].Strategy < stats[j].Strategy
	})
	return stats
}

// Get returns a copy of the stats for one strategy.
func (r *RunStats) Get(strategy types.StrategyName) (StrategyStats, bool) {
	for _, s := range r.Snapshot() {
		if s.Strategy == strategy {
			return s, true
		}
	}
	return StrategyStats{}, false
}
