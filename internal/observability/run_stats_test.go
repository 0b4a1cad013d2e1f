package observability

import (
	"sync"
	"testing"

	"github.com/activerank/activerank/pkg/types"
)

// TestRecordRunConcurrent tests concurrent RecordRun calls for race conditions.
func TestRecordRunConcurrent(t *testing.T) {
	rs := NewRunStats()
	var wg sync.WaitGroup
	numGoroutines := 10
	runsPerGoroutine := 100

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < runsPerGoroutine; j++ {
				rs.RecordRun(types.StrategyAggregate, 10, true)
				rs.RecordRun(types.StrategyUCB, 20, j%2 == 0)
				rs.RecordFailure(types.StrategyHalving, "EMPTY_ACTIVE_SET", 5)
			}
		}(i)
	}

	wg.Wait()

	snap := rs.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("expected 3 strategies, got %d", len(snap))
	}

	expected := int64(numGoroutines * runsPerGoroutine)
	agg, _ := rs.Get(types.StrategyAggregate)
	if agg.Runs != expected || agg.Correct != expected {
		t.Errorf("expected %d correct aggregate runs, got %d/%d", expected, agg.Correct, agg.Runs)
	}
	if agg.TotalQueries != 10*expected {
		t.Errorf("expected %d aggregate queries, got %d", 10*expected, agg.TotalQueries)
	}

	ucb, _ := rs.Get(types.StrategyUCB)
	if ucb.Correct != expected/2 {
		t.Errorf("expected %d correct ucb runs, got %d", expected/2, ucb.Correct)
	}

	halving, _ := rs.Get(types.StrategyHalving)
	if halving.Runs != 0 || halving.Failures["EMPTY_ACTIVE_SET"] != expected {
		t.Errorf("expected %d halving failures and no runs, got %v and %d", expected, halving.Failures, halving.Runs)
	}
	if halving.FailedQueries != 5*expected {
		t.Errorf("expected %d failed queries, got %d", 5*expected, halving.FailedQueries)
	}
}

// TestSnapshotOrdering tests that Snapshot returns strategies sorted by run count.
func TestSnapshotOrdering(t *testing.T) {
	rs := NewRunStats()

	for i := 0; i < 10; i++ {
		rs.RecordRun(types.StrategyUCB, 1, true)
	}
	for i := 0; i < 5; i++ {
		rs.RecordRun(types.StrategyHalving, 1, true)
	}
	for i := 0; i < 20; i++ {
		rs.RecordRun(types.StrategyAggregate, 1, true)
	}

	snap := rs.Snapshot()
	want := []types.StrategyName{types.StrategyAggregate, types.StrategyUCB, types.StrategyHalving}
	for i, s := range want {
		if snap[i].Strategy != s {
			t.Errorf("position %d: expected %s, got %s", i, s, snap[i].Strategy)
		}
	}
}

// TestComplexityRange tests min, max and mean tracking.
func TestComplexityRange(t *testing.T) {
	rs := NewRunStats()
	for _, c := range []int64{40, 10, 70} {
		rs.RecordRun(types.StrategyAggregate, c, true)
	}
	rs.RecordFailure(types.StrategyAggregate, "UNDEFINED_RADIUS", 1000)

	s, ok := rs.Get(types.StrategyAggregate)
	if !ok {
		t.Fatal("expected aggregate stats")
	}
	if s.MinComplexity != 10 || s.MaxComplexity != 70 {
		t.Errorf("expected range [10, 70], got [%d, %d]", s.MinComplexity, s.MaxComplexity)
	}
	if s.MeanComplexity() != 40 {
		t.Errorf("expected mean 40, got %g", s.MeanComplexity())
	}
}

// TestSnapshotIsCopy tests that mutating a snapshot does not affect the tracker.
func TestSnapshotIsCopy(t *testing.T) {
	rs := NewRunStats()
	rs.RecordFailure(types.StrategyUCB, "UNDEFINED_RADIUS", 0)

	snap := rs.Snapshot()
	snap[0].Failures["UNDEFINED_RADIUS"] = 99
	snap[0].Runs = 99

	s, _ := rs.Get(types.StrategyUCB)
	if s.Failures["UNDEFINED_RADIUS"] != 1 || s.Runs != 0 {
		t.Errorf("snapshot mutation leaked into tracker: %+v", s)
	}
}

func TestGetUnknownStrategy(t *testing.T) {
	if _, ok := NewRunStats().Get(types.StrategyUCB); ok {
		t.Error("expected no stats for an unrecorded strategy")
	}
}
