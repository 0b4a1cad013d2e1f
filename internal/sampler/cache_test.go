package sampler

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/activerank/activerank/pkg/types"
)

func TestUserCache_IndexInRange(t *testing.T) {
	c := NewUserCache(rand.New(rand.NewPCG(1, 2)), 16)
	for n := 1; n <= 9; n++ {
		for i := 0; i < 200; i++ {
			v := c.Index(n)
			if v < 0 || v >= n {
				t.Fatalf("Index(%d) = %d out of range", n, v)
			}
		}
	}
}

func TestUserCache_RefillsLazily(t *testing.T) {
	c := NewUserCache(rand.New(rand.NewPCG(3, 4)), 10)
	if c.Refills() != 0 {
		t.Fatalf("no buffer should exist before the first draw")
	}

	for i := 0; i < 10; i++ {
		c.Index(5)
	}
	if c.Refills() != 1 {
		t.Errorf("expected 1 fill after draining one buffer, got %d", c.Refills())
	}

	c.Index(5)
	if c.Refills() != 2 {
		t.Errorf("expected refill on exhaustion, got %d fills", c.Refills())
	}

	// A different size gets its own buffer
	c.Index(3)
	if c.Refills() != 3 {
		t.Errorf("expected a new buffer for size 3, got %d fills", c.Refills())
	}

	// Size one never touches the RNG
	c.Index(1)
	if c.Refills() != 3 {
		t.Errorf("size one should not allocate a buffer")
	}
}

func TestUserCache_Deterministic(t *testing.T) {
	a := NewUserCache(rand.New(rand.NewPCG(42, 0)), 7)
	b := NewUserCache(rand.New(rand.NewPCG(42, 0)), 7)
	for i := 0; i < 100; i++ {
		n := 2 + i%5
		if a.Index(n) != b.Index(n) {
			t.Fatalf("draw %d differs between identically seeded caches", i)
		}
	}
}

func TestUserCache_SampleMapsThroughActiveSet(t *testing.T) {
	c := NewUserCache(rand.New(rand.NewPCG(5, 6)), 0)
	active := []types.WorkerID{7, 11, 13}
	seen := map[types.WorkerID]int{}
	for i := 0; i < 3000; i++ {
		w := c.Sample(active)
		seen[w]++
	}
	if len(seen) != 3 {
		t.Fatalf("expected all 3 active workers to be drawn, got %v", seen)
	}
	for _, w := range active {
		if _, ok := seen[w]; !ok {
			t.Errorf("worker %d never sampled", w)
		}
	}
}

func TestUserCache_Uniform(t *testing.T) {
	c := NewUserCache(rand.New(rand.NewPCG(9, 9)), 100)
	const n, draws = 4, 40000
	counts := make([]int, n)
	for i := 0; i < draws; i++ {
		counts[c.Index(n)]++
	}

	// Chi-square with 3 degrees of freedom; 16.27 is the 0.999 quantile
	expected := float64(draws) / n
	chi := 0.0
	for _, got := range counts {
		d := float64(got) - expected
		chi += d * d / expected
	}
	if chi > 16.27 || math.IsNaN(chi) {
		t.Errorf("index distribution not uniform: counts=%v chi2=%.2f", counts, chi)
	}
}
