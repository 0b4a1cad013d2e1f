// Package sampler draws random workers from the active set using buffers of
// pre-drawn indices, one buffer per distinct active-set size.
package sampler

import (
	"math/rand/v2"

	"github.com/activerank/activerank/pkg/types"
)

// DefaultCacheSize is the number of indices drawn per refill.
const DefaultCacheSize = 1000

// UserCache hands out uniform indices in [0, n) from a refillable buffer
// kept per n. Drawing from a buffer is equivalent to drawing fresh uniform
// indices because every entry is an independent uniform draw.
//
// UserCache is not safe for concurrent use; each ranking run owns one.
type UserCache struct {
	rng     *rand.Rand
	size    int
	buffers map[int]*buffer
	refills int
}

type buffer struct {
	vals []int
	pos  int
}

// NewRand returns the reproducible generator a run draws all randomness from.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// NewUserCache creates a cache drawing from rng. size <= 0 selects
// DefaultCacheSize.
func NewUserCache(rng *rand.Rand, size int) *UserCache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	return &UserCache{
		rng:     rng,
		size:    size,
		buffers: make(map[int]*buffer),
	}
}

// Index returns a uniform index in [0, n). n must be positive.
func (c *UserCache) Index(n int) int {
	if n == 1 {
		return 0
	}
	b, ok := c.buffers[n]
	if !ok {
		b = &buffer{vals: make([]int, c.size)}
		c.fill(b, n)
		c.buffers[n] = b
	}
	if b.pos >= len(b.vals) {
		c.fill(b, n)
	}
	v := b.vals[b.pos]
	b.pos++
	return v
}

// Sample returns a uniformly chosen worker from the active set.
func (c *UserCache) Sample(active []types.WorkerID) types.WorkerID {
	return active[c.Index(len(active))]
}

// Refills returns how many buffers have been drawn, including first fills.
func (c *UserCache) Refills() int {
	return c.refills
}

func (c *UserCache) fill(b *buffer, n int) {
	for i := range b.vals {
		b.vals[i] = c.rng.IntN(n)
	}
	b.pos = 0
	c.refills++
}
