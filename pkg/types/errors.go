package types

import "errors"

// Value-level errors
var (
	// ErrNotPermutation is returned when an ordering misses or repeats items
	ErrNotPermutation = errors.New("ordering is not a permutation of the items")

	// ErrUnknownWorker is returned when a worker index is outside [0, M)
	ErrUnknownWorker = errors.New("unknown worker")
)
