// Package types provides the value types shared by the ranking core.
package types

import "fmt"

// ItemID identifies an item in [0, N).
type ItemID int

// WorkerID identifies a worker in [0, M).
type WorkerID int

// BeforeAll is the insert-position sentinel placed below every ranked item.
// The matching after-all sentinel equals the number of items ranked so far.
const BeforeAll = -1

// Decision is the binary outcome of one pairwise comparison.
// Above means the new item ranks above the reference item.
type Decision uint8

const (
	Below Decision = 0
	Above Decision = 1
)

// Bit returns the decision as 0 or 1.
func (d Decision) Bit() int {
	return int(d)
}

func (d Decision) String() string {
	switch d {
	case Above:
		return "above"
	case Below:
		return "below"
	default:
		return fmt.Sprintf("decision(%d)", uint8(d))
	}
}

// DecisionFromBit converts a vote or feedback bit into a Decision.
func DecisionFromBit(bit int) Decision {
	if bit != 0 {
		return Above
	}
	return Below
}

// Workers returns the identity worker set [0, m).
func Workers(m int) []WorkerID {
	ws := make([]WorkerID, m)
	for i := range ws {
		ws[i] = WorkerID(i)
	}
	return ws
}

// IsPermutation reports whether items is a permutation of [0, n).
func IsPermutation(items []ItemID, n int) bool {
	if len(items) != n {
		return false
	}
	seen := make([]bool, n)
	for _, it := range items {
		if it < 0 || int(it) >= n || seen[it] {
			return false
		}
		seen[it] = true
	}
	return true
}
