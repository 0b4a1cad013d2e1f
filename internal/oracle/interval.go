// Package oracle provides a reference insertion-sort oracle for the ranking
// orchestrator. Items are inserted in index order; each insertion binary
// searches a position interval and then verifies the final gap against both
// neighbours before committing.
package oracle

import (
	"math/bits"

	"github.com/activerank/activerank/internal/atc"
	"github.com/activerank/activerank/pkg/types"
)

type phase int

const (
	phaseSearch phase = iota
	phaseVerifyLow
	phaseVerifyHigh
)

// Interval is a binary insertion sort over position intervals. The interval
// (lo, hi) brackets the candidate gap; lo may be the before-all sentinel and
// hi may equal the inserted count (the after-all sentinel). When the gap is
// a single slot, the new item is checked against lo and then hi. A failed
// check restarts the search for that item over the whole order.
//
// Decisions mean "the new item ranks above the reference"; Ordered lists
// items from lowest to highest.
type Interval struct {
	n      int
	params atc.Params

	ordered []types.ItemID
	lo, hi  int
	mid     int
	phase   phase

	restarts int
}

// Params returns the per-comparison confidence budget for n items under a
// global failure probability delta: delta is split over the at most
// ceil(log2(n+1))+2 comparisons of each of the n insertions.
func Params(n int, delta, epsilon float64) atc.Params {
	perInsert := bits.Len(uint(n)) + 2
	return atc.Params{
		Epsilon: epsilon,
		Delta:   delta / float64(n*perInsert),
	}
}

// NewInterval creates an oracle over n items.
func NewInterval(n int, delta, epsilon float64) *Interval {
	o := &Interval{
		n:       n,
		params:  Params(n, delta, epsilon),
		ordered: make([]types.ItemID, 0, n),
	}
	o.reset()
	return o
}

func (o *Interval) reset() {
	o.lo = types.BeforeAll
	o.hi = len(o.ordered)
	o.enter()
}

func (o *Interval) enter() {
	if o.hi-o.lo > 1 {
		o.phase = phaseSearch
		return
	}
	o.phase = phaseVerifyLow
}

// Done reports whether every item has been placed.
func (o *Interval) Done() bool {
	return len(o.ordered) >= o.n
}

// NextPair returns the item being inserted and the position it must be
// compared against.
func (o *Interval) NextPair() (types.ItemID, int) {
	item := types.ItemID(len(o.ordered))
	switch o.phase {
	case phaseSearch:
		o.mid = (o.lo + o.hi) / 2
		return item, o.mid
	case phaseVerifyLow:
		return item, o.lo
	default:
		return item, o.hi
	}
}

// Feedback consumes the decision for the last pair. It reports whether the
// item was inserted and, if so, its position; otherwise the position is -1.
func (o *Interval) Feedback(d types.Decision) (bool, int) {
	switch o.phase {
	case phaseSearch:
		if d == types.Above {
			o.lo = o.mid
		} else {
			o.hi = o.mid
		}
		o.enter()
	case phaseVerifyLow:
		if d == types.Above {
			o.phase = phaseVerifyHigh
		} else {
			o.restart()
		}
	case phaseVerifyHigh:
		if d == types.Below {
			pos := o.hi
			o.ordered = append(o.ordered, 0)
			copy(o.ordered[pos+1:], o.ordered[pos:])
			o.ordered[pos] = types.ItemID(len(o.ordered) - 1)
			o.reset()
			return true, pos
		}
		o.restart()
	}
	return false, -1
}

func (o *Interval) restart() {
	o.restarts++
	o.reset()
}

// InsertedCount returns how many items have been placed.
func (o *Interval) InsertedCount() int {
	return len(o.ordered)
}

// ItemAt returns the item at position pos of the current order.
func (o *Interval) ItemAt(pos int) types.ItemID {
	return o.ordered[pos]
}

// Ordered returns a copy of the current order, lowest first.
func (o *Interval) Ordered() []types.ItemID {
	return append([]types.ItemID(nil), o.ordered...)
}

// Params returns the confidence budget every comparison must honor.
func (o *Interval) Params() atc.Params {
	return o.params
}

// Restarts returns how many verifications failed.
func (o *Interval) Restarts() int {
	return o.restarts
}
