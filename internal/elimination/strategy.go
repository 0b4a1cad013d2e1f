// Package elimination implements the worker elimination policies that shrink
// the active worker set over a ranking run.
//
// Every policy satisfies Strategy and is composed into the orchestrator.
// Policies never grow the active set and never return an empty one; when
// their statistical preconditions fail they return a STATISTICAL error
// instead.
package elimination

import (
	"github.com/activerank/activerank/internal/atc"
	"github.com/activerank/activerank/internal/state"
	"github.com/activerank/activerank/pkg/types"
)

// Strategy is a worker elimination policy.
type Strategy interface {
	// Name identifies the policy.
	Name() types.StrategyName

	// Discipline is the ATC sampling discipline the policy's evidence
	// bookkeeping relies on.
	Discipline() atc.Discipline

	// Initial runs before the first comparison and returns the starting
	// active set.
	Initial(st *state.RunState) ([]types.WorkerID, error)

	// Update folds in the evidence of one resolved comparison and returns
	// the next active set.
	Update(st *state.RunState, ev Evidence) ([]types.WorkerID, error)
}

// Evidence describes one resolved oracle step.
type Evidence struct {
	// Item is the item being inserted.
	Item types.ItemID

	// Reference is the item it was compared against. It is meaningless
	// when Compared is false.
	Reference types.ItemID

	// Compared is true when ATC ran. Sentinel steps carry no votes.
	Compared bool

	// Result holds the ATC votes when Compared is true.
	Result atc.Result

	// Inserted reports whether the oracle placed Item after this step.
	Inserted bool

	// Position is Item's index in Ordered when Inserted is true.
	Position int

	// Ordered is the oracle's ordering after this step. Only set when
	// Inserted is true.
	Ordered []types.ItemID
}
