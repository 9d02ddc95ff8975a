// Package graph implements the lazy compute graph: nodes representing
// leaves or op invocations, forward execution via topological sort,
// reverse-mode backward accumulation, and ref-count-driven node
// lifetime (spec.md §4.F).
package graph

import (
	"github.com/ndoll1998/cgrad/backend"
	"github.com/ndoll1998/cgrad/optable"
	"github.com/ndoll1998/cgrad/storage"
)

// NodeID identifies a node within one Graph.
type NodeID int

// MaxInputs bounds how many operand edges a single op node may carry.
// None of the ops in the default table need more than two; this headroom
// matches spec.md's "validates |inputs| ≤ MAX_INPUTS" wording.
const MaxInputs = 4

// Node is either a leaf (op == optable.Leaf, Storage set at construction)
// or an op invocation materialized lazily by Execute.
type Node struct {
	ID       NodeID
	Op       optable.Kind
	Metadata optable.Metadata
	Backend  backend.Backend
	Inputs   []NodeID

	Storage     *storage.Storage
	GradStorage *storage.Storage
	Context     interface{}

	RequiresGrad bool
	RefCount     int
}

// State reports the node's position in the
// Unmaterialized -> Materialized -> HasGradient -> Freed lifecycle
// (spec.md §4.F). Freed nodes are removed from the graph entirely, so
// this only ever returns the first three.
func (n *Node) State() string {
	switch {
	case n.GradStorage != nil:
		return "HasGradient"
	case n.Storage != nil:
		return "Materialized"
	default:
		return "Unmaterialized"
	}
}
