package graph

import (
	"sync"

	"github.com/ndoll1998/cgrad/cgraderr"
	"github.com/ndoll1998/cgrad/optable"
	"github.com/ndoll1998/cgrad/registry"
	"github.com/ndoll1998/cgrad/storage"
)

// Graph is the process- (or context-) wide compute DAG. A single coarse
// mutex guards it, per spec.md §5/§9.
type Graph struct {
	mu     sync.Mutex
	nodes  map[NodeID]*Node
	nextID NodeID
	table  optable.Table
	reg    *registry.Registry
}

// New builds an empty graph using table for op dispatch and reg for
// every storage the graph allocates.
func New(table optable.Table, reg *registry.Registry) *Graph {
	return &Graph{nodes: make(map[NodeID]*Node), table: table, reg: reg}
}

// AddLeaf allocates a leaf node taking a shallow copy of s (so the
// caller remains free to free its own handle), with requiresGrad as
// given by the caller (the tensor façade decides this from its global
// gradient-mode flag or a per-tensor override; the graph itself holds
// no such flag).
func (g *Graph) AddLeaf(s *storage.Storage, requiresGrad bool) (NodeID, error) {
	const op = "graph.AddLeaf"
	view, err := s.ShallowCopy()
	if err != nil {
		return 0, cgraderr.Wrap(op, 0, err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.nextID
	g.nextID++
	g.nodes[id] = &Node{
		ID:           id,
		Op:           optable.Leaf,
		Backend:      s.Backend,
		Storage:      view,
		RequiresGrad: requiresGrad,
		RefCount:     1,
	}
	return id, nil
}

// AddOp allocates an op node over inputs (in slot order — Inputs[i] is
// slot i). Validates the input count, enforces a single shared backend
// across inputs, computes requiresGrad as the OR of the inputs', and
// increments every input's ref-count.
func (g *Graph) AddOp(kind optable.Kind, md optable.Metadata, inputs []NodeID) (NodeID, error) {
	const op = "graph.AddOp"
	if len(inputs) == 0 || len(inputs) > MaxInputs {
		return 0, cgraderr.New(op, cgraderr.TooManyInputs)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	inputNodes := make([]*Node, len(inputs))
	for i, id := range inputs {
		n, ok := g.nodes[id]
		if !ok {
			return 0, cgraderr.New(op, cgraderr.NodeNotFound)
		}
		inputNodes[i] = n
	}

	be := inputNodes[0].Backend
	requiresGrad := false
	for _, n := range inputNodes {
		if n.Backend.Name() != be.Name() {
			return 0, cgraderr.New(op, cgraderr.BackendMismatch)
		}
		requiresGrad = requiresGrad || n.RequiresGrad
	}

	id := g.nextID
	g.nextID++
	g.nodes[id] = &Node{
		ID:           id,
		Op:           kind,
		Metadata:     md,
		Backend:      be,
		Inputs:       append([]NodeID(nil), inputs...),
		RequiresGrad: requiresGrad,
		RefCount:     1,
	}
	for _, n := range inputNodes {
		n.RefCount++
	}
	return id, nil
}

// Get fetches a node by id.
func (g *Graph) Get(id NodeID) (*Node, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.nodes[id]
	if !ok {
		return nil, cgraderr.New("graph.Get", cgraderr.NodeNotFound)
	}
	return n, nil
}

// Execute topologically sorts the subgraph reachable from target and
// computes the storage of every unmaterialized op node in order
// (invariant 6/7: caching, and disconnected subgraphs stay untouched).
func (g *Graph) Execute(target NodeID) error {
	const op = "graph.Execute"
	g.mu.Lock()
	defer g.mu.Unlock()

	order, err := g.topoOrderLocked(target)
	if err != nil {
		return cgraderr.Wrap(op, 0, err)
	}
	for _, id := range order {
		n := g.nodes[id]
		if n.Op == optable.Leaf || n.Storage != nil {
			continue
		}
		inputs := make([]*storage.Storage, len(n.Inputs))
		for i, inID := range n.Inputs {
			inputs[i] = g.nodes[inID].Storage
		}
		desc, err := g.table.Lookup(n.Op)
		if err != nil {
			return cgraderr.Wrap(op, 0, err)
		}
		out, ctx, err := desc.Forward(g.reg, inputs, n.Metadata, n.RequiresGrad)
		if err != nil {
			return cgraderr.Wrap(op, cgraderr.ExecutionFailed, err)
		}
		if out.Backend.Name() != n.Backend.Name() {
			return cgraderr.New(op, cgraderr.BackendMismatch)
		}
		n.Storage = out
		n.Context = ctx
	}
	return nil
}

// Backward executes target if needed, seeds its gradient to 1, then
// walks the reverse-reachable subgraph in reverse topological order
// accumulating gradients into every node that requires one.
func (g *Graph) Backward(target NodeID) error {
	const op = "graph.Backward"

	g.mu.Lock()
	targetNode, ok := g.nodes[target]
	g.mu.Unlock()
	if !ok {
		return cgraderr.New(op, cgraderr.NodeNotFound)
	}
	if targetNode.Storage == nil {
		if err := g.Execute(target); err != nil {
			return cgraderr.Wrap(op, 0, err)
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if targetNode.GradStorage == nil {
		gs, err := storage.New(g.reg, targetNode.Backend, targetNode.Storage.Shape())
		if err != nil {
			return cgraderr.Wrap(op, 0, err)
		}
		if err := gs.Fill(1); err != nil {
			return cgraderr.Wrap(op, 0, err)
		}
		targetNode.GradStorage = gs
	}

	order, err := g.topoOrderLocked(target)
	if err != nil {
		return cgraderr.Wrap(op, 0, err)
	}

	// Op-node gradients are per-pass intermediates: reset them so that
	// only leaf gradients accumulate across repeated Backward calls.
	for _, id := range order {
		n := g.nodes[id]
		if id == target || n.Op == optable.Leaf || n.GradStorage == nil {
			continue
		}
		if err := n.GradStorage.Fill(0); err != nil {
			return cgraderr.Wrap(op, 0, err)
		}
	}

	for i := len(order) - 1; i >= 0; i-- {
		n := g.nodes[order[i]]
		if !n.RequiresGrad || n.Op == optable.Leaf || n.GradStorage == nil {
			continue
		}

		inputs := make([]*storage.Storage, len(n.Inputs))
		gradInputs := make([]*storage.Storage, len(n.Inputs))
		inputRequiresGrad := make([]bool, len(n.Inputs))
		for j, inID := range n.Inputs {
			inNode := g.nodes[inID]
			inputs[j] = inNode.Storage
			inputRequiresGrad[j] = inNode.RequiresGrad
			if !inNode.RequiresGrad {
				continue
			}
			if inNode.GradStorage == nil {
				gs, err := storage.New(g.reg, inNode.Backend, inNode.Storage.Shape())
				if err != nil {
					return cgraderr.Wrap(op, 0, err)
				}
				if err := gs.Fill(0); err != nil {
					return cgraderr.Wrap(op, 0, err)
				}
				inNode.GradStorage = gs
			}
			gradInputs[j] = inNode.GradStorage
		}

		desc, err := g.table.Lookup(n.Op)
		if err != nil {
			return cgraderr.Wrap(op, 0, err)
		}
		if err := desc.Backward(g.reg, inputs, n.Storage, n.GradStorage, n.Metadata, n.Context, gradInputs, inputRequiresGrad); err != nil {
			return cgraderr.Wrap(op, 0, err)
		}
		if desc.FreeContext != nil && n.Context != nil {
			if err := desc.FreeContext(n.Context); err != nil {
				return cgraderr.Wrap(op, 0, err)
			}
			n.Context = nil
		}
	}
	return nil
}

// SetRequiresGrad overrides a node's requires-grad flag directly,
// bypassing whatever gradient-mode default produced it (spec.md §4.G:
// "per-tensor override ... always takes precedence").
func (g *Graph) SetRequiresGrad(id NodeID, v bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.nodes[id]
	if !ok {
		return cgraderr.New("graph.SetRequiresGrad", cgraderr.NodeNotFound)
	}
	n.RequiresGrad = v
	return nil
}

// ZeroGrad zeros a single node's gradient buffer (a no-op if absent).
func (g *Graph) ZeroGrad(id NodeID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.nodes[id]
	if !ok {
		return cgraderr.New("graph.ZeroGrad", cgraderr.NodeNotFound)
	}
	if n.GradStorage == nil {
		return nil
	}
	return n.GradStorage.Fill(0)
}

// ZeroGradAll zeros every node's gradient buffer in the graph.
func (g *Graph) ZeroGradAll() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, n := range g.nodes {
		if n.GradStorage == nil {
			continue
		}
		if err := n.GradStorage.Fill(0); err != nil {
			return err
		}
	}
	return nil
}

// DecrementRef decrements id's ref-count; at zero it frees the node's
// storages and context, removes it from the graph, and recursively
// decrements its inputs. Free (the user-facing tensor op) is this call.
func (g *Graph) DecrementRef(id NodeID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.decrementRefLocked(id)
}

func (g *Graph) decrementRefLocked(id NodeID) error {
	n, ok := g.nodes[id]
	if !ok {
		return cgraderr.New("graph.DecrementRef", cgraderr.NodeNotFound)
	}
	n.RefCount--
	if n.RefCount > 0 {
		return nil
	}

	if n.Storage != nil {
		if err := n.Storage.Free(); err != nil {
			return err
		}
	}
	if n.GradStorage != nil {
		if err := n.GradStorage.Free(); err != nil {
			return err
		}
	}
	if n.Context != nil {
		if desc, err := g.table.Lookup(n.Op); err == nil && desc.FreeContext != nil {
			if err := desc.FreeContext(n.Context); err != nil {
				return err
			}
		}
	}
	inputs := n.Inputs
	delete(g.nodes, id)
	for _, inID := range inputs {
		if err := g.decrementRefLocked(inID); err != nil {
			return err
		}
	}
	return nil
}

// Free deregisters id exactly as DecrementRef does; kept as a
// distinctly named entry point matching the tensor façade's free op.
func (g *Graph) Free(id NodeID) error { return g.DecrementRef(id) }
