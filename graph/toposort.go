package graph

import "github.com/ndoll1998/cgrad/cgraderr"

// topoOrderLocked collects the subgraph reachable from target via
// operand (input) edges and emits it in an order where every node
// appears after all of its inputs, using Kahn's algorithm over the
// producer/consumer maps built from that reachable set (grounded on the
// same producer/consumer + in-degree bookkeeping the teacher's tiling
// scheduler uses for its own op-level DAG). Callers must hold g.mu.
func (g *Graph) topoOrderLocked(target NodeID) ([]NodeID, error) {
	const op = "graph.topoOrder"

	reachable := make(map[NodeID]bool)
	var collect func(id NodeID) error
	collect = func(id NodeID) error {
		if reachable[id] {
			return nil
		}
		n, ok := g.nodes[id]
		if !ok {
			return cgraderr.New(op, cgraderr.NodeNotFound)
		}
		reachable[id] = true
		for _, inID := range n.Inputs {
			if err := collect(inID); err != nil {
				return err
			}
		}
		return nil
	}
	if err := collect(target); err != nil {
		return nil, err
	}

	consumers := make(map[NodeID][]NodeID)
	indegree := make(map[NodeID]int)
	for id := range reachable {
		n := g.nodes[id]
		indegree[id] = len(n.Inputs)
		for _, inID := range n.Inputs {
			consumers[inID] = append(consumers[inID], id)
		}
	}

	queue := make([]NodeID, 0, len(reachable))
	for id, d := range indegree {
		if d == 0 {
			queue = append(queue, id)
		}
	}

	order := make([]NodeID, 0, len(reachable))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		for _, c := range consumers[id] {
			indegree[c]--
			if indegree[c] == 0 {
				queue = append(queue, c)
			}
		}
	}

	if len(order) != len(reachable) {
		return nil, cgraderr.New(op, cgraderr.TopologicalSortFailed)
	}
	return order, nil
}
