package graph

import "github.com/dukex/flowrun/pkg/models"

// Schedule is the linear execution order computed for a graph.
type Schedule struct {
	// Order lists node ids in execution order.
	Order []string
	// Excluded lists, in declaration order, the nodes that never reached in-degree zero.
	Excluded []string
}

// Err reports excluded nodes as a *CyclicGraphError.
func (s Schedule) Err() error {
	if len(s.Excluded) == 0 {
		return nil
	}

	return &CyclicGraphError{NodeIDs: s.Excluded}
}

// Order computes a deterministic topological order with Kahn's algorithm.
//
// Ready nodes are dequeued FIFO, seeded in node declaration order, and successors
// are released in edge declaration order. Nodes on or behind a cycle never become
// ready and are reported in Schedule.Excluded instead of failing.
// Edges whose endpoints are not declared nodes are ignored.
func Order(nodes []*models.Node, edges []*models.Edge) Schedule {
	inDegree := make(map[string]int, len(nodes))
	successors := make(map[string][]string, len(nodes))
	declared := make([]string, 0, len(nodes))

	for _, node := range nodes {
		if node == nil {
			continue
		}

		if _, dup := inDegree[node.ID]; dup {
			continue
		}

		inDegree[node.ID] = 0

		declared = append(declared, node.ID)
	}

	for _, edge := range edges {
		if edge == nil {
			continue
		}

		_, sourceOK := inDegree[edge.Source]
		_, targetOK := inDegree[edge.Target]

		if !sourceOK || !targetOK {
			continue
		}

		successors[edge.Source] = append(successors[edge.Source], edge.Target)
		inDegree[edge.Target]++
	}

	queue := make([]string, 0, len(declared))

	for _, id := range declared {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	order := make([]string, 0, len(declared))

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		order = append(order, id)

		for _, next := range successors[id] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	var excluded []string

	if len(order) < len(declared) {
		for _, id := range declared {
			if inDegree[id] > 0 {
				excluded = append(excluded, id)
			}
		}
	}

	return Schedule{Order: order, Excluded: excluded}
}
