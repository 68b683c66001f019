// Package graph validates workflow graphs and computes their execution order.
package graph

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dukex/flowrun/pkg/models"
)

var (
	// ErrEmptyNodeID indicates a node was declared without an id.
	ErrEmptyNodeID = errors.New("node id cannot be empty")

	// ErrDuplicateNode indicates two nodes share the same id.
	ErrDuplicateNode = errors.New("duplicate node id")

	// ErrUnknownNode indicates an edge references a node that is not declared.
	ErrUnknownNode = errors.New("edge references unknown node")

	// ErrCyclicGraph indicates some nodes can never become ready.
	ErrCyclicGraph = errors.New("workflow graph contains a cycle")
)

// ValidationError describes why a definition is not a well-formed graph.
type ValidationError struct {
	NodeID string
	EdgeID string
	Err    error
}

func (e *ValidationError) Error() string {
	switch {
	case e.EdgeID != "":
		return fmt.Sprintf("invalid edge %s: %v: %s", e.EdgeID, e.Err, e.NodeID)
	case e.NodeID != "":
		return fmt.Sprintf("invalid node %s: %v", e.NodeID, e.Err)
	default:
		return e.Err.Error()
	}
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// CyclicGraphError names the nodes excluded from the schedule.
type CyclicGraphError struct {
	NodeIDs []string
}

func (e *CyclicGraphError) Error() string {
	return fmt.Sprintf("%v: nodes never became ready: %s", ErrCyclicGraph, strings.Join(e.NodeIDs, ", "))
}

func (e *CyclicGraphError) Is(target error) bool {
	return target == ErrCyclicGraph
}

// Validate checks node id uniqueness and that every edge endpoint exists.
// It does not check for cycles; see Order.
func Validate(def models.Definition) error {
	seen := make(map[string]struct{}, len(def.Nodes))

	for i, node := range def.Nodes {
		if node == nil || node.ID == "" {
			return &ValidationError{NodeID: fmt.Sprintf("#%d", i), Err: ErrEmptyNodeID}
		}

		if _, dup := seen[node.ID]; dup {
			return &ValidationError{NodeID: node.ID, Err: ErrDuplicateNode}
		}

		seen[node.ID] = struct{}{}
	}

	for i, edge := range def.Edges {
		if edge == nil {
			continue
		}

		edgeID := edge.ID
		if edgeID == "" {
			edgeID = fmt.Sprintf("#%d", i)
		}

		for _, endpoint := range []string{edge.Source, edge.Target} {
			if _, ok := seen[endpoint]; !ok {
				return &ValidationError{EdgeID: edgeID, NodeID: endpoint, Err: ErrUnknownNode}
			}
		}
	}

	return nil
}
