// Package models defines the core domain models for graph-based workflow execution
package models

import "time"

// Workflow is a stored, user-authored automation graph.
type Workflow struct {
	ID             string     `json:"id"`
	OwnerID        string     `json:"owner_id"                   validate:"required"`
	Name           string     `json:"name"                       validate:"required,min=3"`
	Description    string     `json:"description"`
	Definition     Definition `json:"definition"`
	ExecutionCount int64      `json:"execution_count"`
	LastExecutedAt *time.Time `json:"last_executed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Definition is the executable payload of a workflow.
type Definition struct {
	Nodes     []*Node        `json:"nodes"     validate:"dive"`
	Edges     []*Edge        `json:"edges"     validate:"dive"`
	Variables map[string]any `json:"variables,omitempty"`
}

// NodeByID returns the node with the given id, if declared.
func (d Definition) NodeByID(id string) (*Node, bool) {
	for _, node := range d.Nodes {
		if node != nil && node.ID == id {
			return node, true
		}
	}

	return nil, false
}

// NodesByIntegration returns every node tagged with the given integration, in declaration order.
func (d Definition) NodesByIntegration(integration string) []*Node {
	var nodes []*Node

	for _, node := range d.Nodes {
		if node != nil && node.Data.Integration == integration {
			nodes = append(nodes, node)
		}
	}

	return nodes
}
