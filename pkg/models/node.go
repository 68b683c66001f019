// Package models defines core node-based workflow models for graph execution
package models

import (
	"encoding/json"
	"fmt"
)

// Reserved keys of the flat node data object.
const (
	NodeDataIntegrationKey = "integration"
	NodeDataModuleTypeKey  = "moduleType"
	NodeDataLabelKey       = "label"
)

// Node is one step of a workflow.
type Node struct {
	ID       string    `json:"id"             validate:"required"`
	Type     string    `json:"type,omitempty"`
	Data     NodeData  `json:"data"`
	Position *Position `json:"position,omitempty"` // Editor layout only, ignored by execution
}

// Position is the editor canvas coordinate of a node.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NodeData carries the integration tag and the integration-specific configuration.
//
// On the wire it is a single flat object: {"integration": ..., "moduleType": ..., ...config}.
type NodeData struct {
	Integration string
	ModuleType  string
	Label       string
	Config      map[string]any
}

// Get returns a configuration value.
func (d NodeData) Get(key string) (any, bool) {
	if d.Config == nil {
		return nil, false
	}

	v, ok := d.Config[key]

	return v, ok
}

// GetString returns a configuration value when it is a string.
func (d NodeData) GetString(key string) string {
	v, _ := d.Get(key)
	s, _ := v.(string)

	return s
}

// MarshalJSON flattens the configuration next to the reserved keys.
func (d NodeData) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(d.Config)+3)
	for k, v := range d.Config {
		flat[k] = v
	}

	flat[NodeDataIntegrationKey] = d.Integration
	if d.ModuleType != "" {
		flat[NodeDataModuleTypeKey] = d.ModuleType
	}

	if d.Label != "" {
		flat[NodeDataLabelKey] = d.Label
	}

	return json.Marshal(flat)
}

// UnmarshalJSON splits the flat object into the reserved keys and the configuration.
func (d *NodeData) UnmarshalJSON(data []byte) error {
	var flat map[string]any
	if err := json.Unmarshal(data, &flat); err != nil {
		return fmt.Errorf("invalid node data: %w", err)
	}

	*d = NodeData{Config: make(map[string]any, len(flat))}

	for k, v := range flat {
		switch k {
		case NodeDataIntegrationKey:
			d.Integration, _ = v.(string)
		case NodeDataModuleTypeKey:
			d.ModuleType, _ = v.(string)
		case NodeDataLabelKey:
			d.Label, _ = v.(string)
		default:
			d.Config[k] = v
		}
	}

	return nil
}

// Edge is a directed control-flow dependency between two nodes.
type Edge struct {
	ID     string `json:"id,omitempty"`
	Source string `json:"source"       validate:"required"`
	Target string `json:"target"       validate:"required"`
}

// NodeOutput is the flat key/value record an executor returns.
type NodeOutput = map[string]any
