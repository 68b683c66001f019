package models

import (
	"maps"
	"sync"
	"time"
)

// NodesVariableKey holds per-node outputs when namespaced outputs are enabled.
const NodesVariableKey = "nodes"

// ExecutionContext is the run-scoped variable bag and log accumulator.
// It is owned by a single run and never persisted as such.
type ExecutionContext struct {
	WorkflowID  string
	ExecutionID string
	UserID      string
	Variables   map[string]any

	mu   sync.Mutex
	logs []ExecutionLog
	now  func() time.Time
}

// NewExecutionContext creates a context whose variables start as a copy of input.
func NewExecutionContext(workflowID, executionID, userID string, input map[string]any) *ExecutionContext {
	variables := make(map[string]any, len(input))
	maps.Copy(variables, input)

	return &ExecutionContext{
		WorkflowID:  workflowID,
		ExecutionID: executionID,
		UserID:      userID,
		Variables:   variables,
		now:         time.Now,
	}
}

// Merge shallow-merges output into the variables; later keys overwrite earlier ones.
func (c *ExecutionContext) Merge(output NodeOutput) {
	if c.Variables == nil {
		c.Variables = make(map[string]any, len(output))
	}

	maps.Copy(c.Variables, output)
}

// MergeNamespaced records a copy of output under variables["nodes"][nodeID].
func (c *ExecutionContext) MergeNamespaced(nodeID string, output NodeOutput) {
	if c.Variables == nil {
		c.Variables = make(map[string]any)
	}

	nodes, ok := c.Variables[NodesVariableKey].(map[string]any)
	if !ok {
		nodes = make(map[string]any)
	}

	nodes[nodeID] = maps.Clone(output)
	c.Variables[NodesVariableKey] = nodes
}

// Snapshot returns a shallow copy of the current variables.
func (c *ExecutionContext) Snapshot() map[string]any {
	return maps.Clone(c.Variables)
}

// AddLog appends an entry to the run log.
func (c *ExecutionContext) AddLog(nodeID string, logType LogType, message string, data any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now
	if c.now != nil {
		now = c.now
	}

	c.logs = append(c.logs, ExecutionLog{
		Timestamp: now().UTC(),
		NodeID:    nodeID,
		Message:   message,
		Type:      logType,
		Data:      data,
	})
}

func (c *ExecutionContext) Info(nodeID, message string, data any) {
	c.AddLog(nodeID, LogTypeInfo, message, data)
}

func (c *ExecutionContext) Success(nodeID, message string, data any) {
	c.AddLog(nodeID, LogTypeSuccess, message, data)
}

func (c *ExecutionContext) Warning(nodeID, message string, data any) {
	c.AddLog(nodeID, LogTypeWarning, message, data)
}

func (c *ExecutionContext) Error(nodeID, message string, data any) {
	c.AddLog(nodeID, LogTypeError, message, data)
}

// Logs returns a copy of the entries appended so far, in append order.
func (c *ExecutionContext) Logs() []ExecutionLog {
	c.mu.Lock()
	defer c.mu.Unlock()

	logs := make([]ExecutionLog, len(c.logs))
	copy(logs, c.logs)

	return logs
}
