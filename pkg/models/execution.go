package models

import "time"

// ExecutionStatus is the lifecycle state of an execution record.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
)

// IsTerminal reports whether no further transition is allowed from the status.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed
}

// ExecutionRecord is the persisted outcome of one workflow run.
type ExecutionRecord struct {
	ID             string          `json:"id"`
	WorkflowID     string          `json:"workflow_id"`
	UserID         string          `json:"user_id"`
	Status         ExecutionStatus `json:"status"`
	InputData      map[string]any  `json:"input_data"`
	OutputData     map[string]any  `json:"output_data,omitempty"`
	Logs           []ExecutionLog  `json:"logs"`
	Error          *string         `json:"error,omitempty"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	StartedAt      time.Time       `json:"started_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
}

// ExecutionUpdate is a partial write of an execution record. Nil fields are left untouched.
type ExecutionUpdate struct {
	Status      ExecutionStatus
	StartedAt   *time.Time
	CompletedAt *time.Time
	Logs        []ExecutionLog
	OutputData  map[string]any
	Error       *string
}

// Apply merges the update into the record.
func (r *ExecutionRecord) Apply(update ExecutionUpdate) {
	if update.Status != "" {
		r.Status = update.Status
	}

	if update.StartedAt != nil {
		r.StartedAt = *update.StartedAt
	}

	if update.CompletedAt != nil {
		completedAt := *update.CompletedAt
		r.CompletedAt = &completedAt
	}

	if update.Logs != nil {
		r.Logs = update.Logs
	}

	if update.OutputData != nil {
		r.OutputData = update.OutputData
	}

	if update.Error != nil {
		msg := *update.Error
		r.Error = &msg
	}
}

// LogType classifies an execution log entry.
type LogType string

const (
	LogTypeInfo    LogType = "info"
	LogTypeSuccess LogType = "success"
	LogTypeWarning LogType = "warning"
	LogTypeError   LogType = "error"
)

// ExecutionLog is one append-only entry of a run's log.
type ExecutionLog struct {
	Timestamp time.Time `json:"timestamp"`
	NodeID    string    `json:"nodeId"`
	Message   string    `json:"message"`
	Type      LogType   `json:"type"`
	Data      any       `json:"data,omitempty"`
}
