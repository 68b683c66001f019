// Package web provides HTTP request and response types for the workflow API.
package web

import (
	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/registry"
)

// ErrorResponse represents a standardized API error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// CreateWorkflowRequest represents the request body for creating a new workflow.
type CreateWorkflowRequest struct {
	Name        string            `json:"name"        validate:"required,min=3"`
	Description string            `json:"description"`
	OwnerID     string            `json:"owner_id"    validate:"required"`
	Definition  models.Definition `json:"definition"`
}

// UpdateWorkflowRequest represents the request body for updating an existing workflow.
// Omitted fields keep their stored value; a definition replaces the whole graph.
type UpdateWorkflowRequest struct {
	Name        *string            `json:"name,omitempty"        validate:"omitempty,min=3"`
	Description *string            `json:"description,omitempty"`
	Definition  *models.Definition `json:"definition,omitempty"`
}

// ExecuteWorkflowRequest represents the request body for running a workflow.
type ExecuteWorkflowRequest struct {
	UserID         string         `json:"user_id"`
	InputData      map[string]any `json:"input_data"`
	IdempotencyKey string         `json:"idempotency_key,omitempty" validate:"omitempty,max=255"`
}

// ExecutionAcceptedResponse is returned when a run was queued for a worker.
type ExecutionAcceptedResponse struct {
	ExecutionID string                 `json:"execution_id"`
	Status      models.ExecutionStatus `json:"status"`
}

// ExecutionListResponse wraps the executions of a workflow.
type ExecutionListResponse struct {
	Executions []*models.ExecutionRecord `json:"executions"`
	Limit      int                       `json:"limit"`
}

// ExecutorsResponse lists the registered executors.
type ExecutorsResponse struct {
	Executors []registry.Component `json:"executors"`
}
