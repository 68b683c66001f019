package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/flowrun/pkg/channels/gochannel"
	"github.com/dukex/flowrun/pkg/eventbus"
	"github.com/dukex/flowrun/pkg/executors/gohighlevel"
	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/persistence/file"
	"github.com/dukex/flowrun/pkg/registry"
	"github.com/dukex/flowrun/pkg/services"
	"github.com/dukex/flowrun/pkg/web"
	"github.com/dukex/flowrun/pkg/workflow"
)

type failingSMSClient struct {
	*gohighlevel.MockClient
}

func (failingSMSClient) SendSMS(context.Context, gohighlevel.SMSRequest) (*gohighlevel.SMSResponse, error) {
	return nil, errors.New("rate limited")
}

type testEnv struct {
	app       *fiber.App
	workflows *services.Workflow
}

func setupTestApp(t *testing.T, client gohighlevel.Client, opts ...workflow.Option) testEnv {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	persistence := file.NewPersistence(t.TempDir())

	registryInstance := registry.NewRegistry(logger)
	require.NoError(t, registryInstance.RegisterDefaultExecutors(t.Context(), client))

	runner := workflow.NewRunner(persistence, registryInstance, logger, opts...)
	workflowService := services.NewWorkflow(persistence, registryInstance)
	executionService := services.NewExecution(runner, workflowService)

	handlers := web.NewAPIHandlers(
		workflowService,
		executionService,
		validator.New(validator.WithRequiredStructEnabled()),
		registryInstance,
	)

	app := fiber.New()

	w := app.Group("/workflows")
	w.Get("/", handlers.GetWorkflows)
	w.Post("/", handlers.CreateWorkflow)
	w.Get("/:id", handlers.GetWorkflow)
	w.Put("/:id", handlers.UpdateWorkflow)
	w.Delete("/:id", handlers.DeleteWorkflow)
	w.Post("/:id/execute", handlers.ExecuteWorkflow)
	w.Get("/:id/executions", handlers.GetWorkflowExecutions)

	app.Get("/executions/:id", handlers.GetExecution)
	app.Get("/executors", handlers.GetExecutors)
	app.Get("/health", handlers.HealthCheck)

	return testEnv{app: app, workflows: workflowService}
}

func leadDefinition() models.Definition {
	return models.Definition{
		Nodes: []*models.Node{
			{ID: "A", Type: "trigger", Data: models.NodeData{Integration: "webhook-trigger"}},
			{ID: "B", Type: "action", Data: models.NodeData{
				Integration: "gohighlevel-action",
				ModuleType:  "send-sms",
				Config:      map[string]any{"message": "Hi {{ .vars.firstName }}"},
			}},
		},
		Edges: []*models.Edge{{ID: "e1", Source: "A", Target: "B"}},
	}
}

func createLeadWorkflow(t *testing.T, env testEnv) *models.Workflow {
	t.Helper()

	wf, err := env.workflows.Create(t.Context(), &models.Workflow{
		OwnerID:    "user-1",
		Name:       "Lead follow-up",
		Definition: leadDefinition(),
	})
	require.NoError(t, err)

	return wf
}

func doRequest(t *testing.T, app *fiber.App, method, target string, payload any) (*http.Response, []byte) {
	t.Helper()

	var body io.Reader

	switch p := payload.(type) {
	case nil:
	case string:
		body = bytes.NewBufferString(p)
	default:
		raw, err := json.Marshal(p)
		require.NoError(t, err)

		body = bytes.NewBuffer(raw)
	}

	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, respBody
}

func TestAPIHandlers_CreateWorkflow(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		requestBody    any
		expectedStatus int
		validateResult func(t *testing.T, body []byte)
	}{
		{
			name: "successful creation",
			requestBody: web.CreateWorkflowRequest{
				Name:        "Lead follow-up",
				Description: "Text new leads",
				OwnerID:     "user-1",
				Definition:  leadDefinition(),
			},
			expectedStatus: http.StatusCreated,
			validateResult: func(t *testing.T, body []byte) {
				t.Helper()

				var workflow models.Workflow
				require.NoError(t, json.Unmarshal(body, &workflow))
				assert.NotEmpty(t, workflow.ID)
				assert.Equal(t, "Lead follow-up", workflow.Name)
				assert.Equal(t, "user-1", workflow.OwnerID)
				require.Len(t, workflow.Definition.Nodes, 2)
				assert.Equal(t, "gohighlevel-action", workflow.Definition.Nodes[1].Data.Integration)
				assert.Equal(t, "send-sms", workflow.Definition.Nodes[1].Data.ModuleType)
			},
		},
		{
			name: "validation error - name too short",
			requestBody: web.CreateWorkflowRequest{
				Name:       "Te",
				OwnerID:    "user-1",
				Definition: leadDefinition(),
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "validation error - missing owner",
			requestBody: web.CreateWorkflowRequest{
				Name:       "Lead follow-up",
				Definition: leadDefinition(),
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "validation error - edge to unknown node",
			requestBody: web.CreateWorkflowRequest{
				Name:    "Lead follow-up",
				OwnerID: "user-1",
				Definition: models.Definition{
					Nodes: []*models.Node{{ID: "A", Data: models.NodeData{Integration: "webhook-trigger"}}},
					Edges: []*models.Edge{{ID: "e1", Source: "A", Target: "Z"}},
				},
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "invalid JSON",
			requestBody:    "invalid-json",
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			env := setupTestApp(t, gohighlevel.NewMockClient())

			resp, body := doRequest(t, env.app, http.MethodPost, "/workflows", tt.requestBody)
			assert.Equal(t, tt.expectedStatus, resp.StatusCode, string(body))

			if tt.validateResult != nil {
				tt.validateResult(t, body)
			}
		})
	}
}

func TestAPIHandlers_GetWorkflow(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t, gohighlevel.NewMockClient())
	wf := createLeadWorkflow(t, env)

	resp, body := doRequest(t, env.app, http.MethodGet, "/workflows/"+wf.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var fetched models.Workflow
	require.NoError(t, json.Unmarshal(body, &fetched))
	assert.Equal(t, wf.ID, fetched.ID)

	resp, body = doRequest(t, env.app, http.MethodGet, "/workflows/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, string(body), "workflow_not_found")
}

func TestAPIHandlers_GetWorkflows(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t, gohighlevel.NewMockClient())
	createLeadWorkflow(t, env)

	_, err := env.workflows.Create(t.Context(), &models.Workflow{
		OwnerID:    "user-2",
		Name:       "Other owner",
		Definition: leadDefinition(),
	})
	require.NoError(t, err)

	resp, body := doRequest(t, env.app, http.MethodGet, "/workflows?owner_id=user-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Workflows  []models.Workflow `json:"workflows"`
		TotalCount int64             `json:"total_count"`
	}
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Equal(t, int64(1), result.TotalCount)
	require.Len(t, result.Workflows, 1)
	assert.Equal(t, "user-1", result.Workflows[0].OwnerID)

	resp, _ = doRequest(t, env.app, http.MethodGet, "/workflows?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doRequest(t, env.app, http.MethodGet, "/workflows?sort_by=owner", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPIHandlers_UpdateWorkflow(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t, gohighlevel.NewMockClient())
	wf := createLeadWorkflow(t, env)

	name := "Renamed flow"
	resp, body := doRequest(t, env.app, http.MethodPut, "/workflows/"+wf.ID, web.UpdateWorkflowRequest{Name: &name})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var updated models.Workflow
	require.NoError(t, json.Unmarshal(body, &updated))
	assert.Equal(t, "Renamed flow", updated.Name)
	assert.Len(t, updated.Definition.Nodes, 2)

	short := "Re"
	resp, _ = doRequest(t, env.app, http.MethodPut, "/workflows/"+wf.ID, web.UpdateWorkflowRequest{Name: &short})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doRequest(t, env.app, http.MethodPut, "/workflows/missing", web.UpdateWorkflowRequest{Name: &name})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPIHandlers_DeleteWorkflow(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t, gohighlevel.NewMockClient())
	wf := createLeadWorkflow(t, env)

	resp, _ := doRequest(t, env.app, http.MethodDelete, "/workflows/"+wf.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = doRequest(t, env.app, http.MethodDelete, "/workflows/"+wf.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPIHandlers_ExecuteWorkflow(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t, gohighlevel.NewMockClient())
	wf := createLeadWorkflow(t, env)

	resp, body := doRequest(t, env.app, http.MethodPost, "/workflows/"+wf.ID+"/execute", web.ExecuteWorkflowRequest{
		UserID:    "caller",
		InputData: map[string]any{"webhookData": map[string]any{"phone": "+15551234567", "firstName": "Ada"}},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var record models.ExecutionRecord
	require.NoError(t, json.Unmarshal(body, &record))
	assert.Equal(t, models.ExecutionStatusCompleted, record.Status)
	assert.Equal(t, "caller", record.UserID)
	assert.Equal(t, "sent", record.OutputData["status"])

	resp, body = doRequest(t, env.app, http.MethodGet, "/executions/"+record.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var fetched models.ExecutionRecord
	require.NoError(t, json.Unmarshal(body, &fetched))
	assert.Equal(t, record.ID, fetched.ID)
	assert.NotEmpty(t, fetched.Logs)

	resp, body = doRequest(t, env.app, http.MethodGet, "/workflows/"+wf.ID+"/executions?limit=5", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list web.ExecutionListResponse
	require.NoError(t, json.Unmarshal(body, &list))
	require.Len(t, list.Executions, 1)
	assert.Equal(t, record.ID, list.Executions[0].ID)
}

func TestAPIHandlers_ExecuteWorkflow_FailedRun(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t, failingSMSClient{gohighlevel.NewMockClient()})
	wf := createLeadWorkflow(t, env)

	resp, body := doRequest(t, env.app, http.MethodPost, "/workflows/"+wf.ID+"/execute", web.ExecuteWorkflowRequest{
		InputData: map[string]any{"webhookData": map[string]any{"phone": "+15551234567"}},
	})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode, string(body))

	var record models.ExecutionRecord
	require.NoError(t, json.Unmarshal(body, &record))
	assert.Equal(t, models.ExecutionStatusFailed, record.Status)
	require.NotNil(t, record.Error)
	assert.Equal(t, "rate limited", *record.Error)
}

func TestAPIHandlers_ExecuteWorkflow_Errors(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t, gohighlevel.NewMockClient())
	wf := createLeadWorkflow(t, env)

	resp, _ := doRequest(t, env.app, http.MethodPost, "/workflows/missing/execute", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = doRequest(t, env.app, http.MethodPost, "/workflows/"+wf.ID+"/execute?async=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doRequest(t, env.app, http.MethodPost, "/workflows/"+wf.ID+"/execute", "{")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := doRequest(t, env.app, http.MethodPost, "/workflows/"+wf.ID+"/execute?async=true", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, string(body), "event_bus_unavailable")
}

func TestAPIHandlers_ExecuteWorkflow_Async(t *testing.T) {
	t.Parallel()

	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(slog.New(slog.DiscardHandler), pub, sub)
	t.Cleanup(func() { _ = bus.Close(context.Background()) })

	env := setupTestApp(t, gohighlevel.NewMockClient(), workflow.WithEventBus(bus))
	wf := createLeadWorkflow(t, env)

	resp, body := doRequest(t, env.app, http.MethodPost, "/workflows/"+wf.ID+"/execute?async=true", web.ExecuteWorkflowRequest{
		IdempotencyKey: "lead-42",
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode, string(body))

	var accepted web.ExecutionAcceptedResponse
	require.NoError(t, json.Unmarshal(body, &accepted))
	assert.NotEmpty(t, accepted.ExecutionID)
	assert.Equal(t, models.ExecutionStatusPending, accepted.Status)

	resp, body = doRequest(t, env.app, http.MethodPost, "/workflows/"+wf.ID+"/execute?async=true", web.ExecuteWorkflowRequest{
		IdempotencyKey: "lead-42",
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var repeated web.ExecutionAcceptedResponse
	require.NoError(t, json.Unmarshal(body, &repeated))
	assert.Equal(t, accepted.ExecutionID, repeated.ExecutionID)
}

func TestAPIHandlers_GetExecution_NotFound(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t, gohighlevel.NewMockClient())

	resp, body := doRequest(t, env.app, http.MethodGet, "/executions/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, string(body), "execution_not_found")
}

func TestAPIHandlers_GetExecutors(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t, gohighlevel.NewMockClient())

	resp, body := doRequest(t, env.app, http.MethodGet, "/executors", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result web.ExecutorsResponse
	require.NoError(t, json.Unmarshal(body, &result))

	keys := make([]string, 0, len(result.Executors))
	for _, component := range result.Executors {
		keys = append(keys, component.Key)
	}

	assert.Contains(t, keys, "webhook-trigger")
	assert.Contains(t, keys, "gohighlevel-action-send-sms")
}

func TestAPIHandlers_HealthCheck(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t, gohighlevel.NewMockClient())

	resp, body := doRequest(t, env.app, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "healthy")
}
