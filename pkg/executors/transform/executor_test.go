package transform

import (
	"log/slog"
	"testing"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func transformNode(expression string) *models.Node {
	return &models.Node{ID: "t1", Data: models.NodeData{
		Integration: "data-transform",
		Config:      map[string]any{"expression": expression},
	}}
}

func TestExecutor_ObjectResultIsFlat(t *testing.T) {
	execCtx := models.NewExecutionContext("wf", "exec", "user", map[string]any{"first": "Ada", "last": "Lovelace"})

	output, err := NewExecutor(slog.Default()).Execute(t.Context(), transformNode(`{"fullName": "{{ .vars.first }} {{ .vars.last }}"}`), execCtx)
	require.NoError(t, err)
	assert.Equal(t, models.NodeOutput{"fullName": "Ada Lovelace"}, output)
}

func TestExecutor_ScalarResult(t *testing.T) {
	execCtx := models.NewExecutionContext("wf", "exec", "user", map[string]any{"items": []any{1, 2, 3}})

	output, err := NewExecutor(slog.Default()).Execute(t.Context(), transformNode("{{ len .vars.items }}"), execCtx)
	require.NoError(t, err)
	assert.Equal(t, models.NodeOutput{"result": 3.0}, output)
}

func TestExecutor_RenderFailure(t *testing.T) {
	execCtx := models.NewExecutionContext("wf", "exec", "user", nil)

	_, err := NewExecutor(slog.Default()).Execute(t.Context(), transformNode("{{ .vars.x "), execCtx)
	require.Error(t, err)

	logs := execCtx.Logs()
	require.Len(t, logs, 1)
	assert.Equal(t, models.LogTypeError, logs[0].Type)
}

func TestExecutor_MissingExpression(t *testing.T) {
	execCtx := models.NewExecutionContext("wf", "exec", "user", nil)
	node := &models.Node{ID: "t1", Data: models.NodeData{Integration: "data-transform"}}

	_, err := NewExecutor(slog.Default()).Execute(t.Context(), node, execCtx)
	require.ErrorIs(t, err, ErrMissingExpression)
}
