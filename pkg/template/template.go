// Package template provides templating functionality for dynamic node configuration.
package template

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/dukex/flowrun/pkg/models"
)

// ContextData builds the template data exposed to node configuration.
func ContextData(executionCtx *models.ExecutionContext) map[string]any {
	return map[string]any{
		"variables": executionCtx.Variables,
		"vars":      executionCtx.Variables, // Support both .vars and .variables
		"env":       getEnvVars(),
		"execution": map[string]any{
			"id":          executionCtx.ExecutionID,
			"workflow_id": executionCtx.WorkflowID,
			"user_id":     executionCtx.UserID,
		},
	}
}

// RenderWithContext renders a template against the execution context and coerces the result.
func RenderWithContext(input string, executionCtx *models.ExecutionContext) (any, error) {
	return Render(input, ContextData(executionCtx))
}

// RenderStringWithContext renders a template against the execution context without coercion.
func RenderStringWithContext(input string, executionCtx *models.ExecutionContext) (string, error) {
	return RenderString(input, ContextData(executionCtx))
}

// NeedsTemplating reports whether input contains template actions.
func NeedsTemplating(input string) bool {
	return strings.Contains(input, "{{")
}

// RenderString executes the template and returns the raw text.
func RenderString(templateStr string, data any) (string, error) {
	if !NeedsTemplating(templateStr) {
		return templateStr, nil
	}

	tmpl, err := template.
		New("node").
		Option("missingkey=zero").
		Funcs(template.FuncMap{
			"now": func() string {
				return time.Now().UTC().Format(time.RFC3339)
			},
			"rand": func(max int) int {
				if max <= 0 {
					return 0
				}

				num := make([]byte, 1)

				_, err := rand.Read(num)
				if err != nil {
					return 0
				}

				return int(num[0]) % max
			},
			"upper": strings.ToUpper,
			"lower": strings.ToLower,
			"json": func(v any) (string, error) {
				out, err := json.Marshal(v)

				return string(out), err
			},
		}).Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return "", fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	return strings.ReplaceAll(buf.String(), "<no value>", ""), nil
}

// Render executes the template and coerces the output into JSON values,
// numbers or booleans when it looks like one.
func Render(templateStr string, data any) (any, error) {
	result, err := RenderString(templateStr, data)
	if err != nil {
		return nil, err
	}

	result = strings.TrimSpace(result)
	if (strings.HasPrefix(result, "{") && strings.HasSuffix(result, "}")) ||
		(strings.HasPrefix(result, "[") && strings.HasSuffix(result, "]")) {
		var jsonResult any

		err := json.Unmarshal([]byte(result), &jsonResult)
		if err != nil {
			return nil, fmt.Errorf("failed to parse json '%s': %w", templateStr, err)
		}

		return jsonResult, nil
	}

	if num, err := strconv.ParseFloat(result, 64); err == nil {
		return num, nil
	}

	if b, err := strconv.ParseBool(result); err == nil {
		return b, nil
	}

	return result, nil
}

func getEnvVars() map[string]any {
	envMap := make(map[string]any)

	for _, env := range os.Environ() {
		parts := strings.SplitN(env, "=", 2)
		if len(parts) == 2 {
			envMap[parts[0]] = parts[1]
		}
	}

	return envMap
}
