// Package httprequest provides the HTTP request executor.
package httprequest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/template"
)

var ErrMissingURL = errors.New("missing required field 'url'")

// Config defines the configuration of an HTTP request node.
type Config struct {
	URL     string
	Method  string
	Headers map[string]string
	Body    string
	Timeout int
	Retries RetryConfig
}

// RetryConfig defines retry behavior for HTTP requests.
type RetryConfig struct {
	Attempts int
	Delay    int
}

// HTTPError represents a server error response.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// ParseConfig reads the node configuration, applying defaults.
func ParseConfig(config map[string]any) (Config, error) {
	httpConfig := Config{
		Method:  http.MethodGet,
		Headers: make(map[string]string),
		Timeout: 30,
		Retries: RetryConfig{Attempts: 1, Delay: 0},
	}

	url, ok := config["url"].(string)
	if !ok || url == "" {
		return httpConfig, ErrMissingURL
	}

	httpConfig.URL = url

	if method, ok := config["method"].(string); ok && method != "" {
		httpConfig.Method = strings.ToUpper(method)
	}

	if headers, ok := config["headers"].(map[string]any); ok {
		for k, v := range headers {
			if strVal, ok := v.(string); ok {
				httpConfig.Headers[k] = strVal
			}
		}
	}

	switch body := config["body"].(type) {
	case string:
		httpConfig.Body = body
	case map[string]any, []any:
		raw, err := json.Marshal(body)
		if err != nil {
			return httpConfig, fmt.Errorf("invalid body: %w", err)
		}

		httpConfig.Body = string(raw)
	}

	if timeout, ok := config["timeout"].(float64); ok && timeout > 0 {
		httpConfig.Timeout = int(timeout)
	}

	if retries, ok := config["retries"].(map[string]any); ok {
		if attempts, ok := retries["attempts"].(float64); ok && attempts >= 1 {
			httpConfig.Retries.Attempts = int(attempts)
		}

		if delay, ok := retries["delay"].(float64); ok && delay >= 0 {
			httpConfig.Retries.Delay = int(delay)
		}
	}

	return httpConfig, nil
}

// Executor performs templated HTTP requests.
type Executor struct {
	logger *slog.Logger
}

func NewExecutor(logger *slog.Logger) *Executor {
	return &Executor{logger: logger}
}

func (e *Executor) Execute(ctx context.Context, node *models.Node, execCtx *models.ExecutionContext) (models.NodeOutput, error) {
	config, err := ParseConfig(node.Data.Config)
	if err != nil {
		return nil, err
	}

	url, err := template.RenderStringWithContext(config.URL, execCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to render URL template: %w", err)
	}

	body, err := template.RenderStringWithContext(config.Body, execCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to render body template: %w", err)
	}

	headers := make(map[string]string, len(config.Headers))

	for key, value := range config.Headers {
		rendered, err := template.RenderStringWithContext(value, execCtx)
		if err != nil {
			rendered = value // Use original value if template fails
		}

		headers[key] = rendered
	}

	var lastErr error

	for attempt := 1; attempt <= config.Retries.Attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(config.Retries.Delay) * time.Millisecond):
			}
		}

		output, err := e.performRequest(ctx, config, url, body, headers)
		if err == nil {
			if code, _ := output["status_code"].(int); code >= http.StatusBadRequest {
				execCtx.Warning(node.ID, fmt.Sprintf("HTTP %s %s answered %d", config.Method, url, code), nil)
			} else {
				execCtx.Info(node.ID, fmt.Sprintf("HTTP %s %s answered %d", config.Method, url, code), nil)
			}

			return output, nil
		}

		lastErr = err

		e.logger.WarnContext(ctx, "HTTP request attempt failed", "node_id", node.ID, "attempt", attempt, "error", err)

		if ctx.Err() != nil {
			break
		}
	}

	return nil, fmt.Errorf("HTTP request failed after %d attempts: %w", config.Retries.Attempts, lastErr)
}

// performRequest executes a single request. Server errors are returned as
// *HTTPError so they are retried, client errors are returned as output.
func (e *Executor) performRequest(ctx context.Context, config Config, url, body string, headers map[string]string) (models.NodeOutput, error) {
	var reqBody io.Reader
	if body != "" {
		reqBody = strings.NewReader(body)
	}

	reqCtx, cancel := context.WithTimeout(ctx, time.Duration(config.Timeout)*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, config.Method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range headers {
		req.Header.Set(key, value)
	}

	if body != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	respHeaders := make(map[string]any, len(resp.Header))
	for key := range resp.Header {
		respHeaders[key] = resp.Header.Get(key)
	}

	output := models.NodeOutput{
		"status_code": resp.StatusCode,
		"headers":     respHeaders,
		"body":        string(respBody),
	}

	var jsonBody any
	if err := json.Unmarshal(respBody, &jsonBody); err == nil {
		output["json"] = jsonBody
	}

	return output, nil
}
