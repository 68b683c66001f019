// Package file provides file-based persistence implementation for workflows and executions.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dukex/flowrun/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface using the file system.
type Persistence struct {
	root          string
	workflowRepo  *WorkflowRepository
	executionRepo *ExecutionRepository
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root:          cleanRoot,
		workflowRepo:  NewWorkflowRepository(cleanRoot),
		executionRepo: NewExecutionRepository(cleanRoot),
	}
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (fp *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return fp.workflowRepo
}

func (fp *Persistence) ExecutionRepository() persistence.ExecutionRepository {
	return fp.executionRepo
}

// validateID validates that the ID is safe for file operations.
func validateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: id cannot be empty", persistence.ErrInvalidID)
	}

	// Check for path traversal attempts
	if strings.Contains(id, "..") || strings.Contains(id, "/") || strings.Contains(id, "\\") {
		return fmt.Errorf("%w: id contains invalid characters", persistence.ErrInvalidID)
	}

	return nil
}

func readJSON(path string, v any) error {
	body, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return err
	}

	return json.Unmarshal(body, v)
}

func writeJSON(dir, id string, v any) error {
	err := os.MkdirAll(dir, 0750)
	if err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", id, err)
	}

	// Write to a temporary file first so readers never see a partial document.
	tmp := filepath.Join(dir, "."+id+".tmp")

	err = os.WriteFile(tmp, data, 0600)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", id, err)
	}

	return os.Rename(tmp, filepath.Join(dir, id+".json"))
}

// listIDs returns the ids of the JSON documents stored in dir.
func listIDs(dir string) ([]string, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, nil
	}

	jsonFiles, err := fs.Glob(os.DirFS(dir), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list files in %s: %w", dir, err)
	}

	ids := make([]string, 0, len(jsonFiles))
	for _, file := range jsonFiles {
		ids = append(ids, strings.TrimSuffix(file, ".json"))
	}

	return ids, nil
}
