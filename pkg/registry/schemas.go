package registry

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

// ErrInvalidNodeConfig indicates a node configuration does not satisfy its executor schema.
var ErrInvalidNodeConfig = errors.New("invalid node configuration")

// ValidateNodeConfig checks the node configuration against the schema of the
// executor the node resolves to. Nodes without an executor or without a schema pass.
func (r *Registry) ValidateNodeConfig(node *models.Node) error {
	schema := r.schemaFor(node)
	if len(schema) == 0 {
		return nil
	}

	config := node.Data.Config
	if config == nil {
		config = map[string]any{}
	}

	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewGoLoader(config))
	if err != nil {
		return fmt.Errorf("failed to validate node %s: %w", node.ID, err)
	}

	if !result.Valid() {
		messages := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			messages = append(messages, desc.String())
		}

		return fmt.Errorf("%w: node %s: %s", ErrInvalidNodeConfig, node.ID, strings.Join(messages, "; "))
	}

	return nil
}

func (r *Registry) schemaFor(node *models.Node) map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if node.Data.ModuleType != "" {
		if _, ok := r.executors[Key(node.Data.Integration, node.Data.ModuleType)]; ok {
			return r.components[Key(node.Data.Integration, node.Data.ModuleType)].Schema
		}
	}

	return r.components[node.Data.Integration].Schema
}
