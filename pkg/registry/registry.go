// Package registry maps node capabilities to executors.
package registry

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"plugin"
	"slices"
	"strings"
	"sync"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/protocol"
)

// Component describes a registered executor for API consumers.
type Component struct {
	Key         string         `json:"key"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Schema      map[string]any `json:"schema,omitempty"`
}

type Registry struct {
	logger     *slog.Logger
	mu         sync.RWMutex
	executors  map[string]protocol.NodeExecutor
	components map[string]Component
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:     log,
		executors:  make(map[string]protocol.NodeExecutor),
		components: make(map[string]Component),
	}
}

// Key builds the compound dispatch key of an integration and module type.
func Key(integration, moduleType string) string {
	if moduleType == "" {
		return integration
	}

	return integration + "-" + moduleType
}

// Register binds an executor to a key, replacing any previous registration.
func (r *Registry) Register(key string, executor protocol.NodeExecutor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.executors[key] = executor
	if _, ok := r.components[key]; !ok {
		r.components[key] = Component{Key: key, Name: key}
	}
}

// RegisterFactory creates the factory's executor and registers it under factory.ID().
func (r *Registry) RegisterFactory(ctx context.Context, factory protocol.ExecutorFactory) error {
	executor, err := factory.Create(ctx, r.logger.With("executor", factory.ID()))
	if err != nil {
		return fmt.Errorf("failed to create executor '%s': %w", factory.ID(), err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.executors[factory.ID()] = executor
	r.components[factory.ID()] = Component{
		Key:         factory.ID(),
		Name:        factory.Name(),
		Description: factory.Description(),
		Schema:      factory.Schema(),
	}

	return nil
}

// Resolve finds the executor for a node: the "<integration>-<moduleType>" key
// first, then "<integration>" alone.
func (r *Registry) Resolve(node *models.Node) (protocol.NodeExecutor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if node.Data.ModuleType != "" {
		if executor, ok := r.executors[Key(node.Data.Integration, node.Data.ModuleType)]; ok {
			return executor, true
		}
	}

	executor, ok := r.executors[node.Data.Integration]

	return executor, ok
}

// Keys returns the registered keys, sorted.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.executors))
	for key := range r.executors {
		keys = append(keys, key)
	}

	slices.Sort(keys)

	return keys
}

// Components returns metadata for every registered executor, sorted by key.
func (r *Registry) Components() []Component {
	keys := r.Keys()

	r.mu.RLock()
	defer r.mu.RUnlock()

	components := make([]Component, 0, len(keys))
	for _, key := range keys {
		components = append(components, r.components[key])
	}

	return components
}

func (r *Registry) HealthCheck() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.executors) == 0 {
		return "No executors registered", false
	}

	return fmt.Sprintf("%d executors registered", len(r.executors)), true
}

// LoadExecutorPlugins loads every .so under <pluginsPath>/executors exporting an
// "Executor" symbol that implements protocol.ExecutorFactory.
func (r *Registry) LoadExecutorPlugins(ctx context.Context, pluginsPath string) ([]protocol.ExecutorFactory, error) {
	return loadPlugin[protocol.ExecutorFactory](ctx, r.logger, pluginsPath, "Executor")
}

func loadPlugin[T any](ctx context.Context, logger *slog.Logger, pluginsPath string, symbolName string) ([]T, error) {
	rootPath := pluginsPath + "/" + strings.ToLower(symbolName) + "s"

	if _, err := os.Stat(rootPath); os.IsNotExist(err) {
		return nil, nil
	}

	root := os.DirFS(rootPath)

	pluginPathList, err := fs.Glob(root, "*.so")
	if err != nil {
		return nil, err
	}

	l := logger.With(slog.String("path", pluginsPath), slog.String("type", symbolName))
	l.InfoContext(ctx, "Loading plugins")

	pluginList := make([]T, 0, len(pluginPathList))

	for _, p := range pluginPathList {
		plg, err := plugin.Open(rootPath + "/" + p)
		if err != nil {
			return nil, fmt.Errorf("failed to open plugin %s: %w", p, err)
		}

		v, err := plg.Lookup(symbolName)
		if err != nil {
			return nil, fmt.Errorf("plugin %s has no %s symbol: %w", p, symbolName, err)
		}

		castV, ok := v.(T)
		if !ok {
			return nil, fmt.Errorf("plugin %s: %s symbol has unexpected type %T", p, symbolName, v)
		}

		pluginList = append(pluginList, castV)

		l.InfoContext(ctx, "Loaded executor plugin", slog.String("plugin", p))
	}

	return pluginList, nil
}
