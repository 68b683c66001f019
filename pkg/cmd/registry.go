// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"context"
	"log/slog"

	"github.com/dukex/flowrun/pkg/executors/gohighlevel"
	"github.com/dukex/flowrun/pkg/registry"
)

// NewGoHighLevelClient returns the LeadConnector client for apiKey, or the
// mock client when no key is configured.
//
//nolint:ireturn
func NewGoHighLevelClient(baseURL, apiKey string) gohighlevel.Client {
	if apiKey == "" {
		return gohighlevel.NewMockClient()
	}

	if baseURL == "" {
		baseURL = gohighlevel.DefaultBaseURL
	}

	return gohighlevel.NewHTTPClient(baseURL, apiKey)
}

// NewRegistry loads executor plugins from pluginsPath and registers the built-in executors.
func NewRegistry(ctx context.Context, logger *slog.Logger, pluginsPath string, ghl gohighlevel.Client) (*registry.Registry, error) {
	reg := registry.NewRegistry(logger)

	plugins, err := reg.LoadExecutorPlugins(ctx, pluginsPath)
	if err != nil {
		return nil, err
	}

	for _, plugin := range plugins {
		if err := reg.RegisterFactory(ctx, plugin); err != nil {
			return nil, err
		}
	}

	if err := reg.RegisterDefaultExecutors(ctx, ghl); err != nil {
		return nil, err
	}

	return reg, nil
}
