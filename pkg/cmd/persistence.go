package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/flowrun/pkg/persistence"
	"github.com/dukex/flowrun/pkg/persistence/file"
	"github.com/dukex/flowrun/pkg/persistence/postgresql"
	"github.com/dukex/flowrun/pkg/persistence/redis"
)

var supportedPersistenceProviders = []string{"file", "postgres", "postgresql", "redis", "rediss"}

// NewPersistence opens the adapter selected by the URL scheme. A URL without
// a scheme is a directory for the file adapter.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	provider := parsePersistenceProvider(databaseURL)

	switch provider {
	case "postgres", "postgresql":
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, err
		}

		return p, nil
	case "redis", "rediss":
		p, err := redis.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, err
		}

		return p, nil
	case "file":
		return file.NewPersistence(databaseURL), nil
	default:
		return nil, fmt.Errorf("unsupported persistence provider %q, expected one of %s",
			provider, strings.Join(supportedPersistenceProviders, ", "))
	}
}

func parsePersistenceProvider(databaseURL string) string {
	scheme, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	return strings.ToLower(scheme)
}
