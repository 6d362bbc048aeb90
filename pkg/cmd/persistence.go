package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/runwayci/runway/pkg/persistence"
	"github.com/runwayci/runway/pkg/persistence/file"
	"github.com/runwayci/runway/pkg/persistence/postgresql"
)

// NewPersistence constructs the store matching the database URL scheme.
// Anything that is not postgres falls back to the file store.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	switch parseProvider(databaseURL) {
	case "postgres", "postgresql":
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			panic(fmt.Errorf("failed to create postgres persistence: %w", err))
		}

		return p
	default:
		return file.NewPersistence(databaseURL)
	}
}

func parseProvider(databaseURL string) string {
	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	return provider
}
