package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/flowpilot-io/flowpilot/pkg/persistence"
	"github.com/flowpilot-io/flowpilot/pkg/persistence/memory"
	"github.com/flowpilot-io/flowpilot/pkg/persistence/postgresql"
)

// NewPersistence builds the persistence layer from the database URL.
// postgres:// URLs get the PostgreSQL implementation; "memory" gets the
// in-memory one for development and tests.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			panic(fmt.Errorf("failed to initialize postgresql persistence: %w", err))
		}

		return p
	case databaseURL == "memory":
		return memory.NewPersistence()
	default:
		panic("Unsupported database URL: " + databaseURL)
	}
}
