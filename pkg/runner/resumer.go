package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/flowpilot-io/flowpilot/pkg/persistence"
)

// DefaultResumeBatch bounds how many suspended runs one sweep resumes.
const DefaultResumeBatch = 50

// Resumer periodically claims suspended runs whose resume time has passed
// and hands them back to the runner.
type Resumer struct {
	persistence persistence.Persistence
	runner      *Runner
	logger      *slog.Logger
	batch       int
}

func NewResumer(persistence persistence.Persistence, runner *Runner, logger *slog.Logger) *Resumer {
	return &Resumer{
		persistence: persistence,
		runner:      runner,
		logger:      logger.With("module", "resumer"),
		batch:       DefaultResumeBatch,
	}
}

// Sweep claims one batch of due runs and resumes them. A run that fails to
// advance does not stop the rest of the batch.
func (s *Resumer) Sweep(ctx context.Context) error {
	runs, err := s.persistence.Runs().ClaimDue(ctx, time.Now().UTC(), s.batch)
	if err != nil {
		return fmt.Errorf("failed to claim due runs: %w", err)
	}

	if len(runs) == 0 {
		return nil
	}

	s.logger.InfoContext(ctx, "Resuming suspended runs", "count", len(runs))

	for _, run := range runs {
		err := s.runner.Resume(ctx, run)
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to resume run", "run_id", run.ID, "error", err)
		}
	}

	return nil
}
