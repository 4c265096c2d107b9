// Package main provides the Flowpilot sweeper: the background scheduler
// that resumes suspended runs, retries failed webhook deliveries and fires
// time-based workflows on their cron schedules.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/flowpilot-io/flowpilot/pkg/actions"
	"github.com/flowpilot-io/flowpilot/pkg/eventbus"
	"github.com/flowpilot-io/flowpilot/pkg/models"
	"github.com/flowpilot-io/flowpilot/pkg/persistence"
	"github.com/flowpilot-io/flowpilot/pkg/runner"
	"github.com/flowpilot-io/flowpilot/pkg/webhook"
)

const (
	defaultResumeInterval = time.Minute
	defaultRetryInterval  = 5 * time.Minute
	refreshSchedule       = "@every 1m"
)

type SweeperManager struct {
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	registry    *actions.Registry
	logger      *slog.Logger

	resumeInterval time.Duration
	retryInterval  time.Duration

	cron     *cron.Cron
	mu       sync.Mutex
	entries  map[string]cron.EntryID
	exprs    map[string]string
	triggers *runner.TriggerDispatcher
}

func NewSweeperManager(
	persistence persistence.Persistence,
	eventBus eventbus.EventBus,
	registry *actions.Registry,
	logger *slog.Logger,
	resumeInterval time.Duration,
	retryInterval time.Duration,
) *SweeperManager {
	if resumeInterval <= 0 {
		resumeInterval = defaultResumeInterval
	}

	if retryInterval <= 0 {
		retryInterval = defaultRetryInterval
	}

	return &SweeperManager{
		persistence:    persistence,
		eventBus:       eventBus,
		registry:       registry,
		logger:         logger,
		resumeInterval: resumeInterval,
		retryInterval:  retryInterval,
		entries:        make(map[string]cron.EntryID),
		exprs:          make(map[string]string),
	}
}

// every formats an interval as a cron "@every" spec.
func every(interval time.Duration) string {
	return "@every " + interval.String()
}

// Start schedules the sweeps and blocks until the process is signalled.
func (s *SweeperManager) Start(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	wfRunner := runner.New(s.persistence, s.registry, s.eventBus, nil, s.logger)
	resumer := runner.NewResumer(s.persistence, wfRunner, s.logger)
	dispatcher := webhook.NewDispatcher(s.persistence, nil, s.logger)
	retries := webhook.NewRetryScheduler(s.persistence, dispatcher, s.logger)
	s.triggers = runner.NewTriggerDispatcher(s.persistence, wfRunner, s.logger)

	s.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	_, err := s.cron.AddFunc(every(s.resumeInterval), func() {
		err := resumer.Sweep(ctx)
		if err != nil {
			s.logger.ErrorContext(ctx, "Resume sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule resume sweep: %w", err)
	}

	_, err = s.cron.AddFunc(every(s.retryInterval), func() {
		err := retries.Sweep(ctx)
		if err != nil {
			s.logger.ErrorContext(ctx, "Retry sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule retry sweep: %w", err)
	}

	_, err = s.cron.AddFunc(refreshSchedule, func() {
		err := s.refreshSchedules(ctx)
		if err != nil {
			s.logger.ErrorContext(ctx, "Schedule refresh failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule refresh: %w", err)
	}

	err = s.refreshSchedules(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "Initial schedule refresh failed", "error", err)
	}

	s.cron.Start()

	s.logger.InfoContext(ctx, "Sweeper started",
		"resume_interval", s.resumeInterval, "retry_interval", s.retryInterval)

	<-ctx.Done()

	<-s.cron.Stop().Done()

	s.logger.InfoContext(ctx, "Sweeper shutting down")

	return nil
}

// refreshSchedules reconciles the cron entries against the active
// time-based workflows: new workflows get an entry, changed expressions are
// rescheduled, deactivated workflows are dropped.
func (s *SweeperManager) refreshSchedules(ctx context.Context) error {
	workflows, err := s.persistence.Workflows().ActiveTimeBased(ctx)
	if err != nil {
		return fmt.Errorf("failed to list time-based workflows: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool, len(workflows))

	for _, workflow := range workflows {
		expr := workflow.CronExpression()
		seen[workflow.ID] = true

		if s.exprs[workflow.ID] == expr {
			continue
		}

		if entryID, ok := s.entries[workflow.ID]; ok {
			s.cron.Remove(entryID)
		}

		entryID, err := s.cron.AddFunc(expr, s.fire(workflow.ID))
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to schedule workflow",
				"workflow_id", workflow.ID, "cron", expr, "error", err)

			continue
		}

		s.entries[workflow.ID] = entryID
		s.exprs[workflow.ID] = expr

		s.logger.InfoContext(ctx, "Scheduled time-based workflow", "workflow_id", workflow.ID, "cron", expr)
	}

	for id, entryID := range s.entries {
		if !seen[id] {
			s.cron.Remove(entryID)
			delete(s.entries, id)
			delete(s.exprs, id)

			s.logger.InfoContext(ctx, "Unscheduled time-based workflow", "workflow_id", id)
		}
	}

	return nil
}

// fire triggers one scheduled workflow. The definition is re-read at fire
// time so a deactivation between refreshes is honored.
func (s *SweeperManager) fire(workflowID string) func() {
	return func() {
		ctx := context.Background()

		workflow, err := s.persistence.Workflows().ByID(ctx, workflowID)
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to load scheduled workflow", "workflow_id", workflowID, "error", err)

			return
		}

		if !workflow.IsActive || workflow.TriggerType != models.TriggerTypeTimeBased {
			return
		}

		err = s.triggers.TriggerTimeBased(ctx, workflow)
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to fire scheduled workflow", "workflow_id", workflowID, "error", err)
		}
	}
}
