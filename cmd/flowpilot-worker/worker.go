// Package main provides the Flowpilot worker: it consumes entity lifecycle
// events, triggers matching workflows and fans events out to subscribed
// webhooks.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/flowpilot-io/flowpilot/pkg/actions"
	"github.com/flowpilot-io/flowpilot/pkg/eventbus"
	"github.com/flowpilot-io/flowpilot/pkg/events"
	"github.com/flowpilot-io/flowpilot/pkg/otelhelper"
	"github.com/flowpilot-io/flowpilot/pkg/persistence"
	"github.com/flowpilot-io/flowpilot/pkg/runner"
	"github.com/flowpilot-io/flowpilot/pkg/webhook"
)

type WorkerManager struct {
	workerID    string
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	registry    *actions.Registry
	logger      *slog.Logger
}

func NewWorkerManager(
	workerID string,
	persistence persistence.Persistence,
	eventBus eventbus.EventBus,
	registry *actions.Registry,
	logger *slog.Logger,
) *WorkerManager {
	return &WorkerManager{
		workerID:    workerID,
		persistence: persistence,
		eventBus:    eventBus,
		registry:    registry,
		logger:      logger,
	}
}

// Start wires the bus handlers and blocks until the process is signalled.
func (w *WorkerManager) Start(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracer, err := w.tracer(ctx)
	if err != nil {
		return err
	}

	wfRunner := runner.New(w.persistence, w.registry, w.eventBus, tracer, w.logger)
	triggers := runner.NewTriggerDispatcher(w.persistence, wfRunner, w.logger)
	dispatcher := webhook.NewDispatcher(w.persistence, tracer, w.logger)

	entityHandler := func(ctx context.Context, event any) error {
		changed, ok := event.(*events.EntityChanged)
		if !ok {
			return fmt.Errorf("unexpected event payload %T", event)
		}

		err := triggers.HandleEntityChanged(ctx, event)
		if err != nil {
			return err
		}

		return dispatcher.DispatchEvent(ctx,
			events.WebhookEventName(changed.EntityType, changed.Change),
			map[string]any{
				"event":       events.WebhookEventName(changed.EntityType, changed.Change),
				"entity_type": changed.EntityType,
				"entity_id":   changed.EntityID,
				"snapshot":    changed.Snapshot,
				"occurred_at": changed.Timestamp.Format(time.RFC3339),
			})
	}

	for _, eventType := range []events.EventType{
		events.EntityCreatedEvent,
		events.EntityUpdatedEvent,
		events.EntityDeletedEvent,
	} {
		err := w.eventBus.Handle(eventType, entityHandler)
		if err != nil {
			return fmt.Errorf("failed to register handler for %s: %w", eventType, err)
		}
	}

	// Run outcomes are webhook events too, so external systems can follow
	// automation results.
	runHandler := func(ctx context.Context, event any) error {
		e, ok := event.(eventbus.Event)
		if !ok {
			return fmt.Errorf("unexpected event payload %T", event)
		}

		return dispatcher.DispatchEvent(ctx, string(e.GetType()), event)
	}

	for _, eventType := range []events.EventType{
		events.RunCompletedEvent,
		events.RunFailedEvent,
	} {
		err := w.eventBus.Handle(eventType, runHandler)
		if err != nil {
			return fmt.Errorf("failed to register handler for %s: %w", eventType, err)
		}
	}

	err = w.eventBus.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to event bus: %w", err)
	}

	w.logger.InfoContext(ctx, "Worker started", "worker_id", w.workerID)

	<-ctx.Done()

	w.logger.InfoContext(ctx, "Worker shutting down", "worker_id", w.workerID)

	return nil
}

func (w *WorkerManager) tracer(ctx context.Context) (trace.Tracer, error) {
	if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") == "" {
		return nil, nil
	}

	tracer, err := otelhelper.NewTracer(ctx, "flowpilot-worker")
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}

	return tracer, nil
}
