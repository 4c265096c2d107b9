// Package events defines the event types carried on the bus: entity
// lifecycle changes coming in from the CRUD layer, and run lifecycle
// notifications going out.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/flowpilot-io/flowpilot/pkg/models"
)

type EventType string

// Topic is the bus topic all flowpilot events travel on.
const Topic = "flowpilot.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Entity lifecycle events, produced by the surrounding CRUD layer.
	EntityCreatedEvent EventType = "entity.created"
	EntityUpdatedEvent EventType = "entity.updated"
	EntityDeletedEvent EventType = "entity.deleted"

	// Run lifecycle events, produced by the runner.
	RunStartedEvent   EventType = "run.started"
	RunCompletedEvent EventType = "run.completed"
	RunFailedEvent    EventType = "run.failed"
	RunPausedEvent    EventType = "run.paused"
	RunResumedEvent   EventType = "run.resumed"
)

// Event is anything publishable on the bus.
type Event interface {
	GetType() EventType
}

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType) BaseEvent {
	return BaseEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
	}
}

// EntityChanged wraps an entity lifecycle change.
type EntityChanged struct {
	BaseEvent

	EntityType models.EntityType  `json:"entity_type"`
	EntityID   string             `json:"entity_id"`
	Change     models.TriggerType `json:"change"` // create, update or delete
	Snapshot   map[string]any     `json:"snapshot,omitempty"`
}

func (e EntityChanged) GetType() EventType {
	return e.Type
}

// EntityEvent converts the bus event back to the domain form.
func (e EntityChanged) EntityEvent() models.EntityEvent {
	return models.EntityEvent{
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		Event:      e.Change,
		Snapshot:   e.Snapshot,
	}
}

// EntityEventType maps a change kind to its bus event type.
func EntityEventType(change models.TriggerType) EventType {
	switch change {
	case models.TriggerTypeCreate:
		return EntityCreatedEvent
	case models.TriggerTypeUpdate:
		return EntityUpdatedEvent
	default:
		return EntityDeletedEvent
	}
}

// WebhookEventName is the externally visible event name webhooks subscribe
// to, e.g. "deal.updated".
func WebhookEventName(entityType models.EntityType, change models.TriggerType) string {
	suffix := map[models.TriggerType]string{
		models.TriggerTypeCreate: "created",
		models.TriggerTypeUpdate: "updated",
		models.TriggerTypeDelete: "deleted",
	}[change]

	return string(entityType) + "." + suffix
}

type RunStarted struct {
	BaseEvent

	RunID      string            `json:"run_id"`
	WorkflowID string            `json:"workflow_id"`
	EntityType models.EntityType `json:"entity_type"`
	EntityID   string            `json:"entity_id"`
}

func (e RunStarted) GetType() EventType {
	return RunStartedEvent
}

type RunCompleted struct {
	BaseEvent

	RunID      string        `json:"run_id"`
	WorkflowID string        `json:"workflow_id"`
	Duration   time.Duration `json:"duration"`
}

func (e RunCompleted) GetType() EventType {
	return RunCompletedEvent
}

type RunFailed struct {
	BaseEvent

	RunID      string `json:"run_id"`
	WorkflowID string `json:"workflow_id"`
	Error      string `json:"error"`
}

func (e RunFailed) GetType() EventType {
	return RunFailedEvent
}

type RunPaused struct {
	BaseEvent

	RunID      string    `json:"run_id"`
	WorkflowID string    `json:"workflow_id"`
	ResumeAt   time.Time `json:"resume_at"`
}

func (e RunPaused) GetType() EventType {
	return RunPausedEvent
}

type RunResumed struct {
	BaseEvent

	RunID      string `json:"run_id"`
	WorkflowID string `json:"workflow_id"`
}

func (e RunResumed) GetType() EventType {
	return RunResumedEvent
}
