package events

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/flowpilot-io/flowpilot/pkg/models"
)

func TestWebhookEventName(t *testing.T) {
	assert.Equal(t, "deal.updated", WebhookEventName(models.EntityTypeDeal, models.TriggerTypeUpdate))
	assert.Equal(t, "lead.created", WebhookEventName(models.EntityTypeLead, models.TriggerTypeCreate))
	assert.Equal(t, "contact.deleted", WebhookEventName(models.EntityTypeContact, models.TriggerTypeDelete))
}

func TestEntityEventType(t *testing.T) {
	assert.Equal(t, EntityCreatedEvent, EntityEventType(models.TriggerTypeCreate))
	assert.Equal(t, EntityUpdatedEvent, EntityEventType(models.TriggerTypeUpdate))
	assert.Equal(t, EntityDeletedEvent, EntityEventType(models.TriggerTypeDelete))
}

func TestEntityChangedRoundTrip(t *testing.T) {
	event := EntityChanged{
		BaseEvent:  NewBaseEvent(EntityUpdatedEvent),
		EntityType: models.EntityTypeDeal,
		EntityID:   "deal-42",
		Change:     models.TriggerTypeUpdate,
		Snapshot:   map[string]any{"status": "won"},
	}

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, EntityUpdatedEvent, event.GetType())

	domain := event.EntityEvent()
	assert.Equal(t, models.EntityTypeDeal, domain.EntityType)
	assert.Equal(t, "deal-42", domain.EntityID)
	assert.Equal(t, models.TriggerTypeUpdate, domain.Event)
	assert.Equal(t, "won", domain.Snapshot["status"])
}
