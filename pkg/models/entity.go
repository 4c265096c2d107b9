package models

// EntityEvent is an entity lifecycle change produced by the surrounding CRUD
// layer. The snapshot is the entity state after the change (before, for
// deletes).
type EntityEvent struct {
	EntityType EntityType     `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Event      TriggerType    `json:"event"` // create, update or delete
	Snapshot   map[string]any `json:"snapshot"`
}

// RunContext is the execution-time view handed to actions: the triggering
// entity reference plus the mutable key-value context carried across steps.
// Actions never fabricate a new context entity; side effects are scoped to
// the entity named here.
type RunContext struct {
	WorkflowID string
	RunID      string
	EntityType EntityType
	EntityID   string
	Context    map[string]any
}
