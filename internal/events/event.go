package events

import (
	"time"

	"github.com/google/uuid"
)

// Event is implemented by everything published on the Bus.
type Event interface {
	EventID() string
	EventType() string
	EntityType() string
	EntityID() int64
	OccurredAt() time.Time
}

// BaseEvent carries the fields shared by all events. Embed it and add
// payload fields on the concrete type.
type BaseEvent struct {
	ID        string    `json:"event_id"`
	Type      string    `json:"type"`
	Entity    string    `json:"entity_type"`
	Ref       int64     `json:"entity_id"`
	Timestamp time.Time `json:"occurred_at"`
}

func (e BaseEvent) EventID() string       { return e.ID }
func (e BaseEvent) EventType() string     { return e.Type }
func (e BaseEvent) EntityType() string    { return e.Entity }
func (e BaseEvent) EntityID() int64       { return e.Ref }
func (e BaseEvent) OccurredAt() time.Time { return e.Timestamp }

// NewBaseEvent stamps a fresh event ID and the current time.
func NewBaseEvent(eventType, entityType string, entityID int64) BaseEvent {
	return BaseEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Entity:    entityType,
		Ref:       entityID,
		Timestamp: time.Now().UTC(),
	}
}
