package fanout

import (
	"github.com/zegl/eligo/internal/model"
	"github.com/zegl/eligo/internal/syncmap"
)

// EventType is the suffix of an outbound event type.
type EventType string

const (
	EventCreated EventType = "created"
	EventUpdated EventType = "updated"
	EventDeleted EventType = "deleted"
)

// Event is an outbound notice that an entity changed.
type Event struct {
	Type    string        `json:"type"`
	Payload syncmap.Value `json:"payload"`
	// Time is the entity's last-updated time.
	Time int64 `json:"time"`

	Kind model.Kind `json:"-"`
}

// NewEvent encodes e as a "<kind>.<type>" event.
func NewEvent(t EventType, e model.Entity) Event {
	return Event{
		Type:    string(e.EntityKind()) + "." + string(t),
		Payload: syncmap.Encode(e),
		Time:    e.UpdateTime(),
		Kind:    e.EntityKind(),
	}
}

// EntityChannel is the subscription key for one entity.
func EntityChannel(kind model.Kind, id string) string { return string(kind) + ":" + id }

// InboxChannel is the subscription key every session of a user holds.
func InboxChannel(userID string) string { return "inbox:" + userID }

// Channel returns the entity channel of the event's payload.
func (e Event) Channel() string { return EntityChannel(e.Kind, e.Payload.ID) }
