package models

import (
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	EventTypeEntityUpserted   = "ENTITY_UPSERTED"
	EventTypeEntityDeleted    = "ENTITY_DELETED"
	EventTypeBookingCreated   = "BOOKING_CREATED"
	EventTypeBookingConfirmed = "BOOKING_CONFIRMED"
	EventTypeBookingCancelled = "BOOKING_CANCELLED"
	EventTypeBookingDeleted   = "BOOKING_DELETED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

func (e BaseEvent) Base() BaseEvent { return e }

// NewBaseEvent stamps a fresh event id and the current time.
func NewBaseEvent(eventType string) BaseEvent {
	return BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
	}
}

// EntityUpsertedEvent is published after a catalog row is created or changed
type EntityUpsertedEvent struct {
	BaseEvent
	Document SearchDocument `json:"document"`
}

// EntityDeletedEvent is published after a catalog row is soft-deleted
type EntityDeletedEvent struct {
	BaseEvent
	EntityID   int64      `json:"entity_id"`
	EntityType EntityType `json:"type"`
}

func NewEntityUpserted(doc SearchDocument) *EntityUpsertedEvent {
	return &EntityUpsertedEvent{BaseEvent: NewBaseEvent(EventTypeEntityUpserted), Document: doc}
}

func NewEntityDeleted(entityType EntityType, entityID int64) *EntityDeletedEvent {
	return &EntityDeletedEvent{
		BaseEvent:  NewBaseEvent(EventTypeEntityDeleted),
		EntityID:   entityID,
		EntityType: entityType,
	}
}

// BookingEvent is published to Kafka on every booking lifecycle transition
type BookingEvent struct {
	BaseEvent
	BookingID   int64      `json:"booking_id"`
	UserID      string     `json:"user_id"`
	EntityID    int64      `json:"entity_id"`
	BookingType EntityType `json:"booking_type"`
	Status      string     `json:"status"`
	IsPaid      bool       `json:"is_paid"`
	SessionID   string     `json:"session_id,omitempty"`
}

func NewBookingEvent(eventType string, b *Booking) *BookingEvent {
	return &BookingEvent{
		BaseEvent:   NewBaseEvent(eventType),
		BookingID:   b.ID,
		UserID:      b.UserID,
		EntityID:    b.EntityID,
		BookingType: b.BookingType,
		Status:      b.Status,
		IsPaid:      b.IsPaid,
		SessionID:   b.PaymentSessionID,
	}
}
