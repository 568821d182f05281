package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"booking-service/internal/models"
	"booking-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher publishes booking lifecycle events to Kafka
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishBookingEvent publishes one booking transition
func (ep *EventPublisher) PublishBookingEvent(ctx context.Context, event *models.BookingEvent) error {
	key := fmt.Sprintf("booking-%d", event.BookingID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// Dispatcher runs domain event handlers synchronously
type Dispatcher interface {
	Dispatch(ctx context.Context, event Event) error
}

// CatalogEventHandler turns catalog messages from Kafka into domain events
// for catalog writers that live outside this process.
type CatalogEventHandler struct {
	dispatcher Dispatcher
	logger     *zap.Logger
}

func NewCatalogEventHandler(dispatcher Dispatcher) *CatalogEventHandler {
	return &CatalogEventHandler{dispatcher: dispatcher, logger: util.GetLogger()}
}

// HandleMessage routes messages to the bus. Malformed messages are logged and
// skipped so they do not block the partition.
func (h *CatalogEventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	event, err := DecodeCatalogEvent(msg.Value)
	if err != nil {
		h.logger.Warn("Skipping malformed catalog message", zap.Int64("offset", msg.Offset), zap.Error(err))
		return nil
	}
	if event == nil {
		return nil
	}

	base := event.Base()
	h.logger.Debug("Handling catalog event",
		zap.String("event_type", base.EventType),
		zap.String("event_id", base.EventID))

	return h.dispatcher.Dispatch(ctx, event)
}

// DecodeCatalogEvent decodes an upsert or delete message. Other event types
// decode to nil.
func DecodeCatalogEvent(data []byte) (Event, error) {
	var base models.BaseEvent
	if err := json.Unmarshal(data, &base); err != nil {
		return nil, fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	switch base.EventType {
	case models.EventTypeEntityUpserted:
		var event models.EntityUpsertedEvent
		if err := json.Unmarshal(data, &event); err != nil {
			return nil, fmt.Errorf("failed to unmarshal EntityUpserted event: %w", err)
		}
		t, err := models.ParseEntityType(string(event.Document.EntityType))
		if err != nil {
			return nil, err
		}
		event.Document.EntityType = t
		if event.Document.EntityID <= 0 {
			return nil, fmt.Errorf("invalid entity id %d", event.Document.EntityID)
		}
		return &event, nil

	case models.EventTypeEntityDeleted:
		var event models.EntityDeletedEvent
		if err := json.Unmarshal(data, &event); err != nil {
			return nil, fmt.Errorf("failed to unmarshal EntityDeleted event: %w", err)
		}
		t, err := models.ParseEntityType(string(event.EntityType))
		if err != nil {
			return nil, err
		}
		event.EntityType = t
		return &event, nil

	default:
		return nil, nil
	}
}
