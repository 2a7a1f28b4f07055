package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"charging-service/internal/models"
	"charging-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing charging lifecycle events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishReservationEvent publishes a reservation state change
func (ep *EventPublisher) PublishReservationEvent(ctx context.Context, event *models.ReservationEvent) error {
	key := fmt.Sprintf("reservation-%s", event.ReservationID)
	return ep.producer.PublishEvent(ctx, key, event.EventType, event)
}

// PublishPaymentCompleted publishes a settlement
func (ep *EventPublisher) PublishPaymentCompleted(ctx context.Context, event *models.PaymentCompletedEvent) error {
	key := fmt.Sprintf("reservation-%s", event.ReservationID)
	return ep.producer.PublishEvent(ctx, key, event.EventType, event)
}

// NopPublisher drops every event. Used when Kafka is disabled.
type NopPublisher struct{}

func (NopPublisher) PublishReservationEvent(context.Context, *models.ReservationEvent) error {
	return nil
}

func (NopPublisher) PublishPaymentCompleted(context.Context, *models.PaymentCompletedEvent) error {
	return nil
}

// EventHandler routes incoming events to registered callbacks
type EventHandler struct {
	onReservation func(context.Context, *models.ReservationEvent) error
	onPayment     func(context.Context, *models.PaymentCompletedEvent) error
	logger        *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.Named("event-handler")}
}

// OnReservationEvent registers a handler for every reservation event type
func (eh *EventHandler) OnReservationEvent(handler func(context.Context, *models.ReservationEvent) error) {
	eh.onReservation = handler
}

// OnPaymentCompleted registers a handler for PaymentCompleted events
func (eh *EventHandler) OnPaymentCompleted(handler func(context.Context, *models.PaymentCompletedEvent) error) {
	eh.onPayment = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	util.EventsConsumedTotal.WithLabelValues(baseEvent.EventType).Inc()

	switch baseEvent.EventType {
	case models.EventTypeReservationCreated,
		models.EventTypeReservationCompleted,
		models.EventTypeReservationCancelled:
		if eh.onReservation != nil {
			var event models.ReservationEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal reservation event: %w", err)
			}
			return eh.onReservation(ctx, &event)
		}

	case models.EventTypePaymentCompleted:
		if eh.onPayment != nil {
			var event models.PaymentCompletedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal PaymentCompleted event: %w", err)
			}
			return eh.onPayment(ctx, &event)
		}

	default:
		eh.logger.Warn("Unhandled event type", zap.String("event_type", baseEvent.EventType))
	}

	return nil
}
