package models

import "time"

// Event types
const (
	EventTypeReservationCreated   = "RESERVATION_CREATED"
	EventTypeReservationCompleted = "RESERVATION_COMPLETED"
	EventTypeReservationCancelled = "RESERVATION_CANCELLED"
	EventTypePaymentCompleted     = "PAYMENT_COMPLETED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// ReservationEvent is published on every reservation state change.
type ReservationEvent struct {
	BaseEvent
	ReservationID string `json:"reservation_id"`
	UserID        string `json:"user_id"`
	StationID     string `json:"station_id"`
	PortNumber    int    `json:"port_number"`
	Status        string `json:"status"`
}

// PaymentCompletedEvent is published once per settled reservation.
type PaymentCompletedEvent struct {
	BaseEvent
	TransactionID string  `json:"transaction_id"`
	ReservationID string  `json:"reservation_id"`
	UserID        string  `json:"user_id"`
	Amount        float64 `json:"amount"`
}
