package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"charging-service/internal/models"
	"charging-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// UnknownStationName labels reservations whose station is no longer registered.
const UnknownStationName = "Unknown Station"

// BookingService orchestrates reserve, pay and cancel across the station
// registry, the reservation ledger and payment settlement.
type BookingService struct {
	stations       StationRegistry
	ledger         ReservationLedger
	transactions   TransactionStore
	payments       *PaymentService
	locker         Locker
	eventPublisher EventPublisher
	logger         *zap.Logger
}

// NewBookingService creates a new booking service
func NewBookingService(
	stations StationRegistry,
	ledger ReservationLedger,
	transactions TransactionStore,
	payments *PaymentService,
	locker Locker,
	eventPublisher EventPublisher,
) *BookingService {
	return &BookingService{
		stations:       stations,
		ledger:         ledger,
		transactions:   transactions,
		payments:       payments,
		locker:         locker,
		eventPublisher: eventPublisher,
		logger:         util.Named("booking"),
	}
}

// ReserveRequest represents a request to reserve a port
type ReserveRequest struct {
	UserID    string `json:"userId" binding:"required"`
	StationID string `json:"stationId" binding:"required"`
}

// ReserveResponse is returned after a successful reservation
type ReserveResponse struct {
	ReservationID string `json:"reservationId"`
}

// PaymentRequest represents an API-flow payment with a caller supplied amount.
// PaymentMethodDetails is either a token string or a gateway object
// carrying a "token" field.
type PaymentRequest struct {
	ReservationID        string          `json:"reservationId" binding:"required"`
	Amount               *float64        `json:"amount" binding:"required"`
	PaymentMethodDetails json.RawMessage `json:"paymentMethodDetails" binding:"required"`
	UserID               string          `json:"userId" binding:"required"`
}

// PaymentToken extracts the token from PaymentMethodDetails. Empty details
// (absent, null, "", {} or []) yield "".
func (r *PaymentRequest) PaymentToken() string {
	raw := bytes.TrimSpace(r.PaymentMethodDetails)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}

	switch raw[0] {
	case '"':
		var token string
		if err := json.Unmarshal(raw, &token); err != nil {
			return ""
		}
		return strings.TrimSpace(token)

	case '{':
		var details map[string]interface{}
		if err := json.Unmarshal(raw, &details); err != nil || len(details) == 0 {
			return ""
		}
		if token, ok := details["token"].(string); ok && strings.TrimSpace(token) != "" {
			return strings.TrimSpace(token)
		}
		return string(raw)

	case '[':
		var items []interface{}
		if err := json.Unmarshal(raw, &items); err != nil || len(items) == 0 {
			return ""
		}
	}

	return string(raw)
}

// PaymentResponse is returned after a successful settlement
type PaymentResponse struct {
	TransactionID string  `json:"transactionId"`
	Amount        float64 `json:"amount,omitempty"`
}

// ListStations returns every station in registration order
func (s *BookingService) ListStations(ctx context.Context) ([]models.Station, error) {
	return s.stations.List(ctx)
}

func (s *BookingService) GetStation(ctx context.Context, stationID string) (*models.Station, error) {
	return s.stations.Get(ctx, stationID)
}

// AddStation registers a new station with every port available
func (s *BookingService) AddStation(ctx context.Context, station *models.Station) error {
	if err := s.stations.Add(ctx, station); err != nil {
		return err
	}
	s.logger.Info("Station registered",
		zap.String("station_id", station.ID),
		zap.Int("total_ports", station.TotalPorts))
	return nil
}

// Reserve takes one port of a station and records a pending reservation.
// If the ledger write fails the port is handed back.
func (s *BookingService) Reserve(ctx context.Context, userID, stationID string) (*models.Reservation, error) {
	ctx, span := util.StartSpan(ctx, "BookingService.Reserve")
	defer span.End()

	start := time.Now()
	defer func() {
		util.PortReserveLatency.Observe(time.Since(start).Seconds())
	}()

	if strings.TrimSpace(userID) == "" || strings.TrimSpace(stationID) == "" {
		util.ReservationsFailedTotal.WithLabelValues("validation").Inc()
		return nil, models.NewValidationError("missing userId or stationId")
	}

	if _, err := s.stations.Get(ctx, stationID); err != nil {
		util.ReservationsFailedTotal.WithLabelValues(failureReason(err)).Inc()
		return nil, err
	}

	port, err := s.stations.TryReserveSlot(ctx, stationID)
	if err != nil {
		util.ReservationsFailedTotal.WithLabelValues(failureReason(err)).Inc()
		s.logger.Info("Reservation refused",
			zap.String("station_id", stationID),
			zap.String("user_id", userID),
			zap.Error(err))
		return nil, err
	}

	reservation, err := s.ledger.Create(ctx, userID, stationID, port)
	if err != nil {
		util.ReservationsFailedTotal.WithLabelValues("ledger_error").Inc()
		s.compensateSlot(ctx, stationID)
		return nil, fmt.Errorf("failed to create reservation: %w", err)
	}

	util.ReservationsCreatedTotal.Inc()
	s.logger.Info("Reservation created",
		zap.String("reservation_id", reservation.ID),
		zap.String("station_id", stationID),
		zap.Int("port_number", port))

	s.publishReservation(ctx, reservation, models.EventTypeReservationCreated)

	return reservation, nil
}

// compensateSlot returns a port taken for a reservation that was never recorded
func (s *BookingService) compensateSlot(ctx context.Context, stationID string) {
	if err := s.stations.ReleaseSlot(ctx, stationID); err != nil {
		s.logger.Error("Failed to compensate port reservation",
			zap.String("station_id", stationID),
			zap.Error(err))
	}
}

// Pay settles a reservation with a caller supplied amount after checking
// that the caller owns it.
func (s *BookingService) Pay(ctx context.Context, req *PaymentRequest) (*models.Transaction, error) {
	ctx, span := util.StartSpan(ctx, "BookingService.Pay")
	defer span.End()

	if req.Amount == nil {
		return nil, models.NewValidationError("missing amount")
	}

	if err := s.checkOwner(ctx, req.ReservationID, req.UserID); err != nil {
		return nil, err
	}

	return s.payments.Settle(ctx, &SettleRequest{
		ReservationID: req.ReservationID,
		UserID:        req.UserID,
		Amount:        *req.Amount,
		PaymentToken:  req.PaymentToken(),
	})
}

// PayEstimated settles a reservation for the estimated session amount
func (s *BookingService) PayEstimated(ctx context.Context, reservationID, userID, paymentToken string) (*models.Transaction, error) {
	ctx, span := util.StartSpan(ctx, "BookingService.PayEstimated")
	defer span.End()

	estimate, err := s.payments.Estimate(ctx, reservationID, userID)
	if err != nil {
		return nil, err
	}

	return s.payments.Settle(ctx, &SettleRequest{
		ReservationID: reservationID,
		UserID:        userID,
		Amount:        estimate.Amount,
		PaymentToken:  paymentToken,
	})
}

// Estimate returns what PayEstimated would charge
func (s *BookingService) Estimate(ctx context.Context, reservationID, userID string) (*Estimate, error) {
	return s.payments.Estimate(ctx, reservationID, userID)
}

// Cancel moves a pending reservation to cancelled and frees its port.
// It shares the settlement lock so a reservation is never both paid and
// cancelled.
func (s *BookingService) Cancel(ctx context.Context, reservationID, userID string) (*models.Reservation, error) {
	ctx, span := util.StartSpan(ctx, "BookingService.Cancel")
	defer span.End()

	unlock, err := s.locker.Lock(ctx, settlementLockKey(reservationID))
	if err != nil {
		return nil, fmt.Errorf("failed to lock reservation: %w", err)
	}
	defer unlock()

	reservation, err := s.ledger.Get(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if reservation.UserID != userID {
		return nil, models.ErrReservationNotOwned
	}
	if !reservation.IsPending() {
		return nil, models.ErrAlreadySettled
	}

	if err := s.ledger.MarkCancelled(ctx, reservationID); err != nil {
		return nil, err
	}

	if err := s.stations.ReleaseSlot(ctx, reservation.StationID); err != nil {
		util.SettlementPartialFailuresTotal.WithLabelValues("cancel_release_slot").Inc()
		s.logger.Error("Failed to release port after cancellation",
			zap.String("reservation_id", reservationID),
			zap.String("station_id", reservation.StationID),
			zap.Error(err))
	}

	util.ReservationsCancelledTotal.Inc()
	s.logger.Info("Reservation cancelled", zap.String("reservation_id", reservationID))

	cancelled, err := s.ledger.Get(ctx, reservationID)
	if err != nil {
		return nil, err
	}

	s.publishReservation(ctx, cancelled, models.EventTypeReservationCancelled)

	return cancelled, nil
}

// ListReservations returns a user's reservations oldest first, each labelled
// with its station name.
func (s *BookingService) ListReservations(ctx context.Context, userID string) ([]models.ReservationView, error) {
	ctx, span := util.StartSpan(ctx, "BookingService.ListReservations")
	defer span.End()

	reservations, err := s.ledger.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	names := make(map[string]string)
	views := make([]models.ReservationView, 0, len(reservations))
	for _, r := range reservations {
		name, ok := names[r.StationID]
		if !ok {
			name, err = s.stationName(ctx, r.StationID)
			if err != nil {
				return nil, err
			}
			names[r.StationID] = name
		}
		views = append(views, models.ReservationView{Reservation: r, StationName: name})
	}
	return views, nil
}

func (s *BookingService) stationName(ctx context.Context, stationID string) (string, error) {
	station, err := s.stations.Get(ctx, stationID)
	if errors.Is(err, models.ErrStationNotFound) {
		return UnknownStationName, nil
	}
	if err != nil {
		return "", err
	}
	return station.Name, nil
}

// GetTransaction returns a completed transaction owned by userID. Any other
// transaction is reported as not found.
func (s *BookingService) GetTransaction(ctx context.Context, transactionID, userID string) (*models.Transaction, error) {
	tx, err := s.transactions.Get(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if tx.UserID != userID || tx.Status != models.TransactionStatusCompleted {
		return nil, models.ErrTransactionNotFound
	}
	return tx, nil
}

func (s *BookingService) checkOwner(ctx context.Context, reservationID, userID string) error {
	reservation, err := s.ledger.Get(ctx, reservationID)
	if err != nil {
		return err
	}
	if reservation.UserID != userID {
		return models.ErrReservationNotOwned
	}
	return nil
}

func (s *BookingService) publishReservation(ctx context.Context, r *models.Reservation, eventType string) {
	event := &models.ReservationEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: eventType,
			Timestamp: time.Now(),
		},
		ReservationID: r.ID,
		UserID:        r.UserID,
		StationID:     r.StationID,
		PortNumber:    r.PortNumber,
		Status:        r.Status,
	}

	if err := s.eventPublisher.PublishReservationEvent(ctx, event); err != nil {
		s.logger.Error("Failed to publish reservation event",
			zap.String("event_type", eventType),
			zap.Error(err))
	}
}
