package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"charging-service/internal/models"
	"charging-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultEstimatedSessionKWh is the energy a browser-flow session is billed for.
const DefaultEstimatedSessionKWh = 20.0

// PaymentService settles reservations: it records the payment, completes the
// reservation and returns the port to its station.
type PaymentService struct {
	stations       StationRegistry
	ledger         ReservationLedger
	transactions   TransactionStore
	locker         Locker
	eventPublisher EventPublisher
	logger         *zap.Logger
	sessionKWh     float64
}

// NewPaymentService creates a new payment service
func NewPaymentService(
	stations StationRegistry,
	ledger ReservationLedger,
	transactions TransactionStore,
	locker Locker,
	eventPublisher EventPublisher,
	sessionKWh float64,
) *PaymentService {
	if sessionKWh <= 0 {
		sessionKWh = DefaultEstimatedSessionKWh
	}
	return &PaymentService{
		stations:       stations,
		ledger:         ledger,
		transactions:   transactions,
		locker:         locker,
		eventPublisher: eventPublisher,
		logger:         util.Named("payment"),
		sessionKWh:     sessionKWh,
	}
}

// SettleRequest describes one settlement attempt
type SettleRequest struct {
	ReservationID string
	UserID        string
	Amount        float64
	PaymentToken  string
}

// Estimate is the amount the browser flow would charge for a reservation
type Estimate struct {
	ReservationID string  `json:"reservationId"`
	StationID     string  `json:"stationId"`
	EnergyKWh     float64 `json:"energyKWh"`
	CostPerKWh    float64 `json:"costPerKWh"`
	Amount        float64 `json:"amount"`
}

// Settle completes a pending reservation. Preconditions are checked in
// order: the reservation exists, belongs to the user, is pending, the
// amount is a non-negative number and a payment token was supplied.
func (ps *PaymentService) Settle(ctx context.Context, req *SettleRequest) (*models.Transaction, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.Settle")
	defer span.End()

	util.PaymentAttemptsTotal.Inc()
	start := time.Now()
	defer func() {
		util.PaymentProcessingLatency.Observe(time.Since(start).Seconds())
	}()

	unlock, err := ps.locker.Lock(ctx, settlementLockKey(req.ReservationID))
	if err != nil {
		util.PaymentFailedTotal.WithLabelValues("lock").Inc()
		return nil, fmt.Errorf("failed to lock reservation: %w", err)
	}
	defer unlock()

	reservation, err := ps.pendingReservation(ctx, req.ReservationID, req.UserID)
	if err != nil {
		util.PaymentFailedTotal.WithLabelValues(failureReason(err)).Inc()
		return nil, err
	}

	if req.Amount < 0 || math.IsNaN(req.Amount) || math.IsInf(req.Amount, 0) {
		util.PaymentFailedTotal.WithLabelValues("invalid_amount").Inc()
		return nil, models.ErrInvalidAmount
	}

	if req.PaymentToken == "" {
		ps.logger.Warn("Payment declined, no payment details",
			zap.String("reservation_id", req.ReservationID))
		util.PaymentFailedTotal.WithLabelValues("declined").Inc()
		return nil, models.ErrPaymentDeclined
	}

	tx := &models.Transaction{
		UserID:        req.UserID,
		ReservationID: reservation.ID,
		Amount:        req.Amount,
		Status:        models.TransactionStatusCompleted,
	}
	if err := ps.transactions.Create(ctx, tx); err != nil {
		util.PaymentFailedTotal.WithLabelValues(failureReason(err)).Inc()
		if errors.Is(err, models.ErrAlreadySettled) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to record transaction: %w", err)
	}

	// The transaction is recorded; from here on the port is always released.
	if err := ps.ledger.MarkCompleted(ctx, reservation.ID); err != nil {
		util.SettlementPartialFailuresTotal.WithLabelValues("mark_completed").Inc()
		ps.logger.Error("Failed to complete reservation after payment",
			zap.String("reservation_id", reservation.ID),
			zap.String("transaction_id", tx.ID),
			zap.Error(err))
	}

	if err := ps.stations.ReleaseSlot(ctx, reservation.StationID); err != nil {
		util.SettlementPartialFailuresTotal.WithLabelValues("release_slot").Inc()
		ps.logger.Error("Failed to release port after payment",
			zap.String("reservation_id", reservation.ID),
			zap.String("station_id", reservation.StationID),
			zap.Error(err))
	}

	util.PaymentSuccessTotal.Inc()
	ps.logger.Info("Payment settled",
		zap.String("reservation_id", reservation.ID),
		zap.String("transaction_id", tx.ID),
		zap.Float64("amount", tx.Amount))

	ps.publishSettled(ctx, reservation, tx)

	return tx, nil
}

// Estimate returns the browser-flow amount for a pending reservation
// without settling it.
func (ps *PaymentService) Estimate(ctx context.Context, reservationID, userID string) (*Estimate, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.Estimate")
	defer span.End()

	reservation, err := ps.pendingReservation(ctx, reservationID, userID)
	if err != nil {
		return nil, err
	}

	station, err := ps.stations.Get(ctx, reservation.StationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load station %s: %w", reservation.StationID, err)
	}

	return &Estimate{
		ReservationID: reservation.ID,
		StationID:     station.ID,
		EnergyKWh:     ps.sessionKWh,
		CostPerKWh:    station.CostPerKWh,
		Amount:        roundCents(station.CostPerKWh * ps.sessionKWh),
	}, nil
}

func (ps *PaymentService) pendingReservation(ctx context.Context, reservationID, userID string) (*models.Reservation, error) {
	reservation, err := ps.ledger.Get(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if reservation.UserID != userID {
		return nil, models.ErrReservationNotOwned
	}
	if !reservation.IsPending() {
		return nil, models.ErrAlreadySettled
	}
	return reservation, nil
}

func (ps *PaymentService) publishSettled(ctx context.Context, reservation *models.Reservation, tx *models.Transaction) {
	now := time.Now()

	completed := &models.ReservationEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeReservationCompleted,
			Timestamp: now,
		},
		ReservationID: reservation.ID,
		UserID:        reservation.UserID,
		StationID:     reservation.StationID,
		PortNumber:    reservation.PortNumber,
		Status:        models.ReservationStatusCompleted,
	}
	if err := ps.eventPublisher.PublishReservationEvent(ctx, completed); err != nil {
		ps.logger.Error("Failed to publish ReservationCompleted event", zap.Error(err))
	}

	paid := &models.PaymentCompletedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypePaymentCompleted,
			Timestamp: now,
		},
		TransactionID: tx.ID,
		ReservationID: tx.ReservationID,
		UserID:        tx.UserID,
		Amount:        tx.Amount,
	}
	if err := ps.eventPublisher.PublishPaymentCompleted(ctx, paid); err != nil {
		ps.logger.Error("Failed to publish PaymentCompleted event", zap.Error(err))
	}
}

func settlementLockKey(reservationID string) string {
	return fmt.Sprintf("reservation:%s", reservationID)
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

// failureReason maps an error to a low-cardinality metric label
func failureReason(err error) string {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return "not_found"
	case errors.Is(err, models.ErrNotAuthorized):
		return "not_authorized"
	case errors.Is(err, models.ErrNoPortsAvailable):
		return "no_ports"
	case errors.Is(err, models.ErrStationOffline):
		return "offline"
	case errors.Is(err, models.ErrAlreadySettled):
		return "already_settled"
	case errors.Is(err, models.ErrValidation):
		return "validation"
	default:
		return "error"
	}
}
