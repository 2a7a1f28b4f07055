package worker

import (
	"context"
	"sync/atomic"
	"time"

	"charging-service/internal/broker"
	"charging-service/internal/models"
	"charging-service/internal/service"
	"charging-service/internal/util"

	"go.uber.org/zap"
)

// AuditWorker consumes charging lifecycle events and writes an audit trail
// to the log.
type AuditWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger

	reservationEvents atomic.Int64
	paymentEvents     atomic.Int64
	settledAmount     atomic.Int64 // cents
}

// NewAuditWorker creates a new audit worker
func NewAuditWorker(consumer *broker.Consumer) *AuditWorker {
	w := &AuditWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		logger:       util.Named("audit-worker"),
	}

	w.eventHandler.OnReservationEvent(w.handleReservation)
	w.eventHandler.OnPaymentCompleted(w.handlePayment)

	return w
}

func (w *AuditWorker) handleReservation(_ context.Context, event *models.ReservationEvent) error {
	w.reservationEvents.Add(1)
	w.logger.Info("Reservation event",
		zap.String("event_type", event.EventType),
		zap.String("reservation_id", event.ReservationID),
		zap.String("user_id", event.UserID),
		zap.String("station_id", event.StationID),
		zap.Int("port_number", event.PortNumber),
		zap.String("status", event.Status))
	return nil
}

func (w *AuditWorker) handlePayment(_ context.Context, event *models.PaymentCompletedEvent) error {
	w.paymentEvents.Add(1)
	w.settledAmount.Add(int64(event.Amount*100 + 0.5))
	w.logger.Info("Payment completed",
		zap.String("transaction_id", event.TransactionID),
		zap.String("reservation_id", event.ReservationID),
		zap.String("user_id", event.UserID),
		zap.Float64("amount", event.Amount))
	return nil
}

// AuditStats summarizes what the worker has seen since start
type AuditStats struct {
	ReservationEvents int64
	PaymentEvents     int64
	SettledAmount     float64
}

func (w *AuditWorker) Stats() AuditStats {
	return AuditStats{
		ReservationEvents: w.reservationEvents.Load(),
		PaymentEvents:     w.paymentEvents.Load(),
		SettledAmount:     float64(w.settledAmount.Load()) / 100,
	}
}

// Start starts the worker
func (w *AuditWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting audit worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *AuditWorker) Stop() error {
	stats := w.Stats()
	w.logger.Info("Stopping audit worker",
		zap.Int64("reservation_events", stats.ReservationEvents),
		zap.Int64("payment_events", stats.PaymentEvents),
		zap.Float64("settled_amount", stats.SettledAmount))
	return w.consumer.Close()
}

// ReconcileWorker periodically verifies station availability against the
// reservation ledger.
type ReconcileWorker struct {
	reconciler *service.Reconciler
	interval   time.Duration
	logger     *zap.Logger
}

// NewReconcileWorker creates a new reconcile worker
func NewReconcileWorker(reconciler *service.Reconciler, interval time.Duration) *ReconcileWorker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &ReconcileWorker{
		reconciler: reconciler,
		interval:   interval,
		logger:     util.Named("reconcile-worker"),
	}
}

// Start runs a check every interval until ctx is cancelled
func (w *ReconcileWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting reconcile worker", zap.Duration("interval", w.interval))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Reconcile worker stopped")
			return ctx.Err()
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *ReconcileWorker) runOnce(ctx context.Context) {
	drift, err := w.reconciler.Check(ctx)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error("Reconciliation failed", zap.Error(err))
		}
		return
	}
	if len(drift) > 0 {
		w.logger.Warn("Stations out of balance", zap.Int("count", len(drift)))
	}
}
