package service

import (
	"context"

	"charging-service/internal/models"
)

// StationRegistry holds station capacity and live availability. Slot
// operations must be atomic per station.
type StationRegistry interface {
	Add(ctx context.Context, station *models.Station) error
	Get(ctx context.Context, stationID string) (*models.Station, error)
	List(ctx context.Context) ([]models.Station, error)
	TryReserveSlot(ctx context.Context, stationID string) (int, error)
	ReleaseSlot(ctx context.Context, stationID string) error
	SetOffline(ctx context.Context, stationID string, offline bool) error
}

// ReservationLedger is the append-only reservation table. MarkCompleted and
// MarkCancelled succeed only from pending.
type ReservationLedger interface {
	Create(ctx context.Context, userID, stationID string, port int) (*models.Reservation, error)
	Get(ctx context.Context, reservationID string) (*models.Reservation, error)
	ListByUser(ctx context.Context, userID string) ([]models.Reservation, error)
	MarkCompleted(ctx context.Context, reservationID string) error
	MarkCancelled(ctx context.Context, reservationID string) error
	CountPending(ctx context.Context, stationID string) (int, error)
}

// TransactionStore records settlements. Create rejects a second completed
// transaction for the same reservation.
type TransactionStore interface {
	Create(ctx context.Context, tx *models.Transaction) error
	Get(ctx context.Context, transactionID string) (*models.Transaction, error)
	ListByReservation(ctx context.Context, reservationID string) ([]models.Transaction, error)
}

type AccountStore interface {
	Create(ctx context.Context, user *models.User) error
	Get(ctx context.Context, userID string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	Update(ctx context.Context, userID string, fn func(*models.User) error) (*models.User, error)
}

type EventPublisher interface {
	PublishReservationEvent(ctx context.Context, event *models.ReservationEvent) error
	PublishPaymentCompleted(ctx context.Context, event *models.PaymentCompletedEvent) error
}

// Locker serializes work on a key. The returned func releases the lock.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}
