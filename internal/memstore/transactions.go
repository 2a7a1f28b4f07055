package memstore

import (
	"context"
	"sync"
	"time"

	"charging-service/internal/models"

	"github.com/google/uuid"
)

// Transactions stores settlement payments. At most one completed
// transaction exists per reservation.
type Transactions struct {
	mu          sync.RWMutex
	byID        map[string]*models.Transaction
	completedBy map[string]string
}

func NewTransactions() *Transactions {
	return &Transactions{
		byID:        make(map[string]*models.Transaction),
		completedBy: make(map[string]string),
	}
}

// Create assigns an id and timestamp and stores the transaction.
func (t *Transactions) Create(_ context.Context, tx *models.Transaction) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if tx.Status == models.TransactionStatusCompleted {
		if _, exists := t.completedBy[tx.ReservationID]; exists {
			return models.ErrAlreadySettled
		}
	}

	tx.ID = uuid.New().String()
	tx.Timestamp = time.Now().UTC()

	stored := *tx
	t.byID[stored.ID] = &stored
	if stored.Status == models.TransactionStatusCompleted {
		t.completedBy[stored.ReservationID] = stored.ID
	}
	return nil
}

func (t *Transactions) Get(_ context.Context, transactionID string) (*models.Transaction, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	tx, ok := t.byID[transactionID]
	if !ok {
		return nil, models.ErrTransactionNotFound
	}
	snapshot := *tx
	return &snapshot, nil
}

// ListByReservation returns every transaction recorded for the reservation.
func (t *Transactions) ListByReservation(_ context.Context, reservationID string) ([]models.Transaction, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var list []models.Transaction
	for _, tx := range t.byID {
		if tx.ReservationID == reservationID {
			list = append(list, *tx)
		}
	}
	return list, nil
}
