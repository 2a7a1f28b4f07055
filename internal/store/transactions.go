package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"charging-service/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const transactionColumns = "id, user_id, reservation_id, amount, status, created_at"

// TransactionRepo stores settlement payments. A partial unique index keeps
// one completed transaction per reservation.
type TransactionRepo struct {
	db *sqlx.DB
}

// Create inserts a transaction record
func (r *TransactionRepo) Create(ctx context.Context, tx *models.Transaction) error {
	tx.ID = uuid.New().String()

	query := `
		INSERT INTO transactions (id, user_id, reservation_id, amount, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`

	err := r.db.GetContext(ctx, &tx.Timestamp, query,
		tx.ID, tx.UserID, tx.ReservationID, tx.Amount, tx.Status)
	if isUniqueViolation(err) {
		return models.ErrAlreadySettled
	}
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

// Get retrieves a transaction by ID
func (r *TransactionRepo) Get(ctx context.Context, transactionID string) (*models.Transaction, error) {
	if _, err := uuid.Parse(transactionID); err != nil {
		return nil, models.ErrTransactionNotFound
	}

	var tx models.Transaction
	err := r.db.GetContext(ctx, &tx,
		"SELECT "+transactionColumns+" FROM transactions WHERE id = $1", transactionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// ListByReservation retrieves all transactions for a reservation
func (r *TransactionRepo) ListByReservation(ctx context.Context, reservationID string) ([]models.Transaction, error) {
	list := []models.Transaction{}
	if _, err := uuid.Parse(reservationID); err != nil {
		return list, nil
	}
	err := r.db.SelectContext(ctx, &list,
		"SELECT "+transactionColumns+" FROM transactions WHERE reservation_id = $1 ORDER BY created_at", reservationID)
	return list, err
}
