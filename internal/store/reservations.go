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

const reservationColumns = "id, user_id, station_id, port_number, start_time, end_time, status"

// ReservationRepo implements the reservation ledger on Postgres.
type ReservationRepo struct {
	db *sqlx.DB
}

// Create inserts a pending reservation
func (r *ReservationRepo) Create(ctx context.Context, userID, stationID string, port int) (*models.Reservation, error) {
	res := &models.Reservation{
		ID:         uuid.New().String(),
		UserID:     userID,
		StationID:  stationID,
		PortNumber: port,
		Status:     models.ReservationStatusPending,
	}

	query := `
		INSERT INTO reservations (id, user_id, station_id, port_number, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING start_time`

	if err := r.db.GetContext(ctx, &res.StartTime, query,
		res.ID, res.UserID, res.StationID, res.PortNumber, res.Status); err != nil {
		return nil, fmt.Errorf("failed to create reservation: %w", err)
	}
	return res, nil
}

// Get retrieves a reservation by ID
func (r *ReservationRepo) Get(ctx context.Context, reservationID string) (*models.Reservation, error) {
	if _, err := uuid.Parse(reservationID); err != nil {
		return nil, models.ErrReservationNotFound
	}

	var res models.Reservation
	err := r.db.GetContext(ctx, &res,
		"SELECT "+reservationColumns+" FROM reservations WHERE id = $1", reservationID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrReservationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// ListByUser retrieves reservations for a user ordered by start time
func (r *ReservationRepo) ListByUser(ctx context.Context, userID string) ([]models.Reservation, error) {
	list := []models.Reservation{}
	err := r.db.SelectContext(ctx, &list,
		"SELECT "+reservationColumns+" FROM reservations WHERE user_id = $1 ORDER BY start_time", userID)
	return list, err
}

func (r *ReservationRepo) MarkCompleted(ctx context.Context, reservationID string) error {
	return r.finish(ctx, reservationID, models.ReservationStatusCompleted)
}

func (r *ReservationRepo) MarkCancelled(ctx context.Context, reservationID string) error {
	return r.finish(ctx, reservationID, models.ReservationStatusCancelled)
}

// CountPending counts reservations still holding a port of the station
func (r *ReservationRepo) CountPending(ctx context.Context, stationID string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM reservations WHERE station_id = $1 AND status = 'pending'", stationID)
	return count, err
}

func (r *ReservationRepo) finish(ctx context.Context, reservationID, status string) error {
	if _, err := uuid.Parse(reservationID); err != nil {
		return models.ErrReservationNotFound
	}

	result, err := r.db.ExecContext(ctx,
		"UPDATE reservations SET status = $1, end_time = NOW() WHERE id = $2 AND status = 'pending'",
		status, reservationID)
	if err != nil {
		return fmt.Errorf("failed to update reservation: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 1 {
		return nil
	}

	if _, err := r.Get(ctx, reservationID); err != nil {
		return err
	}
	return models.ErrAlreadySettled
}
