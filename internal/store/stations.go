package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"charging-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const stationColumns = `id, name, address, latitude, longitude, total_ports, available_ports,
	cost_per_kwh, status, created_at, updated_at`

// StationRepo implements the station registry on Postgres. Counter updates
// are single conditional UPDATE statements so concurrent reserve/release
// calls are serialized by the row lock.
type StationRepo struct {
	db *sqlx.DB
}

// Add inserts a station with every port available
func (r *StationRepo) Add(ctx context.Context, station *models.Station) error {
	if station.TotalPorts <= 0 || station.CostPerKWh < 0 {
		return models.ErrInvalidStation
	}

	station.AvailablePorts = station.TotalPorts
	station.RefreshStatus()

	query := `
		INSERT INTO stations (id, name, address, latitude, longitude, total_ports, available_ports, cost_per_kwh, status)
		VALUES ($1, $2, $3, $4, $5, $6, $6, $7, $8)
		RETURNING created_at, updated_at`

	err := r.db.QueryRowxContext(ctx, query,
		station.ID, station.Name, station.Address, station.Latitude, station.Longitude,
		station.TotalPorts, station.CostPerKWh, station.Status,
	).Scan(&station.CreatedAt, &station.UpdatedAt)
	if isUniqueViolation(err) {
		return models.ErrStationExists
	}
	if err != nil {
		return fmt.Errorf("failed to insert station: %w", err)
	}
	return nil
}

// Get retrieves a station by ID
func (r *StationRepo) Get(ctx context.Context, stationID string) (*models.Station, error) {
	var station models.Station
	err := r.db.GetContext(ctx, &station,
		"SELECT "+stationColumns+" FROM stations WHERE id = $1", stationID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrStationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &station, nil
}

// List retrieves all stations in insertion order
func (r *StationRepo) List(ctx context.Context) ([]models.Station, error) {
	stations := []models.Station{}
	err := r.db.SelectContext(ctx, &stations,
		"SELECT "+stationColumns+" FROM stations ORDER BY seq")
	return stations, err
}

// TryReserveSlot decrements available_ports iff it is positive and returns
// the assigned port number.
func (r *StationRepo) TryReserveSlot(ctx context.Context, stationID string) (int, error) {
	query := `
		UPDATE stations
		SET available_ports = available_ports - 1,
			status = CASE WHEN available_ports - 1 = 0 THEN 'busy' ELSE 'online' END,
			updated_at = NOW()
		WHERE id = $1 AND available_ports > 0 AND status <> 'offline'
		RETURNING total_ports - available_ports`

	var port int
	err := r.db.GetContext(ctx, &port, query, stationID)
	if err == nil {
		return port, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to reserve port: %w", err)
	}

	station, err := r.Get(ctx, stationID)
	if err != nil {
		return 0, err
	}
	if station.Status == models.StationStatusOffline {
		return 0, models.ErrStationOffline
	}
	return 0, models.ErrNoPortsAvailable
}

// ReleaseSlot increments available_ports, capped at total_ports
func (r *StationRepo) ReleaseSlot(ctx context.Context, stationID string) error {
	query := `
		UPDATE stations
		SET available_ports = LEAST(available_ports + 1, total_ports),
			status = CASE WHEN status = 'offline' THEN status ELSE 'online' END,
			updated_at = NOW()
		WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, stationID)
	if err != nil {
		return fmt.Errorf("failed to release port: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return models.ErrStationNotFound
	}
	return nil
}

// SetOffline toggles operator maintenance mode
func (r *StationRepo) SetOffline(ctx context.Context, stationID string, offline bool) error {
	query := `
		UPDATE stations
		SET status = CASE
				WHEN $2 THEN 'offline'
				WHEN available_ports = 0 THEN 'busy'
				ELSE 'online'
			END,
			updated_at = NOW()
		WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, stationID, offline)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return models.ErrStationNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
