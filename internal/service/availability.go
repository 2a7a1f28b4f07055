package service

import (
	"context"
	"fmt"
	"time"

	"charging-service/internal/models"
	"charging-service/internal/util"

	"go.uber.org/zap"
)

// PortCounter keeps authoritative per-station availability counters
// outside the process (Redis).
type PortCounter interface {
	InitStation(ctx context.Context, stationID string, total, available int, offline bool) error
	ReservePort(ctx context.Context, stationID string) (int, error)
	ReleasePort(ctx context.Context, stationID string) error
	SetStationOffline(ctx context.Context, stationID string, offline bool) error
	GetAvailability(ctx context.Context, stationIDs []string) (map[string]int, error)
}

// AvailabilityRegistry serves station metadata from a catalog and port
// availability from a PortCounter. Once counters are initialized the
// catalog's own counts are ignored.
type AvailabilityRegistry struct {
	catalog  StationRegistry
	counters PortCounter
	logger   *zap.Logger
}

// NewAvailabilityRegistry creates a registry backed by shared counters
func NewAvailabilityRegistry(catalog StationRegistry, counters PortCounter) *AvailabilityRegistry {
	return &AvailabilityRegistry{
		catalog:  catalog,
		counters: counters,
		logger:   util.Named("availability"),
	}
}

func (a *AvailabilityRegistry) Add(ctx context.Context, station *models.Station) error {
	if err := a.catalog.Add(ctx, station); err != nil {
		return err
	}
	return a.counters.InitStation(ctx, station.ID, station.TotalPorts, station.TotalPorts,
		station.Status == models.StationStatusOffline)
}

func (a *AvailabilityRegistry) Get(ctx context.Context, stationID string) (*models.Station, error) {
	station, err := a.catalog.Get(ctx, stationID)
	if err != nil {
		return nil, err
	}

	availability, err := a.counters.GetAvailability(ctx, []string{stationID})
	if err != nil {
		return nil, fmt.Errorf("failed to read availability: %w", err)
	}
	overlay(station, availability)
	return station, nil
}

func (a *AvailabilityRegistry) List(ctx context.Context) ([]models.Station, error) {
	stations, err := a.catalog.List(ctx)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(stations))
	for i := range stations {
		ids[i] = stations[i].ID
	}

	availability, err := a.counters.GetAvailability(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to read availability: %w", err)
	}
	for i := range stations {
		overlay(&stations[i], availability)
	}
	return stations, nil
}

func (a *AvailabilityRegistry) TryReserveSlot(ctx context.Context, stationID string) (int, error) {
	ctx, span := util.StartSpan(ctx, "AvailabilityRegistry.TryReserveSlot")
	defer span.End()

	return a.counters.ReservePort(ctx, stationID)
}

func (a *AvailabilityRegistry) ReleaseSlot(ctx context.Context, stationID string) error {
	ctx, span := util.StartSpan(ctx, "AvailabilityRegistry.ReleaseSlot")
	defer span.End()

	return a.counters.ReleasePort(ctx, stationID)
}

func (a *AvailabilityRegistry) SetOffline(ctx context.Context, stationID string, offline bool) error {
	if err := a.catalog.SetOffline(ctx, stationID, offline); err != nil {
		return err
	}
	return a.counters.SetStationOffline(ctx, stationID, offline)
}

// Sync rebuilds every counter from the catalog and the ledger:
// available = total - pending reservations.
func (a *AvailabilityRegistry) Sync(ctx context.Context, ledger ReservationLedger) error {
	start := time.Now()
	a.logger.Info("Starting availability sync to Redis")

	stations, err := a.catalog.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list stations: %w", err)
	}

	for _, station := range stations {
		pending, err := ledger.CountPending(ctx, station.ID)
		if err != nil {
			return fmt.Errorf("failed to count pending reservations for %s: %w", station.ID, err)
		}

		available := station.TotalPorts - pending
		if available < 0 {
			a.logger.Warn("More pending reservations than ports",
				zap.String("station_id", station.ID),
				zap.Int("total_ports", station.TotalPorts),
				zap.Int("pending", pending))
			available = 0
		}

		offline := station.Status == models.StationStatusOffline
		if err := a.counters.InitStation(ctx, station.ID, station.TotalPorts, available, offline); err != nil {
			return fmt.Errorf("failed to init counters for %s: %w", station.ID, err)
		}
	}

	a.logger.Info("Availability sync completed",
		zap.Int("count", len(stations)),
		zap.Duration("took", time.Since(start)))
	return nil
}

func overlay(station *models.Station, availability map[string]int) {
	if n, ok := availability[station.ID]; ok {
		station.AvailablePorts = n
	}
	station.RefreshStatus()
}
