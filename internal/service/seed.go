package service

import (
	"context"
	"errors"
	"fmt"

	"charging-service/internal/models"
)

// DefaultStations is the catalog loaded when SEED_STATIONS is enabled.
func DefaultStations() []models.Station {
	return []models.Station{
		{
			ID:         "station_001",
			Name:       "Green Charge Hub - Kolkata",
			Address:    "Salt Lake Sector V, Kolkata",
			Latitude:   22.5726,
			Longitude:  88.3639,
			TotalPorts: 8,
			CostPerKWh: 0.25,
		},
		{
			ID:         "station_002",
			Name:       "EcoCharge Point - Howrah",
			Address:    "Howrah Station Road, Howrah",
			Latitude:   22.5872,
			Longitude:  88.3106,
			TotalPorts: 4,
			CostPerKWh: 0.30,
		},
		{
			ID:         "station_003",
			Name:       "PowerUp Park - Rajarhat",
			Address:    "New Town, Rajarhat, Kolkata",
			Latitude:   22.5726,
			Longitude:  88.4639,
			TotalPorts: 6,
			CostPerKWh: 0.28,
		},
	}
}

// SeedStations registers stations that are not known yet. Existing
// stations are left untouched. Returns the number added.
func SeedStations(ctx context.Context, registry StationRegistry, stations []models.Station) (int, error) {
	added := 0
	for i := range stations {
		st := stations[i]
		err := registry.Add(ctx, &st)
		if errors.Is(err, models.ErrStationExists) {
			continue
		}
		if err != nil {
			return added, fmt.Errorf("failed to seed station %s: %w", st.ID, err)
		}
		added++
	}
	return added, nil
}
