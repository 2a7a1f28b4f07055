// Package memstore holds the in-process tables for stations, reservations,
// transactions and accounts. Every table owns its locking.
package memstore

import (
	"context"
	"sync"
	"time"

	"charging-service/internal/models"
)

// Stations is the in-memory station registry. The table lock guards the
// index; each station's counters are guarded by its own mutex so reserve
// and release on different stations never contend.
type Stations struct {
	mu    sync.RWMutex
	order []string
	byID  map[string]*stationEntry
}

type stationEntry struct {
	mu      sync.Mutex
	station models.Station
}

// NewStations creates an empty registry
func NewStations() *Stations {
	return &Stations{byID: make(map[string]*stationEntry)}
}

// Add registers a station with every port available.
func (s *Stations) Add(_ context.Context, station *models.Station) error {
	if station.TotalPorts <= 0 || station.CostPerKWh < 0 {
		return models.ErrInvalidStation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[station.ID]; exists {
		return models.ErrStationExists
	}

	now := time.Now().UTC()
	stored := *station
	stored.AvailablePorts = stored.TotalPorts
	stored.CreatedAt = now
	stored.UpdatedAt = now
	stored.RefreshStatus()

	s.byID[stored.ID] = &stationEntry{station: stored}
	s.order = append(s.order, stored.ID)
	return nil
}

// Get returns a snapshot of the station
func (s *Stations) Get(_ context.Context, stationID string) (*models.Station, error) {
	entry, ok := s.entry(stationID)
	if !ok {
		return nil, models.ErrStationNotFound
	}

	entry.mu.Lock()
	snapshot := entry.station
	entry.mu.Unlock()
	return &snapshot, nil
}

// List returns snapshots in insertion order.
func (s *Stations) List(_ context.Context) ([]models.Station, error) {
	s.mu.RLock()
	entries := make([]*stationEntry, 0, len(s.order))
	for _, id := range s.order {
		entries = append(entries, s.byID[id])
	}
	s.mu.RUnlock()

	stations := make([]models.Station, 0, len(entries))
	for _, entry := range entries {
		entry.mu.Lock()
		stations = append(stations, entry.station)
		entry.mu.Unlock()
	}
	return stations, nil
}

// TryReserveSlot takes one port if any is available and returns the
// assigned port number.
func (s *Stations) TryReserveSlot(_ context.Context, stationID string) (int, error) {
	entry, ok := s.entry(stationID)
	if !ok {
		return 0, models.ErrStationNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	st := &entry.station
	if st.Status == models.StationStatusOffline {
		return 0, models.ErrStationOffline
	}
	if st.AvailablePorts <= 0 {
		return 0, models.ErrNoPortsAvailable
	}

	port := st.TotalPorts - st.AvailablePorts + 1
	st.AvailablePorts--
	st.UpdatedAt = time.Now().UTC()
	st.RefreshStatus()
	return port, nil
}

// ReleaseSlot returns one port, never exceeding the station's capacity.
func (s *Stations) ReleaseSlot(_ context.Context, stationID string) error {
	entry, ok := s.entry(stationID)
	if !ok {
		return models.ErrStationNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	st := &entry.station
	if st.AvailablePorts < st.TotalPorts {
		st.AvailablePorts++
	}
	st.UpdatedAt = time.Now().UTC()
	st.RefreshStatus()
	return nil
}

// SetOffline toggles operator maintenance mode.
func (s *Stations) SetOffline(_ context.Context, stationID string, offline bool) error {
	entry, ok := s.entry(stationID)
	if !ok {
		return models.ErrStationNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if offline {
		entry.station.Status = models.StationStatusOffline
	} else {
		entry.station.Status = models.StationStatusOnline
		entry.station.RefreshStatus()
	}
	entry.station.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Stations) entry(stationID string) (*stationEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.byID[stationID]
	return entry, ok
}
