package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"charging-service/internal/models"

	"github.com/google/uuid"
)

// Reservations is an append-only in-memory ledger.
type Reservations struct {
	mu     sync.RWMutex
	byID   map[string]*models.Reservation
	byUser map[string][]string
}

func NewReservations() *Reservations {
	return &Reservations{
		byID:   make(map[string]*models.Reservation),
		byUser: make(map[string][]string),
	}
}

// Create appends a pending reservation starting now.
func (r *Reservations) Create(_ context.Context, userID, stationID string, port int) (*models.Reservation, error) {
	res := &models.Reservation{
		ID:         uuid.New().String(),
		UserID:     userID,
		StationID:  stationID,
		PortNumber: port,
		StartTime:  time.Now().UTC(),
		Status:     models.ReservationStatusPending,
	}

	r.mu.Lock()
	r.byID[res.ID] = res
	r.byUser[userID] = append(r.byUser[userID], res.ID)
	r.mu.Unlock()

	snapshot := *res
	return &snapshot, nil
}

func (r *Reservations) Get(_ context.Context, reservationID string) (*models.Reservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res, ok := r.byID[reservationID]
	if !ok {
		return nil, models.ErrReservationNotFound
	}
	snapshot := *res
	return &snapshot, nil
}

// ListByUser returns the user's reservations ordered by start time.
func (r *Reservations) ListByUser(_ context.Context, userID string) ([]models.Reservation, error) {
	r.mu.RLock()
	ids := r.byUser[userID]
	list := make([]models.Reservation, 0, len(ids))
	for _, id := range ids {
		list = append(list, *r.byID[id])
	}
	r.mu.RUnlock()

	sort.SliceStable(list, func(i, j int) bool {
		return list[i].StartTime.Before(list[j].StartTime)
	})
	return list, nil
}

func (r *Reservations) MarkCompleted(_ context.Context, reservationID string) error {
	return r.finish(reservationID, models.ReservationStatusCompleted)
}

func (r *Reservations) MarkCancelled(_ context.Context, reservationID string) error {
	return r.finish(reservationID, models.ReservationStatusCancelled)
}

// CountPending returns how many reservations still hold a port of the station.
func (r *Reservations) CountPending(_ context.Context, stationID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, res := range r.byID {
		if res.StationID == stationID && res.IsPending() {
			count++
		}
	}
	return count, nil
}

func (r *Reservations) finish(reservationID, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, ok := r.byID[reservationID]
	if !ok {
		return models.ErrReservationNotFound
	}
	if !res.IsPending() {
		return models.ErrAlreadySettled
	}

	now := time.Now().UTC()
	res.Status = status
	res.EndTime = &now
	return nil
}
