package memstore

import (
	"context"
	"sync"
	"testing"

	"charging-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStation(id string, ports int) *models.Station {
	return &models.Station{ID: id, Name: "Station " + id, TotalPorts: ports, CostPerKWh: 0.25}
}

func TestStationsAddAndList(t *testing.T) {
	ctx := context.Background()
	s := NewStations()

	require.NoError(t, s.Add(ctx, newStation("b", 2)))
	require.NoError(t, s.Add(ctx, newStation("a", 3)))

	assert.ErrorIs(t, s.Add(ctx, newStation("a", 1)), models.ErrStationExists)
	assert.ErrorIs(t, s.Add(ctx, newStation("c", 0)), models.ErrValidation)

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].ID)
	assert.Equal(t, "a", list[1].ID)
	assert.Equal(t, 3, list[1].AvailablePorts)
	assert.Equal(t, models.StationStatusOnline, list[1].Status)
}

func TestStationsReserveUntilExhausted(t *testing.T) {
	ctx := context.Background()
	s := NewStations()
	require.NoError(t, s.Add(ctx, newStation("s1", 2)))

	port, err := s.TryReserveSlot(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, port)

	port, err = s.TryReserveSlot(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, port)

	_, err = s.TryReserveSlot(ctx, "s1")
	assert.ErrorIs(t, err, models.ErrNoPortsAvailable)
	assert.ErrorIs(t, err, models.ErrConflict)

	st, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 0, st.AvailablePorts)
	assert.Equal(t, models.StationStatusBusy, st.Status)

	_, err = s.TryReserveSlot(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrStationNotFound)
}

func TestStationsReleaseIsCapped(t *testing.T) {
	ctx := context.Background()
	s := NewStations()
	require.NoError(t, s.Add(ctx, newStation("s1", 1)))

	_, err := s.TryReserveSlot(ctx, "s1")
	require.NoError(t, err)

	require.NoError(t, s.ReleaseSlot(ctx, "s1"))
	require.NoError(t, s.ReleaseSlot(ctx, "s1"))

	st, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, st.AvailablePorts)
	assert.Equal(t, models.StationStatusOnline, st.Status)

	assert.ErrorIs(t, s.ReleaseSlot(ctx, "missing"), models.ErrStationNotFound)
}

func TestStationsOffline(t *testing.T) {
	ctx := context.Background()
	s := NewStations()
	require.NoError(t, s.Add(ctx, newStation("s1", 1)))
	require.NoError(t, s.SetOffline(ctx, "s1", true))

	_, err := s.TryReserveSlot(ctx, "s1")
	assert.ErrorIs(t, err, models.ErrStationOffline)

	require.NoError(t, s.SetOffline(ctx, "s1", false))
	_, err = s.TryReserveSlot(ctx, "s1")
	assert.NoError(t, err)
}

func TestStationsConcurrentReserveAndRelease(t *testing.T) {
	ctx := context.Background()
	s := NewStations()
	require.NoError(t, s.Add(ctx, newStation("s1", 5)))

	const callers = 50
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.TryReserveSlot(ctx, "s1"); err == nil {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 5, granted)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.ReleaseSlot(ctx, "s1")
		}()
	}
	wg.Wait()

	st, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 5, st.AvailablePorts)
}
