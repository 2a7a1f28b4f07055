package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"charging-service/internal/memstore"
	"charging-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu           sync.Mutex
	reservations []models.ReservationEvent
	payments     []models.PaymentCompletedEvent
}

func (p *recordingPublisher) PublishReservationEvent(_ context.Context, e *models.ReservationEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reservations = append(p.reservations, *e)
	return nil
}

func (p *recordingPublisher) PublishPaymentCompleted(_ context.Context, e *models.PaymentCompletedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.payments = append(p.payments, *e)
	return nil
}

func (p *recordingPublisher) eventTypes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var types []string
	for _, e := range p.reservations {
		types = append(types, e.EventType)
	}
	for _, e := range p.payments {
		types = append(types, e.EventType)
	}
	return types
}

type fixture struct {
	stations     *memstore.Stations
	ledger       *memstore.Reservations
	transactions *memstore.Transactions
	publisher    *recordingPublisher
	payments     *PaymentService
	booking      *BookingService
}

func newFixture(t *testing.T, stations ...models.Station) *fixture {
	t.Helper()
	return newFixtureWithLedger(t, nil, stations...)
}

// newFixtureWithLedger wires the services; wrap, when set, decorates the ledger.
func newFixtureWithLedger(t *testing.T, wrap func(ReservationLedger) ReservationLedger, stations ...models.Station) *fixture {
	t.Helper()
	ctx := context.Background()

	f := &fixture{
		stations:     memstore.NewStations(),
		ledger:       memstore.NewReservations(),
		transactions: memstore.NewTransactions(),
		publisher:    &recordingPublisher{},
	}
	for i := range stations {
		require.NoError(t, f.stations.Add(ctx, &stations[i]))
	}

	var ledger ReservationLedger = f.ledger
	if wrap != nil {
		ledger = wrap(f.ledger)
	}

	locker := NewKeyedMutex()
	f.payments = NewPaymentService(f.stations, ledger, f.transactions, locker, f.publisher, 0)
	f.booking = NewBookingService(f.stations, ledger, f.transactions, f.payments, locker, f.publisher)
	return f
}

func station(id string, ports int, cost float64) models.Station {
	return models.Station{ID: id, Name: "Station " + id, TotalPorts: ports, CostPerKWh: cost}
}

func amount(v float64) *float64 { return &v }

func payReq(reservationID, userID string, v float64) *PaymentRequest {
	return &PaymentRequest{
		ReservationID:        reservationID,
		UserID:               userID,
		Amount:               amount(v),
		PaymentMethodDetails: json.RawMessage(`"tok_visa"`),
	}
}

func (f *fixture) available(t *testing.T, stationID string) int {
	t.Helper()
	st, err := f.stations.Get(context.Background(), stationID)
	require.NoError(t, err)
	return st.AvailablePorts
}

func (f *fixture) assertNoDrift(t *testing.T) {
	t.Helper()
	drift, err := NewReconciler(f.stations, f.ledger).Check(context.Background())
	require.NoError(t, err)
	assert.Empty(t, drift)
}

func TestReserveAndPayEndToEnd(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, station("S", 1, 0.25))

	res, err := f.booking.Reserve(ctx, "u1", "S")
	require.NoError(t, err)
	assert.Equal(t, 1, res.PortNumber)
	assert.Equal(t, models.ReservationStatusPending, res.Status)
	assert.Equal(t, 0, f.available(t, "S"))

	st, err := f.booking.GetStation(ctx, "S")
	require.NoError(t, err)
	assert.Equal(t, models.StationStatusBusy, st.Status)

	tx, err := f.booking.Pay(ctx, payReq(res.ID, "u1", 5.0))
	require.NoError(t, err)
	assert.Equal(t, 5.0, tx.Amount)
	assert.Equal(t, models.TransactionStatusCompleted, tx.Status)

	assert.Equal(t, 1, f.available(t, "S"))

	got, err := f.ledger.Get(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationStatusCompleted, got.Status)
	assert.NotNil(t, got.EndTime)

	txs, err := f.transactions.ListByReservation(ctx, res.ID)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, 5.0, txs[0].Amount)

	assert.Equal(t, []string{
		models.EventTypeReservationCreated,
		models.EventTypeReservationCompleted,
		models.EventTypePaymentCompleted,
	}, f.publisher.eventTypes())

	f.assertNoDrift(t)
}

func TestReserveExhaustedMutatesNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, station("S", 1, 0.25))

	_, err := f.booking.Reserve(ctx, "u1", "S")
	require.NoError(t, err)

	_, err = f.booking.Reserve(ctx, "u2", "S")
	assert.ErrorIs(t, err, models.ErrNoPortsAvailable)
	assert.ErrorIs(t, err, models.ErrConflict)

	assert.Equal(t, 0, f.available(t, "S"))
	list, err := f.booking.ListReservations(ctx, "u2")
	require.NoError(t, err)
	assert.Empty(t, list)
	f.assertNoDrift(t)
}

func TestReserveRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, station("S", 1, 0.25))

	_, err := f.booking.Reserve(ctx, "", "S")
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = f.booking.Reserve(ctx, "u1", " ")
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = f.booking.Reserve(ctx, "u1", "missing")
	assert.ErrorIs(t, err, models.ErrStationNotFound)

	require.NoError(t, f.stations.SetOffline(ctx, "S", true))
	_, err = f.booking.Reserve(ctx, "u1", "S")
	assert.ErrorIs(t, err, models.ErrStationOffline)

	assert.Equal(t, 1, f.available(t, "S"))
}

type failingLedger struct {
	ReservationLedger
	failCreate   bool
	failComplete bool
}

func (l *failingLedger) Create(ctx context.Context, userID, stationID string, port int) (*models.Reservation, error) {
	if l.failCreate {
		return nil, errors.New("ledger unavailable")
	}
	return l.ReservationLedger.Create(ctx, userID, stationID, port)
}

func (l *failingLedger) MarkCompleted(ctx context.Context, reservationID string) error {
	if l.failComplete {
		return errors.New("ledger unavailable")
	}
	return l.ReservationLedger.MarkCompleted(ctx, reservationID)
}

func TestReserveReleasesSlotWhenLedgerFails(t *testing.T) {
	f := newFixtureWithLedger(t, func(l ReservationLedger) ReservationLedger {
		return &failingLedger{ReservationLedger: l, failCreate: true}
	}, station("S", 2, 0.25))

	_, err := f.booking.Reserve(context.Background(), "u1", "S")
	require.Error(t, err)
	assert.Equal(t, 2, f.available(t, "S"))
}

func TestSettleReleasesPortEvenIfCompletionFails(t *testing.T) {
	ctx := context.Background()
	f := newFixtureWithLedger(t, func(l ReservationLedger) ReservationLedger {
		return &failingLedger{ReservationLedger: l, failComplete: true}
	}, station("S", 1, 0.25))

	res, err := f.booking.Reserve(ctx, "u1", "S")
	require.NoError(t, err)

	tx, err := f.booking.Pay(ctx, payReq(res.ID, "u1", 3))
	require.NoError(t, err)
	assert.NotEmpty(t, tx.ID)
	assert.Equal(t, 1, f.available(t, "S"))

	// The payment record is the source of truth; a retry cannot charge twice.
	_, err = f.booking.Pay(ctx, payReq(res.ID, "u1", 3))
	assert.ErrorIs(t, err, models.ErrAlreadySettled)
}

func TestPayTwiceFailsAlreadySettled(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, station("S", 2, 0.25))

	res, err := f.booking.Reserve(ctx, "u1", "S")
	require.NoError(t, err)

	_, err = f.booking.Pay(ctx, payReq(res.ID, "u1", 5))
	require.NoError(t, err)

	_, err = f.booking.Pay(ctx, payReq(res.ID, "u1", 5))
	assert.ErrorIs(t, err, models.ErrAlreadySettled)

	txs, err := f.transactions.ListByReservation(ctx, res.ID)
	require.NoError(t, err)
	assert.Len(t, txs, 1)
	assert.Equal(t, 2, f.available(t, "S"))
}

func TestPayConcurrentSingleSettlement(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, station("S", 3, 0.25))

	res, err := f.booking.Reserve(ctx, "u1", "S")
	require.NoError(t, err)

	const callers = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		settled   int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.booking.Pay(ctx, payReq(res.ID, "u1", 5))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, models.ErrAlreadySettled):
				settled++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, callers-1, settled)
	assert.Equal(t, 3, f.available(t, "S"))

	txs, err := f.transactions.ListByReservation(ctx, res.ID)
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func TestPayForeignReservationMutatesNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, station("S", 1, 0.25))

	res, err := f.booking.Reserve(ctx, "u1", "S")
	require.NoError(t, err)

	_, err = f.booking.Pay(ctx, payReq(res.ID, "intruder", 5))
	assert.ErrorIs(t, err, models.ErrNotAuthorized)

	got, err := f.ledger.Get(ctx, res.ID)
	require.NoError(t, err)
	assert.True(t, got.IsPending())
	assert.Equal(t, 0, f.available(t, "S"))

	txs, err := f.transactions.ListByReservation(ctx, res.ID)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestPayValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, station("S", 1, 0.25))

	res, err := f.booking.Reserve(ctx, "u1", "S")
	require.NoError(t, err)

	_, err = f.booking.Pay(ctx, payReq("missing", "u1", 5))
	assert.ErrorIs(t, err, models.ErrReservationNotFound)

	_, err = f.booking.Pay(ctx, payReq(res.ID, "u1", -1))
	assert.ErrorIs(t, err, models.ErrInvalidAmount)

	noDetails := payReq(res.ID, "u1", 5)
	noDetails.PaymentMethodDetails = nil
	_, err = f.booking.Pay(ctx, noDetails)
	assert.ErrorIs(t, err, models.ErrPaymentDeclined)

	_, err = f.booking.Pay(ctx, &PaymentRequest{ReservationID: res.ID, UserID: "u1", PaymentMethodDetails: json.RawMessage(`"tok"`)})
	assert.ErrorIs(t, err, models.ErrValidation)

	got, err := f.ledger.Get(ctx, res.ID)
	require.NoError(t, err)
	assert.True(t, got.IsPending())
	assert.Equal(t, 0, f.available(t, "S"))

	_, err = f.booking.Pay(ctx, payReq(res.ID, "u1", 0))
	assert.NoError(t, err)
}

func TestConcurrentReservationsNeverOverbook(t *testing.T) {
	ctx := context.Background()
	const (
		ports   = 5
		callers = 40
	)
	f := newFixture(t, station("S", ports, 0.25))

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
		seen      = map[int]bool{}
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.booking.Reserve(ctx, "u1", "S")
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if errors.Is(err, models.ErrConflict) {
					conflicts++
				}
				return
			}
			succeeded++
			seen[res.PortNumber] = true
		}()
	}
	wg.Wait()

	assert.Equal(t, ports, succeeded)
	assert.Equal(t, callers-ports, conflicts)
	assert.Len(t, seen, ports)
	assert.Equal(t, 0, f.available(t, "S"))
	f.assertNoDrift(t)
}

func TestMixedTrafficKeepsInvariant(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, station("A", 3, 0.25), station("B", 2, 0.30))

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			stationID := "A"
			if i%2 == 1 {
				stationID = "B"
			}
			res, err := f.booking.Reserve(ctx, "u1", stationID)
			if err != nil {
				return
			}
			if i%3 == 0 {
				_, _ = f.booking.Cancel(ctx, res.ID, "u1")
				return
			}
			_, _ = f.booking.Pay(ctx, payReq(res.ID, "u1", 1))
		}(i)
	}
	wg.Wait()

	for _, id := range []string{"A", "B"} {
		st, err := f.stations.Get(ctx, id)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, st.AvailablePorts, 0)
		assert.LessOrEqual(t, st.AvailablePorts, st.TotalPorts)
	}
	f.assertNoDrift(t)
}

func TestCancelReleasesPort(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, station("S", 1, 0.25))

	res, err := f.booking.Reserve(ctx, "u1", "S")
	require.NoError(t, err)

	_, err = f.booking.Cancel(ctx, res.ID, "u2")
	assert.ErrorIs(t, err, models.ErrReservationNotOwned)

	cancelled, err := f.booking.Cancel(ctx, res.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.ReservationStatusCancelled, cancelled.Status)
	assert.Equal(t, 1, f.available(t, "S"))

	_, err = f.booking.Cancel(ctx, res.ID, "u1")
	assert.ErrorIs(t, err, models.ErrAlreadySettled)

	_, err = f.booking.Pay(ctx, payReq(res.ID, "u1", 5))
	assert.ErrorIs(t, err, models.ErrAlreadySettled)
	assert.Equal(t, 1, f.available(t, "S"))
}

func TestEstimateAndPayEstimated(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, station("S", 1, 0.25))

	res, err := f.booking.Reserve(ctx, "u1", "S")
	require.NoError(t, err)

	est, err := f.booking.Estimate(ctx, res.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, DefaultEstimatedSessionKWh, est.EnergyKWh)
	assert.InDelta(t, 5.0, est.Amount, 1e-9)

	_, err = f.booking.PayEstimated(ctx, res.ID, "u1", "")
	assert.ErrorIs(t, err, models.ErrPaymentDeclined)

	tx, err := f.booking.PayEstimated(ctx, res.ID, "u1", "tok_visa")
	require.NoError(t, err)
	assert.InDelta(t, 5.0, tx.Amount, 1e-9)

	_, err = f.booking.Estimate(ctx, res.ID, "u1")
	assert.ErrorIs(t, err, models.ErrAlreadySettled)
}

func TestListReservationsLabelsStations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, station("S", 2, 0.25))

	first, err := f.booking.Reserve(ctx, "u1", "S")
	require.NoError(t, err)
	orphan, err := f.ledger.Create(ctx, "u1", "demolished", 1)
	require.NoError(t, err)

	list, err := f.booking.ListReservations(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, "Station S", list[0].StationName)
	assert.Equal(t, orphan.ID, list[1].ID)
	assert.Equal(t, UnknownStationName, list[1].StationName)
}

func TestGetTransactionOwnerOnly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, station("S", 1, 0.25))

	res, err := f.booking.Reserve(ctx, "u1", "S")
	require.NoError(t, err)
	tx, err := f.booking.Pay(ctx, payReq(res.ID, "u1", 5))
	require.NoError(t, err)

	got, err := f.booking.GetTransaction(ctx, tx.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, tx.ID, got.ID)

	_, err = f.booking.GetTransaction(ctx, tx.ID, "u2")
	assert.ErrorIs(t, err, models.ErrTransactionNotFound)

	failed := &models.Transaction{UserID: "u1", ReservationID: res.ID, Status: models.TransactionStatusFailed}
	require.NoError(t, f.transactions.Create(ctx, failed))
	_, err = f.booking.GetTransaction(ctx, failed.ID, "u1")
	assert.ErrorIs(t, err, models.ErrTransactionNotFound)
}

func TestReconcilerReportsDrift(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, station("S", 2, 0.25))

	// A reservation recorded without taking a port.
	_, err := f.ledger.Create(ctx, "u1", "S", 1)
	require.NoError(t, err)

	drift, err := NewReconciler(f.stations, f.ledger).Check(ctx)
	require.NoError(t, err)
	require.Len(t, drift, 1)
	assert.Equal(t, "S", drift[0].StationID)
	assert.Equal(t, 1, drift[0].Pending)
	assert.Equal(t, 1, drift[0].Drift)
}

func TestSeedStationsIsIdempotent(t *testing.T) {
	ctx := context.Background()
	registry := memstore.NewStations()

	added, err := SeedStations(ctx, registry, DefaultStations())
	require.NoError(t, err)
	assert.Equal(t, 3, added)

	added, err = SeedStations(ctx, registry, DefaultStations())
	require.NoError(t, err)
	assert.Zero(t, added)

	list, err := registry.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	for _, st := range list {
		assert.Equal(t, st.TotalPorts, st.AvailablePorts)
	}
}

func TestKeyedMutexSerializesAndCleansUp(t *testing.T) {
	ctx := context.Background()
	k := NewKeyedMutex()

	var (
		wg      sync.WaitGroup
		counter int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := k.Lock(ctx, "r1")
			require.NoError(t, err)
			counter++
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
	assert.Zero(t, k.size())
}

func TestDefaultStationsCatalog(t *testing.T) {
	stations := DefaultStations()
	require.Len(t, stations, 3)

	ids := make([]string, len(stations))
	for i, st := range stations {
		ids[i] = st.ID
	}
	assert.Equal(t, []string{"station_001", "station_002", "station_003"}, ids)

	assert.Equal(t, "Green Charge Hub - Kolkata", stations[0].Name)
	assert.Equal(t, 8, stations[0].TotalPorts)
	assert.Equal(t, 0.25, stations[0].CostPerKWh)
	assert.Equal(t, 4, stations[1].TotalPorts)
	assert.Equal(t, 0.30, stations[1].CostPerKWh)
	assert.Equal(t, 6, stations[2].TotalPorts)
	assert.Equal(t, 0.28, stations[2].CostPerKWh)
}

func TestPaymentTokenFromDetails(t *testing.T) {
	cases := []struct {
		name    string
		details string
		want    string
	}{
		{"absent", ``, ""},
		{"null", `null`, ""},
		{"empty string", `""`, ""},
		{"empty object", `{}`, ""},
		{"empty array", `[]`, ""},
		{"string token", `"tok_visa"`, "tok_visa"},
		{"gateway object", `{"token":"tok_visa","brand":"visa"}`, "tok_visa"},
		{"object without token", `{"card":"4242"}`, `{"card":"4242"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := &PaymentRequest{PaymentMethodDetails: json.RawMessage(tc.details)}
			assert.Equal(t, tc.want, req.PaymentToken())
		})
	}
}

func TestPayWithEmptyDetailsIsDeclined(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, station("S", 1, 0.25))

	res, err := f.booking.Reserve(ctx, "u1", "S")
	require.NoError(t, err)

	for _, details := range []string{`null`, `""`, `{}`} {
		req := payReq(res.ID, "u1", 5)
		req.PaymentMethodDetails = json.RawMessage(details)
		_, err := f.booking.Pay(ctx, req)
		assert.ErrorIs(t, err, models.ErrPaymentDeclined, details)
	}

	req := payReq(res.ID, "u1", 5)
	req.PaymentMethodDetails = json.RawMessage(`{"token":"tok_visa"}`)
	_, err = f.booking.Pay(ctx, req)
	assert.NoError(t, err)
}
