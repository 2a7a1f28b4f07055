package memstore

import (
	"context"
	"testing"

	"charging-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReservationsLifecycle(t *testing.T) {
	ctx := context.Background()
	r := NewReservations()

	res, err := r.Create(ctx, "u1", "s1", 1)
	require.NoError(t, err)
	assert.NotEmpty(t, res.ID)
	assert.Equal(t, models.ReservationStatusPending, res.Status)
	assert.Nil(t, res.EndTime)

	pending, err := r.CountPending(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, pending)

	require.NoError(t, r.MarkCompleted(ctx, res.ID))
	assert.ErrorIs(t, r.MarkCompleted(ctx, res.ID), models.ErrAlreadySettled)
	assert.ErrorIs(t, r.MarkCancelled(ctx, res.ID), models.ErrAlreadySettled)
	assert.ErrorIs(t, r.MarkCompleted(ctx, "missing"), models.ErrReservationNotFound)

	got, err := r.Get(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationStatusCompleted, got.Status)
	assert.NotNil(t, got.EndTime)

	pending, err = r.CountPending(ctx, "s1")
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestReservationsListByUser(t *testing.T) {
	ctx := context.Background()
	r := NewReservations()

	first, err := r.Create(ctx, "u1", "s1", 1)
	require.NoError(t, err)
	_, err = r.Create(ctx, "u2", "s1", 2)
	require.NoError(t, err)
	second, err := r.Create(ctx, "u1", "s2", 1)
	require.NoError(t, err)

	list, err := r.ListByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, second.ID, list[1].ID)

	list, err = r.ListByUser(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestReservationSnapshotsAreCopies(t *testing.T) {
	ctx := context.Background()
	r := NewReservations()

	res, err := r.Create(ctx, "u1", "s1", 1)
	require.NoError(t, err)
	res.Status = models.ReservationStatusCancelled

	got, err := r.Get(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationStatusPending, got.Status)
}

func TestTransactionsOneCompletedPerReservation(t *testing.T) {
	ctx := context.Background()
	txs := NewTransactions()

	tx := &models.Transaction{UserID: "u1", ReservationID: "r1", Amount: 5, Status: models.TransactionStatusCompleted}
	require.NoError(t, txs.Create(ctx, tx))
	assert.NotEmpty(t, tx.ID)
	assert.False(t, tx.Timestamp.IsZero())

	dup := &models.Transaction{UserID: "u1", ReservationID: "r1", Amount: 5, Status: models.TransactionStatusCompleted}
	assert.ErrorIs(t, txs.Create(ctx, dup), models.ErrAlreadySettled)

	failed := &models.Transaction{UserID: "u1", ReservationID: "r1", Amount: 5, Status: models.TransactionStatusFailed}
	require.NoError(t, txs.Create(ctx, failed))

	list, err := txs.ListByReservation(ctx, "r1")
	require.NoError(t, err)
	assert.Len(t, list, 2)

	got, err := txs.Get(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, 5.0, got.Amount)

	_, err = txs.Get(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrTransactionNotFound)
}

func TestAccountsUniquenessAndUpdate(t *testing.T) {
	ctx := context.Background()
	a := NewAccounts()

	alice := &models.User{Username: "alice", Email: "alice@example.com"}
	require.NoError(t, a.Create(ctx, alice))
	assert.NotEmpty(t, alice.ID)

	assert.ErrorIs(t, a.Create(ctx, &models.User{Username: "alice", Email: "other@example.com"}), models.ErrUserExists)
	assert.ErrorIs(t, a.Create(ctx, &models.User{Username: "bob", Email: "alice@example.com"}), models.ErrUserExists)

	bob := &models.User{Username: "bob", Email: "bob@example.com"}
	require.NoError(t, a.Create(ctx, bob))

	_, err := a.Update(ctx, bob.ID, func(u *models.User) error {
		u.Email = "alice@example.com"
		return nil
	})
	assert.ErrorIs(t, err, models.ErrUserExists)

	updated, err := a.Update(ctx, bob.ID, func(u *models.User) error {
		u.Email = "robert@example.com"
		u.Username = "ignored"
		u.Vehicles = append(u.Vehicles, models.Vehicle{Make: "Tata", Model: "Nexon EV", Year: "2023"})
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "bob", updated.Username)
	assert.Len(t, updated.Vehicles, 1)

	byName, err := a.GetByUsername(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, "robert@example.com", byName.Email)

	_, err = a.Get(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrUserNotFound)
}

func TestAccountsVehiclesNeverNil(t *testing.T) {
	ctx := context.Background()
	a := NewAccounts()

	user := &models.User{Username: "dave", Email: "dave@example.com"}
	require.NoError(t, a.Create(ctx, user))

	got, err := a.Get(ctx, user.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.Vehicles)
	assert.Empty(t, got.Vehicles)
}
