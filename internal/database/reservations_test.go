package database

import (
	"context"
	"errors"
	"testing"

	"rentbook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReservationsCRUD(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	seedListing(t, db, "loft", "host", 100)

	daily := dailyReservation("r1", "loft", "guest", jan(10), jan(15))
	daily.HasLateCheckout = true
	require.NoError(t, db.CreateReservationChecked(ctx, daily, nil))
	assert.False(t, daily.CreatedAt.IsZero())

	hourly := hourlyReservation("r2", "loft", "guest", jan(20), 10, 14)
	hourly.IdempotencyKey = "key-1"
	require.NoError(t, db.CreateReservationChecked(ctx, hourly, nil))

	t.Run("List", func(t *testing.T) {
		list, err := db.ListReservations(ctx, "loft")
		require.NoError(t, err)
		require.Len(t, list, 2)

		assert.Equal(t, "r1", list[0].ID)
		assert.Equal(t, models.BookingDaily, list[0].BookingType)
		assert.Equal(t, jan(10), list[0].StartDate)
		assert.Equal(t, jan(15), list[0].EndDate)
		assert.Nil(t, list[0].StartHour)
		assert.True(t, list[0].HasLateCheckout)

		assert.Equal(t, "r2", list[1].ID)
		require.True(t, list[1].HasHours())
		assert.Equal(t, 10, *list[1].StartHour)
		assert.Equal(t, 14, *list[1].EndHour)
		assert.Equal(t, "key-1", list[1].IdempotencyKey)
	})

	t.Run("Get", func(t *testing.T) {
		r, err := db.GetReservation(ctx, "r2")
		require.NoError(t, err)
		assert.Equal(t, int64(24), r.TotalPrice)

		_, err = db.GetReservation(ctx, "nope")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("ByIdempotencyKey", func(t *testing.T) {
		r, err := db.GetReservationByIdempotencyKey(ctx, "key-1")
		require.NoError(t, err)
		assert.Equal(t, "r2", r.ID)

		_, err = db.GetReservationByIdempotencyKey(ctx, "key-2")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("DuplicateIdempotencyKey", func(t *testing.T) {
		dup := hourlyReservation("r3", "loft", "guest", jan(21), 10, 14)
		dup.IdempotencyKey = "key-1"
		err := db.CreateReservationChecked(ctx, dup, nil)
		assert.ErrorIs(t, err, ErrDuplicateKey)
	})

	t.Run("InRange", func(t *testing.T) {
		list, err := db.ListReservationsInRange(ctx, "loft", jan(15), jan(19))
		require.NoError(t, err)
		assert.Empty(t, list, "checkout day is not occupied")

		list, err = db.ListReservationsInRange(ctx, "loft", jan(14), jan(20))
		require.NoError(t, err)
		assert.Len(t, list, 2)

		list, err = db.ListReservationsInRange(ctx, "loft", jan(20), jan(20))
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "r2", list[0].ID)
	})
}

func TestCreateReservationChecked_RecheckAborts(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	seedListing(t, db, "loft", "host", 100)
	require.NoError(t, db.CreateReservationChecked(ctx, dailyReservation("r1", "loft", "g", jan(1), jan(3)), nil))

	errTaken := errors.New("taken")
	var seen []models.Reservation
	err := db.CreateReservationChecked(ctx, dailyReservation("r2", "loft", "g", jan(2), jan(4)),
		func(existing []models.Reservation) error {
			seen = existing
			return errTaken
		})
	assert.Same(t, errTaken, err)
	require.Len(t, seen, 1)
	assert.Equal(t, "r1", seen[0].ID)

	_, err = db.GetReservation(ctx, "r2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateReservationChecked_KeyBoundBeforeRecheck(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	seedListing(t, db, "loft", "host", 100)

	first := dailyReservation("r1", "loft", "g", jan(1), jan(3))
	first.IdempotencyKey = "dbl-click"
	require.NoError(t, db.CreateReservationChecked(ctx, first, nil))

	retry := dailyReservation("r2", "loft", "g", jan(1), jan(3))
	retry.IdempotencyKey = "dbl-click"
	rechecked := false
	err := db.CreateReservationChecked(ctx, retry, func([]models.Reservation) error {
		rechecked = true
		return errors.New("conflict")
	})

	assert.ErrorIs(t, err, ErrDuplicateKey)
	var dup *DuplicateKeyError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "r1", dup.Reservation.ID)
	assert.False(t, rechecked)
}

func TestCreateReservation_SchemaRejectsMalformed(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	seedListing(t, db, "loft", "host", 100)

	t.Run("DailyWithoutNights", func(t *testing.T) {
		err := db.CreateReservationChecked(ctx, dailyReservation("x1", "loft", "g", jan(5), jan(5)), nil)
		assert.Error(t, err)
	})

	t.Run("HourlyWithoutHours", func(t *testing.T) {
		r := hourlyReservation("x2", "loft", "g", jan(5), 10, 14)
		r.EndHour = nil
		assert.Error(t, db.CreateReservationChecked(ctx, r, nil))
	})

	t.Run("UnknownListing", func(t *testing.T) {
		err := db.CreateReservationChecked(ctx, dailyReservation("x3", "ghost", "g", jan(5), jan(6)), nil)
		assert.Error(t, err)
	})
}

func TestDeleteReservation(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	seedListing(t, db, "loft", "host", 100)

	for _, r := range []*models.Reservation{
		dailyReservation("r1", "loft", "guest", jan(1), jan(3)),
		dailyReservation("r2", "loft", "guest", jan(5), jan(7)),
	} {
		require.NoError(t, db.CreateReservationChecked(ctx, r, nil))
	}

	t.Run("Stranger", func(t *testing.T) {
		assert.ErrorIs(t, db.DeleteReservation(ctx, "r1", "stranger"), ErrForbidden)
	})

	t.Run("ReservationOwner", func(t *testing.T) {
		require.NoError(t, db.DeleteReservation(ctx, "r1", "guest"))
		_, err := db.GetReservation(ctx, "r1")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("ListingOwner", func(t *testing.T) {
		require.NoError(t, db.DeleteReservation(ctx, "r2", "host"))
	})

	t.Run("Missing", func(t *testing.T) {
		assert.ErrorIs(t, db.DeleteReservation(ctx, "r1", "guest"), ErrNotFound)
	})
}
