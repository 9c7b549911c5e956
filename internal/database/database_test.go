package database

import (
	"context"
	"os"
	"testing"
	"time"

	"rentbook/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	logger := zerolog.New(os.Stdout)
	db, err := NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func seedListing(t *testing.T, db *DB, id, owner string, price int64) *models.Listing {
	t.Helper()
	l := &models.Listing{ID: id, OwnerID: owner, Title: "Listing " + id, Price: price}
	require.NoError(t, db.UpsertListing(context.Background(), l))
	return l
}

func jan(day int) time.Time {
	return time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC)
}

func dailyReservation(id, listingID, userID string, start, end time.Time) *models.Reservation {
	return &models.Reservation{
		ID: id, ListingID: listingID, UserID: userID, BookingType: models.BookingDaily,
		StartDate: start, EndDate: end, TotalPrice: 100,
	}
}

func hourlyReservation(id, listingID, userID string, day time.Time, start, end int) *models.Reservation {
	return &models.Reservation{
		ID: id, ListingID: listingID, UserID: userID, BookingType: models.BookingHourly,
		StartDate: day, EndDate: day, StartHour: models.Hour(start), EndHour: models.Hour(end), TotalPrice: 24,
	}
}
