package database

import (
	"context"
	"io"
	"os"
	"testing"
	"time"

	"rentbook/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestDB_ErrorPaths(t *testing.T) {
	logger := zerolog.New(io.Discard)
	db, err := NewDB(":memory:", &logger)
	assert.NoError(t, err)
	db.Close() // Close the DB to trigger errors

	ctx := context.Background()

	t.Run("GetListing_Error", func(t *testing.T) {
		_, err := db.GetListing(ctx, "loft")
		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrNotFound)
	})

	t.Run("ListReservations_Error", func(t *testing.T) {
		_, err := db.ListReservations(ctx, "loft")
		assert.Error(t, err)
	})

	t.Run("ListReservationsInRange_Error", func(t *testing.T) {
		_, err := db.ListReservationsInRange(ctx, "loft", time.Now(), time.Now())
		assert.Error(t, err)
	})

	t.Run("CreateReservationChecked_Error", func(t *testing.T) {
		err := db.CreateReservationChecked(ctx, &models.Reservation{}, nil)
		assert.Error(t, err)
	})

	t.Run("DeleteReservation_Error", func(t *testing.T) {
		err := db.DeleteReservation(ctx, "r1", "u1")
		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrNotFound)
	})

	t.Run("SyncListings_Error", func(t *testing.T) {
		err := db.SyncListings(ctx, []models.Listing{})
		assert.Error(t, err)
	})

	t.Run("CreateSyncTask_Error", func(t *testing.T) {
		err := db.CreateSyncTask(ctx, &models.SyncTask{})
		assert.Error(t, err)
	})
}

func TestNewDB_Error(t *testing.T) {
	tmpDir, _ := os.MkdirTemp("", "db_err")
	defer os.RemoveAll(tmpDir)

	logger := zerolog.New(io.Discard)
	_, err := NewDB(tmpDir, &logger)
	assert.Error(t, err)
}
