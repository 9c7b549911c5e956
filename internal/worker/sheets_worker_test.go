package worker

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"rentbook/internal/database"
	"rentbook/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSheets struct {
	mu      sync.Mutex
	err     error
	upserts []string
	deletes []string
}

func (f *fakeSheets) UpsertReservation(_ context.Context, r *models.Reservation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.upserts = append(f.upserts, r.ID)
	return nil
}

func (f *fakeSheets) DeleteReservation(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.deletes = append(f.deletes, id)
	return nil
}

func (f *fakeSheets) upsertCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.upserts)
}

var testLogger = zerolog.New(io.Discard)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.NewDB(":memory:", &testLogger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testReservation(id string) *models.Reservation {
	return &models.Reservation{
		ID:          id,
		ListingID:   "loft",
		UserID:      "guest",
		BookingType: models.BookingDaily,
		StartDate:   time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
		EndDate:     time.Date(2024, 1, 12, 0, 0, 0, 0, time.UTC),
		TotalPrice:  220,
	}
}

func loadTaskStatus(t *testing.T, db *database.DB, id int64) (string, int, sql.NullTime) {
	t.Helper()
	var (
		status     string
		retryCount int
		nextRetry  sql.NullTime
	)
	err := db.QueryRow(`SELECT status, retry_count, next_retry_at FROM sync_queue WHERE id = ?`, id).
		Scan(&status, &retryCount, &nextRetry)
	require.NoError(t, err)
	return status, retryCount, nextRetry
}

func TestProcessTaskSuccess(t *testing.T) {
	db := newTestDB(t)
	sheets := &fakeSheets{}
	worker := NewSheetsWorker(db, sheets, nil, RetryPolicy{}, 0, &testLogger)
	ctx := context.Background()

	require.NoError(t, worker.EnqueueTask(ctx, models.SyncTaskUpsert, testReservation("r-1")))

	task, ok := worker.tryLocalQueue()
	require.True(t, ok, "expected task in local queue")
	assert.Equal(t, "r-1", task.ReservationID)
	worker.processTask(ctx, &task)

	status, retryCount, nextRetry := loadTaskStatus(t, db, task.ID)
	assert.Equal(t, models.SyncStatusCompleted, status)
	assert.Equal(t, 0, retryCount)
	assert.False(t, nextRetry.Valid)
	assert.Equal(t, []string{"r-1"}, sheets.upserts)
}

func TestProcessTaskDelete(t *testing.T) {
	db := newTestDB(t)
	sheets := &fakeSheets{}
	worker := NewSheetsWorker(db, sheets, nil, RetryPolicy{}, 0, &testLogger)
	ctx := context.Background()

	require.NoError(t, worker.EnqueueTask(ctx, models.SyncTaskDelete, testReservation("r-2")))
	task, ok := worker.tryLocalQueue()
	require.True(t, ok)
	assert.NotContains(t, task.Payload, `"reservation":`)

	worker.processTask(ctx, &task)
	assert.Equal(t, []string{"r-2"}, sheets.deletes)
}

func TestProcessTaskRetry(t *testing.T) {
	db := newTestDB(t)
	sheets := &fakeSheets{err: errors.New("boom")}
	worker := NewSheetsWorker(db, sheets, nil, RetryPolicy{MaxRetries: 3, InitialDelay: time.Minute}, 0, &testLogger)
	ctx := context.Background()

	require.NoError(t, worker.EnqueueTask(ctx, models.SyncTaskUpsert, testReservation("r-3")))
	task, ok := worker.tryLocalQueue()
	require.True(t, ok)
	worker.processTask(ctx, &task)

	status, retryCount, nextRetry := loadTaskStatus(t, db, task.ID)
	assert.Equal(t, models.SyncStatusRetry, status)
	assert.Equal(t, 1, retryCount)
	require.True(t, nextRetry.Valid)
	assert.True(t, nextRetry.Time.After(time.Now()))

	// not due yet
	pending, err := db.GetPendingSyncTasks(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestProcessTaskFailGoesToDeadLetter(t *testing.T) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()

	db := newTestDB(t)
	sheets := &fakeSheets{err: errors.New("fatal")}
	worker := NewSheetsWorker(db, sheets, client, RetryPolicy{MaxRetries: 1}, 0, &testLogger)
	ctx := context.Background()

	require.NoError(t, worker.EnqueueTask(ctx, models.SyncTaskUpsert, testReservation("r-4")))
	task, ok := worker.tryRedis(ctx)
	require.True(t, ok)
	worker.processTask(ctx, &task)

	status, _, _ := loadTaskStatus(t, db, task.ID)
	assert.Equal(t, models.SyncStatusFailed, status)

	dead, err := s.List(deadLetterKey)
	require.NoError(t, err)
	assert.Len(t, dead, 1)

	failed, err := db.GetFailedSyncTasks(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "r-4", failed[0].ReservationID)
}

func TestEnqueuePrefersRedis(t *testing.T) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()

	db := newTestDB(t)
	worker := NewSheetsWorker(db, &fakeSheets{}, client, RetryPolicy{}, 0, &testLogger)
	ctx := context.Background()

	require.NoError(t, worker.EnqueueTask(ctx, models.SyncTaskUpsert, testReservation("r-5")))

	queued, err := s.List(redisQueueKey)
	require.NoError(t, err)
	assert.Len(t, queued, 1)
	_, ok := worker.tryLocalQueue()
	assert.False(t, ok)

	task, ok := worker.tryRedis(ctx)
	require.True(t, ok)
	assert.Equal(t, "r-5", task.ReservationID)
	assert.NotZero(t, task.ID)

	t.Run("redis down falls back to memory", func(t *testing.T) {
		s.Close()
		require.NoError(t, worker.EnqueueTask(ctx, models.SyncTaskUpsert, testReservation("r-6")))
		task, ok := worker.tryLocalQueue()
		require.True(t, ok)
		assert.Equal(t, "r-6", task.ReservationID)
	})
}

func TestEnqueueValidation(t *testing.T) {
	worker := NewSheetsWorker(newTestDB(t), &fakeSheets{}, nil, RetryPolicy{}, 0, &testLogger)
	ctx := context.Background()

	assert.Error(t, worker.EnqueueTask(ctx, "", testReservation("r-1")))
	assert.Error(t, worker.EnqueueTask(ctx, models.SyncTaskUpsert, nil))
	assert.Error(t, worker.EnqueueTask(ctx, models.SyncTaskUpsert, &models.Reservation{}))
}

func TestHandleTask_Invalid(t *testing.T) {
	worker := NewSheetsWorker(newTestDB(t), &fakeSheets{}, nil, RetryPolicy{}, 0, &testLogger)
	ctx := context.Background()

	assert.Error(t, worker.handleTask(ctx, models.SyncTaskUpsert, taskPayload{ReservationID: "r-1"}))
	assert.Error(t, worker.handleTask(ctx, models.SyncTaskDelete, taskPayload{}))
	assert.Error(t, worker.handleTask(ctx, "rename", taskPayload{ReservationID: "r-1"}))
}

func TestProcessTask_BadPayload(t *testing.T) {
	db := newTestDB(t)
	worker := NewSheetsWorker(db, &fakeSheets{}, nil, RetryPolicy{}, 0, &testLogger)
	ctx := context.Background()

	task := models.SyncTask{TaskType: models.SyncTaskUpsert, ReservationID: "r-1", Payload: "{"}
	require.NoError(t, db.CreateSyncTask(ctx, &task))
	worker.processTask(ctx, &task)

	status, _, _ := loadTaskStatus(t, db, task.ID)
	assert.Equal(t, models.SyncStatusFailed, status)
}

func TestStart_DrainsPendingTasks(t *testing.T) {
	db := newTestDB(t)
	sheets := &fakeSheets{}
	worker := NewSheetsWorker(db, sheets, nil, RetryPolicy{}, 0, &testLogger)
	worker.pollInterval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		worker.Start(ctx)
		close(done)
	}()

	require.NoError(t, worker.EnqueueTask(ctx, models.SyncTaskUpsert, testReservation("r-7")))
	assert.Eventually(t, func() bool { return sheets.upsertCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}
