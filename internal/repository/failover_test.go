package repository

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Lookup(ctx context.Context, key string) (string, bool, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *mockStore) Remember(ctx context.Context, key, reservationID string, ttl time.Duration) error {
	args := m.Called(ctx, key, reservationID, ttl)
	return args.Error(0)
}

func (m *mockStore) Forget(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func TestFailoverIdempotencyStore(t *testing.T) {
	primary := new(mockStore)
	fallback := NewMemoryIdempotencyStore()
	logger := zerolog.New(io.Discard)
	store := NewFailoverIdempotencyStore(primary, fallback, &logger)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	t.Run("PrimarySuccess", func(t *testing.T) {
		primary.On("Lookup", ctx, "k1").Return("r1", true, nil).Once()

		id, found, err := store.Lookup(ctx, "k1")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "r1", id)
		primary.AssertExpectations(t)
	})

	t.Run("PrimaryFailFallbackServes", func(t *testing.T) {
		primary.On("Remember", ctx, "k2", "r2", time.Hour).Return(errors.New("conn refused")).Once()

		require.NoError(t, store.Remember(ctx, "k2", "r2", time.Hour))
		assert.True(t, store.isDown.Load())

		// primary is skipped while down
		id, found, err := store.Lookup(ctx, "k2")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "r2", id)
		primary.AssertExpectations(t)
	})

	t.Run("Recovery", func(t *testing.T) {
		now = now.Add(2 * time.Minute)
		primary.On("Lookup", ctx, "k2").Return("", false, nil).Once()

		id, found, err := store.Lookup(ctx, "k2")
		require.NoError(t, err)
		assert.True(t, found, "key remembered during the outage is still found")
		assert.Equal(t, "r2", id)
		assert.False(t, store.isDown.Load())
		primary.AssertExpectations(t)
	})

	t.Run("Forget", func(t *testing.T) {
		primary.On("Forget", ctx, "k2").Return(nil).Once()
		require.NoError(t, store.Forget(ctx, "k2"))

		_, found, _ := fallback.Lookup(ctx, "k2")
		assert.False(t, found)
		primary.AssertExpectations(t)
	})
}
