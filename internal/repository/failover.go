package repository

import (
	"context"
	"sync/atomic"
	"time"

	"rentbook/internal/domain"
	"rentbook/internal/metrics"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverIdempotencyStore uses primary until it fails, then serves from fallback
// and retries primary once per recoveryInterval.
type FailoverIdempotencyStore struct {
	primary   domain.IdempotencyStore
	fallback  domain.IdempotencyStore
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
	now       func() time.Time
}

func NewFailoverIdempotencyStore(primary, fallback domain.IdempotencyStore, logger *zerolog.Logger) *FailoverIdempotencyStore {
	return &FailoverIdempotencyStore{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		now:      time.Now,
	}
}

func (r *FailoverIdempotencyStore) markDown(err error) {
	if !r.isDown.Swap(true) {
		r.logger.Error().Err(err).Msg("Primary idempotency store failed, falling back to memory")
		metrics.SetIdempotencyStoreDown(true)
	}
	r.lastCheck.Store(r.now().UnixNano())
}

func (r *FailoverIdempotencyStore) markUp() {
	if r.isDown.Swap(false) {
		r.logger.Info().Msg("Primary idempotency store recovered")
		metrics.SetIdempotencyStoreDown(false)
	}
}

// usePrimary reports whether the next call should try primary.
func (r *FailoverIdempotencyStore) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	return r.now().Sub(time.Unix(0, r.lastCheck.Load())) > recoveryInterval
}

func (r *FailoverIdempotencyStore) Lookup(ctx context.Context, key string) (string, bool, error) {
	if r.usePrimary() {
		id, found, err := r.primary.Lookup(ctx, key)
		if err == nil {
			r.markUp()
			if found {
				return id, true, nil
			}
			// keys remembered during an outage live only in fallback
			return r.fallback.Lookup(ctx, key)
		}
		r.markDown(err)
	}
	return r.fallback.Lookup(ctx, key)
}

func (r *FailoverIdempotencyStore) Remember(ctx context.Context, key, reservationID string, ttl time.Duration) error {
	if r.usePrimary() {
		err := r.primary.Remember(ctx, key, reservationID, ttl)
		if err == nil {
			r.markUp()
			return nil
		}
		r.markDown(err)
	}
	return r.fallback.Remember(ctx, key, reservationID, ttl)
}

func (r *FailoverIdempotencyStore) Forget(ctx context.Context, key string) error {
	if r.usePrimary() {
		err := r.primary.Forget(ctx, key)
		if err == nil {
			r.markUp()
			return r.fallback.Forget(ctx, key)
		}
		r.markDown(err)
	}
	return r.fallback.Forget(ctx, key)
}
