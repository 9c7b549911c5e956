package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"rentbook/internal/models"
)

// UpsertListing creates the listing or updates its owner, title, price and host chat.
func (db *DB) UpsertListing(ctx context.Context, listing *models.Listing) error {
	query := `INSERT INTO listings (id, owner_id, title, price, host_chat_id, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?)
              ON CONFLICT(id) DO UPDATE SET
                owner_id = excluded.owner_id,
                title = excluded.title,
                price = excluded.price,
                host_chat_id = excluded.host_chat_id,
                updated_at = excluded.updated_at`
	now := time.Now()
	_, err := db.ExecContext(ctx, query,
		listing.ID,
		listing.OwnerID,
		listing.Title,
		listing.Price,
		listing.HostChatID,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert listing %s: %w", listing.ID, err)
	}

	db.mu.Lock()
	delete(db.listingsCache, listing.ID)
	db.mu.Unlock()
	return nil
}

// SyncListings upserts a whole catalog in one transaction.
func (db *DB) SyncListings(ctx context.Context, listings []models.Listing) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `INSERT INTO listings (id, owner_id, title, price, host_chat_id, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?)
              ON CONFLICT(id) DO UPDATE SET
                owner_id = excluded.owner_id,
                title = excluded.title,
                price = excluded.price,
                host_chat_id = excluded.host_chat_id,
                updated_at = excluded.updated_at`
	now := time.Now()
	for i := range listings {
		l := &listings[i]
		if _, err := tx.ExecContext(ctx, query, l.ID, l.OwnerID, l.Title, l.Price, l.HostChatID, now, now); err != nil {
			return fmt.Errorf("failed to sync listing %s: %w", l.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit listings: %w", err)
	}

	db.mu.Lock()
	db.listingsCache = make(map[string]*models.Listing)
	db.mu.Unlock()

	db.logger.Info().Int("count", len(listings)).Msg("Listings synced")
	return nil
}

func (db *DB) GetListing(ctx context.Context, id string) (*models.Listing, error) {
	db.mu.RLock()
	cached, ok := db.listingsCache[id]
	db.mu.RUnlock()
	if ok {
		l := *cached
		return &l, nil
	}

	query := `SELECT id, owner_id, title, price, host_chat_id, created_at, updated_at FROM listings WHERE id = ?`
	var l models.Listing
	err := db.QueryRowContext(ctx, query, id).Scan(
		&l.ID, &l.OwnerID, &l.Title, &l.Price, &l.HostChatID, &l.CreatedAt, &l.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("listing %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}

	db.mu.Lock()
	stored := l
	db.listingsCache[id] = &stored
	db.mu.Unlock()

	return &l, nil
}

func (db *DB) ListListings(ctx context.Context) ([]*models.Listing, error) {
	query := `SELECT id, owner_id, title, price, host_chat_id, created_at, updated_at FROM listings ORDER BY id`
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list listings: %w", err)
	}
	defer rows.Close()

	var listings []*models.Listing
	for rows.Next() {
		l := &models.Listing{}
		if err := rows.Scan(&l.ID, &l.OwnerID, &l.Title, &l.Price, &l.HostChatID, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}
