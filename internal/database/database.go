package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"rentbook/internal/models"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("requester may not modify this reservation")
	ErrDuplicateKey = errors.New("idempotency key already used")
)

// DuplicateKeyError carries the reservation already stored under the key.
type DuplicateKeyError struct {
	Reservation *models.Reservation
}

func (e *DuplicateKeyError) Error() string { return ErrDuplicateKey.Error() }

func (e *DuplicateKeyError) Unwrap() error { return ErrDuplicateKey }

const memoryPath = ":memory:"

type DB struct {
	*sql.DB
	path   string
	logger *zerolog.Logger

	mu            sync.RWMutex
	listingsCache map[string]*models.Listing
}

// NewDB opens (or creates) the sqlite database at path and applies the schema.
// Write transactions take the database lock on BEGIN, so a reservation check and
// its insert can't interleave with another writer.
func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if path != memoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if path == memoryPath {
		// every connection to :memory: is a separate database
		sqlDB.SetMaxOpenConns(1)
	}

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("Database initialized")

	return &DB{
		DB:            sqlDB,
		path:          path,
		logger:        logger,
		listingsCache: make(map[string]*models.Listing),
	}, nil
}

func dsn(path string) string {
	params := []string{"_txlock=immediate", "_busy_timeout=5000", "_foreign_keys=on"}
	if path != memoryPath {
		params = append(params, "_journal_mode=WAL")
	}
	return path + "?" + strings.Join(params, "&")
}

// Path returns the file the database was opened from.
func (db *DB) Path() string {
	return db.path
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS listings (
            id TEXT PRIMARY KEY,
            owner_id TEXT NOT NULL,
            title TEXT NOT NULL DEFAULT '',
            price INTEGER NOT NULL CHECK (price >= 0),
            host_chat_id INTEGER NOT NULL DEFAULT 0,
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS reservations (
            id TEXT PRIMARY KEY,
            listing_id TEXT NOT NULL REFERENCES listings(id),
            user_id TEXT NOT NULL,
            booking_type TEXT NOT NULL CHECK (booking_type IN ('daily', 'hourly')),
            start_date TEXT NOT NULL,
            end_date TEXT NOT NULL,
            start_hour INTEGER,
            end_hour INTEGER,
            total_price INTEGER NOT NULL CHECK (total_price >= 0),
            has_late_checkout BOOLEAN NOT NULL DEFAULT 0,
            idempotency_key TEXT UNIQUE,
            created_at DATETIME NOT NULL,
            CHECK (
                (booking_type = 'daily' AND start_hour IS NULL AND end_hour IS NULL AND end_date > start_date)
                OR
                (booking_type = 'hourly' AND start_hour IS NOT NULL AND end_hour IS NOT NULL
                    AND end_date = start_date AND end_hour > start_hour)
            )
        )`,
		`CREATE TABLE IF NOT EXISTS sync_queue (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            task_type TEXT NOT NULL,
            reservation_id TEXT NOT NULL,
            payload TEXT,
            status TEXT NOT NULL DEFAULT 'pending',
            retry_count INTEGER NOT NULL DEFAULT 0,
            last_error TEXT,
            created_at DATETIME NOT NULL,
            processed_at DATETIME,
            next_retry_at DATETIME
        )`,

		`CREATE INDEX IF NOT EXISTS idx_reservations_listing_dates ON reservations(listing_id, start_date, end_date)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_user_id ON reservations(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_queue_status ON sync_queue(status, next_retry_at)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
