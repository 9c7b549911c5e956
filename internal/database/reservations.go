package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"rentbook/internal/interval"
	"rentbook/internal/models"
)

// RecheckFunc validates a new reservation against the listing's current reservations.
// A non-nil error aborts the insert and is returned to the caller unchanged.
type RecheckFunc func(existing []models.Reservation) error

const reservationColumns = `id, listing_id, user_id, booking_type, start_date, end_date,
                 start_hour, end_hour, total_price, has_late_checkout, idempotency_key, created_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanReservation(row rowScanner) (*models.Reservation, error) {
	var (
		r                  models.Reservation
		bookingType        string
		startDate, endDate string
		startHour, endHour sql.NullInt64
		idempotencyKey     sql.NullString
	)
	err := row.Scan(
		&r.ID, &r.ListingID, &r.UserID, &bookingType, &startDate, &endDate,
		&startHour, &endHour, &r.TotalPrice, &r.HasLateCheckout, &idempotencyKey, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	r.BookingType = models.BookingType(bookingType)
	if r.StartDate, err = time.Parse(interval.DateLayout, startDate); err != nil {
		return nil, fmt.Errorf("failed to parse start date %s: %w", startDate, err)
	}
	if r.EndDate, err = time.Parse(interval.DateLayout, endDate); err != nil {
		return nil, fmt.Errorf("failed to parse end date %s: %w", endDate, err)
	}
	if startHour.Valid {
		r.StartHour = models.Hour(int(startHour.Int64))
	}
	if endHour.Valid {
		r.EndHour = models.Hour(int(endHour.Int64))
	}
	r.IdempotencyKey = idempotencyKey.String
	return &r, nil
}

func listReservations(ctx context.Context, q querier, listingID string) ([]models.Reservation, error) {
	query := `SELECT ` + reservationColumns + `
              FROM reservations WHERE listing_id = ? ORDER BY start_date ASC, start_hour ASC`
	rows, err := q.QueryContext(ctx, query, listingID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reservations: %w", err)
	}
	defer rows.Close()

	var reservations []models.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		reservations = append(reservations, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate reservations: %w", err)
	}
	return reservations, nil
}

// ListReservations returns every reservation of a listing ordered by date.
func (db *DB) ListReservations(ctx context.Context, listingID string) ([]models.Reservation, error) {
	return listReservations(ctx, db.DB, listingID)
}

// ListReservationsInRange returns reservations of a listing that occupy any day in [from, to].
func (db *DB) ListReservationsInRange(ctx context.Context, listingID string, from, to time.Time) ([]models.Reservation, error) {
	query := `SELECT ` + reservationColumns + `
              FROM reservations
              WHERE listing_id = ? AND start_date <= ? AND (end_date > ? OR (booking_type = 'hourly' AND end_date = ?))
              ORDER BY start_date ASC, start_hour ASC`
	fromKey, toKey := interval.DayKey(from), interval.DayKey(to)
	rows, err := db.QueryContext(ctx, query, listingID, toKey, fromKey, fromKey)
	if err != nil {
		return nil, fmt.Errorf("failed to list reservations in range: %w", err)
	}
	defer rows.Close()

	var reservations []models.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		reservations = append(reservations, *r)
	}
	return reservations, rows.Err()
}

func (db *DB) GetReservation(ctx context.Context, id string) (*models.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = ?`
	r, err := scanReservation(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("reservation %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reservation: %w", err)
	}
	return r, nil
}

func (db *DB) GetReservationByIdempotencyKey(ctx context.Context, key string) (*models.Reservation, error) {
	return reservationByKey(ctx, db, key)
}

func reservationByKey(ctx context.Context, q querier, key string) (*models.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE idempotency_key = ?`
	r, err := scanReservation(q.QueryRowContext(ctx, query, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("idempotency key %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reservation by idempotency key: %w", err)
	}
	return r, nil
}

// CreateReservationChecked inserts r after running recheck against the listing's
// reservations inside the same write transaction. The transaction holds the
// database write lock from BEGIN, so no other reservation can slip in between.
// A key already bound to a stored reservation yields *DuplicateKeyError before
// recheck runs, since that reservation would conflict with its own retry.
func (db *DB) CreateReservationChecked(ctx context.Context, r *models.Reservation, recheck RecheckFunc) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if r.IdempotencyKey != "" {
		prior, err := reservationByKey(ctx, tx, r.IdempotencyKey)
		switch {
		case err == nil:
			return &DuplicateKeyError{Reservation: prior}
		case !errors.Is(err, ErrNotFound):
			return fmt.Errorf("failed to look up idempotency key in tx: %w", err)
		}
	}

	if recheck != nil {
		existing, err := listReservations(ctx, tx, r.ListingID)
		if err != nil {
			return fmt.Errorf("failed to load reservations in tx: %w", err)
		}
		if err := recheck(existing); err != nil {
			return err
		}
	}

	queryInsert := `INSERT INTO reservations (
                id, listing_id, user_id, booking_type, start_date, end_date,
                start_hour, end_hour, total_price, has_late_checkout, idempotency_key, created_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, queryInsert,
		r.ID,
		r.ListingID,
		r.UserID,
		string(r.BookingType),
		interval.DayKey(r.StartDate),
		interval.DayKey(r.EndDate),
		nullableHour(r.StartHour),
		nullableHour(r.EndHour),
		r.TotalPrice,
		r.HasLateCheckout,
		sql.NullString{String: r.IdempotencyKey, Valid: r.IdempotencyKey != ""},
		now,
	)
	if err != nil {
		if r.IdempotencyKey != "" && isUniqueViolation(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("failed to insert reservation in tx: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit reservation: %w", err)
	}
	r.CreatedAt = now
	return nil
}

// DeleteReservation removes a reservation when requesterID owns it or owns its listing.
func (db *DB) DeleteReservation(ctx context.Context, id, requesterID string) error {
	query := `DELETE FROM reservations
              WHERE id = ? AND (user_id = ? OR listing_id IN (SELECT id FROM listings WHERE owner_id = ?))`
	result, err := db.ExecContext(ctx, query, id, requesterID, requesterID)
	if err != nil {
		return fmt.Errorf("failed to delete reservation: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows > 0 {
		return nil
	}

	var exists int
	err = db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reservations WHERE id = ?`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check reservation: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("reservation %s: %w", id, ErrNotFound)
	}
	return ErrForbidden
}

func nullableHour(h *int) sql.NullInt64 {
	if h == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*h), Valid: true}
}
