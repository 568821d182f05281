package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"booking-service/internal/models"
)

const bookingColumns = `id, user_id, entity_id, booking_type, start_date, end_date, total_price,
	status, payment_session_id, is_paid, is_deleted, created_at, updated_at`

// MutateFunc edits a locked booking in place and reports whether it changed.
// Returning an error aborts the transaction.
type MutateFunc func(b *models.Booking) (bool, error)

// CreateBooking inserts a booking and fills in its id and timestamps
func (s *Store) CreateBooking(ctx context.Context, b *models.Booking) error {
	query := `
		INSERT INTO bookings (user_id, entity_id, booking_type, start_date, end_date, total_price, status, is_paid)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`

	row := s.db.QueryRowxContext(ctx, query,
		b.UserID, b.EntityID, b.BookingType, b.StartDate, b.EndDate, b.TotalPrice, b.Status, b.IsPaid)
	if err := row.Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return fmt.Errorf("failed to insert booking: %w", err)
	}
	return nil
}

// GetBookingByID retrieves a booking by ID, including soft-deleted rows
func (s *Store) GetBookingByID(ctx context.Context, id int64) (*models.Booking, error) {
	var b models.Booking
	err := s.db.GetContext(ctx, &b, "SELECT "+bookingColumns+" FROM bookings WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// SetPaymentSession records the gateway session id on a booking
func (s *Store) SetPaymentSession(ctx context.Context, id int64, sessionID string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE bookings SET payment_session_id = $1, updated_at = NOW() WHERE id = $2",
		sessionID, id)
	if err != nil {
		return fmt.Errorf("failed to store payment session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListActiveBookings returns bookings that are not deleted, cancelled or failed
func (s *Store) ListActiveBookings(ctx context.Context) ([]models.Booking, error) {
	bookings := []models.Booking{}
	err := s.db.SelectContext(ctx, &bookings,
		"SELECT "+bookingColumns+` FROM bookings
		WHERE NOT is_deleted AND status NOT IN ($1, $2)
		ORDER BY created_at DESC`,
		models.BookingStatusCancelled, models.BookingStatusFailed)
	return bookings, err
}

// LockBookingByID runs fn against the booking row held under FOR UPDATE
func (s *Store) LockBookingByID(ctx context.Context, id int64, fn MutateFunc) (*models.Booking, bool, error) {
	return s.mutateLocked(ctx, "SELECT "+bookingColumns+" FROM bookings WHERE id = $1 FOR UPDATE", id, fn)
}

// LockBookingBySession is LockBookingByID keyed by the gateway session id.
// Concurrent webhook deliveries for one session serialize here.
func (s *Store) LockBookingBySession(ctx context.Context, sessionID string, fn MutateFunc) (*models.Booking, bool, error) {
	if sessionID == "" {
		return nil, false, ErrNotFound
	}
	return s.mutateLocked(ctx, "SELECT "+bookingColumns+" FROM bookings WHERE payment_session_id = $1 FOR UPDATE", sessionID, fn)
}

func (s *Store) mutateLocked(ctx context.Context, query string, arg interface{}, fn MutateFunc) (*models.Booking, bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()

	var b models.Booking
	err = tx.GetContext(ctx, &b, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, ErrNotFound
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to lock booking: %w", err)
	}

	changed, err := fn(&b)
	if err != nil {
		return &b, false, err
	}
	if !changed {
		return &b, false, nil
	}

	b.UpdatedAt = time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		UPDATE bookings SET start_date = $1, end_date = $2, total_price = $3, status = $4,
			is_paid = $5, is_deleted = $6, updated_at = $7
		WHERE id = $8`,
		b.StartDate, b.EndDate, b.TotalPrice, b.Status, b.IsPaid, b.IsDeleted, b.UpdatedAt, b.ID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to update booking: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit booking update: %w", err)
	}
	return &b, true, nil
}
