package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/codr1/courtslots/internal/availability"
	"github.com/codr1/courtslots/internal/schedule"
)

const (
	BookingStatusConfirmed = "confirmed"
	BookingStatusCancelled = "cancelled"
)

// ErrAlreadyCancelled is returned when cancelling a booking that is no longer confirmed.
var ErrAlreadyCancelled = errors.New("booking is already cancelled")

type Booking struct {
	ID            string
	CourtID       int64
	Date          schedule.Date
	Start         schedule.TimeOfDay
	End           schedule.TimeOfDay
	Price         schedule.Money
	PriceLabel    string
	Status        string
	CustomerEmail string
	ConfigVersion int64
	Refund        schedule.Money
	CreatedAt     time.Time
	CancelledAt   *time.Time
}

// ListConfirmed implements availability.BookingIndex.
func (db *DB) ListConfirmed(ctx context.Context, courtID int64, date schedule.Date) ([]availability.Interval, error) {
	rows, err := db.Queries.ListConfirmedBookings(ctx, courtID, date.String())
	if err != nil {
		return nil, fmt.Errorf("list confirmed bookings: %w", err)
	}
	intervals := make([]availability.Interval, 0, len(rows))
	for _, row := range rows {
		intervals = append(intervals, availability.Interval{
			Start: schedule.TimeOfDay(row.StartMinute),
			End:   schedule.TimeOfDay(row.EndMinute),
		})
	}
	return intervals, nil
}

// Commit implements availability.BookingStore. The overlap check and insert share one
// immediate transaction; the partial unique index rejects a second confirmed booking of the
// same start even if that check is bypassed. A claimed idempotency key is bound to the new
// booking in the same transaction.
func (db *DB) Commit(ctx context.Context, c availability.Commit) (string, error) {
	id := uuid.NewString()
	date := c.Date.String()
	err := db.RunInTx(ctx, func(tx *DB) error {
		overlapping, err := tx.Queries.CountOverlappingConfirmed(ctx, c.CourtID, date, int64(c.Start), int64(c.End))
		if err != nil {
			return fmt.Errorf("check overlapping bookings: %w", err)
		}
		if overlapping > 0 {
			return availability.ErrConflict
		}
		err = tx.Queries.InsertBooking(ctx, BookingRow{
			ID:            id,
			CourtID:       c.CourtID,
			BookingDate:   date,
			StartMinute:   int64(c.Start),
			EndMinute:     int64(c.End),
			PriceCents:    int64(c.Price),
			PriceLabel:    c.PriceLabel,
			CustomerEmail: c.CustomerEmail,
			ConfigVersion: c.ConfigVersion,
			CreatedAt:     c.CreatedAt.UTC(),
		})
		if err != nil {
			if isUniqueViolation(err) {
				return availability.ErrConflict
			}
			return fmt.Errorf("insert booking: %w", err)
		}
		if c.IdempotencyKey != "" {
			if _, err := tx.Queries.AttachIdempotencyBooking(ctx, c.IdempotencyScope, c.IdempotencyKey, id); err != nil {
				return fmt.Errorf("bind idempotency key: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// GetBooking loads a booking by id.
func (db *DB) GetBooking(ctx context.Context, id string) (Booking, error) {
	row, err := db.Queries.GetBooking(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Booking{}, availability.ErrNotFound
		}
		return Booking{}, fmt.Errorf("load booking: %w", err)
	}
	return bookingFromRow(row)
}

// CancelBooking marks a confirmed booking cancelled, freeing its slot.
func (db *DB) CancelBooking(ctx context.Context, id string, refund schedule.Money, at time.Time) error {
	return db.RunInTx(ctx, func(tx *DB) error {
		row, err := tx.Queries.GetBooking(ctx, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return availability.ErrNotFound
			}
			return fmt.Errorf("load booking: %w", err)
		}
		if row.Status != BookingStatusConfirmed {
			return ErrAlreadyCancelled
		}
		affected, err := tx.Queries.CancelBooking(ctx, id, at.UTC(), int64(refund))
		if err != nil {
			return fmt.Errorf("cancel booking: %w", err)
		}
		if affected == 0 {
			return ErrAlreadyCancelled
		}
		return nil
	})
}

func bookingFromRow(row BookingRow) (Booking, error) {
	date, err := schedule.ParseDate(row.BookingDate)
	if err != nil {
		return Booking{}, fmt.Errorf("stored booking date %q: %w", row.BookingDate, err)
	}
	booking := Booking{
		ID:            row.ID,
		CourtID:       row.CourtID,
		Date:          date,
		Start:         schedule.TimeOfDay(row.StartMinute),
		End:           schedule.TimeOfDay(row.EndMinute),
		Price:         schedule.Money(row.PriceCents),
		PriceLabel:    row.PriceLabel,
		Status:        row.Status,
		CustomerEmail: row.CustomerEmail,
		ConfigVersion: row.ConfigVersion,
		CreatedAt:     row.CreatedAt,
	}
	if row.RefundCents.Valid {
		booking.Refund = schedule.Money(row.RefundCents.Int64)
	}
	if row.CancelledAt.Valid {
		cancelledAt := row.CancelledAt.Time
		booking.CancelledAt = &cancelledAt
	}
	return booking, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
