package db

import (
	"context"
	"database/sql"
	"time"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

type Queries struct {
	db DBTX
}

func NewQueries(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// Courts

type CourtRow struct {
	ID            int64
	Name          string
	Timezone      string
	ActiveVersion sql.NullInt64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

const createCourt = `
INSERT INTO courts (name, timezone, created_at, updated_at)
VALUES (?, ?, ?, ?)
`

type CreateCourtParams struct {
	Name      string
	Timezone  string
	CreatedAt time.Time
}

func (q *Queries) CreateCourt(ctx context.Context, arg CreateCourtParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, createCourt, arg.Name, arg.Timezone, arg.CreatedAt, arg.CreatedAt)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

const getCourt = `
SELECT id, name, timezone, active_version, created_at, updated_at
FROM courts
WHERE id = ?
`

func (q *Queries) GetCourt(ctx context.Context, id int64) (CourtRow, error) {
	var row CourtRow
	err := q.db.QueryRowContext(ctx, getCourt, id).Scan(
		&row.ID,
		&row.Name,
		&row.Timezone,
		&row.ActiveVersion,
		&row.CreatedAt,
		&row.UpdatedAt,
	)
	return row, err
}

const setActiveVersion = `
UPDATE courts
SET active_version = ?, updated_at = ?
WHERE id = ?
`

func (q *Queries) SetActiveVersion(ctx context.Context, courtID, version int64, updatedAt time.Time) (int64, error) {
	result, err := q.db.ExecContext(ctx, setActiveVersion, version, updatedAt, courtID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Schedule versions

const nextScheduleVersion = `
SELECT COALESCE(MAX(version), 0) + 1
FROM schedule_versions
WHERE court_id = ?
`

func (q *Queries) NextScheduleVersion(ctx context.Context, courtID int64) (int64, error) {
	var version int64
	err := q.db.QueryRowContext(ctx, nextScheduleVersion, courtID).Scan(&version)
	return version, err
}

type ScheduleVersionRow struct {
	CourtID                   int64
	Version                   int64
	MatchDurationMinutes      int64
	StandardPriceCents        int64
	AdvancePriceCents         int64
	AdvanceBookingDays        int64
	AllowCancellation         bool
	CancellationDeadlineHours int64
	RefundPercentage          int64
	CreatedAt                 time.Time
}

const insertScheduleVersion = `
INSERT INTO schedule_versions (
    court_id, version, match_duration_minutes, standard_price_cents, advance_price_cents,
    advance_booking_days, allow_cancellation, cancellation_deadline_hours, refund_percentage, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

func (q *Queries) InsertScheduleVersion(ctx context.Context, arg ScheduleVersionRow) error {
	_, err := q.db.ExecContext(ctx, insertScheduleVersion,
		arg.CourtID,
		arg.Version,
		arg.MatchDurationMinutes,
		arg.StandardPriceCents,
		arg.AdvancePriceCents,
		arg.AdvanceBookingDays,
		arg.AllowCancellation,
		arg.CancellationDeadlineHours,
		arg.RefundPercentage,
		arg.CreatedAt,
	)
	return err
}

const scheduleVersionColumns = `
court_id, version, match_duration_minutes, standard_price_cents, advance_price_cents,
advance_booking_days, allow_cancellation, cancellation_deadline_hours, refund_percentage, created_at
`

func scanScheduleVersion(scanner interface{ Scan(...any) error }) (ScheduleVersionRow, error) {
	var row ScheduleVersionRow
	err := scanner.Scan(
		&row.CourtID,
		&row.Version,
		&row.MatchDurationMinutes,
		&row.StandardPriceCents,
		&row.AdvancePriceCents,
		&row.AdvanceBookingDays,
		&row.AllowCancellation,
		&row.CancellationDeadlineHours,
		&row.RefundPercentage,
		&row.CreatedAt,
	)
	return row, err
}

const getScheduleVersion = `SELECT` + scheduleVersionColumns + `
FROM schedule_versions
WHERE court_id = ? AND version = ?
`

func (q *Queries) GetScheduleVersion(ctx context.Context, courtID, version int64) (ScheduleVersionRow, error) {
	return scanScheduleVersion(q.db.QueryRowContext(ctx, getScheduleVersion, courtID, version))
}

const listScheduleVersions = `SELECT` + scheduleVersionColumns + `
FROM schedule_versions
WHERE court_id = ?
ORDER BY version DESC
`

func (q *Queries) ListScheduleVersions(ctx context.Context, courtID int64) ([]ScheduleVersionRow, error) {
	rows, err := q.db.QueryContext(ctx, listScheduleVersions, courtID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ScheduleVersionRow
	for rows.Next() {
		row, err := scanScheduleVersion(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, row)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

type WorkingHoursRow struct {
	CourtID     int64
	Version     int64
	DayOfWeek   int64
	IsOpen      bool
	StartMinute int64
	EndMinute   int64
}

const insertWorkingHours = `
INSERT INTO schedule_working_hours (court_id, version, day_of_week, is_open, start_minute, end_minute)
VALUES (?, ?, ?, ?, ?, ?)
`

func (q *Queries) InsertWorkingHours(ctx context.Context, arg WorkingHoursRow) error {
	_, err := q.db.ExecContext(ctx, insertWorkingHours,
		arg.CourtID, arg.Version, arg.DayOfWeek, arg.IsOpen, arg.StartMinute, arg.EndMinute)
	return err
}

const listWorkingHours = `
SELECT court_id, version, day_of_week, is_open, start_minute, end_minute
FROM schedule_working_hours
WHERE court_id = ? AND version = ?
ORDER BY day_of_week
`

func (q *Queries) ListWorkingHours(ctx context.Context, courtID, version int64) ([]WorkingHoursRow, error) {
	rows, err := q.db.QueryContext(ctx, listWorkingHours, courtID, version)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []WorkingHoursRow
	for rows.Next() {
		var row WorkingHoursRow
		if err := rows.Scan(&row.CourtID, &row.Version, &row.DayOfWeek, &row.IsOpen, &row.StartMinute, &row.EndMinute); err != nil {
			return nil, err
		}
		items = append(items, row)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

type BlockedDateRow struct {
	CourtID     int64
	Version     int64
	BlockedDate string
	Reason      string
	IsRecurring bool
}

const insertBlockedDate = `
INSERT INTO schedule_blocked_dates (court_id, version, blocked_date, reason, is_recurring)
VALUES (?, ?, ?, ?, ?)
`

func (q *Queries) InsertBlockedDate(ctx context.Context, arg BlockedDateRow) error {
	_, err := q.db.ExecContext(ctx, insertBlockedDate,
		arg.CourtID, arg.Version, arg.BlockedDate, arg.Reason, arg.IsRecurring)
	return err
}

const listBlockedDates = `
SELECT court_id, version, blocked_date, reason, is_recurring
FROM schedule_blocked_dates
WHERE court_id = ? AND version = ?
ORDER BY blocked_date, id
`

func (q *Queries) ListBlockedDates(ctx context.Context, courtID, version int64) ([]BlockedDateRow, error) {
	rows, err := q.db.QueryContext(ctx, listBlockedDates, courtID, version)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []BlockedDateRow
	for rows.Next() {
		var row BlockedDateRow
		if err := rows.Scan(&row.CourtID, &row.Version, &row.BlockedDate, &row.Reason, &row.IsRecurring); err != nil {
			return nil, err
		}
		items = append(items, row)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// Bookings

type BookingRow struct {
	ID            string
	CourtID       int64
	BookingDate   string
	StartMinute   int64
	EndMinute     int64
	PriceCents    int64
	PriceLabel    string
	Status        string
	CustomerEmail string
	ConfigVersion int64
	RefundCents   sql.NullInt64
	CreatedAt     time.Time
	CancelledAt   sql.NullTime
}

type IntervalRow struct {
	StartMinute int64
	EndMinute   int64
}

const listConfirmedBookings = `
SELECT start_minute, end_minute
FROM bookings
WHERE court_id = ? AND booking_date = ? AND status = 'confirmed'
ORDER BY start_minute
`

func (q *Queries) ListConfirmedBookings(ctx context.Context, courtID int64, bookingDate string) ([]IntervalRow, error) {
	rows, err := q.db.QueryContext(ctx, listConfirmedBookings, courtID, bookingDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []IntervalRow
	for rows.Next() {
		var row IntervalRow
		if err := rows.Scan(&row.StartMinute, &row.EndMinute); err != nil {
			return nil, err
		}
		items = append(items, row)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const countOverlappingConfirmed = `
SELECT COUNT(*)
FROM bookings
WHERE court_id = ?
  AND booking_date = ?
  AND status = 'confirmed'
  AND start_minute < ?
  AND ? < end_minute
`

func (q *Queries) CountOverlappingConfirmed(ctx context.Context, courtID int64, bookingDate string, startMinute, endMinute int64) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, countOverlappingConfirmed, courtID, bookingDate, endMinute, startMinute).Scan(&count)
	return count, err
}

const insertBooking = `
INSERT INTO bookings (
    id, court_id, booking_date, start_minute, end_minute, price_cents, price_label,
    status, customer_email, config_version, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, 'confirmed', ?, ?, ?)
`

func (q *Queries) InsertBooking(ctx context.Context, arg BookingRow) error {
	_, err := q.db.ExecContext(ctx, insertBooking,
		arg.ID,
		arg.CourtID,
		arg.BookingDate,
		arg.StartMinute,
		arg.EndMinute,
		arg.PriceCents,
		arg.PriceLabel,
		arg.CustomerEmail,
		arg.ConfigVersion,
		arg.CreatedAt,
	)
	return err
}

const getBooking = `
SELECT id, court_id, booking_date, start_minute, end_minute, price_cents, price_label,
       status, customer_email, config_version, refund_cents, created_at, cancelled_at
FROM bookings
WHERE id = ?
`

func (q *Queries) GetBooking(ctx context.Context, id string) (BookingRow, error) {
	var row BookingRow
	err := q.db.QueryRowContext(ctx, getBooking, id).Scan(
		&row.ID,
		&row.CourtID,
		&row.BookingDate,
		&row.StartMinute,
		&row.EndMinute,
		&row.PriceCents,
		&row.PriceLabel,
		&row.Status,
		&row.CustomerEmail,
		&row.ConfigVersion,
		&row.RefundCents,
		&row.CreatedAt,
		&row.CancelledAt,
	)
	return row, err
}

const cancelBooking = `
UPDATE bookings
SET status = 'cancelled', cancelled_at = ?, refund_cents = ?
WHERE id = ? AND status = 'confirmed'
`

func (q *Queries) CancelBooking(ctx context.Context, id string, cancelledAt time.Time, refundCents int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, cancelBooking, cancelledAt, refundCents, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Idempotency keys

type IdempotencyRow struct {
	Scope        string
	Key          string
	BookingID    string
	StatusCode   int64
	ResponseBody []byte
	ClaimedAt    sql.NullTime
	CreatedAt    time.Time
}

const getIdempotencyKey = `
SELECT scope, idempotency_key, COALESCE(booking_id, ''), status_code, response_body, claimed_at, created_at
FROM booking_idempotency_keys
WHERE scope = ? AND idempotency_key = ?
`

func (q *Queries) GetIdempotencyKey(ctx context.Context, scope, key string) (IdempotencyRow, error) {
	var row IdempotencyRow
	err := q.db.QueryRowContext(ctx, getIdempotencyKey, scope, key).Scan(
		&row.Scope, &row.Key, &row.BookingID, &row.StatusCode, &row.ResponseBody, &row.ClaimedAt, &row.CreatedAt)
	return row, err
}

const insertIdempotencyClaim = `
INSERT INTO booking_idempotency_keys (scope, idempotency_key, status_code, response_body, claimed_at, created_at)
VALUES (?, ?, 0, x'', ?, ?)
`

func (q *Queries) InsertIdempotencyClaim(ctx context.Context, scope, key string, claimedAt time.Time) error {
	_, err := q.db.ExecContext(ctx, insertIdempotencyClaim, scope, key, claimedAt, claimedAt)
	return err
}

const renewIdempotencyClaim = `
UPDATE booking_idempotency_keys
SET claimed_at = ?
WHERE scope = ? AND idempotency_key = ? AND status_code = 0 AND booking_id IS NULL
`

func (q *Queries) RenewIdempotencyClaim(ctx context.Context, scope, key string, claimedAt time.Time) (int64, error) {
	result, err := q.db.ExecContext(ctx, renewIdempotencyClaim, claimedAt, scope, key)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const attachIdempotencyBooking = `
UPDATE booking_idempotency_keys
SET booking_id = ?
WHERE scope = ? AND idempotency_key = ? AND status_code = 0 AND booking_id IS NULL
`

func (q *Queries) AttachIdempotencyBooking(ctx context.Context, scope, key, bookingID string) (int64, error) {
	result, err := q.db.ExecContext(ctx, attachIdempotencyBooking, bookingID, scope, key)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const finalizeIdempotencyKey = `
UPDATE booking_idempotency_keys
SET status_code = ?, response_body = ?
WHERE scope = ? AND idempotency_key = ? AND status_code = 0
`

func (q *Queries) FinalizeIdempotencyKey(ctx context.Context, scope, key string, statusCode int64, body []byte) (int64, error) {
	result, err := q.db.ExecContext(ctx, finalizeIdempotencyKey, statusCode, body, scope, key)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const deleteIdempotencyClaim = `
DELETE FROM booking_idempotency_keys
WHERE scope = ? AND idempotency_key = ? AND status_code = 0 AND booking_id IS NULL
`

func (q *Queries) DeleteIdempotencyClaim(ctx context.Context, scope, key string) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteIdempotencyClaim, scope, key)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const deleteIdempotencyKeysBefore = `
DELETE FROM booking_idempotency_keys
WHERE created_at < ?
`

func (q *Queries) DeleteIdempotencyKeysBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteIdempotencyKeysBefore, before)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
