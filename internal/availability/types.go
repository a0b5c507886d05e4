// Package availability resolves bookable slots for a court and guards the booking write path.
package availability

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/codr1/courtslots/internal/schedule"
)

const defaultTimezone = "UTC"

type Court struct {
	ID            int64
	Name          string
	Timezone      string
	ActiveVersion int64
}

// Location returns the court's timezone, falling back to UTC for empty or unknown names.
func (c Court) Location() *time.Location {
	name := strings.TrimSpace(c.Timezone)
	if name == "" || name == defaultTimezone {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Snapshot is the active schedule version of a court, read as one unit.
type Snapshot struct {
	Court   Court
	Version int64
	Config  schedule.Config
}

// Interval is the occupied [Start, End) range of a confirmed booking.
type Interval struct {
	Start schedule.TimeOfDay
	End   schedule.TimeOfDay
}

type Slot struct {
	Date       schedule.Date      `json:"date"`
	StartTime  schedule.TimeOfDay `json:"startTime"`
	EndTime    schedule.TimeOfDay `json:"endTime"`
	Price      schedule.Money     `json:"price"`
	PriceLabel string             `json:"priceLabel"`
}

// Availability is the resolved view of one court on one date.
type Availability struct {
	Court                Court
	Date                 schedule.Date
	MatchDurationMinutes int
	ConfigVersion        int64
	Slots                []Slot
}

// ValidatedSlot is a slot confirmed bookable at submission time, with its authoritative price.
type ValidatedSlot struct {
	Court         Court
	Slot          Slot
	ConfigVersion int64
	StartsAt      time.Time
}

// Commit is what a BookingStore persists for a validated slot.
type Commit struct {
	CourtID       int64
	Date          schedule.Date
	Start         schedule.TimeOfDay
	End           schedule.TimeOfDay
	Price         schedule.Money
	PriceLabel    string
	ConfigVersion int64
	CustomerEmail string
	CreatedAt     time.Time

	// IdempotencyScope and IdempotencyKey name a claimed request key; when set, the store binds
	// it to the booking in the commit transaction.
	IdempotencyScope string
	IdempotencyKey   string
}

// Confirmation describes a committed booking to listeners and callers.
type Confirmation struct {
	BookingID     string
	Court         Court
	Slot          Slot
	ConfigVersion int64
	CustomerEmail string
	StartsAt      time.Time
	ConfirmedAt   time.Time
}

// Directory supplies the active schedule of a court. Unknown courts return ErrNotFound.
type Directory interface {
	ScheduleConfig(ctx context.Context, courtID int64) (Snapshot, error)
}

// BookingIndex lists the confirmed bookings of a court on a date.
type BookingIndex interface {
	ListConfirmed(ctx context.Context, courtID int64, date schedule.Date) ([]Interval, error)
}

// BookingStore persists bookings. Commit returns ErrConflict when a confirmed booking already
// overlaps the requested interval.
type BookingStore interface {
	BookingIndex
	Commit(ctx context.Context, c Commit) (string, error)
}

// Locker serializes the write path for one slot key.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// ConfirmationListener is notified after a booking commits. Implementations must not block
// for long; failures are theirs to log.
type ConfirmationListener interface {
	BookingConfirmed(ctx context.Context, c Confirmation)
}

// SlotKey identifies one slot for locking.
func SlotKey(courtID int64, date schedule.Date, start schedule.TimeOfDay) string {
	return fmt.Sprintf("court:%d:%s:%s", courtID, date, start)
}
