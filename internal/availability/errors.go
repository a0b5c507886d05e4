package availability

import (
	"errors"
	"fmt"

	"github.com/codr1/courtslots/internal/schedule"
)

var (
	// ErrNotFound means the court does not exist.
	ErrNotFound = errors.New("court not found")
	// ErrSlotNotOffered means the requested start is not a slot under the current rules.
	ErrSlotNotOffered = errors.New("slot is not offered")
	// ErrSlotTaken means another booking confirmed the slot first.
	ErrSlotTaken = errors.New("slot was just booked")
	// ErrUnavailable wraps transient failures from the directory or booking store.
	ErrUnavailable = errors.New("availability is temporarily unavailable")
	// ErrConflict is returned by a BookingStore when storage rejects an overlapping commit.
	ErrConflict = errors.New("booking conflicts with a confirmed booking")
)

// Error kinds reported to clients.
const (
	KindNotFound       = "not_found"
	KindSlotNotOffered = "slot_not_offered"
	KindSlotTaken      = "slot_taken"
	KindUnavailable    = "unavailable"
	KindInvalidConfig  = "invalid_config"
	KindInternal       = "internal"
)

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

// ErrorKind maps an error returned by this package to its client-facing kind.
func ErrorKind(err error) string {
	var cfgErr *schedule.ConfigError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrSlotNotOffered):
		return KindSlotNotOffered
	case errors.Is(err, ErrSlotTaken), errors.Is(err, ErrConflict):
		return KindSlotTaken
	case errors.Is(err, ErrUnavailable):
		return KindUnavailable
	case errors.As(err, &cfgErr):
		return KindInvalidConfig
	default:
		return KindInternal
	}
}
