package availability

import "errors"

// AttemptState tracks a single slot-booking attempt.
// Requested -> Validating -> Confirmed | RejectedNotOffered | RejectedTaken.
type AttemptState int

const (
	Requested AttemptState = iota
	Validating
	Confirmed
	RejectedNotOffered
	RejectedTaken
)

func (s AttemptState) String() string {
	switch s {
	case Requested:
		return "requested"
	case Validating:
		return "validating"
	case Confirmed:
		return "confirmed"
	case RejectedNotOffered:
		return "rejected_not_offered"
	case RejectedTaken:
		return "rejected_taken"
	default:
		return "unknown"
	}
}

func (s AttemptState) Terminal() bool {
	return s == Confirmed || s == RejectedNotOffered || s == RejectedTaken
}

// Outcome returns the terminal state reached by an attempt that ended with err. The second
// result is false when err aborted the attempt before a decision, e.g. a store outage.
func Outcome(err error) (AttemptState, bool) {
	switch {
	case err == nil:
		return Confirmed, true
	case errors.Is(err, ErrSlotNotOffered):
		return RejectedNotOffered, true
	case errors.Is(err, ErrSlotTaken), errors.Is(err, ErrConflict):
		return RejectedTaken, true
	default:
		return Validating, false
	}
}
