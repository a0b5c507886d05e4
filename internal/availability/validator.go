package availability

import (
	"context"
	"time"

	"github.com/codr1/courtslots/internal/schedule"
	"github.com/codr1/courtslots/internal/slots"
)

// Validator re-checks a requested slot against a fresh read of the booking index.
type Validator struct {
	resolver *Resolver
}

func NewValidator(resolver *Resolver) *Validator {
	return &Validator{resolver: resolver}
}

// Validate confirms that start is still bookable on date at submittedAt. A start the rules
// offer but a confirmed booking now covers yields ErrSlotTaken; anything else missing yields
// ErrSlotNotOffered.
func (v *Validator) Validate(ctx context.Context, courtID int64, date schedule.Date, start schedule.TimeOfDay, submittedAt time.Time) (ValidatedSlot, error) {
	res, err := v.resolver.resolve(ctx, courtID, date, submittedAt)
	if err != nil {
		return ValidatedSlot{}, err
	}

	for _, slot := range res.slots {
		if slot.StartTime == start {
			court := res.snapshot.Court
			return ValidatedSlot{
				Court:         court,
				Slot:          slot,
				ConfigVersion: res.snapshot.Version,
				StartsAt:      start.On(date, court.Location()),
			}, nil
		}
	}

	if !date.Before(res.today) {
		if _, offered := slots.Offers(res.snapshot.Config, date, start); offered {
			return ValidatedSlot{}, ErrSlotTaken
		}
	}
	return ValidatedSlot{}, ErrSlotNotOffered
}
