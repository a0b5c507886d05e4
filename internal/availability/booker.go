package availability

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/codr1/courtslots/internal/schedule"
)

type BookRequest struct {
	CourtID          int64
	Date             schedule.Date
	Start            schedule.TimeOfDay
	SubmittedAt      time.Time
	CustomerEmail    string
	IdempotencyScope string
	IdempotencyKey   string
}

// Booker runs validate-and-commit for one slot under a per-slot lock. The store's uniqueness
// guarantee remains the final authority when locks span several processes.
type Booker struct {
	validator *Validator
	store     BookingStore
	locker    Locker
	listeners []ConfirmationListener
}

// NewBooker builds a Booker whose validator reads bookings from store. A nil locker leaves
// serialization to the store alone.
func NewBooker(directory Directory, store BookingStore, locker Locker, listeners ...ConfirmationListener) *Booker {
	return &Booker{
		validator: NewValidator(NewResolver(directory, store)),
		store:     store,
		locker:    locker,
		listeners: listeners,
	}
}

// Book validates the requested slot and commits it. The returned error is ErrNotFound,
// ErrSlotNotOffered, ErrSlotTaken or wraps ErrUnavailable.
func (b *Booker) Book(ctx context.Context, req BookRequest) (conf Confirmation, err error) {
	ctx, span := tracer.Start(ctx, "availability.book", trace.WithAttributes(
		attribute.Int64("court.id", req.CourtID),
		attribute.String("slot.date", req.Date.String()),
		attribute.String("slot.start", req.Start.String()),
	))
	logger := log.Ctx(ctx).With().
		Int64("court_id", req.CourtID).
		Str("date", req.Date.String()).
		Str("start", req.Start.String()).
		Logger()
	defer func() {
		state, _ := Outcome(err)
		span.SetAttributes(attribute.String("booking.state", state.String()))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	logger.Debug().Stringer("state", Requested).Msg("Booking attempt received")

	var unlock func()
	if b.locker != nil {
		var lockErr error
		unlock, lockErr = b.locker.Lock(ctx, SlotKey(req.CourtID, req.Date, req.Start))
		if lockErr != nil {
			return Confirmation{}, unavailable("acquire slot lock", lockErr)
		}
		defer func() {
			if unlock != nil {
				unlock()
			}
		}()
	}

	logger.Debug().Stringer("state", Validating).Msg("Validating slot")
	validated, err := b.validator.Validate(ctx, req.CourtID, req.Date, req.Start, req.SubmittedAt)
	if err != nil {
		state, _ := Outcome(err)
		logger.Info().Err(err).Stringer("state", state).Msg("Booking attempt rejected")
		return Confirmation{}, err
	}

	bookingID, err := b.store.Commit(ctx, Commit{
		CourtID:       req.CourtID,
		Date:          req.Date,
		Start:         validated.Slot.StartTime,
		End:           validated.Slot.EndTime,
		Price:         validated.Slot.Price,
		PriceLabel:    validated.Slot.PriceLabel,
		ConfigVersion: validated.ConfigVersion,
		CustomerEmail: req.CustomerEmail,
		CreatedAt:     req.SubmittedAt,

		IdempotencyScope: req.IdempotencyScope,
		IdempotencyKey:   req.IdempotencyKey,
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			logger.Info().Stringer("state", RejectedTaken).Msg("Booking lost commit race")
			return Confirmation{}, ErrSlotTaken
		}
		return Confirmation{}, unavailable("commit booking", err)
	}

	// Listeners run after the slot lock is released.
	if unlock != nil {
		unlock()
		unlock = nil
	}

	conf = Confirmation{
		BookingID:     bookingID,
		Court:         validated.Court,
		Slot:          validated.Slot,
		ConfigVersion: validated.ConfigVersion,
		CustomerEmail: req.CustomerEmail,
		StartsAt:      validated.StartsAt,
		ConfirmedAt:   req.SubmittedAt,
	}
	logger.Info().Str("booking_id", bookingID).Stringer("state", Confirmed).Msg("Booking confirmed")

	notifyCtx := context.WithoutCancel(ctx)
	for _, listener := range b.listeners {
		listener.BookingConfirmed(notifyCtx, conf)
	}
	return conf, nil
}
