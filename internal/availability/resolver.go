package availability

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/codr1/courtslots/internal/schedule"
	"github.com/codr1/courtslots/internal/slots"
)

var tracer = otel.Tracer("github.com/codr1/courtslots/internal/availability")

// Resolver turns a court's schedule and confirmed bookings into priced, bookable slots.
// It keeps no mutable state and is safe for concurrent use.
type Resolver struct {
	directory Directory
	index     BookingIndex
}

func NewResolver(directory Directory, index BookingIndex) *Resolver {
	return &Resolver{directory: directory, index: index}
}

// resolution carries the intermediate results Validator needs to classify a miss.
type resolution struct {
	snapshot Snapshot
	today    schedule.Date
	slots    []Slot
}

// Resolve returns the available slots for courtID on date as seen at now.
func (r *Resolver) Resolve(ctx context.Context, courtID int64, date schedule.Date, now time.Time) ([]Slot, error) {
	avail, err := r.Availability(ctx, courtID, date, now)
	if err != nil {
		return nil, err
	}
	return avail.Slots, nil
}

// Availability is Resolve plus the court and schedule metadata clients display.
func (r *Resolver) Availability(ctx context.Context, courtID int64, date schedule.Date, now time.Time) (Availability, error) {
	res, err := r.resolve(ctx, courtID, date, now)
	if err != nil {
		return Availability{}, err
	}
	return Availability{
		Court:                res.snapshot.Court,
		Date:                 date,
		MatchDurationMinutes: res.snapshot.Config.MatchDurationMinutes,
		ConfigVersion:        res.snapshot.Version,
		Slots:                res.slots,
	}, nil
}

func (r *Resolver) resolve(ctx context.Context, courtID int64, date schedule.Date, now time.Time) (res resolution, err error) {
	ctx, span := tracer.Start(ctx, "availability.resolve", trace.WithAttributes(
		attribute.Int64("court.id", courtID),
		attribute.String("slot.date", date.String()),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(attribute.Int("slot.count", len(res.slots)))
		}
		span.End()
	}()

	snapshot, err := r.directory.ScheduleConfig(ctx, courtID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return resolution{}, err
		}
		return resolution{}, unavailable("load schedule config", err)
	}

	res = resolution{
		snapshot: snapshot,
		today:    schedule.DateOf(now.In(snapshot.Court.Location())),
		slots:    []Slot{},
	}
	if date.Before(res.today) {
		return res, nil
	}

	candidates := slots.Generate(snapshot.Config, date)
	if len(candidates) == 0 {
		return res, nil
	}

	booked, err := r.index.ListConfirmed(ctx, courtID, date)
	if err != nil {
		return resolution{}, unavailable("list confirmed bookings", err)
	}

	price, label := PriceFor(snapshot.Config.Pricing, res.today, date)
	for _, candidate := range candidates {
		if overlapsAny(candidate, booked) {
			continue
		}
		res.slots = append(res.slots, Slot{
			Date:       date,
			StartTime:  candidate.Start,
			EndTime:    candidate.End,
			Price:      price,
			PriceLabel: label,
		})
	}
	return res, nil
}

func overlapsAny(c slots.Candidate, booked []Interval) bool {
	for _, b := range booked {
		if c.Overlaps(b.Start, b.End) {
			return true
		}
	}
	return false
}
