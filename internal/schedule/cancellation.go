package schedule

import (
	"fmt"
	"time"
)

// RefundQuote is the outcome of applying a CancellationPolicy to one booking.
type RefundQuote struct {
	Allowed    bool   `json:"allowed"`
	Percentage int    `json:"refundPercentage"`
	Refund     Money  `json:"refundCents"`
	Reason     string `json:"reason,omitempty"`
}

// Quote decides whether a booking starting at slotStart may be cancelled at cancelAt and how
// much of paid is refunded.
func (p CancellationPolicy) Quote(slotStart, cancelAt time.Time, paid Money) RefundQuote {
	if !p.AllowCancellation {
		return RefundQuote{Reason: "cancellation is not allowed for this court"}
	}
	if !cancelAt.Before(slotStart) {
		return RefundQuote{Reason: "the booking has already started"}
	}
	deadline := slotStart.Add(-time.Duration(p.CancellationDeadlineHours) * time.Hour)
	if cancelAt.After(deadline) {
		return RefundQuote{
			Reason: fmt.Sprintf("cancellations close %d hours before the start time", p.CancellationDeadlineHours),
		}
	}
	return RefundQuote{
		Allowed:    true,
		Percentage: p.RefundPercentage,
		Refund:     paid.Percent(p.RefundPercentage),
	}
}
