// internal/schedule/config.go
package schedule

import (
	"sort"
	"time"
)

// Pricing selects between the standard and advance-booking price. A slot whose date is at least
// AdvanceBookingDays after today qualifies for AdvanceBookingPrice.
type Pricing struct {
	StandardPrice       Money `json:"standardPrice"`
	AdvanceBookingPrice Money `json:"advanceBookingPrice"`
	AdvanceBookingDays  int   `json:"advanceBookingDays"`
}

type CancellationPolicy struct {
	AllowCancellation         bool `json:"allowCancellation"`
	CancellationDeadlineHours int  `json:"cancellationDeadlineHours"`
	RefundPercentage          int  `json:"refundPercentage"`
}

// BlockedDate closes a court for a whole day. Recurring entries repeat on the same month and
// day every year.
type BlockedDate struct {
	Date        Date   `json:"date"`
	Reason      string `json:"reason"`
	IsRecurring bool   `json:"isRecurring"`
}

// Matches reports whether the blocked entry applies to d. A recurring Feb 29 only matches on
// leap years.
func (b BlockedDate) Matches(d Date) bool {
	if b.IsRecurring {
		return b.Date.SameMonthDay(d)
	}
	return b.Date == d
}

// Config is one immutable version of a court's availability rules.
type Config struct {
	WorkingHours         WorkingHours       `json:"workingHours"`
	MatchDurationMinutes int                `json:"matchDurationMinutes"`
	Pricing              Pricing            `json:"pricing"`
	CancellationPolicy   CancellationPolicy `json:"cancellationPolicy"`
	BlockedDates         []BlockedDate      `json:"blockedDates"`
}

// BlockedOn returns the first blocked entry matching d.
func (c Config) BlockedOn(d Date) (BlockedDate, bool) {
	for _, blocked := range c.BlockedDates {
		if blocked.Matches(d) {
			return blocked, true
		}
	}
	return BlockedDate{}, false
}

func (c Config) MatchDuration() time.Duration {
	return time.Duration(c.MatchDurationMinutes) * time.Minute
}

// normalizeBlockedDates sorts entries by date and drops exact duplicates.
func normalizeBlockedDates(in []BlockedDate) []BlockedDate {
	out := make([]BlockedDate, 0, len(in))
	seen := make(map[BlockedDate]struct{}, len(in))
	for _, blocked := range in {
		if _, ok := seen[blocked]; ok {
			continue
		}
		seen[blocked] = struct{}{}
		out = append(out, blocked)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date)
	})
	return out
}
