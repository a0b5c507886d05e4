// Package slots expands a schedule into the candidate time slots of one day.
package slots

import "github.com/codr1/courtslots/internal/schedule"

// Candidate is a bookable interval before pricing. End is exclusive.
type Candidate struct {
	Date  schedule.Date
	Start schedule.TimeOfDay
	End   schedule.TimeOfDay
}

// Overlaps reports whether c intersects [start, end). Touching intervals do not overlap.
func (c Candidate) Overlaps(start, end schedule.TimeOfDay) bool {
	return c.Start < end && start < c.End
}

// Generate returns the day's candidates in ascending start order. Closed weekdays and blocked
// dates yield an empty slice. A trailing remainder shorter than the match duration is dropped.
func Generate(cfg schedule.Config, date schedule.Date) []Candidate {
	hours := cfg.WorkingHours.For(date.Weekday())
	if !hours.IsOpen || cfg.MatchDurationMinutes <= 0 {
		return []Candidate{}
	}
	if _, blocked := cfg.BlockedOn(date); blocked {
		return []Candidate{}
	}

	duration := cfg.MatchDurationMinutes
	out := make([]Candidate, 0, max(0, int(hours.End-hours.Start)/duration))
	for start := hours.Start; start.Add(duration) <= hours.End; start = start.Add(duration) {
		out = append(out, Candidate{Date: date, Start: start, End: start.Add(duration)})
	}
	return out
}

// Offers reports whether Generate would produce a candidate starting at start.
func Offers(cfg schedule.Config, date schedule.Date, start schedule.TimeOfDay) (Candidate, bool) {
	for _, c := range Generate(cfg, date) {
		if c.Start == start {
			return c, true
		}
	}
	return Candidate{}, false
}
