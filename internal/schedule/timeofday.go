// internal/schedule/timeofday.go
package schedule

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	minutesPerDay = 24 * 60

	layout24 = "15:04"
	layout12 = "3:04 PM"
)

// TimeOfDay is a wall-clock time expressed as minutes since midnight.
// The valid range is 0..1440; 1440 ("24:00") only makes sense as a closing time.
type TimeOfDay int

// At builds a TimeOfDay from an hour and minute.
func At(hour, minute int) TimeOfDay {
	return TimeOfDay(hour*60 + minute)
}

// ParseTimeOfDay accepts "15:04", "3:04 PM" (any case) and "24:00".
func ParseTimeOfDay(raw string) (TimeOfDay, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("time is required")
	}
	if raw == "24:00" {
		return minutesPerDay, nil
	}
	parsed, err := time.Parse(layout24, raw)
	if err != nil {
		parsed, err = time.Parse(layout12, strings.ToUpper(raw))
		if err != nil {
			return 0, fmt.Errorf("time must be in HH:MM or H:MM AM/PM format")
		}
	}
	return At(parsed.Hour(), parsed.Minute()), nil
}

func (t TimeOfDay) Valid() bool {
	return t >= 0 && t <= minutesPerDay
}

func (t TimeOfDay) Hour() int   { return int(t) / 60 }
func (t TimeOfDay) Minute() int { return int(t) % 60 }

// Add returns t shifted by the given number of minutes.
func (t TimeOfDay) Add(minutes int) TimeOfDay {
	return t + TimeOfDay(minutes)
}

// String formats t in 24-hour notation.
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

// Format12 formats t for display, e.g. "8:00 AM". Midnight at either end renders as 12:00 AM.
func (t TimeOfDay) Format12() string {
	hour := t.Hour() % 24
	suffix := "AM"
	if hour >= 12 {
		suffix = "PM"
	}
	hour12 := hour % 12
	if hour12 == 0 {
		hour12 = 12
	}
	return fmt.Sprintf("%d:%02d %s", hour12, t.Minute(), suffix)
}

// On anchors t to a calendar date in loc.
func (t TimeOfDay) On(d Date, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc).Add(time.Duration(t) * time.Minute)
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("time must be a string: %w", err)
	}
	parsed, err := ParseTimeOfDay(raw)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
