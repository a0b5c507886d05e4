package schedule

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Day indexes WorkingHours, Monday first.
type Day int

const (
	Monday Day = iota
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

var dayNames = [7]string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}

// DayOf converts a time.Weekday (Sunday first) into a Day.
func DayOf(w time.Weekday) Day {
	return Day((int(w) + 6) % 7)
}

func ParseDay(raw string) (Day, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	for i, name := range dayNames {
		if name == raw {
			return Day(i), nil
		}
	}
	return 0, fmt.Errorf("unknown day %q", raw)
}

func (d Day) String() string {
	if d < Monday || d > Sunday {
		return fmt.Sprintf("Day(%d)", int(d))
	}
	return dayNames[d]
}

// DayHours describes one weekday. Start and End are ignored when IsOpen is false.
type DayHours struct {
	IsOpen bool      `json:"isOpen"`
	Start  TimeOfDay `json:"start"`
	End    TimeOfDay `json:"end"`
}

// WorkingHours always holds all seven days.
type WorkingHours [7]DayHours

func (w WorkingHours) For(d Day) DayHours {
	return w[d]
}

func (w WorkingHours) MarshalJSON() ([]byte, error) {
	out := make(map[string]DayHours, len(dayNames))
	for i, name := range dayNames {
		out[name] = w[i]
	}
	return json.Marshal(out)
}

// UnmarshalJSON requires every weekday to be present; schedules are only ever replaced whole.
func (w *WorkingHours) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("workingHours must be an object keyed by weekday: %w", err)
	}
	var parsed WorkingHours
	var present [7]bool
	for key, value := range raw {
		day, err := ParseDay(key)
		if err != nil {
			return fmt.Errorf("workingHours: %w", err)
		}
		var hours struct {
			IsOpen bool       `json:"isOpen"`
			Start  *TimeOfDay `json:"start"`
			End    *TimeOfDay `json:"end"`
		}
		if err := json.Unmarshal(value, &hours); err != nil {
			return fmt.Errorf("workingHours.%s: %w", day, err)
		}
		entry := DayHours{IsOpen: hours.IsOpen}
		if hours.Start != nil {
			entry.Start = *hours.Start
		}
		if hours.End != nil {
			entry.End = *hours.End
		}
		if hours.IsOpen && (hours.Start == nil || hours.End == nil) {
			return fmt.Errorf("workingHours.%s: start and end are required for an open day", day)
		}
		if present[day] {
			return fmt.Errorf("workingHours.%s is listed more than once", day)
		}
		parsed[day] = entry
		present[day] = true
	}
	var missing []string
	for i, ok := range present {
		if !ok {
			missing = append(missing, dayNames[i])
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("workingHours is missing %s", strings.Join(missing, ", "))
	}
	*w = parsed
	return nil
}
