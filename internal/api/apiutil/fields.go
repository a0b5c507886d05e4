package apiutil

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/codr1/courtslots/internal/schedule"
)

func ParsePositiveInt64Field(raw string, field string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("%s is required", field)
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || value <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer", field)
	}
	return value, nil
}

// PathID reads a positive integer path value such as {court_id}.
func PathID(r *http.Request, name string) (int64, error) {
	return ParsePositiveInt64Field(r.PathValue(name), name)
}

// ParseDateField parses a required YYYY-MM-DD value.
func ParseDateField(raw string, field string) (schedule.Date, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return schedule.Date{}, FieldError{Field: field, Reason: "is required"}
	}
	date, err := schedule.ParseDate(raw)
	if err != nil {
		return schedule.Date{}, FieldError{Field: field, Reason: "must be a date in YYYY-MM-DD format"}
	}
	return date, nil
}

// ParseTimeField parses a required time of day in "15:04" or "3:04 PM" form.
func ParseTimeField(raw string, field string) (schedule.TimeOfDay, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, FieldError{Field: field, Reason: "is required"}
	}
	t, err := schedule.ParseTimeOfDay(raw)
	if err != nil {
		return 0, FieldError{Field: field, Reason: "must be a time such as 09:30"}
	}
	return t, nil
}
