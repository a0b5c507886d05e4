package schedule

import (
	"fmt"
	"strings"
)

const maxAdvanceBookingDays = 366

// FieldError names one invalid field of a Config.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ConfigError collects every field failure found by Validate.
type ConfigError struct {
	Fields []FieldError
}

func (e *ConfigError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return "invalid schedule config"
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Reason)
	}
	return "invalid schedule config: " + strings.Join(parts, "; ")
}

func (e *ConfigError) add(field, format string, args ...any) {
	e.Fields = append(e.Fields, FieldError{Field: field, Reason: fmt.Sprintf(format, args...)})
}

// Validate checks cfg and returns a normalized copy. The returned error is always a *ConfigError.
func Validate(cfg Config) (Config, error) {
	errs := &ConfigError{}

	for i, hours := range cfg.WorkingHours {
		day := Day(i)
		if !hours.IsOpen {
			continue
		}
		field := "workingHours." + day.String()
		if !hours.Start.Valid() || hours.Start == minutesPerDay {
			errs.add(field+".start", "must be between 00:00 and 23:59")
		}
		if !hours.End.Valid() {
			errs.add(field+".end", "must be between 00:01 and 24:00")
		}
		if hours.Start >= hours.End {
			errs.add(field, "start %s must be before end %s", hours.Start, hours.End)
		}
	}

	switch {
	case cfg.MatchDurationMinutes <= 0:
		errs.add("matchDurationMinutes", "must be positive")
	case cfg.MatchDurationMinutes > minutesPerDay:
		errs.add("matchDurationMinutes", "must not exceed %d", minutesPerDay)
	}

	if cfg.Pricing.StandardPrice < 0 {
		errs.add("pricing.standardPrice", "must not be negative")
	}
	if cfg.Pricing.AdvanceBookingPrice < 0 {
		errs.add("pricing.advanceBookingPrice", "must not be negative")
	}
	if cfg.Pricing.AdvanceBookingDays < 0 {
		errs.add("pricing.advanceBookingDays", "must not be negative")
	} else if cfg.Pricing.AdvanceBookingDays > maxAdvanceBookingDays {
		errs.add("pricing.advanceBookingDays", "must not exceed %d", maxAdvanceBookingDays)
	}

	if cfg.CancellationPolicy.CancellationDeadlineHours < 0 {
		errs.add("cancellationPolicy.cancellationDeadlineHours", "must not be negative")
	}
	if pct := cfg.CancellationPolicy.RefundPercentage; pct < 0 || pct > 100 {
		errs.add("cancellationPolicy.refundPercentage", "must be between 0 and 100")
	}

	for i, blocked := range cfg.BlockedDates {
		if blocked.Date.IsZero() {
			errs.add(fmt.Sprintf("blockedDates[%d].date", i), "is required")
		}
		if len(blocked.Reason) > 200 {
			errs.add(fmt.Sprintf("blockedDates[%d].reason", i), "must be 200 characters or fewer")
		}
	}

	if len(errs.Fields) > 0 {
		return Config{}, errs
	}

	cfg.BlockedDates = normalizeBlockedDates(cfg.BlockedDates)
	return cfg, nil
}
