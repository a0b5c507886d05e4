package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/codr1/courtslots/internal/availability"
	"github.com/codr1/courtslots/internal/schedule"
)

// ScheduleVersion is one stored, immutable schedule of a court.
type ScheduleVersion struct {
	CourtID   int64
	Version   int64
	Active    bool
	CreatedAt time.Time
	Config    schedule.Config
}

// CreateCourt inserts a court and its first schedule version in one transaction.
func (db *DB) CreateCourt(ctx context.Context, name, timezone string, cfg schedule.Config, now time.Time) (availability.Court, error) {
	cfg, err := schedule.Validate(cfg)
	if err != nil {
		return availability.Court{}, err
	}
	if timezone == "" {
		timezone = "UTC"
	}
	if _, err := time.LoadLocation(timezone); err != nil {
		return availability.Court{}, &schedule.ConfigError{Fields: []schedule.FieldError{
			{Field: "timezone", Reason: fmt.Sprintf("unknown timezone %q", timezone)},
		}}
	}

	var court availability.Court
	err = db.RunInTx(ctx, func(tx *DB) error {
		courtID, err := tx.Queries.CreateCourt(ctx, CreateCourtParams{Name: name, Timezone: timezone, CreatedAt: now.UTC()})
		if err != nil {
			return fmt.Errorf("insert court: %w", err)
		}
		version, err := tx.insertVersion(ctx, courtID, cfg, now)
		if err != nil {
			return err
		}
		court = availability.Court{ID: courtID, Name: name, Timezone: timezone, ActiveVersion: version}
		return nil
	})
	if err != nil {
		return availability.Court{}, err
	}
	return court, nil
}

// ReplaceSchedule validates cfg, stores it as a new version and makes it active. Readers see
// either the previous version or this one, never a mix.
func (db *DB) ReplaceSchedule(ctx context.Context, courtID int64, cfg schedule.Config, now time.Time) (int64, error) {
	cfg, err := schedule.Validate(cfg)
	if err != nil {
		return 0, err
	}

	var version int64
	err = db.RunInTx(ctx, func(tx *DB) error {
		if _, err := tx.Queries.GetCourt(ctx, courtID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return availability.ErrNotFound
			}
			return fmt.Errorf("load court: %w", err)
		}
		version, err = tx.insertVersion(ctx, courtID, cfg, now)
		return err
	})
	if err != nil {
		return 0, err
	}
	return version, nil
}

func (db *DB) insertVersion(ctx context.Context, courtID int64, cfg schedule.Config, now time.Time) (int64, error) {
	version, err := db.Queries.NextScheduleVersion(ctx, courtID)
	if err != nil {
		return 0, fmt.Errorf("next schedule version: %w", err)
	}

	err = db.Queries.InsertScheduleVersion(ctx, ScheduleVersionRow{
		CourtID:                   courtID,
		Version:                   version,
		MatchDurationMinutes:      int64(cfg.MatchDurationMinutes),
		StandardPriceCents:        int64(cfg.Pricing.StandardPrice),
		AdvancePriceCents:         int64(cfg.Pricing.AdvanceBookingPrice),
		AdvanceBookingDays:        int64(cfg.Pricing.AdvanceBookingDays),
		AllowCancellation:         cfg.CancellationPolicy.AllowCancellation,
		CancellationDeadlineHours: int64(cfg.CancellationPolicy.CancellationDeadlineHours),
		RefundPercentage:          int64(cfg.CancellationPolicy.RefundPercentage),
		CreatedAt:                 now.UTC(),
	})
	if err != nil {
		return 0, fmt.Errorf("insert schedule version: %w", err)
	}

	for i, hours := range cfg.WorkingHours {
		err := db.Queries.InsertWorkingHours(ctx, WorkingHoursRow{
			CourtID:     courtID,
			Version:     version,
			DayOfWeek:   int64(i),
			IsOpen:      hours.IsOpen,
			StartMinute: int64(hours.Start),
			EndMinute:   int64(hours.End),
		})
		if err != nil {
			return 0, fmt.Errorf("insert working hours for %s: %w", schedule.Day(i), err)
		}
	}

	for _, blocked := range cfg.BlockedDates {
		err := db.Queries.InsertBlockedDate(ctx, BlockedDateRow{
			CourtID:     courtID,
			Version:     version,
			BlockedDate: blocked.Date.String(),
			Reason:      blocked.Reason,
			IsRecurring: blocked.IsRecurring,
		})
		if err != nil {
			return 0, fmt.Errorf("insert blocked date %s: %w", blocked.Date, err)
		}
	}

	if _, err := db.Queries.SetActiveVersion(ctx, courtID, version, now.UTC()); err != nil {
		return 0, fmt.Errorf("activate schedule version: %w", err)
	}
	return version, nil
}

// Court returns court metadata.
func (db *DB) Court(ctx context.Context, courtID int64) (availability.Court, error) {
	row, err := db.Queries.GetCourt(ctx, courtID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return availability.Court{}, availability.ErrNotFound
		}
		return availability.Court{}, fmt.Errorf("load court: %w", err)
	}
	return courtFromRow(row), nil
}

// ScheduleConfig implements availability.Directory. The active pointer is read once; the
// version rows it names are never modified afterwards.
func (db *DB) ScheduleConfig(ctx context.Context, courtID int64) (availability.Snapshot, error) {
	court, err := db.Court(ctx, courtID)
	if err != nil {
		return availability.Snapshot{}, err
	}
	if court.ActiveVersion == 0 {
		return availability.Snapshot{}, fmt.Errorf("court %d has no active schedule", courtID)
	}

	version, err := db.ScheduleVersion(ctx, courtID, court.ActiveVersion)
	if err != nil {
		return availability.Snapshot{}, err
	}
	return availability.Snapshot{Court: court, Version: version.Version, Config: version.Config}, nil
}

// ScheduleVersion loads one stored version, active or historical.
func (db *DB) ScheduleVersion(ctx context.Context, courtID, version int64) (ScheduleVersion, error) {
	header, err := db.Queries.GetScheduleVersion(ctx, courtID, version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ScheduleVersion{}, availability.ErrNotFound
		}
		return ScheduleVersion{}, fmt.Errorf("load schedule version: %w", err)
	}
	hours, err := db.Queries.ListWorkingHours(ctx, courtID, version)
	if err != nil {
		return ScheduleVersion{}, fmt.Errorf("load working hours: %w", err)
	}
	blocked, err := db.Queries.ListBlockedDates(ctx, courtID, version)
	if err != nil {
		return ScheduleVersion{}, fmt.Errorf("load blocked dates: %w", err)
	}

	cfg, err := configFromRows(header, hours, blocked)
	if err != nil {
		return ScheduleVersion{}, err
	}

	court, err := db.Queries.GetCourt(ctx, courtID)
	if err != nil {
		return ScheduleVersion{}, fmt.Errorf("load court: %w", err)
	}
	return ScheduleVersion{
		CourtID:   courtID,
		Version:   version,
		Active:    court.ActiveVersion.Valid && court.ActiveVersion.Int64 == version,
		CreatedAt: header.CreatedAt,
		Config:    cfg,
	}, nil
}

// ListScheduleVersions returns version headers newest first. Configs are not loaded.
func (db *DB) ListScheduleVersions(ctx context.Context, courtID int64) ([]ScheduleVersion, error) {
	court, err := db.Court(ctx, courtID)
	if err != nil {
		return nil, err
	}
	rows, err := db.Queries.ListScheduleVersions(ctx, courtID)
	if err != nil {
		return nil, fmt.Errorf("list schedule versions: %w", err)
	}
	versions := make([]ScheduleVersion, 0, len(rows))
	for _, row := range rows {
		versions = append(versions, ScheduleVersion{
			CourtID:   courtID,
			Version:   row.Version,
			Active:    row.Version == court.ActiveVersion,
			CreatedAt: row.CreatedAt,
		})
	}
	return versions, nil
}

func courtFromRow(row CourtRow) availability.Court {
	court := availability.Court{ID: row.ID, Name: row.Name, Timezone: row.Timezone}
	if row.ActiveVersion.Valid {
		court.ActiveVersion = row.ActiveVersion.Int64
	}
	return court
}

func configFromRows(header ScheduleVersionRow, hours []WorkingHoursRow, blocked []BlockedDateRow) (schedule.Config, error) {
	if len(hours) != 7 {
		return schedule.Config{}, fmt.Errorf("schedule version %d has %d working-hours rows, want 7", header.Version, len(hours))
	}
	cfg := schedule.Config{
		MatchDurationMinutes: int(header.MatchDurationMinutes),
		Pricing: schedule.Pricing{
			StandardPrice:       schedule.Money(header.StandardPriceCents),
			AdvanceBookingPrice: schedule.Money(header.AdvancePriceCents),
			AdvanceBookingDays:  int(header.AdvanceBookingDays),
		},
		CancellationPolicy: schedule.CancellationPolicy{
			AllowCancellation:         header.AllowCancellation,
			CancellationDeadlineHours: int(header.CancellationDeadlineHours),
			RefundPercentage:          int(header.RefundPercentage),
		},
		BlockedDates: make([]schedule.BlockedDate, 0, len(blocked)),
	}
	for _, row := range hours {
		cfg.WorkingHours[row.DayOfWeek] = schedule.DayHours{
			IsOpen: row.IsOpen,
			Start:  schedule.TimeOfDay(row.StartMinute),
			End:    schedule.TimeOfDay(row.EndMinute),
		}
	}
	for _, row := range blocked {
		date, err := schedule.ParseDate(row.BlockedDate)
		if err != nil {
			return schedule.Config{}, fmt.Errorf("stored blocked date %q: %w", row.BlockedDate, err)
		}
		cfg.BlockedDates = append(cfg.BlockedDates, schedule.BlockedDate{
			Date:        date,
			Reason:      row.Reason,
			IsRecurring: row.IsRecurring,
		})
	}
	return cfg, nil
}
