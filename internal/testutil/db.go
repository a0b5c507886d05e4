package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/codr1/courtslots/internal/availability"
	"github.com/codr1/courtslots/internal/db"
	"github.com/codr1/courtslots/internal/schedule"
)

// NewTestDB creates a temporary SQLite database with migrations applied.
func NewTestDB(t *testing.T) *db.DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	database, err := db.New(dbPath)
	if err != nil {
		t.Fatalf("create test db: %v", err)
	}
	t.Cleanup(func() {
		_ = database.Close()
	})

	return database
}

// WeekdayConfig opens Monday through Friday from open to close with the given match length.
func WeekdayConfig(open, close schedule.TimeOfDay, matchMinutes int) schedule.Config {
	var cfg schedule.Config
	for d := schedule.Monday; d <= schedule.Friday; d++ {
		cfg.WorkingHours[d] = schedule.DayHours{IsOpen: true, Start: open, End: close}
	}
	cfg.MatchDurationMinutes = matchMinutes
	cfg.Pricing = schedule.Pricing{
		StandardPrice:       schedule.Dollars(15),
		AdvanceBookingPrice: schedule.Dollars(12),
		AdvanceBookingDays:  14,
	}
	cfg.CancellationPolicy = schedule.CancellationPolicy{
		AllowCancellation:         true,
		CancellationDeadlineHours: 24,
		RefundPercentage:          100,
	}
	return cfg
}

// CreateCourt inserts a UTC court with cfg as its first schedule.
func CreateCourt(t *testing.T, database *db.DB, name string, cfg schedule.Config) availability.Court {
	t.Helper()

	court, err := database.CreateCourt(context.Background(), name, "UTC", cfg, time.Now())
	if err != nil {
		t.Fatalf("create court: %v", err)
	}
	return court
}
