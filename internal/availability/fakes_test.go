package availability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/codr1/courtslots/internal/schedule"
)

// 2026-11-16 is a Monday.
var targetMonday = schedule.NewDate(2026, time.November, 16)

func exampleConfig() schedule.Config {
	var cfg schedule.Config
	cfg.WorkingHours[schedule.Monday] = schedule.DayHours{IsOpen: true, Start: schedule.At(8, 0), End: schedule.At(22, 0)}
	cfg.MatchDurationMinutes = 90
	cfg.Pricing = schedule.Pricing{
		StandardPrice:       schedule.Dollars(15),
		AdvanceBookingPrice: schedule.Dollars(200),
		AdvanceBookingDays:  30,
	}
	return cfg
}

func daysBefore(date schedule.Date, days int) time.Time {
	return schedule.At(10, 0).On(date.AddDays(-days), time.UTC)
}

type fakeDirectory struct {
	mu        sync.Mutex
	snapshots map[int64]Snapshot
	err       error
}

func newFakeDirectory(courtID int64, cfg schedule.Config) *fakeDirectory {
	return &fakeDirectory{snapshots: map[int64]Snapshot{
		courtID: {
			Court:   Court{ID: courtID, Name: "Court 1", Timezone: "UTC", ActiveVersion: 1},
			Version: 1,
			Config:  cfg,
		},
	}}
}

func (d *fakeDirectory) ScheduleConfig(_ context.Context, courtID int64) (Snapshot, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return Snapshot{}, d.err
	}
	snap, ok := d.snapshots[courtID]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return snap, nil
}

type storedBooking struct {
	id     string
	commit Commit
}

type fakeStore struct {
	mu       sync.Mutex
	bookings []storedBooking
	listErr  error
	commitFn func(Commit) error
	nextID   int
}

func (s *fakeStore) ListConfirmed(_ context.Context, courtID int64, date schedule.Date) ([]Interval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []Interval
	for _, b := range s.bookings {
		if b.commit.CourtID == courtID && b.commit.Date == date {
			out = append(out, Interval{Start: b.commit.Start, End: b.commit.End})
		}
	}
	return out, nil
}

func (s *fakeStore) Commit(_ context.Context, c Commit) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.commitFn != nil {
		if err := s.commitFn(c); err != nil {
			return "", err
		}
	}
	for _, b := range s.bookings {
		if b.commit.CourtID == c.CourtID && b.commit.Date == c.Date && c.Start < b.commit.End && b.commit.Start < c.End {
			return "", ErrConflict
		}
	}
	s.nextID++
	id := fmt.Sprintf("booking-%d", s.nextID)
	s.bookings = append(s.bookings, storedBooking{id: id, commit: c})
	return id, nil
}

func (s *fakeStore) book(courtID int64, date schedule.Date, start, end schedule.TimeOfDay) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.bookings = append(s.bookings, storedBooking{
		id:     fmt.Sprintf("booking-%d", s.nextID),
		commit: Commit{CourtID: courtID, Date: date, Start: start, End: end},
	})
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.bookings)
}

type recordingListener struct {
	mu   sync.Mutex
	seen []Confirmation
}

func (l *recordingListener) BookingConfirmed(_ context.Context, c Confirmation) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seen = append(l.seen, c)
}

type mutexLocker struct {
	mu sync.Mutex
}

func (l *mutexLocker) Lock(context.Context, string) (func(), error) {
	l.mu.Lock()
	return l.mu.Unlock, nil
}

// lockStateListener records whether the slot lock was free while it ran.
type lockStateListener struct {
	locker *mutexLocker
	free   []bool
}

func (l *lockStateListener) BookingConfirmed(context.Context, Confirmation) {
	free := l.locker.mu.TryLock()
	if free {
		l.locker.mu.Unlock()
	}
	l.free = append(l.free, free)
}
