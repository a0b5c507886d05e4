package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakePurger struct {
	mu      sync.Mutex
	cutoffs []time.Time
	deleted int64
	err     error
}

func (f *fakePurger) PurgeIdempotencyKeys(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs = append(f.cutoffs, cutoff)
	return f.deleted, f.err
}

func (f *fakePurger) calls() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Time(nil), f.cutoffs...)
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := New()
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	t.Cleanup(func() { _ = svc.Stop() })
	return svc
}

func TestAddJobValidation(t *testing.T) {
	svc := newTestService(t)

	if _, err := svc.AddIntervalJob(" ", time.Minute, func() {}); !errors.Is(err, ErrEmptyJobName) {
		t.Fatalf("expected ErrEmptyJobName, got %v", err)
	}
	if _, err := svc.AddIntervalJob("job", 0, func() {}); !errors.Is(err, ErrBadInterval) {
		t.Fatalf("expected ErrBadInterval, got %v", err)
	}
	if _, err := svc.AddCronJob("job", "", func() {}); !errors.Is(err, ErrEmptyCronExpr) {
		t.Fatalf("expected ErrEmptyCronExpr, got %v", err)
	}
	if _, err := svc.AddCronJob("job", "not a cron", func() {}); err == nil {
		t.Fatal("expected invalid cron expression to be rejected")
	}

	var nilService *Service
	if _, err := nilService.AddIntervalJob("job", time.Minute, func() {}); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
}

func TestPurgeOnce(t *testing.T) {
	cutoff := time.Date(2026, time.November, 1, 0, 0, 0, 0, time.UTC)

	purger := &fakePurger{deleted: 3}
	deleted, err := purgeOnce(context.Background(), purger, cutoff)
	if err != nil || deleted != 3 {
		t.Fatalf("purgeOnce = %d, %v", deleted, err)
	}
	if calls := purger.calls(); len(calls) != 1 || !calls[0].Equal(cutoff) {
		t.Fatalf("unexpected cutoffs: %v", calls)
	}

	failing := &fakePurger{err: errors.New("database is locked")}
	if _, err := purgeOnce(context.Background(), failing, cutoff); err == nil {
		t.Fatal("expected purge error to be returned")
	}
}

func TestRegisterIdempotencyPurgeRuns(t *testing.T) {
	svc := newTestService(t)
	purger := &fakePurger{}
	now := time.Date(2026, time.November, 2, 12, 0, 0, 0, time.UTC)

	err := RegisterIdempotencyPurge(svc, purger, 24*time.Hour, 10*time.Millisecond, func() time.Time { return now })
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	svc.Start()

	deadline := time.After(2 * time.Second)
	for len(purger.calls()) == 0 {
		select {
		case <-deadline:
			t.Fatal("purge job did not run")
		case <-time.After(5 * time.Millisecond):
		}
	}
	if got := purger.calls()[0]; !got.Equal(now.Add(-24 * time.Hour)) {
		t.Fatalf("cutoff = %v, want %v", got, now.Add(-24*time.Hour))
	}
}

func TestRegisterIdempotencyPurgeValidation(t *testing.T) {
	svc := newTestService(t)
	if err := RegisterIdempotencyPurge(svc, nil, time.Hour, time.Hour, nil); err == nil {
		t.Fatal("expected error without purger")
	}
	if err := RegisterIdempotencyPurge(svc, &fakePurger{}, 0, time.Hour, nil); err == nil {
		t.Fatal("expected error without retention")
	}
}
