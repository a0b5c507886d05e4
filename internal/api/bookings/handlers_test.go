package bookings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/codr1/courtslots/internal/availability"
	"github.com/codr1/courtslots/internal/db"
	"github.com/codr1/courtslots/internal/email"
	"github.com/codr1/courtslots/internal/ratelimit"
	"github.com/codr1/courtslots/internal/schedule"
	"github.com/codr1/courtslots/internal/slotlock"
	"github.com/codr1/courtslots/internal/testutil"
)

// 2026-11-16 is a Monday; the clock sits six days earlier.
var (
	monday = schedule.NewDate(2026, time.November, 16)
	now    = time.Date(2026, time.November, 10, 9, 0, 0, 0, time.UTC)
)

type recordingNotifier struct {
	mu        sync.Mutex
	cancelled []email.CancellationDetails
}

func (n *recordingNotifier) BookingCancelled(_ context.Context, _ string, details email.CancellationDetails) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cancelled = append(n.cancelled, details)
}

type fixture struct {
	db       *db.DB
	court    availability.Court
	mux      *http.ServeMux
	notifier *recordingNotifier
	clock    *time.Time
}

func newFixture(t *testing.T, limiter *ratelimit.Limiter) *fixture {
	t.Helper()

	database := testutil.NewTestDB(t)
	court := testutil.CreateCourt(t, database, "Court 1", testutil.WeekdayConfig(schedule.At(8, 0), schedule.At(22, 0), 90))

	clock := now
	f := &fixture{
		db:       database,
		court:    court,
		mux:      http.NewServeMux(),
		notifier: &recordingNotifier{},
		clock:    &clock,
	}
	InitHandlers(Deps{
		DB:       database,
		Locker:   slotlock.NewMemory(),
		Limiter:  limiter,
		Notifier: f.notifier,
		Now:      func() time.Time { return *f.clock },
	})
	f.mux.HandleFunc("GET /api/v1/courts/{court_id}/available-slots", HandleAvailableSlots)
	f.mux.HandleFunc("POST /api/v1/courts/{court_id}/bookings", HandleCreateBooking)
	f.mux.HandleFunc("POST /api/v1/bookings/{booking_id}/cancel", HandleCancelBooking)
	return f
}

// reinit swaps the booking handlers' collaborators while keeping the fixture's database and clock.
func (f *fixture) reinit(deps Deps) {
	deps.DB = f.db
	if deps.Locker == nil {
		deps.Locker = slotlock.NewMemory()
	}
	deps.Notifier = f.notifier
	deps.Now = func() time.Time { return *f.clock }
	InitHandlers(deps)
}

func (f *fixture) do(t *testing.T, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) slotsPath(date string) string {
	return "/api/v1/courts/" + itoa(f.court.ID) + "/available-slots?date=" + date
}

func (f *fixture) bookingsPath() string {
	return "/api/v1/courts/" + itoa(f.court.ID) + "/bookings"
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
	return out
}

type errorBody struct {
	ErrorKind string `json:"errorKind"`
	Message   string `json:"message"`
}

func TestAvailableSlots(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodGet, f.slotsPath("2026-11-16"), "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
	}
	resp := decode[availabilityResponse](t, rec)
	if resp.MatchDurationMinutes != 90 || resp.ConfigVersion != 1 || len(resp.Slots) != 9 {
		t.Fatalf("unexpected availability: %+v", resp)
	}
	first := resp.Slots[0]
	if first.StartTime != schedule.At(8, 0) || first.StartLabel != "8:00 AM" || first.EndLabel != "9:30 AM" {
		t.Fatalf("unexpected first slot: %+v", first)
	}
	if first.PriceCents != 1500 || first.PriceDisplay != "$15.00" || first.PriceLabel != "Standard rate" {
		t.Fatalf("unexpected price: %+v", first)
	}
	if last := resp.Slots[8]; last.EndTime != schedule.At(21, 30) {
		t.Fatalf("last slot should end at 21:30, got %s", last.EndTime)
	}
}

func TestAvailableSlotsErrors(t *testing.T) {
	f := newFixture(t, nil)

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantKind   string
	}{
		{"missing date", "/api/v1/courts/" + itoa(f.court.ID) + "/available-slots", http.StatusBadRequest, "invalid_request"},
		{"bad date", f.slotsPath("16-11-2026"), http.StatusBadRequest, "invalid_request"},
		{"bad court id", "/api/v1/courts/abc/available-slots?date=2026-11-16", http.StatusBadRequest, "invalid_request"},
		{"unknown court", "/api/v1/courts/999/available-slots?date=2026-11-16", http.StatusNotFound, "not_found"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.do(t, http.MethodGet, tc.path, "", nil)
			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tc.wantStatus, rec.Body.String())
			}
			if body := decode[errorBody](t, rec); body.ErrorKind != tc.wantKind {
				t.Fatalf("errorKind = %q, want %q", body.ErrorKind, tc.wantKind)
			}
		})
	}
}

func TestAvailableSlotsClosedDayIsEmpty(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodGet, f.slotsPath("2026-11-15"), "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"slots":[]`) {
		t.Fatalf("expected empty slots array, got %s", rec.Body.String())
	}
}

func TestCreateBookingFlow(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, f.bookingsPath(), `{"date":"2026-11-16","startTime":"09:30","customerEmail":"player@example.com"}`, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
	}
	booked := decode[bookingResponse](t, rec)
	if booked.BookingID == "" || booked.EndTime != schedule.At(11, 0) || booked.PriceCents != 1500 {
		t.Fatalf("unexpected booking: %+v", booked)
	}

	resp := decode[availabilityResponse](t, f.do(t, http.MethodGet, f.slotsPath("2026-11-16"), "", nil))
	if len(resp.Slots) != 8 {
		t.Fatalf("expected 8 slots after booking, got %d", len(resp.Slots))
	}
	for _, slot := range resp.Slots {
		if slot.StartTime == schedule.At(9, 30) {
			t.Fatal("booked slot still offered")
		}
	}

	rec = f.do(t, http.MethodPost, f.bookingsPath(), `{"date":"2026-11-16","startTime":"9:30 AM"}`, nil)
	if rec.Code != http.StatusConflict || decode[errorBody](t, rec).ErrorKind != "slot_taken" {
		t.Fatalf("expected slot_taken 409, got %d %s", rec.Code, rec.Body.String())
	}

	rec = f.do(t, http.MethodPost, f.bookingsPath(), `{"date":"2026-11-16","startTime":"08:30"}`, nil)
	if rec.Code != http.StatusUnprocessableEntity || decode[errorBody](t, rec).ErrorKind != "slot_not_offered" {
		t.Fatalf("expected slot_not_offered 422, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestCreateBookingRejectsBadRequests(t *testing.T) {
	f := newFixture(t, nil)

	bodies := map[string]string{
		"missing start": `{"date":"2026-11-16"}`,
		"bad email":     `{"date":"2026-11-16","startTime":"09:30","customerEmail":"not-an-email"}`,
		"client price":  `{"date":"2026-11-16","startTime":"09:30","price":1}`,
		"empty body":    ``,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, f.bookingsPath(), body, nil)
			if rec.Code != http.StatusBadRequest || decode[errorBody](t, rec).ErrorKind != "invalid_request" {
				t.Fatalf("expected 400 invalid_request, got %d %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestCreateBookingIdempotencyReplay(t *testing.T) {
	f := newFixture(t, nil)
	headers := map[string]string{idempotencyHeader: "attempt-1"}
	body := `{"date":"2026-11-16","startTime":"11:00"}`

	first := f.do(t, http.MethodPost, f.bookingsPath(), body, headers)
	if first.Code != http.StatusCreated {
		t.Fatalf("first status = %d %s", first.Code, first.Body.String())
	}
	second := f.do(t, http.MethodPost, f.bookingsPath(), body, headers)
	if second.Code != http.StatusCreated {
		t.Fatalf("replay status = %d %s", second.Code, second.Body.String())
	}
	if second.Header().Get(replayedHeader) != "true" {
		t.Fatal("expected replay header")
	}
	if decode[bookingResponse](t, first).BookingID != decode[bookingResponse](t, second).BookingID {
		t.Fatal("replay should return the original booking")
	}

	intervals, err := f.db.ListConfirmed(context.Background(), f.court.ID, monday)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(intervals) != 1 {
		t.Fatalf("expected exactly one booking, got %d", len(intervals))
	}

	other := f.do(t, http.MethodPost, f.bookingsPath(), body, map[string]string{idempotencyHeader: "attempt-2"})
	if other.Code != http.StatusConflict {
		t.Fatalf("new key should run a fresh attempt, got %d", other.Code)
	}
}

// gatedLocker holds the first Lock call until gate is closed.
type gatedLocker struct {
	inner   availability.Locker
	once    sync.Once
	entered chan struct{}
	gate    chan struct{}
}

func (l *gatedLocker) Lock(ctx context.Context, key string) (func(), error) {
	first := false
	l.once.Do(func() { first = true })
	if first {
		close(l.entered)
		select {
		case <-l.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return l.inner.Lock(ctx, key)
}

func TestCreateBookingSameKeyWhileFirstInFlight(t *testing.T) {
	f := newFixture(t, nil)
	locker := &gatedLocker{inner: slotlock.NewMemory(), entered: make(chan struct{}), gate: make(chan struct{})}
	f.reinit(Deps{Locker: locker})

	headers := map[string]string{idempotencyHeader: "same-key"}
	body := `{"date":"2026-11-16","startTime":"11:00"}`
	results := make(chan *httptest.ResponseRecorder, 2)

	go func() { results <- f.do(t, http.MethodPost, f.bookingsPath(), body, headers) }()
	<-locker.entered
	go func() { results <- f.do(t, http.MethodPost, f.bookingsPath(), body, headers) }()
	time.Sleep(50 * time.Millisecond)
	close(locker.gate)

	first, second := <-results, <-results
	if first.Code != http.StatusCreated || second.Code != http.StatusCreated {
		t.Fatalf("both requests should see the booking, got %d %s and %d %s",
			first.Code, first.Body.String(), second.Code, second.Body.String())
	}
	if first.Body.String() != second.Body.String() {
		t.Fatalf("same key produced different bodies: %s vs %s", first.Body.String(), second.Body.String())
	}
	replays := 0
	for _, rec := range []*httptest.ResponseRecorder{first, second} {
		if rec.Header().Get(replayedHeader) == "true" {
			replays++
		}
	}
	if replays != 1 {
		t.Fatalf("expected exactly one replayed response, got %d", replays)
	}

	intervals, err := f.db.ListConfirmed(context.Background(), f.court.ID, monday)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(intervals) != 1 {
		t.Fatalf("expected exactly one booking, got %d", len(intervals))
	}
}

func TestCreateBookingReplaysCommittedBookingWithoutStoredResponse(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	scope := "POST /api/v1/courts/" + itoa(f.court.ID) + "/bookings"

	if _, err := f.db.ClaimIdempotencyKey(ctx, scope, "interrupted", now, time.Minute); err != nil {
		t.Fatalf("claim: %v", err)
	}
	bookingID, err := f.db.Commit(ctx, availability.Commit{
		CourtID:          f.court.ID,
		Date:             monday,
		Start:            schedule.At(11, 0),
		End:              schedule.At(12, 30),
		Price:            schedule.Dollars(15),
		PriceLabel:       "Standard rate",
		ConfigVersion:    1,
		CreatedAt:        now,
		IdempotencyScope: scope,
		IdempotencyKey:   "interrupted",
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	headers := map[string]string{idempotencyHeader: "interrupted"}
	body := `{"date":"2026-11-16","startTime":"11:00"}`
	rec := f.do(t, http.MethodPost, f.bookingsPath(), body, headers)
	if rec.Code != http.StatusCreated || rec.Header().Get(replayedHeader) != "true" {
		t.Fatalf("expected replayed 201, got %d %s", rec.Code, rec.Body.String())
	}
	resp := decode[bookingResponse](t, rec)
	if resp.BookingID != bookingID || resp.PriceCents != 1500 || resp.EndTime != schedule.At(12, 30) {
		t.Fatalf("unexpected replay: %+v", resp)
	}

	again := f.do(t, http.MethodPost, f.bookingsPath(), body, headers)
	if again.Code != http.StatusCreated || again.Body.String() != rec.Body.String() {
		t.Fatalf("second replay differs: %d %s", again.Code, again.Body.String())
	}
}

func TestCreateBookingRateLimitedReleasesKey(t *testing.T) {
	limiter := ratelimit.New(&ratelimit.Config{Window: time.Minute, MaxPerIP: 1, MaxPerCustomer: 10})
	t.Cleanup(limiter.Close)
	f := newFixture(t, limiter)

	if rec := f.do(t, http.MethodPost, f.bookingsPath(), `{"date":"2026-11-16","startTime":"08:00"}`, nil); rec.Code != http.StatusCreated {
		t.Fatalf("first status = %d", rec.Code)
	}
	rec := f.do(t, http.MethodPost, f.bookingsPath(), `{"date":"2026-11-16","startTime":"09:30"}`, map[string]string{idempotencyHeader: "limited"})
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}

	scope := "POST /api/v1/courts/" + itoa(f.court.ID) + "/bookings"
	claim, err := f.db.ClaimIdempotencyKey(context.Background(), scope, "limited", now, time.Minute)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claim.State != db.IdempotencyClaimed {
		t.Fatalf("rate limited request should release its key, got state %v", claim.State)
	}
}

func TestInvalidRequestsDoNotSpendCustomerBudget(t *testing.T) {
	limiter := ratelimit.New(&ratelimit.Config{Window: time.Minute, MaxPerIP: 100, MaxPerCustomer: 1})
	t.Cleanup(limiter.Close)
	f := newFixture(t, limiter)

	for i := 0; i < 3; i++ {
		rec := f.do(t, http.MethodPost, f.bookingsPath(), `{"date":"2026-11-16","startTime":"25:00","customerEmail":"victim@example.com"}`, nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("invalid request status = %d, want 400", rec.Code)
		}
	}
	rec := f.do(t, http.MethodPost, f.bookingsPath(), `{"date":"2026-11-16","startTime":"08:00","customerEmail":"victim@example.com"}`, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("valid booking should still be allowed, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestCreateBookingRateLimited(t *testing.T) {
	limiter := ratelimit.New(&ratelimit.Config{Window: time.Minute, MaxPerIP: 1, MaxPerCustomer: 10})
	t.Cleanup(limiter.Close)
	f := newFixture(t, limiter)

	if rec := f.do(t, http.MethodPost, f.bookingsPath(), `{"date":"2026-11-16","startTime":"08:00"}`, nil); rec.Code != http.StatusCreated {
		t.Fatalf("first status = %d", rec.Code)
	}
	rec := f.do(t, http.MethodPost, f.bookingsPath(), `{"date":"2026-11-16","startTime":"09:30"}`, nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
	if decode[errorBody](t, rec).ErrorKind != "rate_limited" {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
}

func TestConcurrentBookingRequestsOneWins(t *testing.T) {
	f := newFixture(t, nil)

	const attempts = 8
	codes := make(chan int, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := f.do(t, http.MethodPost, f.bookingsPath(), `{"date":"2026-11-16","startTime":"14:00"}`, nil)
			codes <- rec.Code
		}()
	}
	wg.Wait()
	close(codes)

	created, taken := 0, 0
	for code := range codes {
		switch code {
		case http.StatusCreated:
			created++
		case http.StatusConflict:
			taken++
		default:
			t.Errorf("unexpected status %d", code)
		}
	}
	if created != 1 || taken != attempts-1 {
		t.Fatalf("created=%d taken=%d", created, taken)
	}
}

func TestCancelBooking(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, f.bookingsPath(), `{"date":"2026-11-16","startTime":"17:00","customerEmail":"player@example.com"}`, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("book status = %d", rec.Code)
	}
	bookingID := decode[bookingResponse](t, rec).BookingID

	rec = f.do(t, http.MethodPost, "/api/v1/bookings/"+bookingID+"/cancel", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel status = %d %s", rec.Code, rec.Body.String())
	}
	resp := decode[cancelResponse](t, rec)
	if !resp.Quote.Allowed || resp.Quote.Refund != schedule.Dollars(15) || resp.Status != db.BookingStatusCancelled {
		t.Fatalf("unexpected cancel response: %+v", resp)
	}
	if len(f.notifier.cancelled) != 1 || f.notifier.cancelled[0].Refund != schedule.Dollars(15) {
		t.Fatalf("expected one cancellation notice, got %+v", f.notifier.cancelled)
	}

	slots := decode[availabilityResponse](t, f.do(t, http.MethodGet, f.slotsPath("2026-11-16"), "", nil))
	if len(slots.Slots) != 9 {
		t.Fatalf("cancelled slot should be offered again, got %d slots", len(slots.Slots))
	}

	rec = f.do(t, http.MethodPost, "/api/v1/bookings/"+bookingID+"/cancel", "", nil)
	if rec.Code != http.StatusConflict || decode[errorBody](t, rec).ErrorKind != "already_cancelled" {
		t.Fatalf("expected 409 already_cancelled, got %d %s", rec.Code, rec.Body.String())
	}

	rec = f.do(t, http.MethodPost, "/api/v1/bookings/does-not-exist/cancel", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown booking, got %d", rec.Code)
	}
}

func TestCancelBookingInsideDeadline(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, f.bookingsPath(), `{"date":"2026-11-16","startTime":"18:30"}`, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("book status = %d", rec.Code)
	}
	bookingID := decode[bookingResponse](t, rec).BookingID

	*f.clock = time.Date(2026, time.November, 16, 7, 0, 0, 0, time.UTC)
	rec = f.do(t, http.MethodPost, "/api/v1/bookings/"+bookingID+"/cancel", "", nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
	var resp cancelRejectedResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ErrorKind != "cancellation_not_allowed" || resp.Quote.Allowed {
		t.Fatalf("unexpected rejection: %+v", resp)
	}

	booking, err := f.db.GetBooking(context.Background(), bookingID)
	if err != nil {
		t.Fatalf("get booking: %v", err)
	}
	if booking.Status != db.BookingStatusConfirmed {
		t.Fatalf("refused cancellation must leave booking confirmed, got %s", booking.Status)
	}
}
