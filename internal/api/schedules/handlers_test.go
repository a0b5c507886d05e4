package schedules

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/codr1/courtslots/internal/api/apiutil"
	"github.com/codr1/courtslots/internal/schedule"
	"github.com/codr1/courtslots/internal/testutil"
)

var fixedNow = time.Date(2026, time.November, 10, 9, 0, 0, 0, time.UTC)

func newMux(t *testing.T) *http.ServeMux {
	t.Helper()
	InitHandlers(testutil.NewTestDB(t), func() time.Time { return fixedNow })

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/courts", HandleCreateCourt)
	mux.HandleFunc("GET /api/v1/courts/{court_id}/schedule", HandleGetSchedule)
	mux.HandleFunc("PUT /api/v1/courts/{court_id}/schedule", HandleReplaceSchedule)
	mux.HandleFunc("GET /api/v1/courts/{court_id}/schedule/versions", HandleListScheduleVersions)
	mux.HandleFunc("GET /api/v1/courts/{court_id}/schedule/versions/{version}", HandleGetScheduleVersion)
	return mux
}

func serve(mux *http.ServeMux, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func scheduleJSON(t *testing.T, cfg schedule.Config) string {
	t.Helper()
	payload, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	return string(payload)
}

func createCourt(t *testing.T, mux *http.ServeMux, cfg schedule.Config) courtResponse {
	t.Helper()
	rec := serve(mux, http.MethodPost, "/api/v1/courts",
		`{"name":"Center Court","timezone":"America/Chicago","schedule":`+scheduleJSON(t, cfg)+`}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create court status = %d body %s", rec.Code, rec.Body.String())
	}
	var court courtResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &court); err != nil {
		t.Fatalf("decode court: %v", err)
	}
	return court
}

func courtPath(id int64, suffix string) string {
	return "/api/v1/courts/" + strconv.FormatInt(id, 10) + suffix
}

func TestCreateCourtAndReadSchedule(t *testing.T) {
	mux := newMux(t)
	cfg := testutil.WeekdayConfig(schedule.At(8, 0), schedule.At(22, 0), 90)
	court := createCourt(t, mux, cfg)

	if court.ActiveVersion != 1 || court.Timezone != "America/Chicago" {
		t.Fatalf("unexpected court: %+v", court)
	}

	rec := serve(mux, http.MethodGet, courtPath(court.ID, "/schedule"), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got scheduleResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Version != 1 || !got.Active || !got.CreatedAt.Equal(fixedNow) {
		t.Fatalf("unexpected schedule header: %+v", got)
	}
	if got.Schedule.MatchDurationMinutes != 90 || got.Schedule.WorkingHours.For(schedule.Monday).Start != schedule.At(8, 0) {
		t.Fatalf("unexpected schedule: %+v", got.Schedule)
	}
	if got.Schedule.WorkingHours.For(schedule.Sunday).IsOpen {
		t.Fatal("sunday should be closed")
	}
}

func TestCreateCourtRejects(t *testing.T) {
	mux := newMux(t)
	valid := scheduleJSON(t, testutil.WeekdayConfig(schedule.At(8, 0), schedule.At(22, 0), 90))
	invalidCfg := testutil.WeekdayConfig(schedule.At(22, 0), schedule.At(8, 0), 90)

	tests := []struct {
		name      string
		body      string
		wantKind  string
		wantField string
	}{
		{name: "missing name", body: `{"schedule":` + valid + `}`, wantKind: apiutil.KindInvalidRequest},
		{name: "unknown timezone", body: `{"name":"A","timezone":"Mars/Olympus","schedule":` + valid + `}`, wantKind: "invalid_config", wantField: "timezone"},
		{name: "inverted hours", body: `{"name":"A","schedule":` + scheduleJSON(t, invalidCfg) + `}`, wantKind: "invalid_config", wantField: "workingHours.monday"},
		{name: "unknown field", body: `{"name":"A","surface":"clay","schedule":` + valid + `}`, wantKind: apiutil.KindInvalidRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := serve(mux, http.MethodPost, "/api/v1/courts", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
			}
			var body apiutil.ErrorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.ErrorKind != tc.wantKind {
				t.Fatalf("errorKind = %q, want %q", body.ErrorKind, tc.wantKind)
			}
			if tc.wantField == "" {
				return
			}
			for _, f := range body.Fields {
				if f.Field == tc.wantField {
					return
				}
			}
			t.Fatalf("expected field %q in %+v", tc.wantField, body.Fields)
		})
	}
}

func TestReplaceScheduleCreatesVersion(t *testing.T) {
	mux := newMux(t)
	court := createCourt(t, mux, testutil.WeekdayConfig(schedule.At(8, 0), schedule.At(22, 0), 90))

	updated := testutil.WeekdayConfig(schedule.At(7, 0), schedule.At(21, 0), 60)
	updated.BlockedDates = []schedule.BlockedDate{{Date: schedule.NewDate(2026, time.December, 25), Reason: "Christmas", IsRecurring: true}}

	rec := serve(mux, http.MethodPut, courtPath(court.ID, "/schedule"), scheduleJSON(t, updated))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
	}
	var replaced replaceResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &replaced); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if replaced.Version != 2 {
		t.Fatalf("expected version 2, got %d", replaced.Version)
	}

	rec = serve(mux, http.MethodGet, courtPath(court.ID, "/schedule/versions"), "")
	var versions versionsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &versions); err != nil {
		t.Fatalf("decode versions: %v", err)
	}
	if len(versions.Versions) != 2 || versions.Versions[0].Version != 2 || !versions.Versions[0].Active || versions.Versions[1].Active {
		t.Fatalf("unexpected versions: %+v", versions.Versions)
	}

	rec = serve(mux, http.MethodGet, courtPath(court.ID, "/schedule/versions/1"), "")
	var first scheduleResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &first); err != nil {
		t.Fatalf("decode version 1: %v", err)
	}
	if first.Active || first.Schedule.MatchDurationMinutes != 90 || len(first.Schedule.BlockedDates) != 0 {
		t.Fatalf("version 1 must be unchanged: %+v", first)
	}

	rec = serve(mux, http.MethodGet, courtPath(court.ID, "/schedule"), "")
	var active scheduleResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &active); err != nil {
		t.Fatalf("decode active: %v", err)
	}
	if active.Version != 2 || len(active.Schedule.BlockedDates) != 1 {
		t.Fatalf("unexpected active schedule: %+v", active)
	}
}

func TestReplaceScheduleInvalidKeepsActiveVersion(t *testing.T) {
	mux := newMux(t)
	court := createCourt(t, mux, testutil.WeekdayConfig(schedule.At(8, 0), schedule.At(22, 0), 90))

	bad := testutil.WeekdayConfig(schedule.At(8, 0), schedule.At(22, 0), 0)
	rec := serve(mux, http.MethodPut, courtPath(court.ID, "/schedule"), scheduleJSON(t, bad))
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "matchDurationMinutes") {
		t.Fatalf("expected field error, got %d %s", rec.Code, rec.Body.String())
	}

	rec = serve(mux, http.MethodGet, courtPath(court.ID, "/schedule/versions"), "")
	var versions versionsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &versions); err != nil {
		t.Fatalf("decode versions: %v", err)
	}
	if len(versions.Versions) != 1 {
		t.Fatalf("rejected config must not create a version, got %+v", versions.Versions)
	}
}

func TestUnknownCourt(t *testing.T) {
	mux := newMux(t)
	valid := scheduleJSON(t, testutil.WeekdayConfig(schedule.At(8, 0), schedule.At(22, 0), 90))

	for _, tc := range []struct{ method, path, body string }{
		{http.MethodGet, "/api/v1/courts/42/schedule", ""},
		{http.MethodPut, "/api/v1/courts/42/schedule", valid},
		{http.MethodGet, "/api/v1/courts/42/schedule/versions", ""},
		{http.MethodGet, "/api/v1/courts/42/schedule/versions/1", ""},
	} {
		rec := serve(mux, tc.method, tc.path, tc.body)
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s %s: status = %d, want 404", tc.method, tc.path, rec.Code)
		}
	}
}
