// internal/api/schedules/handlers.go
package schedules

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/courtslots/internal/api/apiutil"
	"github.com/codr1/courtslots/internal/availability"
	"github.com/codr1/courtslots/internal/db"
	"github.com/codr1/courtslots/internal/schedule"
)

const (
	scheduleQueryTimeout = 5 * time.Second
	maxCourtNameLength   = 100
)

var (
	store   *db.DB
	nowFunc = time.Now
	storeMu sync.RWMutex
)

type createCourtRequest struct {
	Name     string          `json:"name"`
	Timezone string          `json:"timezone"`
	Schedule schedule.Config `json:"schedule"`
}

type courtResponse struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	Timezone      string `json:"timezone"`
	ActiveVersion int64  `json:"activeVersion"`
}

type scheduleResponse struct {
	CourtID   int64           `json:"courtId"`
	Version   int64           `json:"version"`
	Active    bool            `json:"active"`
	CreatedAt time.Time       `json:"createdAt"`
	Schedule  schedule.Config `json:"schedule"`
}

type versionSummary struct {
	Version   int64     `json:"version"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
}

type versionsResponse struct {
	CourtID  int64            `json:"courtId"`
	Versions []versionSummary `json:"versions"`
}

type replaceResponse struct {
	CourtID int64 `json:"courtId"`
	Version int64 `json:"version"`
}

// InitHandlers must be called during server startup before handling requests. A nil now uses
// time.Now.
func InitHandlers(database *db.DB, now func() time.Time) {
	if database == nil {
		return
	}
	if now == nil {
		now = time.Now
	}
	storeMu.Lock()
	store = database
	nowFunc = now
	storeMu.Unlock()
}

func loadStore() (*db.DB, func() time.Time) {
	storeMu.RLock()
	defer storeMu.RUnlock()
	return store, nowFunc
}

// POST /api/v1/courts
func HandleCreateCourt(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	database, now := loadStore()
	if database == nil {
		logger.Error().Msg("Database not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	var req createCourtRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, r, apiutil.BadRequest(err))
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		apiutil.WriteError(w, r, apiutil.BadRequest(apiutil.FieldError{Field: "name", Reason: "is required"}))
		return
	}
	if len(req.Name) > maxCourtNameLength {
		apiutil.WriteError(w, r, apiutil.BadRequest(apiutil.FieldError{Field: "name", Reason: "must be at most 100 characters"}))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), scheduleQueryTimeout)
	defer cancel()

	court, err := database.CreateCourt(ctx, req.Name, strings.TrimSpace(req.Timezone), req.Schedule, now())
	if err != nil {
		writeStoreError(w, r, err)
		return
	}

	logger.Info().Int64("court_id", court.ID).Str("name", court.Name).Msg("Court created")
	if err := apiutil.WriteJSON(w, http.StatusCreated, courtResponse{
		ID:            court.ID,
		Name:          court.Name,
		Timezone:      court.Timezone,
		ActiveVersion: court.ActiveVersion,
	}); err != nil {
		logger.Error().Err(err).Msg("Failed to write court response")
	}
}

// GET /api/v1/courts/{court_id}/schedule
func HandleGetSchedule(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	database, _ := loadStore()
	if database == nil {
		logger.Error().Msg("Database not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	courtID, err := apiutil.PathID(r, "court_id")
	if err != nil {
		apiutil.WriteError(w, r, apiutil.BadRequest(err))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), scheduleQueryTimeout)
	defer cancel()

	court, err := database.Court(ctx, courtID)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	version, err := database.ScheduleVersion(ctx, courtID, court.ActiveVersion)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeSchedule(w, r, version)
}

// GET /api/v1/courts/{court_id}/schedule/versions/{version}
func HandleGetScheduleVersion(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	database, _ := loadStore()
	if database == nil {
		logger.Error().Msg("Database not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	courtID, err := apiutil.PathID(r, "court_id")
	if err != nil {
		apiutil.WriteError(w, r, apiutil.BadRequest(err))
		return
	}
	versionID, err := apiutil.PathID(r, "version")
	if err != nil {
		apiutil.WriteError(w, r, apiutil.BadRequest(err))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), scheduleQueryTimeout)
	defer cancel()

	version, err := database.ScheduleVersion(ctx, courtID, versionID)
	if err != nil {
		if errors.Is(err, availability.ErrNotFound) {
			apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusNotFound, Kind: availability.KindNotFound, Message: "schedule version not found", Err: err})
			return
		}
		writeStoreError(w, r, err)
		return
	}
	writeSchedule(w, r, version)
}

// PUT /api/v1/courts/{court_id}/schedule
func HandleReplaceSchedule(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	database, now := loadStore()
	if database == nil {
		logger.Error().Msg("Database not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	courtID, err := apiutil.PathID(r, "court_id")
	if err != nil {
		apiutil.WriteError(w, r, apiutil.BadRequest(err))
		return
	}

	var cfg schedule.Config
	if err := apiutil.DecodeJSON(r, &cfg); err != nil {
		apiutil.WriteError(w, r, apiutil.BadRequest(err))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), scheduleQueryTimeout)
	defer cancel()

	version, err := database.ReplaceSchedule(ctx, courtID, cfg, now())
	if err != nil {
		writeStoreError(w, r, err)
		return
	}

	logger.Info().Int64("court_id", courtID).Int64("version", version).Msg("Schedule replaced")
	if err := apiutil.WriteJSON(w, http.StatusOK, replaceResponse{CourtID: courtID, Version: version}); err != nil {
		logger.Error().Err(err).Msg("Failed to write schedule response")
	}
}

// GET /api/v1/courts/{court_id}/schedule/versions
func HandleListScheduleVersions(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	database, _ := loadStore()
	if database == nil {
		logger.Error().Msg("Database not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	courtID, err := apiutil.PathID(r, "court_id")
	if err != nil {
		apiutil.WriteError(w, r, apiutil.BadRequest(err))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), scheduleQueryTimeout)
	defer cancel()

	versions, err := database.ListScheduleVersions(ctx, courtID)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}

	resp := versionsResponse{CourtID: courtID, Versions: make([]versionSummary, 0, len(versions))}
	for _, v := range versions {
		resp.Versions = append(resp.Versions, versionSummary{Version: v.Version, Active: v.Active, CreatedAt: v.CreatedAt})
	}
	if err := apiutil.WriteJSON(w, http.StatusOK, resp); err != nil {
		logger.Error().Err(err).Msg("Failed to write versions response")
	}
}

func writeSchedule(w http.ResponseWriter, r *http.Request, v db.ScheduleVersion) {
	if err := apiutil.WriteJSON(w, http.StatusOK, scheduleResponse{
		CourtID:   v.CourtID,
		Version:   v.Version,
		Active:    v.Active,
		CreatedAt: v.CreatedAt,
		Schedule:  v.Config,
	}); err != nil {
		log.Ctx(r.Context()).Error().Err(err).Msg("Failed to write schedule response")
	}
}

// writeStoreError keeps domain errors as they are and reports everything else as unavailable.
func writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	var cfgErr *schedule.ConfigError
	switch {
	case errors.Is(err, availability.ErrNotFound), errors.As(err, &cfgErr):
		apiutil.WriteError(w, r, err)
	default:
		apiutil.WriteError(w, r, errors.Join(availability.ErrUnavailable, err))
	}
}
