// cmd/server/server.go
package main

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/codr1/courtslots/internal/api"
	"github.com/codr1/courtslots/internal/api/bookings"
	"github.com/codr1/courtslots/internal/api/schedules"
	"github.com/codr1/courtslots/internal/config"
)

const healthCheckTimeout = 2 * time.Second

func newServer(cfg *config.Config, a *app) *http.Server {
	router := http.NewServeMux()

	// Setup middleware chain
	handler := api.ChainMiddleware(
		router,
		api.WithLogging,
		api.WithRecovery,
		api.WithRequestID,
	)

	// Register routes
	registerRoutes(router, a)

	return &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.App.Port),
		Handler:      otelhttp.NewHandler(handler, cfg.App.Name),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func registerRoutes(mux *http.ServeMux, a *app) {
	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		if err := a.db.PingContext(ctx); err != nil {
			log.Ctx(r.Context()).Error().Err(err).Msg("Health check failed")
			http.Error(w, "Database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Availability and booking routes
	mux.HandleFunc("GET /api/v1/courts/{court_id}/available-slots", bookings.HandleAvailableSlots)
	mux.HandleFunc("POST /api/v1/courts/{court_id}/bookings", bookings.HandleCreateBooking)
	mux.HandleFunc("POST /api/v1/bookings/{booking_id}/cancel", bookings.HandleCancelBooking)

	// Court and schedule administration
	mux.HandleFunc("POST /api/v1/courts", schedules.HandleCreateCourt)
	mux.HandleFunc("GET /api/v1/courts/{court_id}/schedule", schedules.HandleGetSchedule)
	mux.HandleFunc("PUT /api/v1/courts/{court_id}/schedule", schedules.HandleReplaceSchedule)
	mux.HandleFunc("GET /api/v1/courts/{court_id}/schedule/versions", schedules.HandleListScheduleVersions)
	mux.HandleFunc("GET /api/v1/courts/{court_id}/schedule/versions/{version}", schedules.HandleGetScheduleVersion)
}
