// internal/api/bookings/handlers.go
package bookings

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/courtslots/internal/api/apiutil"
	"github.com/codr1/courtslots/internal/availability"
	"github.com/codr1/courtslots/internal/db"
	"github.com/codr1/courtslots/internal/email"
	"github.com/codr1/courtslots/internal/ratelimit"
	"github.com/codr1/courtslots/internal/schedule"
)

const (
	bookingQueryTimeout  = 5 * time.Second
	idempotencyHeader    = "Idempotency-Key"
	replayedHeader       = "Idempotent-Replayed"
	maxIdempotencyKeyLen = 255
	maxEmailLength       = 254

	idempotencyPollInterval = 20 * time.Millisecond
	// A pending claim this old belongs to a request that can no longer finish.
	idempotencyStaleAfter   = 2 * bookingQueryTimeout
)

// CancellationNotifier is told about cancelled bookings that carry a customer email.
type CancellationNotifier interface {
	BookingCancelled(ctx context.Context, recipient string, details email.CancellationDetails)
}

// Deps are the collaborators the booking handlers need.
type Deps struct {
	DB         *db.DB
	Locker     availability.Locker
	Listeners  []availability.ConfirmationListener
	Limiter    *ratelimit.Limiter
	Notifier   CancellationNotifier
	TrustProxy bool
	// Now is the wall clock; nil uses time.Now.
	Now func() time.Time
}

type service struct {
	deps     Deps
	resolver *availability.Resolver
	booker   *availability.Booker
}

var (
	current   *service
	currentMu sync.RWMutex
)

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(deps Deps) {
	if deps.DB == nil {
		return
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	svc := &service{
		deps:     deps,
		resolver: availability.NewResolver(deps.DB, deps.DB),
		booker:   availability.NewBooker(deps.DB, deps.DB, deps.Locker, deps.Listeners...),
	}
	currentMu.Lock()
	current = svc
	currentMu.Unlock()
}

func loadService() *service {
	currentMu.RLock()
	defer currentMu.RUnlock()
	return current
}

type slotResponse struct {
	Date         schedule.Date      `json:"date"`
	StartTime    schedule.TimeOfDay `json:"startTime"`
	EndTime      schedule.TimeOfDay `json:"endTime"`
	StartLabel   string             `json:"startLabel"`
	EndLabel     string             `json:"endLabel"`
	PriceCents   int64              `json:"priceCents"`
	PriceDisplay string             `json:"priceDisplay"`
	PriceLabel   string             `json:"priceLabel"`
}

type availabilityResponse struct {
	CourtID              int64          `json:"courtId"`
	Date                 schedule.Date  `json:"date"`
	MatchDurationMinutes int            `json:"matchDurationMinutes"`
	ConfigVersion        int64          `json:"configVersion"`
	Slots                []slotResponse `json:"slots"`
}

type bookingRequest struct {
	Date          string `json:"date"`
	StartTime     string `json:"startTime"`
	CustomerEmail string `json:"customerEmail"`
}

type bookingResponse struct {
	BookingID     string             `json:"bookingId"`
	CourtID       int64              `json:"courtId"`
	Date          schedule.Date      `json:"date"`
	StartTime     schedule.TimeOfDay `json:"startTime"`
	EndTime       schedule.TimeOfDay `json:"endTime"`
	PriceCents    int64              `json:"priceCents"`
	PriceLabel    string             `json:"priceLabel"`
	ConfigVersion int64              `json:"configVersion"`
}

type cancelResponse struct {
	BookingID string               `json:"bookingId"`
	Status    string               `json:"status"`
	Quote     schedule.RefundQuote `json:"quote"`
}

type cancelRejectedResponse struct {
	apiutil.ErrorResponse
	Quote schedule.RefundQuote `json:"quote"`
}

// GET /api/v1/courts/{court_id}/available-slots?date=YYYY-MM-DD
func HandleAvailableSlots(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	svc := loadService()
	if svc == nil {
		logger.Error().Msg("Booking handlers not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	courtID, err := apiutil.PathID(r, "court_id")
	if err != nil {
		apiutil.WriteError(w, r, apiutil.BadRequest(err))
		return
	}
	date, err := apiutil.ParseDateField(r.URL.Query().Get("date"), "date")
	if err != nil {
		apiutil.WriteError(w, r, apiutil.BadRequest(err))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), bookingQueryTimeout)
	defer cancel()

	avail, err := svc.resolver.Availability(ctx, courtID, date, svc.deps.Now())
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	resp := availabilityResponse{
		CourtID:              courtID,
		Date:                 avail.Date,
		MatchDurationMinutes: avail.MatchDurationMinutes,
		ConfigVersion:        avail.ConfigVersion,
		Slots:                make([]slotResponse, 0, len(avail.Slots)),
	}
	for _, slot := range avail.Slots {
		resp.Slots = append(resp.Slots, slotResponse{
			Date:         slot.Date,
			StartTime:    slot.StartTime,
			EndTime:      slot.EndTime,
			StartLabel:   slot.StartTime.Format12(),
			EndLabel:     slot.EndTime.Format12(),
			PriceCents:   int64(slot.Price),
			PriceDisplay: slot.Price.String(),
			PriceLabel:   slot.PriceLabel,
		})
	}

	if err := apiutil.WriteJSON(w, http.StatusOK, resp); err != nil {
		logger.Error().Err(err).Int64("court_id", courtID).Msg("Failed to write availability response")
	}
}

// POST /api/v1/courts/{court_id}/bookings
func HandleCreateBooking(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	svc := loadService()
	if svc == nil {
		logger.Error().Msg("Booking handlers not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	courtID, err := apiutil.PathID(r, "court_id")
	if err != nil {
		apiutil.WriteError(w, r, apiutil.BadRequest(err))
		return
	}

	key := strings.TrimSpace(r.Header.Get(idempotencyHeader))
	if len(key) > maxIdempotencyKeyLen {
		apiutil.WriteError(w, r, apiutil.BadRequest(fmt.Errorf("%s must be at most %d characters", idempotencyHeader, maxIdempotencyKeyLen)))
		return
	}
	idem := idempotencyClaim{scope: fmt.Sprintf("POST /api/v1/courts/%d/bookings", courtID), key: key}

	ctx, cancel := context.WithTimeout(r.Context(), bookingQueryTimeout)
	defer cancel()

	if idem.key != "" {
		claim, err := svc.claimIdempotencyKey(ctx, idem)
		if err != nil {
			apiutil.WriteError(w, r, err)
			return
		}
		switch claim.State {
		case db.IdempotencyCompleted:
			logger.Info().Int64("court_id", courtID).Msg("Replaying stored booking response")
			svc.writeReplay(w, r, claim.Response.StatusCode, claim.Response.Body)
			return
		case db.IdempotencyCommitted:
			svc.replayCommitted(ctx, w, r, idem, claim.BookingID)
			return
		}
	}

	var req bookingRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		svc.respond(ctx, w, r, idem, 0, nil, apiutil.BadRequest(err))
		return
	}

	bookReq, err := parseBookingRequest(courtID, req)
	if err != nil {
		svc.respond(ctx, w, r, idem, 0, nil, apiutil.BadRequest(err))
		return
	}

	if svc.deps.Limiter != nil {
		ip := ratelimit.GetClientIP(r, svc.deps.TrustProxy)
		if res := svc.deps.Limiter.AllowBookingAttempt(bookReq.CustomerEmail, ip); !res.Allowed {
			ratelimit.LogRateLimitExceeded(r.Context(), bookReq.CustomerEmail, ip, res)
			svc.release(ctx, r, idem)
			apiutil.WriteRateLimited(w, r, res.RetryAfter)
			return
		}
	}

	bookReq.SubmittedAt = svc.deps.Now()
	bookReq.IdempotencyScope = idem.scope
	bookReq.IdempotencyKey = idem.key

	conf, err := svc.booker.Book(ctx, bookReq)
	if err != nil {
		svc.respond(ctx, w, r, idem, 0, nil, err)
		return
	}

	svc.respond(ctx, w, r, idem, http.StatusCreated, bookingResponse{
		BookingID:     conf.BookingID,
		CourtID:       conf.Court.ID,
		Date:          conf.Slot.Date,
		StartTime:     conf.Slot.StartTime,
		EndTime:       conf.Slot.EndTime,
		PriceCents:    int64(conf.Slot.Price),
		PriceLabel:    conf.Slot.PriceLabel,
		ConfigVersion: conf.ConfigVersion,
	}, nil)
}

// idempotencyClaim is the Idempotency-Key of one booking request. An empty key disables replay.
type idempotencyClaim struct {
	scope string
	key   string
}

// claimIdempotencyKey claims the key or waits while another request holds it.
func (s *service) claimIdempotencyKey(ctx context.Context, idem idempotencyClaim) (db.IdempotencyClaim, error) {
	ticker := time.NewTicker(idempotencyPollInterval)
	defer ticker.Stop()
	for {
		claim, err := s.deps.DB.ClaimIdempotencyKey(ctx, idem.scope, idem.key, s.deps.Now(), idempotencyStaleAfter)
		if err != nil {
			return db.IdempotencyClaim{}, fmt.Errorf("claim idempotency key: %w: %w", availability.ErrUnavailable, err)
		}
		if claim.State != db.IdempotencyInFlight {
			return claim, nil
		}
		select {
		case <-ctx.Done():
			return db.IdempotencyClaim{}, apiutil.HandlerError{
				Status:  http.StatusConflict,
				Kind:    apiutil.KindRequestInProgress,
				Message: "a request with this Idempotency-Key is still in progress",
				Err:     ctx.Err(),
			}
		case <-ticker.C:
		}
	}
}

// replayCommitted answers for a key whose booking committed before its response was stored.
func (s *service) replayCommitted(ctx context.Context, w http.ResponseWriter, r *http.Request, idem idempotencyClaim, bookingID string) {
	logger := log.Ctx(r.Context())

	booking, err := s.deps.DB.GetBooking(ctx, bookingID)
	if err != nil {
		apiutil.WriteError(w, r, fmt.Errorf("load idempotent booking: %w: %w", availability.ErrUnavailable, err))
		return
	}
	body, err := apiutil.EncodeJSON(bookingResponseFrom(booking))
	if err != nil {
		logger.Error().Err(err).Msg("Failed to encode booking response")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if err := s.deps.DB.FinalizeIdempotencyKey(context.WithoutCancel(ctx), idem.scope, idem.key, db.IdempotentResponse{
		StatusCode: http.StatusCreated,
		Body:       body,
		CreatedAt:  s.deps.Now(),
	}); err != nil {
		logger.Error().Err(err).Msg("Failed to store idempotent response")
	}
	logger.Info().Str("booking_id", bookingID).Msg("Replaying committed booking")
	s.writeReplay(w, r, http.StatusCreated, body)
}

func (s *service) writeReplay(w http.ResponseWriter, r *http.Request, status int, body []byte) {
	w.Header().Set(replayedHeader, "true")
	if err := apiutil.WriteRawJSON(w, status, body); err != nil {
		log.Ctx(r.Context()).Error().Err(err).Msg("Failed to write replayed response")
	}
}

// release frees a claimed key that will not be finalized.
func (s *service) release(ctx context.Context, r *http.Request, idem idempotencyClaim) {
	if idem.key == "" {
		return
	}
	if err := s.deps.DB.ReleaseIdempotencyKey(context.WithoutCancel(ctx), idem.scope, idem.key); err != nil {
		log.Ctx(r.Context()).Error().Err(err).Msg("Failed to release idempotency key")
	}
}

func bookingResponseFrom(b db.Booking) bookingResponse {
	return bookingResponse{
		BookingID:     b.ID,
		CourtID:       b.CourtID,
		Date:          b.Date,
		StartTime:     b.Start,
		EndTime:       b.End,
		PriceCents:    int64(b.Price),
		PriceLabel:    b.PriceLabel,
		ConfigVersion: b.ConfigVersion,
	}
}

// respond writes either payload or the error body and finalizes the claimed key with it.
// Server side failures release the key so a retry can still succeed.
func (s *service) respond(ctx context.Context, w http.ResponseWriter, r *http.Request, idem idempotencyClaim, status int, payload any, respErr error) {
	logger := log.Ctx(r.Context())

	if respErr != nil {
		var errBody apiutil.ErrorResponse
		status, errBody = apiutil.ErrorBody(respErr)
		payload = errBody
		if status >= http.StatusInternalServerError {
			logger.Error().Err(respErr).Str("error_kind", errBody.ErrorKind).Msg("Booking request failed")
		} else {
			logger.Info().Err(respErr).Str("error_kind", errBody.ErrorKind).Msg("Booking request rejected")
		}
	}

	body, err := apiutil.EncodeJSON(payload)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to encode booking response")
		s.release(ctx, r, idem)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	if idem.key != "" {
		if status >= http.StatusInternalServerError {
			s.release(ctx, r, idem)
		} else {
			saveErr := s.deps.DB.FinalizeIdempotencyKey(context.WithoutCancel(ctx), idem.scope, idem.key, db.IdempotentResponse{
				StatusCode: status,
				Body:       body,
				CreatedAt:  s.deps.Now(),
			})
			if saveErr != nil {
				logger.Error().Err(saveErr).Msg("Failed to store idempotent response")
			}
		}
	}

	if err := apiutil.WriteRawJSON(w, status, body); err != nil {
		logger.Error().Err(err).Msg("Failed to write booking response")
	}
}

func parseBookingRequest(courtID int64, req bookingRequest) (availability.BookRequest, error) {
	date, err := apiutil.ParseDateField(req.Date, "date")
	if err != nil {
		return availability.BookRequest{}, err
	}
	start, err := apiutil.ParseTimeField(req.StartTime, "startTime")
	if err != nil {
		return availability.BookRequest{}, err
	}
	customer := strings.TrimSpace(req.CustomerEmail)
	if customer != "" {
		addr, err := mail.ParseAddress(customer)
		if err != nil || addr.Address != customer || len(customer) > maxEmailLength {
			return availability.BookRequest{}, apiutil.FieldError{Field: "customerEmail", Reason: "must be a valid email address"}
		}
	}
	return availability.BookRequest{
		CourtID:       courtID,
		Date:          date,
		Start:         start,
		CustomerEmail: customer,
	}, nil
}

// POST /api/v1/bookings/{booking_id}/cancel
func HandleCancelBooking(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	svc := loadService()
	if svc == nil {
		logger.Error().Msg("Booking handlers not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	bookingID := strings.TrimSpace(r.PathValue("booking_id"))
	if bookingID == "" {
		apiutil.WriteError(w, r, apiutil.BadRequest(errors.New("booking_id is required")))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), bookingQueryTimeout)
	defer cancel()

	booking, err := svc.deps.DB.GetBooking(ctx, bookingID)
	if err != nil {
		if errors.Is(err, availability.ErrNotFound) {
			apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusNotFound, Kind: availability.KindNotFound, Message: "booking not found", Err: err})
			return
		}
		apiutil.WriteError(w, r, fmt.Errorf("load booking: %w: %w", availability.ErrUnavailable, err))
		return
	}
	if booking.Status != db.BookingStatusConfirmed {
		apiutil.WriteError(w, r, alreadyCancelled(db.ErrAlreadyCancelled))
		return
	}

	court, err := svc.deps.DB.Court(ctx, booking.CourtID)
	if err != nil {
		apiutil.WriteError(w, r, fmt.Errorf("load court: %w: %w", availability.ErrUnavailable, err))
		return
	}
	version, err := svc.deps.DB.ScheduleVersion(ctx, booking.CourtID, booking.ConfigVersion)
	if err != nil {
		apiutil.WriteError(w, r, fmt.Errorf("load schedule version: %w: %w", availability.ErrUnavailable, err))
		return
	}

	now := svc.deps.Now()
	loc := court.Location()
	startsAt := booking.Start.On(booking.Date, loc)
	quote := version.Config.CancellationPolicy.Quote(startsAt, now, booking.Price)
	if !quote.Allowed {
		logger.Info().Str("booking_id", bookingID).Str("reason", quote.Reason).Msg("Cancellation refused")
		resp := cancelRejectedResponse{
			ErrorResponse: apiutil.ErrorResponse{ErrorKind: "cancellation_not_allowed", Message: quote.Reason},
			Quote:         quote,
		}
		if err := apiutil.WriteJSON(w, http.StatusUnprocessableEntity, resp); err != nil {
			logger.Error().Err(err).Msg("Failed to write cancellation response")
		}
		return
	}

	if err := svc.deps.DB.CancelBooking(ctx, bookingID, quote.Refund, now); err != nil {
		switch {
		case errors.Is(err, db.ErrAlreadyCancelled):
			apiutil.WriteError(w, r, alreadyCancelled(err))
		case errors.Is(err, availability.ErrNotFound):
			apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusNotFound, Kind: availability.KindNotFound, Message: "booking not found", Err: err})
		default:
			apiutil.WriteError(w, r, fmt.Errorf("cancel booking: %w: %w", availability.ErrUnavailable, err))
		}
		return
	}

	logger.Info().
		Str("booking_id", bookingID).
		Int64("court_id", booking.CourtID).
		Int64("refund_cents", int64(quote.Refund)).
		Msg("Booking cancelled")

	if svc.deps.Notifier != nil && booking.CustomerEmail != "" {
		svc.deps.Notifier.BookingCancelled(context.WithoutCancel(r.Context()), booking.CustomerEmail, email.CancellationDetails{
			BookingDetails: email.BookingDetails{
				CourtName:  court.Name,
				BookingID:  bookingID,
				StartsAt:   startsAt,
				EndsAt:     booking.End.On(booking.Date, loc),
				Price:      booking.Price,
				PriceLabel: booking.PriceLabel,
			},
			Refund:           quote.Refund,
			RefundPercentage: quote.Percentage,
		})
	}

	if err := apiutil.WriteJSON(w, http.StatusOK, cancelResponse{
		BookingID: bookingID,
		Status:    db.BookingStatusCancelled,
		Quote:     quote,
	}); err != nil {
		logger.Error().Err(err).Msg("Failed to write cancellation response")
	}
}

func alreadyCancelled(err error) apiutil.HandlerError {
	return apiutil.HandlerError{Status: http.StatusConflict, Kind: "already_cancelled", Message: "booking is already cancelled", Err: err}
}
