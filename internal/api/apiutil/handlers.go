package apiutil

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/courtslots/internal/availability"
	"github.com/codr1/courtslots/internal/schedule"
)

// Error kinds owned by the HTTP layer. Domain kinds come from availability.ErrorKind.
const (
	KindInvalidRequest    = "invalid_request"
	KindRateLimited       = "rate_limited"
	KindRequestInProgress = "request_in_progress"
)

const maxBodyBytes = 1 << 20

type FieldError struct {
	Field  string
	Reason string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

type HandlerError struct {
	Status  int
	Kind    string
	Message string
	Err     error
}

func (e HandlerError) Error() string {
	return e.Message
}

func (e HandlerError) Unwrap() error {
	return e.Err
}

// BadRequest wraps a request parsing failure.
func BadRequest(err error) HandlerError {
	return HandlerError{Status: http.StatusBadRequest, Kind: KindInvalidRequest, Message: err.Error(), Err: err}
}

// ErrorResponse is the JSON body of every failed API call.
type ErrorResponse struct {
	ErrorKind string                `json:"errorKind"`
	Message   string                `json:"message"`
	Fields    []schedule.FieldError `json:"fields,omitempty"`
}

func DecodeJSON(r *http.Request, dst any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return fmt.Errorf("missing request body")
	}
	defer r.Body.Close()

	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("missing request body")
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func WriteJSON(w http.ResponseWriter, status int, payload any) error {
	body, err := EncodeJSON(payload)
	if err != nil {
		return err
	}
	return WriteRawJSON(w, status, body)
}

// EncodeJSON renders payload exactly as WriteJSON would send it.
func EncodeJSON(payload any) ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	if err := encoder.Encode(payload); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteRawJSON writes an already encoded JSON body.
func WriteRawJSON(w http.ResponseWriter, status int, body []byte) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err := w.Write(body)
	return err
}

// StatusForKind maps an error kind to its HTTP status.
func StatusForKind(kind string) int {
	switch kind {
	case availability.KindNotFound:
		return http.StatusNotFound
	case availability.KindSlotNotOffered:
		return http.StatusUnprocessableEntity
	case availability.KindSlotTaken, KindRequestInProgress:
		return http.StatusConflict
	case availability.KindUnavailable:
		return http.StatusServiceUnavailable
	case availability.KindInvalidConfig, KindInvalidRequest:
		return http.StatusBadRequest
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// ErrorBody converts err into a status and response body. Internal errors are not echoed.
func ErrorBody(err error) (int, ErrorResponse) {
	var handlerErr HandlerError
	if errors.As(err, &handlerErr) {
		kind := handlerErr.Kind
		if kind == "" {
			kind = KindInvalidRequest
		}
		status := handlerErr.Status
		if status == 0 {
			status = StatusForKind(kind)
		}
		return status, ErrorResponse{ErrorKind: kind, Message: handlerErr.Message}
	}

	kind := availability.ErrorKind(err)
	resp := ErrorResponse{ErrorKind: kind}
	switch kind {
	case availability.KindInvalidConfig:
		var cfgErr *schedule.ConfigError
		errors.As(err, &cfgErr)
		resp.Message = "schedule configuration is invalid"
		resp.Fields = cfgErr.Fields
	case availability.KindUnavailable:
		resp.Message = availability.ErrUnavailable.Error()
	case availability.KindInternal:
		resp.Message = "internal error"
	default:
		resp.Message = err.Error()
	}
	return StatusForKind(kind), resp
}

// WriteError logs err at a level matching its status and writes the JSON error body.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := ErrorBody(err)
	logError(r, status, resp.ErrorKind, err)
	if err := WriteJSON(w, status, resp); err != nil {
		log.Ctx(r.Context()).Error().Err(err).Msg("Failed to write error response")
	}
}

// WriteRateLimited writes a 429 with a whole-second Retry-After header.
func WriteRateLimited(w http.ResponseWriter, r *http.Request, retryAfter time.Duration) {
	seconds := int(retryAfter.Round(time.Second) / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(seconds))
	WriteError(w, r, HandlerError{
		Status:  http.StatusTooManyRequests,
		Kind:    KindRateLimited,
		Message: "too many booking attempts, try again later",
	})
}

func logError(r *http.Request, status int, kind string, err error) {
	logger := log.Ctx(r.Context())
	switch {
	case status >= http.StatusInternalServerError:
		logger.Error().Err(err).Str("error_kind", kind).Int("status", status).Msg("Request failed")
	default:
		logger.Debug().Err(err).Str("error_kind", kind).Int("status", status).Msg("Request rejected")
	}
}
