package apiutil

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/codr1/Kickabout/internal/api/authz"
	"github.com/codr1/Kickabout/internal/db"
	"github.com/codr1/Kickabout/internal/league"
	"github.com/codr1/Kickabout/internal/ratelimit"
	"github.com/codr1/Kickabout/internal/verify"
)

// GenericErrorMessage is shown for every unexpected failure.
const GenericErrorMessage = "Something went wrong, please try again"

const maxBodyBytes = 1 << 20

// Envelope wraps every JSON response.
type Envelope struct {
	Data    any    `json:"data"`
	Error   bool   `json:"error"`
	Message string `json:"message,omitempty"`
	Field   string `json:"field,omitempty"`
}

// FieldError reports bad input for one request field. Reason is shown to the
// user as is.
type FieldError struct {
	Field  string
	Reason string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e FieldError) FieldName() string { return e.Field }
func (e FieldError) Message() string   { return e.Reason }

type HandlerError struct {
	Status  int
	Message string
	Err     error
}

func (e HandlerError) Error() string {
	return e.Message
}

func (e HandlerError) Unwrap() error {
	return e.Err
}

// fieldError is implemented by FieldError and league.ValidationError.
type fieldError interface {
	error
	FieldName() string
	Message() string
}

var conflictMessages = map[error]string{
	league.ErrGameCancelled:    "This game has been cancelled",
	league.ErrSignupClosed:     "Signups are currently closed",
	league.ErrGenderRestricted: "This game is restricted to another gender",
	league.ErrNotOnRoster:      "You are not signed up for this game",
	league.ErrNotifierDisabled: "Bot messages are not configured",
	db.ErrDuplicate:            "That record already exists",
}

func DecodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return FieldError{Field: "body", Reason: "Request body is required"}
	}
	defer r.Body.Close()

	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return FieldError{Field: "body", Reason: "Request body is required"}
		}
		return FieldError{Field: "body", Reason: "Request body is not valid JSON: " + err.Error()}
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return FieldError{Field: "body", Reason: "Request body must contain a single JSON object"}
	}
	return nil
}

func WriteJSON(w http.ResponseWriter, status int, payload any) error {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	if err := encoder.Encode(payload); err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err := w.Write(buf.Bytes())
	return err
}

// WriteData writes a successful envelope.
func WriteData(w http.ResponseWriter, r *http.Request, status int, data any) {
	if err := WriteJSON(w, status, Envelope{Data: data}); err != nil {
		log.Ctx(r.Context()).Error().Err(err).Msg("Failed to write response")
	}
}

// WriteMessage writes a successful envelope with a message for the user.
func WriteMessage(w http.ResponseWriter, r *http.Request, data any, message string) {
	if err := WriteJSON(w, http.StatusOK, Envelope{Data: data, Message: message}); err != nil {
		log.Ctx(r.Context()).Error().Err(err).Msg("Failed to write response")
	}
}

// WriteError converts err into an error envelope with the matching status.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, env := classify(err)
	logger := log.Ctx(r.Context())

	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
	} else {
		logger.Info().Err(err).Int("status", status).Str("path", r.URL.Path).Msg("Request rejected")
	}

	var limited *ratelimit.LimitError
	if errors.As(err, &limited) {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(limited.RetryAfter.Seconds()))))
	}

	if werr := WriteJSON(w, status, env); werr != nil {
		logger.Error().Err(werr).Msg("Failed to write error response")
	}
}

func classify(err error) (int, Envelope) {
	fail := func(status int, message string) (int, Envelope) {
		return status, Envelope{Error: true, Message: message}
	}

	var herr HandlerError
	if errors.As(err, &herr) {
		return fail(herr.Status, herr.Message)
	}
	var ferr fieldError
	if errors.As(err, &ferr) {
		return http.StatusBadRequest, Envelope{Error: true, Message: ferr.Message(), Field: ferr.FieldName()}
	}

	switch {
	case errors.Is(err, authz.ErrUnauthenticated):
		return fail(http.StatusUnauthorized, "Please log in to continue")
	case errors.Is(err, authz.ErrForbidden):
		return fail(http.StatusForbidden, "You do not have permission to do that")
	case errors.Is(err, db.ErrNotFound):
		return fail(http.StatusNotFound, "Not found")
	case errors.Is(err, ratelimit.ErrLimited), errors.Is(err, verify.ErrThrottled):
		return fail(http.StatusTooManyRequests, "Too many attempts, please wait and try again")
	case errors.Is(err, verify.ErrCodeMismatch):
		return http.StatusBadRequest, Envelope{Error: true, Message: "The code you entered is incorrect", Field: "code"}
	case errors.Is(err, verify.ErrCodeExpired):
		return http.StatusBadRequest, Envelope{Error: true, Message: "The code has expired, please request a new one", Field: "code"}
	case errors.Is(err, verify.ErrInvalidPhone):
		return http.StatusBadRequest, Envelope{Error: true, Message: "Please enter a valid phone number", Field: "phone"}
	}
	for target, message := range conflictMessages {
		if errors.Is(err, target) {
			return fail(http.StatusConflict, message)
		}
	}
	return fail(http.StatusInternalServerError, GenericErrorMessage)
}
