package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shivsys/noticeboard/internal/auth"
	"github.com/shivsys/noticeboard/internal/mail"
	"github.com/shivsys/noticeboard/internal/notice"
	"github.com/shivsys/noticeboard/internal/roster"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeNotFound     = "not_found"
	ErrCodeUnauthorized = "unauthorised"
	ErrCodeForbidden    = "forbidden"
	ErrCodeConflict     = "conflict"
	ErrCodeInternal     = "internal_error"
	ErrCodeValidation   = "validation_error"
	ErrCodeBadGateway   = "delivery_failed"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeForbidden writes a 403 error response.
func writeForbidden(w http.ResponseWriter, message string) {
	writeError(w, http.StatusForbidden, ErrCodeForbidden, message)
}

// writeConflict writes a 409 error response.
func writeConflict(w http.ResponseWriter, message string) {
	writeError(w, http.StatusConflict, ErrCodeConflict, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeDomainError maps sentinel errors from the domain packages onto
// HTTP responses. Unrecognised errors become a 500 without leaking detail.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrValidation):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, auth.ErrPasswordMismatch),
		errors.Is(err, auth.ErrResetTicketInvalid),
		errors.Is(err, notice.ErrInvalidCategory):
		writeBadRequest(w, err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrTokenExpired),
		errors.Is(err, auth.ErrTokenInvalid),
		errors.Is(err, auth.ErrTokenReuse):
		writeUnauthorized(w, publicAuthMessage(err))
	case errors.Is(err, auth.ErrNotProvisioned),
		errors.Is(err, auth.ErrForbidden):
		writeForbidden(w, err.Error())
	case errors.Is(err, auth.ErrUserExists),
		errors.Is(err, auth.ErrAdminExists),
		errors.Is(err, roster.ErrExists):
		writeConflict(w, err.Error())
	case errors.Is(err, auth.ErrUserNotFound),
		errors.Is(err, auth.ErrAdminNotFound),
		errors.Is(err, roster.ErrNotFound),
		errors.Is(err, notice.ErrNotFound):
		writeNotFound(w, err.Error())
	case errors.Is(err, mail.ErrDeliveryFailed):
		writeError(w, http.StatusBadGateway, ErrCodeBadGateway, "could not send email")
	default:
		writeInternalError(w, "internal server error")
	}
}

// publicAuthMessage returns the outward-facing message for a 401.
// Token errors wrap library detail that should not reach clients.
func publicAuthMessage(err error) string {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		return auth.ErrInvalidCredentials.Error()
	case errors.Is(err, auth.ErrTokenExpired):
		return auth.ErrTokenExpired.Error()
	case errors.Is(err, auth.ErrTokenReuse):
		return auth.ErrTokenReuse.Error()
	default:
		return auth.ErrTokenInvalid.Error()
	}
}
