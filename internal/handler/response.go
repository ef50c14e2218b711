// Package handler is the HTTP layer: it decodes requests, calls services,
// and encodes responses. Domain errors are translated to status codes in
// exactly one place, writeError.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/snipetag/internal/apperror"
)

// ErrorResponse is the error shape every endpoint returns.
type ErrorResponse struct {
	Error   string `json:"error"`   // machine-readable kind, e.g. "not_found"
	Message string `json:"message"` // human-readable description
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already gone; logging is all that's left.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// statusFor maps each sentinel in the taxonomy to its HTTP rendering. The
// service layer never sees a status code; this table is the only bridge.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperror.ErrNoActiveAccusation):
		return http.StatusNotFound, "no_active_accusation"
	case errors.Is(err, apperror.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, apperror.ErrNotTarget):
		return http.StatusForbidden, "not_target"
	case errors.Is(err, apperror.ErrAccusedCannotVote):
		return http.StatusForbidden, "accused_cannot_vote"
	case errors.Is(err, apperror.ErrNotMember):
		return http.StatusForbidden, "not_member"
	case errors.Is(err, apperror.ErrInvalidMember):
		return http.StatusBadRequest, "invalid_member"
	case errors.Is(err, apperror.ErrInsufficientFunds):
		return http.StatusPaymentRequired, "insufficient_funds"
	case errors.Is(err, apperror.ErrWindowExpired):
		return http.StatusGone, "window_expired"
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, apperror.ErrAlreadyOwned):
		return http.StatusConflict, "already_owned"
	case errors.Is(err, apperror.ErrAlreadyInUse):
		return http.StatusConflict, "already_in_use"
	case errors.Is(err, apperror.ErrPowerupAlreadyActive):
		return http.StatusConflict, "powerup_already_active"
	case errors.Is(err, apperror.ErrAlreadyResolved):
		return http.StatusConflict, "already_resolved"
	case errors.Is(err, apperror.ErrAccusationInProgress):
		return http.StatusConflict, "accusation_in_progress"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeError renders a domain error as JSON. Unknown errors become an opaque
// 500 — raw messages can leak queries and paths, so only typed errors get
// their message through.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status, kind := statusFor(err)
		writeJSON(w, status, ErrorResponse{Error: kind, Message: appErr.Message})
		return
	}

	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
	})
}

// decode reads a JSON body into dst, rejecting unknown fields.
func decode(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperror.ValidationFailed("body", "invalid JSON request body")
	}
	return nil
}
