// Package api implements the HTTP surface: request decoding, the
// response envelope and the mapping from domain errors onto statuses.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/CinitSwift/divide/internal/domain"
)

// envelope wraps every successful response body.
type envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// apiError is the failure body. Status is duplicated into the body so
// clients behind proxies that rewrite statuses still see the real one.
type apiError struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Timestamp  string `json:"timestamp"`
	Path       string `json:"path"`
}

func writeData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Code: 0, Message: "success", Data: data})
}

func writeAPIError(w http.ResponseWriter, r *http.Request, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiError{
		StatusCode: status,
		Message:    message,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Path:       r.URL.Path,
	})
}

// statusForError translates a domain sentinel into an HTTP status.
// Anything unrecognized is an internal error.
func statusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrRoomNotFound),
		errors.Is(err, domain.ErrMemberNotFound),
		errors.Is(err, domain.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrUnauthenticated),
		errors.Is(err, domain.ErrTokenExpired),
		errors.Is(err, domain.ErrTokenInvalid):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrRoomNotJoinable),
		errors.Is(err, domain.ErrRoomFull),
		errors.Is(err, domain.ErrHasActiveRoom),
		errors.Is(err, domain.ErrWrongStatus),
		errors.Is(err, domain.ErrTooFewMembers),
		errors.Is(err, domain.ErrCannotRemoveOwner),
		errors.Is(err, domain.ErrAlreadyMember),
		errors.Is(err, domain.ErrInvalidGameName),
		errors.Is(err, domain.ErrInvalidMaxMembers),
		errors.Is(err, domain.ErrInvalidLabel),
		errors.Is(err, domain.ErrInvalidRule),
		errors.Is(err, domain.ErrConflictingRules):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the mapped status for err. Internal errors are
// logged with their cause and surfaced with a generic message.
func respondError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status := statusForError(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		message = "internal server error"
	}
	writeAPIError(w, r, status, message)
}
