// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/odyssey-erp/freshline/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	var stateErr *shared.StateError
	switch {
	case errors.As(err, &stateErr):
		JSON(w, http.StatusConflict, ProblemDetail{
			Type:          "invalid-state",
			Title:         "Invalid State Transition",
			Status:        http.StatusConflict,
			Detail:        err.Error(),
			CurrentStatus: stateErr.Current,
		})
	case errors.Is(err, shared.ErrInvalidState):
		Problem(w, http.StatusConflict, "Invalid State Transition", err.Error())
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrConflict):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrStorage):
		Problem(w, http.StatusInternalServerError, "Storage Failure", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", shared.UserSafeMessage(err))
	}
}

// Fail logs unexpected and storage errors, then responds like RespondError.
// Operator mistakes are not logged.
func Fail(w http.ResponseWriter, r *http.Request, logger *slog.Logger, op string, err error) {
	if logger != nil && (errors.Is(err, shared.ErrStorage) || !shared.IsDomainError(err)) {
		logger.Error(op, slog.String("method", r.Method), slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	RespondError(w, err)
}
