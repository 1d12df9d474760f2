package httpx

import (
	"errors"
	"net/http"

	"github.com/brodesk/brodesk/internal/shared"
)

// StatusFor maps a domain error onto the HTTP status it is reported with.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, shared.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrInvalidCredentials), errors.Is(err, shared.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, shared.ErrPendingApproval), errors.Is(err, shared.ErrRejected),
		errors.Is(err, shared.ErrForbidden),
		errors.Is(err, shared.ErrCSRFTokenMissing), errors.Is(err, shared.ErrCSRFTokenMismatch):
		return http.StatusForbidden
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrInvalidTransition), errors.Is(err, shared.ErrDuplicate),
		errors.Is(err, shared.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	detail := shared.UserSafeMessage(err)
	var vErr *shared.ValidationError
	if errors.As(err, &vErr) {
		JSON(w, status, ProblemDetail{
			Title:  http.StatusText(status),
			Status: status,
			Detail: detail,
			Field:  vErr.Field,
		})
		return
	}
	Problem(w, status, http.StatusText(status), detail)
}
