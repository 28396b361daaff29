package api

import (
	"errors"
	"net/http"

	"github.com/phrazzld/inkwell-api/internal/api/shared"
	"github.com/phrazzld/inkwell-api/internal/domain"
	"github.com/phrazzld/inkwell-api/internal/service"
	"github.com/phrazzld/inkwell-api/internal/service/auth"
	"github.com/phrazzld/inkwell-api/internal/storage"
	"github.com/phrazzld/inkwell-api/internal/store"
)

// Stable error codes returned in the "code" field of error responses.
const (
	CodeValidation          = "VALIDATION_ERROR"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeInsufficientCredits = "INSUFFICIENT_CREDITS"
	CodeForbidden           = "FORBIDDEN"
	CodeNotFound            = "NOT_FOUND"
	CodeAlreadyTerminal     = "ALREADY_TERMINAL"
	CodeEmailExists         = "EMAIL_EXISTS"
	CodeQueueUnavailable    = "QUEUE_UNAVAILABLE"
	CodeInternal            = "INTERNAL_ERROR"
)

// MapErrorToStatusCode maps an error to the HTTP status reported to clients.
// Unknown errors, including store I/O failures, map to 500.
func MapErrorToStatusCode(err error) int {
	switch MapErrorToCode(err) {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeInsufficientCredits:
		return http.StatusPaymentRequired
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeAlreadyTerminal, CodeEmailExists:
		return http.StatusConflict
	case CodeQueueUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// MapErrorToCode maps an error to its stable error code.
func MapErrorToCode(err error) string {
	switch {
	case err == nil:
		return CodeInternal

	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, store.ErrInvalidEntity):
		return CodeValidation

	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrMissingToken),
		errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, domain.ErrUnauthorized):
		return CodeUnauthorized

	case errors.Is(err, store.ErrInsufficientFunds):
		return CodeInsufficientCredits

	case errors.Is(err, service.ErrForbidden),
		errors.Is(err, domain.ErrNotOwner):
		return CodeForbidden

	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, storage.ErrObjectNotFound):
		return CodeNotFound

	case errors.Is(err, domain.ErrAlreadyTerminal):
		return CodeAlreadyTerminal

	case errors.Is(err, store.ErrEmailExists):
		return CodeEmailExists

	case errors.Is(err, service.ErrSchedulingFailed):
		return CodeQueueUnavailable

	default:
		return CodeInternal
	}
}

// GetSafeErrorMessage returns a client-facing message that never includes
// the underlying error text.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, store.ErrInvalidEntity):
		return "Invalid input"

	case errors.Is(err, auth.ErrExpiredToken):
		return "Token expired"
	case errors.Is(err, service.ErrInvalidCredentials):
		return "Invalid email or password"
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrMissingToken),
		errors.Is(err, domain.ErrUnauthorized):
		return "Authentication required"

	case errors.Is(err, store.ErrInsufficientFunds):
		return "Insufficient credits"

	case errors.Is(err, domain.ErrNotOwner):
		return "You do not own this task"
	case errors.Is(err, service.ErrForbidden):
		return "You are not allowed to view this task"

	case errors.Is(err, store.ErrTaskNotFound):
		return "Task not found"
	case errors.Is(err, store.ErrAccountNotFound):
		return "Account not found"
	case errors.Is(err, storage.ErrObjectNotFound):
		return "Image not found"
	case errors.Is(err, store.ErrNotFound):
		return "Resource not found"

	case errors.Is(err, domain.ErrAlreadyTerminal):
		return "Task has already finished"

	case errors.Is(err, store.ErrEmailExists):
		return "Email already exists"

	case errors.Is(err, service.ErrSchedulingFailed):
		return "Generation queue is unavailable, your credits were refunded"

	default:
		return "An unexpected error occurred"
	}
}

// HandleAPIError writes the error response for err. message replaces the
// safe default message when not empty. Validation errors carry their
// per-field messages.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, message string) {
	status := MapErrorToStatusCode(err)
	if message == "" {
		message = GetSafeErrorMessage(err)
	}

	var opts []shared.ResponseOption
	var verr *domain.ValidationError
	if errors.As(err, &verr) && verr.HasErrors() {
		opts = append(opts, shared.WithFields(verr.Fields))
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		opts = append(opts, shared.WithElevatedLogLevel())
	}

	shared.RespondWithErrorAndLog(w, r, status, MapErrorToCode(err), message, err, opts...)
}
