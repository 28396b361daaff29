package service

import (
	"errors"
	"fmt"
)

// Common service errors - sentinel errors used across service implementations.
// These errors represent common conditions that callers may want to check for with errors.Is().
var (
	// ErrForbidden indicates the requester may not read the resource.
	// API layer should map this to HTTP 403 Forbidden.
	ErrForbidden = errors.New("access to resource is forbidden")

	// ErrSchedulingFailed indicates a task was charged and recorded but could
	// not be handed to a worker. The task has been failed and refunded.
	// API layer should map this to HTTP 503 Service Unavailable.
	ErrSchedulingFailed = errors.New("generation could not be scheduled")

	// ErrInvalidCredentials indicates a login with an unknown email or a
	// wrong password. The two cases are not distinguished.
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// ServiceError wraps an unexpected failure with the service and operation
// that observed it.
type ServiceError struct {
	Service string
	Op      string
	Err     error
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s service %s operation failed", e.Service, e.Op)
	}
	return fmt.Sprintf("%s service %s operation failed: %v", e.Service, e.Op, e.Err)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// NewGenerationServiceError wraps err for a generation service operation.
func NewGenerationServiceError(op string, err error) *ServiceError {
	return &ServiceError{Service: "generation", Op: op, Err: err}
}

// NewAccountServiceError wraps err for an account service operation.
func NewAccountServiceError(op string, err error) *ServiceError {
	return &ServiceError{Service: "account", Op: op, Err: err}
}
