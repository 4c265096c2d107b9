// Package services provides the business operations behind the HTTP API:
// workflow and webhook management, manual execution, dry runs and delivery
// retries.
package services

import (
	"errors"
	"fmt"

	"github.com/flowpilot-io/flowpilot/pkg/persistence"
)

// Business logic errors. Validation errors map to 400 responses, not-found
// errors to 404, conflicts to 409.
var (
	ErrInvalidRequest = errors.New("invalid request")

	ErrWorkflowNil       = errors.New("workflow cannot be nil")
	ErrWebhookNil        = errors.New("webhook cannot be nil")
	ErrStepsRequired     = errors.New("workflow must have at least one step")
	ErrDeliveryExhausted = errors.New("delivery has exhausted its retry attempts")
)

// ServiceError wraps service-level errors with operation context.
type ServiceError struct {
	Op      string
	Message string
	Err     error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewValidationError creates a validation error with context.
func NewValidationError(op, message string) *ServiceError {
	return &ServiceError{Op: op, Message: message, Err: ErrInvalidRequest}
}

// IsValidationError checks if an error should map to HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrWorkflowNil) ||
		errors.Is(err, ErrWebhookNil) ||
		errors.Is(err, ErrStepsRequired)
}

// IsNotFoundError checks if an error should map to HTTP 404.
func IsNotFoundError(err error) bool {
	return persistence.IsNotFound(err)
}

// IsConflictError checks if an error should map to HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrDeliveryExhausted) ||
		errors.Is(err, persistence.ErrDeliveryNotClaimable) ||
		errors.Is(err, persistence.ErrRunTerminal)
}
