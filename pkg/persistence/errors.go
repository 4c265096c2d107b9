// Package persistence provides standardized error types for persistence
// operations.
package persistence

import (
	"errors"
	"fmt"
)

var (
	// ErrWorkflowNotFound indicates a workflow was not found by the given identifier.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrRunNotFound indicates a workflow run was not found.
	ErrRunNotFound = errors.New("workflow run not found")

	// ErrWebhookNotFound indicates a webhook was not found.
	ErrWebhookNotFound = errors.New("webhook not found")

	// ErrDeliveryNotFound indicates a webhook delivery was not found.
	ErrDeliveryNotFound = errors.New("webhook delivery not found")

	// ErrDeliveryNotClaimable indicates a delivery is not in a state that
	// permits another attempt (already succeeded, in flight, or abandoned).
	ErrDeliveryNotClaimable = errors.New("delivery not claimable")

	// ErrRunTerminal indicates an attempt to mutate a completed or failed run.
	ErrRunTerminal = errors.New("run is terminal")
)

// StoreError wraps persistence errors with operation context.
type StoreError struct {
	Op  string // Operation being performed (e.g. "ByID", "Save", "ClaimDue")
	ID  string // Record ID if applicable
	Err error
}

func (e *StoreError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s failed for %s: %v", e.Op, e.ID, e.Err)
	}

	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsNotFound checks whether an error indicates any missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound) ||
		errors.Is(err, ErrRunNotFound) ||
		errors.Is(err, ErrWebhookNotFound) ||
		errors.Is(err, ErrDeliveryNotFound)
}
