// Package actions provides the shared error taxonomy for step execution.
package actions

import "errors"

// Step-level error taxonomy. The runner decides retry behavior from these:
// validation and not-found errors terminate the run; dependency errors are
// retried a bounded number of times at the step level before failing it.
var (
	// ErrValidation indicates bad config or an immutable-field target.
	ErrValidation = errors.New("validation error")

	// ErrNotFound indicates a missing template, recipient or user.
	ErrNotFound = errors.New("not found")

	// ErrDependency indicates transient unavailability of a collaborator.
	ErrDependency = errors.New("dependency unavailable")
)

// IsRetryable reports whether a step error should be retried before failing
// the run.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrDependency)
}
