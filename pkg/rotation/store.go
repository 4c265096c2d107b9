// Package rotation tracks round-robin assignment cursors. The cursor is an
// explicit, injected store rather than process-global state so restarts and
// multiple workers share one rotation.
package rotation

import "context"

// Store hands out the next index in a rotation. Cursors are scoped by key;
// the assign_user action keys them per workflow.
type Store interface {
	// Next returns the next index in [0, size) for the given key and
	// advances the cursor.
	Next(ctx context.Context, key string, size int) (int, error)

	// Reset clears the cursor for a key.
	Reset(ctx context.Context, key string) error
}
