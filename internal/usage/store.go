package usage

import (
	"context"
	"errors"
)

// ErrLimitReached is returned when a user has exhausted their quota.
var ErrLimitReached = errors.New("usage limit reached")

// Store persists usage counters.
type Store interface {
	// Get returns the current usage row, creating a default one if absent.
	Get(ctx context.Context, userID string) (Usage, error)
	// Increment atomically adds one to the user's used count and returns
	// the updated row. It must be safe under concurrent calls.
	Increment(ctx context.Context, userID string) (Usage, error)
}
