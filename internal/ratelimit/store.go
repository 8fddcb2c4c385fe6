package ratelimit

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable wraps failures of a counter backend that is unreachable or timing out.
var ErrUnavailable = errors.New("rate limit backend unavailable")

// Entry is the counter for one key in one fixed window.
// ResetAt is set when the window is created and never moves within it.
type Entry struct {
	Count   int64
	ResetAt time.Time
}

// Store defines the interface for rate limit counter storage.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the live entry for key. Entries whose ResetAt has passed read as absent.
	Get(ctx context.Context, key string) (entry Entry, ok bool, err error)

	// Increment atomically adds one to the counter for key, opening a new window
	// of the given length when no live entry exists.
	Increment(ctx context.Context, key string, window time.Duration) (Entry, error)

	// Delete removes the entry for key.
	Delete(ctx context.Context, key string) error

	// Size returns the number of stored entries. It may be approximate.
	Size(ctx context.Context) (int64, error)
}

// KeyDeleter is implemented by stores that can enumerate their keys.
type KeyDeleter interface {
	// DeleteFunc removes every key for which match returns true and reports how many were removed.
	DeleteFunc(ctx context.Context, match func(key string) bool) (int, error)
}

// Backend names the storage backend behind a Store.
type Backend interface {
	Backend() string
}

// Shutdowner is implemented by stores that own background work.
type Shutdowner interface {
	Shutdown() error
}
