package guard

import (
	"context"
	"fmt"
	"time"
)

// CounterStore is the shared ephemeral store backing rate windows, failure
// counters and block marks. Production uses Redis (internal/cache); tests use
// an in-memory fake. Any error from the store is wrapped as a *StoreError and
// handled by the fail-open policy, never surfaced to the end user.
type CounterStore interface {
	// Get returns the value for key. The second return is false when the key
	// does not exist; that is not an error.
	Get(ctx context.Context, key string) (string, bool, error)

	// SetEX stores value under key with the given TTL.
	SetEX(ctx context.Context, key, value string, ttl time.Duration) error

	// Incr atomically increments the counter at key, creating it at 1.
	// Incr does not set a TTL; the caller sets one on first creation.
	Incr(ctx context.Context, key string) (int64, error)

	// Expire sets a TTL on an existing key.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// TTL returns the remaining lifetime of key. A negative duration means
	// the key does not exist or carries no expiry.
	TTL(ctx context.Context, key string) (time.Duration, error)

	// Del removes the given keys and returns how many existed.
	Del(ctx context.Context, keys ...string) (int64, error)

	// Scan returns all keys matching a glob pattern.
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// Attempt is one row of the durable failed-attempt ledger.
type Attempt struct {
	Email            string
	IP               string
	UserAgent        string
	Reason           string
	ConsecutiveFails int
	Locked           bool
	CreatedAt        time.Time
}

// AttemptLedger is the durable, append-only record of failed authentication
// attempts. It is the source of truth for lock state when the ephemeral
// cache is cold, and feeds the attack correlator. The single permitted
// mutation is MarkUnlocked, used by the administrative unlock.
type AttemptLedger interface {
	InsertAttempt(ctx context.Context, a Attempt) error
	CountSince(ctx context.Context, email string, since time.Time) (int, error)
	LatestAttempt(ctx context.Context, email string) (*Attempt, error)
	DistinctIPsForEmail(ctx context.Context, email string, since time.Time) (int, error)
	DistinctEmailsForIP(ctx context.Context, ip string, since time.Time) (int, error)
	MarkUnlocked(ctx context.Context, email string) error
}

// StoreError wraps any failure at a store boundary with enough context to
// reconstruct the decision that was being made.
type StoreError struct {
	Op  string
	Key string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("guard: store %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func storeErr(op, key string, err error) *StoreError {
	return &StoreError{Op: op, Key: key, Err: err}
}
