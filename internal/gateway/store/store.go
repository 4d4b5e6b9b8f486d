package store

import (
	"context"
	"errors"
	"time"

	"github.com/tabwave/stepgate/internal/gateway/domain"
)

var ErrNotFound = errors.New("store: not found")

// Ledger is the access request data store. Concrete drivers (memory,
// sqlite, redis) implement it behind the DataStore plugin category.
//
// The ledger never judges expiry. GetAccessRequest returns the raw
// record regardless of age; the orchestrator compares the issue time
// against the configured timeout and deletes expired records itself.
type Ledger interface {
	// StoreAccessRequest replaces any existing record for the
	// (host, subject) key and inserts the new one atomically. The last
	// writer determines which code is valid.
	StoreAccessRequest(ctx context.Context, req domain.AccessRequest) error

	// GetAccessRequest returns the live record for (host, subject) or
	// ErrNotFound.
	GetAccessRequest(ctx context.Context, host, subject string) (domain.AccessRequest, error)

	// DeleteAccessRequests removes any record for (host, subject).
	// Deleting a missing record is not an error.
	DeleteAccessRequests(ctx context.Context, host, subject string) error

	// DeleteExpiredBefore removes every record issued before cutoff.
	// Used by housekeeping; the hot path never depends on it.
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases any underlying resources.
	Close() error
}
