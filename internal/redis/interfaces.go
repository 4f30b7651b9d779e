package redis

import (
	"context"
	"time"

	"donation/internal/domain"
)

// SessionStoreInterface defines the transaction snapshot cache operations.
// Implementations must treat a missing entry as a miss, not an error.
type SessionStoreInterface interface {
	Store(ctx context.Context, snap *domain.TransactionSnapshot) error
	Get(ctx context.Context, transactionID string) (*domain.TransactionSnapshot, error)
	UpdateStatus(ctx context.Context, transactionID string, status domain.TransactionStatus) error
}

// LockStoreInterface defines the interface for distributed locking.
type LockStoreInterface interface {
	AcquireVerifyLock(ctx context.Context, transactionID string, ttl time.Duration) (bool, error)
	ReleaseVerifyLock(ctx context.Context, transactionID string) error
}

// Ensure concrete types implement interfaces.
var (
	_ SessionStoreInterface = (*SessionStore)(nil)
	_ LockStoreInterface    = (*LockStore)(nil)
)
