package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// LockStore handles distributed locking in Redis.
type LockStore struct {
	client *redis.Client
}

// NewLockStore creates a new LockStore.
func NewLockStore(client *redis.Client) *LockStore {
	return &LockStore{client: client}
}

func verifyLockKey(transactionID string) string {
	return fmt.Sprintf("lock:verify:%s", transactionID)
}

// AcquireVerifyLock attempts to take the status-check lock of a transaction.
// Returns true if the lock was acquired, false if another check holds it.
func (s *LockStore) AcquireVerifyLock(ctx context.Context, transactionID string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, verifyLockKey(transactionID), "1", ttl).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

// ReleaseVerifyLock releases the status-check lock of a transaction.
func (s *LockStore) ReleaseVerifyLock(ctx context.Context, transactionID string) error {
	return s.client.Del(ctx, verifyLockKey(transactionID)).Err()
}
