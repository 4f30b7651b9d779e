package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"donation/internal/domain"
)

// DefaultSessionTTL is how long a transaction snapshot lives after its last write.
const DefaultSessionTTL = 1800 * time.Second

const (
	sessionPrefix     = "txn_"
	maxSessionRetries = 5
)

// ErrSessionContention is returned when a snapshot kept changing under a
// read-modify-write.
var ErrSessionContention = errors.New("transaction snapshot changed concurrently")

// SessionStore keeps transaction snapshots in Redis under expiring keys.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// NewSessionStore creates a new SessionStore. A non-positive ttl selects DefaultSessionTTL.
func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionStore{client: client, ttl: ttl, now: time.Now}
}

func sessionKey(transactionID string) string {
	return sessionPrefix + transactionID
}

// Store writes the snapshot and resets its TTL.
func (s *SessionStore) Store(ctx context.Context, snap *domain.TransactionSnapshot) error {
	if snap.LastAccessedAt.IsZero() {
		snap.LastAccessedAt = s.now()
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, sessionKey(snap.TransactionID), data, s.ttl).Err()
}

// Get returns the snapshot, or nil on a miss. A hit refreshes the TTL and
// the last-accessed timestamp.
func (s *SessionStore) Get(ctx context.Context, transactionID string) (*domain.TransactionSnapshot, error) {
	return s.mutate(ctx, transactionID, func(snap *domain.TransactionSnapshot) {
		snap.LastAccessedAt = s.now()
	})
}

// UpdateStatus rewrites the status of a live snapshot. It is a no-op when
// the snapshot has already expired.
func (s *SessionStore) UpdateStatus(ctx context.Context, transactionID string, status domain.TransactionStatus) error {
	_, err := s.mutate(ctx, transactionID, func(snap *domain.TransactionSnapshot) {
		snap.Status = status
	})
	return err
}

// mutate applies fn to a stored snapshot and writes it back under WATCH, so
// a concurrent writer forces a re-read instead of being overwritten. It
// returns nil without writing when the key does not exist.
func (s *SessionStore) mutate(ctx context.Context, transactionID string, fn func(*domain.TransactionSnapshot)) (*domain.TransactionSnapshot, error) {
	key := sessionKey(transactionID)

	var result *domain.TransactionSnapshot
	txf := func(tx *redis.Tx) error {
		result = nil

		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return nil // Cache miss
			}
			return err
		}

		var snap domain.TransactionSnapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			return err
		}
		fn(&snap)

		updated, err := json.Marshal(&snap)
		if err != nil {
			return err
		}

		// XX so a key that expired since the read is not resurrected.
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SetXX(ctx, key, updated, s.ttl)
			return nil
		})
		if err != nil {
			return err
		}
		result = &snap
		return nil
	}

	for i := 0; i < maxSessionRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return result, nil
	}
	return nil, ErrSessionContention
}
