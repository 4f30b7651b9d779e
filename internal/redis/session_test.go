package redis

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"donation/internal/domain"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func testSnapshot() *domain.TransactionSnapshot {
	return &domain.TransactionSnapshot{
		TransactionID:  "tx-1",
		DonationID:     "don-1",
		Amount:         "105.00",
		CurrencySymbol: "₹",
		DonorName:      "Asha Rao",
		Status:         domain.TransactionStatusPending,
		Gateway:        "easebuzz",
		CreatedAt:      time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestSessionStore_AvailableJustBeforeTTL(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestClient(t)
	store := NewSessionStore(client, 0)

	require.NoError(t, store.Store(ctx, testSnapshot()))
	assert.True(t, mr.Exists("txn_tx-1"))

	mr.FastForward(1799 * time.Second)

	snap, err := store.Get(ctx, "tx-1")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, "don-1", snap.DonationID)
}

func TestSessionStore_GoneAfterTTL(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestClient(t)
	store := NewSessionStore(client, 0)

	require.NoError(t, store.Store(ctx, testSnapshot()))

	mr.FastForward(1801 * time.Second)

	snap, err := store.Get(ctx, "tx-1")
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestSessionStore_GetRefreshesTTL(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestClient(t)
	store := NewSessionStore(client, 0)
	accessed := time.Date(2025, 1, 1, 12, 20, 0, 0, time.UTC)
	store.now = func() time.Time { return accessed }

	require.NoError(t, store.Store(ctx, testSnapshot()))
	mr.FastForward(1200 * time.Second)

	snap, err := store.Get(ctx, "tx-1")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, accessed, snap.LastAccessedAt.UTC())
	assert.Equal(t, DefaultSessionTTL, mr.TTL("txn_tx-1"))
}

func TestSessionStore_UpdateStatus(t *testing.T) {
	ctx := context.Background()
	_, client := newTestClient(t)
	store := NewSessionStore(client, time.Minute)

	require.NoError(t, store.Store(ctx, testSnapshot()))
	require.NoError(t, store.UpdateStatus(ctx, "tx-1", domain.TransactionStatusCompleted))

	snap, err := store.Get(ctx, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusCompleted, snap.Status)
}

func TestSessionStore_UpdateStatusAfterExpiryIsNoop(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestClient(t)
	store := NewSessionStore(client, time.Minute)

	require.NoError(t, store.Store(ctx, testSnapshot()))
	mr.FastForward(2 * time.Minute)

	require.NoError(t, store.UpdateStatus(ctx, "tx-1", domain.TransactionStatusFailed))
	assert.False(t, mr.Exists("txn_tx-1"))
}

// onFirstGet runs fn once, right after the client's first GET completes.
type onFirstGet struct {
	fired bool
	fn    func()
}

func (h *onFirstGet) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (h *onFirstGet) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		err := next(ctx, cmd)
		if cmd.Name() == "get" && !h.fired {
			h.fired = true
			h.fn()
		}
		return err
	}
}

func (h *onFirstGet) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func TestSessionStore_GetDoesNotOverwriteConcurrentStatusUpdate(t *testing.T) {
	ctx := context.Background()
	mr, writerClient := newTestClient(t)
	writer := NewSessionStore(writerClient, 0)
	require.NoError(t, writer.Store(ctx, testSnapshot()))

	pollClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = pollClient.Close() })
	hook := &onFirstGet{fn: func() {
		require.NoError(t, writer.UpdateStatus(ctx, "tx-1", domain.TransactionStatusCompleted))
	}}
	pollClient.AddHook(hook)
	poller := NewSessionStore(pollClient, 0)

	snap, err := poller.Get(ctx, "tx-1")
	require.NoError(t, err)
	require.True(t, hook.fired)
	require.NotNil(t, snap)
	assert.Equal(t, domain.TransactionStatusCompleted, snap.Status)

	stored, err := writer.Get(ctx, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusCompleted, stored.Status)
}

func TestSessionStore_GetMissDoesNotCreateKey(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestClient(t)
	store := NewSessionStore(client, 0)

	snap, err := store.Get(ctx, "tx-404")
	require.NoError(t, err)
	assert.Nil(t, snap)
	assert.False(t, mr.Exists("txn_tx-404"))
}

func TestLockStore_VerifyLock(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestClient(t)
	locks := NewLockStore(client)

	ok, err := locks.AcquireVerifyLock(ctx, "tx-1", 15*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = locks.AcquireVerifyLock(ctx, "tx-1", 15*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, locks.ReleaseVerifyLock(ctx, "tx-1"))
	ok, err = locks.AcquireVerifyLock(ctx, "tx-1", 15*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	mr.FastForward(16 * time.Second)
	assert.False(t, mr.Exists("lock:verify:tx-1"))
}
