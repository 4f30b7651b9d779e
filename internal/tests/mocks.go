package tests

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"donation/internal/domain"
	"donation/internal/gateway"
	"donation/internal/repository"
)

// ──────────────────────────────────────────────
// MOCK TRANSACTION REPOSITORY
// ──────────────────────────────────────────────

// MockTransactionRepository is an in-memory TransactionRepository that
// honours the pending-only transition rule of ApplyOutcome.
type MockTransactionRepository struct {
	mu    sync.RWMutex
	txns  map[string]*domain.Transaction
	order []string

	// Counters for verification
	CreateCallCount int32
	ApplyCallCount  int32

	// Error injection
	CreateError error
}

// NewMockTransactionRepository creates a new mock transaction repository.
func NewMockTransactionRepository() *MockTransactionRepository {
	return &MockTransactionRepository{
		txns: make(map[string]*domain.Transaction),
	}
}

// AddTransaction seeds a transaction.
func (m *MockTransactionRepository) AddTransaction(txn *domain.Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txns[txn.ID] = txn
	m.order = append(m.order, txn.ID)
}

// GetTransaction returns a copy of a stored transaction, or nil.
func (m *MockTransactionRepository) GetTransaction(id string) *domain.Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	txn, ok := m.txns[id]
	if !ok {
		return nil
	}
	copy := *txn
	return &copy
}

// CountTransactions returns the number of stored transactions.
func (m *MockTransactionRepository) CountTransactions() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.txns)
}

func (m *MockTransactionRepository) Create(ctx context.Context, txn *domain.Transaction) error {
	atomic.AddInt32(&m.CreateCallCount, 1)
	if m.CreateError != nil {
		return m.CreateError
	}
	copy := *txn
	m.AddTransaction(&copy)
	return nil
}

func (m *MockTransactionRepository) GetByID(ctx context.Context, id string) (*domain.Transaction, error) {
	if txn := m.GetTransaction(id); txn != nil {
		return txn, nil
	}
	return nil, repository.ErrNotFound
}

func (m *MockTransactionRepository) GetByReference(ctx context.Context, donationID, ref string) (*domain.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, id := range m.order {
		txn := m.txns[id]
		if txn.DonationID != donationID {
			continue
		}
		if txn.Reference == ref || (txn.GatewayToken != "" && txn.GatewayToken == ref) {
			copy := *txn
			return &copy, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *MockTransactionRepository) GetLatestByDonation(ctx context.Context, donationID string) (*domain.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := len(m.order) - 1; i >= 0; i-- {
		txn := m.txns[m.order[i]]
		if txn.DonationID == donationID {
			copy := *txn
			return &copy, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *MockTransactionRepository) ApplyOutcome(ctx context.Context, id string, outcome domain.TransactionOutcome) (bool, error) {
	atomic.AddInt32(&m.ApplyCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()

	txn, ok := m.txns[id]
	if !ok {
		return false, repository.ErrNotFound
	}
	if txn.Status != domain.TransactionStatusPending {
		return false, nil
	}

	txn.Status = outcome.Status
	if outcome.GatewayToken != "" {
		txn.GatewayToken = outcome.GatewayToken
	}
	if len(outcome.Response) > 0 {
		txn.GatewayResponse = mergeJSON(txn.GatewayResponse, outcome.Response)
	}
	txn.UpdatedAt = time.Now()
	return true, nil
}

// mergeJSON mirrors the jsonb || merge done by the database.
func mergeJSON(base, patch json.RawMessage) json.RawMessage {
	merged := map[string]json.RawMessage{}
	_ = json.Unmarshal(base, &merged)
	var extra map[string]json.RawMessage
	if err := json.Unmarshal(patch, &extra); err != nil {
		return base
	}
	for k, v := range extra {
		merged[k] = v
	}
	out, _ := json.Marshal(merged)
	return out
}

// ──────────────────────────────────────────────
// MOCK DONATION REPOSITORY
// ──────────────────────────────────────────────

// MockDonationRepository is a mock implementation of DonationRepository.
type MockDonationRepository struct {
	mu        sync.RWMutex
	donations map[string]*domain.Donation
}

// NewMockDonationRepository creates a new mock donation repository.
func NewMockDonationRepository() *MockDonationRepository {
	return &MockDonationRepository{
		donations: make(map[string]*domain.Donation),
	}
}

// AddDonation adds a donation to the mock repository.
func (m *MockDonationRepository) AddDonation(donation *domain.Donation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.donations[donation.ID] = donation
}

func (m *MockDonationRepository) GetByID(ctx context.Context, id string) (*domain.Donation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	donation, ok := m.donations[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *donation
	return &copy, nil
}

// ──────────────────────────────────────────────
// MOCK GATEWAY REPOSITORY
// ──────────────────────────────────────────────

// MockGatewayRepository is a mock GatewayRepository that also serves as the
// factory's configuration source.
type MockGatewayRepository struct {
	mu       sync.RWMutex
	gateways map[string]*domain.PaymentGateway
	configs  map[string]map[string]string

	// Error injection
	LoadConfigError error
}

// NewMockGatewayRepository creates a new mock gateway repository.
func NewMockGatewayRepository() *MockGatewayRepository {
	return &MockGatewayRepository{
		gateways: make(map[string]*domain.PaymentGateway),
		configs:  make(map[string]map[string]string),
	}
}

// AddGateway adds a gateway and its settings for one environment.
func (m *MockGatewayRepository) AddGateway(gw *domain.PaymentGateway, environment string, values map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gateways[gw.Code] = gw
	m.configs[gw.Code+"/"+environment] = values
}

func (m *MockGatewayRepository) GetByCode(ctx context.Context, code string) (*domain.PaymentGateway, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	gw, ok := m.gateways[code]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *gw
	return &copy, nil
}

func (m *MockGatewayRepository) ListActive(ctx context.Context) ([]*domain.PaymentGateway, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.PaymentGateway
	for _, gw := range m.gateways {
		if gw.IsActive {
			copy := *gw
			out = append(out, &copy)
		}
	}
	return out, nil
}

func (m *MockGatewayRepository) LoadConfig(ctx context.Context, code, environment string) (map[string]string, error) {
	if m.LoadConfigError != nil {
		return nil, m.LoadConfigError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	values := make(map[string]string, len(m.configs[code+"/"+environment]))
	for k, v := range m.configs[code+"/"+environment] {
		values[k] = v
	}
	return values, nil
}

// ──────────────────────────────────────────────
// MOCK LOCK STORE
// ──────────────────────────────────────────────

// MockLockStore is a mock implementation of LockStoreInterface.
type MockLockStore struct {
	mu    sync.Mutex
	locks map[string]bool

	// Error injection
	AcquireError error
}

// NewMockLockStore creates a new mock lock store.
func NewMockLockStore() *MockLockStore {
	return &MockLockStore{
		locks: make(map[string]bool),
	}
}

// Hold marks a transaction as locked by another caller.
func (m *MockLockStore) Hold(transactionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locks[transactionID] = true
}

// IsLocked reports whether a verify lock is held.
func (m *MockLockStore) IsLocked(transactionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.locks[transactionID]
}

func (m *MockLockStore) AcquireVerifyLock(ctx context.Context, transactionID string, ttl time.Duration) (bool, error) {
	if m.AcquireError != nil {
		return false, m.AcquireError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[transactionID] {
		return false, nil
	}
	m.locks[transactionID] = true
	return true, nil
}

func (m *MockLockStore) ReleaseVerifyLock(ctx context.Context, transactionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, transactionID)
	return nil
}

// ──────────────────────────────────────────────
// FAKE GATEWAY
// ──────────────────────────────────────────────

// FakeGatewayCode is the code the fake adapter registers under.
const FakeGatewayCode = "fakepay"

// FakeGateway is a scriptable gateway.Adapter. Callbacks carry a "fp_status"
// field ("ok", "cancel", "pending", "hold" or anything else for failed) and
// optionally "fp_ref" and "fp_amount". "hold" yields a status outside the
// known set.
type FakeGateway struct {
	mu sync.Mutex

	InitResult   gateway.InitResult
	VerifyResult gateway.VerifyResult
	// OnVerify, if set, runs at the start of every Verify call.
	OnVerify func(ctx context.Context)

	InitRequests   []gateway.PaymentRequest
	VerifyRequests []gateway.VerifyRequest
}

// NewFakeGateway returns a fake whose calls succeed.
func NewFakeGateway() *FakeGateway {
	return &FakeGateway{
		InitResult: gateway.InitResult{
			Success:    true,
			LaunchData: gateway.LaunchData{"token": "launch-token"},
		},
		VerifyResult: gateway.VerifyResult{
			Success:      true,
			Status:       "success",
			GatewayToken: "fp-token",
		},
	}
}

// Registration registers the fake with a gateway factory and resolver.
func (f *FakeGateway) Registration() gateway.Registration {
	return gateway.Registration{
		Code: FakeGatewayCode,
		New: func(cfg gateway.Config, deps gateway.Deps) (gateway.Adapter, error) {
			if err := cfg.Require("api_key"); err != nil {
				return nil, err
			}
			return f, nil
		},
		Matches: func(fields map[string]string) bool {
			return gateway.HasFields(fields, "fp_status")
		},
	}
}

// VerifyCalls returns how many times Verify ran.
func (f *FakeGateway) VerifyCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.VerifyRequests)
}

func (f *FakeGateway) Code() string { return FakeGatewayCode }

func (f *FakeGateway) Initialize(ctx context.Context, req gateway.PaymentRequest) gateway.InitResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.InitRequests = append(f.InitRequests, req)
	return f.InitResult
}

func (f *FakeGateway) HandleCallback(ctx context.Context, fields map[string]string) gateway.CallbackResult {
	raw := make(map[string]string, len(fields))
	for k, v := range fields {
		raw[k] = v
	}
	result := gateway.CallbackResult{
		Status:       domain.TransactionStatusFailed,
		GatewayToken: fields["fp_token"],
		Reference:    fields["fp_ref"],
		Raw:          raw,
	}
	switch fields["fp_status"] {
	case "ok":
		result.Success = true
		result.Status = domain.TransactionStatusCompleted
	case "cancel":
		result.Status = domain.TransactionStatusCancelled
	case "pending":
		result.Status = domain.TransactionStatusPending
	case "hold":
		result.Status = domain.TransactionStatus("on_hold")
	}
	if amount, err := decimal.NewFromString(fields["fp_amount"]); err == nil {
		result.Amount = &amount
	}
	return result
}

func (f *FakeGateway) Verify(ctx context.Context, req gateway.VerifyRequest) gateway.VerifyResult {
	if f.OnVerify != nil {
		f.OnVerify(ctx)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.VerifyRequests = append(f.VerifyRequests, req)
	return f.VerifyResult
}
