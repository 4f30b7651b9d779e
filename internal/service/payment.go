package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"donation/internal/domain"
	"donation/internal/gateway"
	"donation/internal/metrics"
	"donation/internal/redis"
	"donation/internal/repository"
)

const defaultCurrency = "INR"

// GatewayFactory constructs adapters by gateway code and environment.
type GatewayFactory interface {
	Make(ctx context.Context, code, environment string) (gateway.Adapter, error)
}

// CallbackResolver identifies the gateway that sent a callback.
type CallbackResolver interface {
	Detect(fields map[string]string) (string, bool)
}

// PaymentConfig holds the deployment settings the orchestrator needs.
type PaymentConfig struct {
	// Environment is the gateway credential set, "test" or "live".
	Environment      string
	SurchargePercent int64
	// PublicBaseURL is the externally reachable base of this service.
	PublicBaseURL string
	// WebBaseURL is the base of the donation web app donors are redirected to.
	WebBaseURL    string
	VerifyLockTTL time.Duration
	// VerifyTimeout bounds a shared status verification. It defaults to VerifyLockTTL.
	VerifyTimeout time.Duration
}

// PaymentDeps are the collaborators of PaymentService. Everything after
// Sessions is optional.
type PaymentDeps struct {
	Transactions repository.TransactionRepository
	Donations    repository.DonationRepository
	Gateways     repository.GatewayRepository
	Factory      GatewayFactory
	Resolver     CallbackResolver
	Sessions     redis.SessionStoreInterface
	Locks        redis.LockStoreInterface
	Metrics      *metrics.Metrics
	Logger       *slog.Logger
	Now          func() time.Time

	// Notifications and Receipts are told about transactions leaving pending.
	Notifications *NotificationService
	Receipts      *ReceiptService
}

// PaymentService drives the payment state machine of a donation: it starts
// payment attempts, applies gateway callbacks and re-verifies attempts on
// request.
type PaymentService struct {
	txnRepo       repository.TransactionRepository
	donationRepo  repository.DonationRepository
	gatewayRepo   repository.GatewayRepository
	factory       GatewayFactory
	resolver      CallbackResolver
	sessions      redis.SessionStoreInterface
	locks         redis.LockStoreInterface
	metrics       *metrics.Metrics
	notifications *NotificationService
	receipts      *ReceiptService
	logger        *slog.Logger
	now           func() time.Time
	cfg           PaymentConfig

	// inflight collapses concurrent status checks per transaction.
	inflight singleflight.Group
}

// NewPaymentService creates a new PaymentService.
func NewPaymentService(deps PaymentDeps, cfg PaymentConfig) *PaymentService {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if cfg.Environment == "" {
		cfg.Environment = gateway.EnvironmentTest
	}
	if cfg.VerifyLockTTL <= 0 {
		cfg.VerifyLockTTL = 15 * time.Second
	}
	if cfg.VerifyTimeout <= 0 {
		cfg.VerifyTimeout = cfg.VerifyLockTTL
	}

	return &PaymentService{
		txnRepo:       deps.Transactions,
		donationRepo:  deps.Donations,
		gatewayRepo:   deps.Gateways,
		factory:       deps.Factory,
		resolver:      deps.Resolver,
		sessions:      deps.Sessions,
		locks:         deps.Locks,
		metrics:       deps.Metrics,
		notifications: deps.Notifications,
		receipts:      deps.Receipts,
		logger:        deps.Logger,
		now:           deps.Now,
		cfg:           cfg,
	}
}

// BeginPaymentRequest contains the parameters for starting a payment attempt.
type BeginPaymentRequest struct {
	DonationID  string
	GatewayCode string
}

// BeginPaymentResult is what the client needs to open the gateway checkout.
type BeginPaymentResult struct {
	Gateway       string
	TransactionID string
	Reference     string
	Amount        decimal.Decimal
	LaunchData    gateway.LaunchData
	Environment   string
	ReturnURL     string
}

// BeginPayment initializes a payment with the chosen gateway and records a
// pending transaction. Nothing is persisted when the gateway is unsupported
// or refuses to initialize.
func (s *PaymentService) BeginPayment(ctx context.Context, req BeginPaymentRequest) (*BeginPaymentResult, error) {
	if req.DonationID == "" {
		return nil, ErrInvalidDonationID
	}
	if req.GatewayCode == "" {
		return nil, ErrInvalidGateway
	}

	donation, err := s.getDonation(ctx, req.DonationID)
	if err != nil {
		return nil, err
	}

	gw, err := s.gatewayRepo.GetByCode(ctx, req.GatewayCode)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrGatewayNotSupported
		}
		return nil, err
	}
	if !gw.IsActive {
		return nil, ErrGatewayNotSupported
	}

	adapter, err := s.makeAdapter(ctx, gw.Code)
	if err != nil {
		return nil, err
	}

	amount := Surcharge(donation.Amount, s.cfg.SurchargePercent)
	reference := NewReference(gw.Code, s.now())
	returnURL := s.returnURL(donation.ID, reference)

	currency := donation.CurrencyCode
	if currency == "" {
		currency = defaultCurrency
	}

	started := adapter.Initialize(ctx, gateway.PaymentRequest{
		Amount:           amount,
		Currency:         currency,
		Reference:        reference,
		DonationID:       donation.ID,
		Name:             donation.DonorName(),
		Email:            donation.Email,
		Phone:            donation.Phone,
		PhoneCountryCode: donation.PhoneCountryCode,
		ReturnURL:        returnURL,
	})
	if !started.Success {
		s.logger.WarnContext(ctx, "payment initialization failed",
			"donation_id", donation.ID,
			"gateway", gw.Code,
			"reference", reference,
			"reason", started.Message,
		)
		if gateway.IsUnavailable(started.Err) {
			return nil, ErrGatewayUnavailable
		}
		return nil, ErrPaymentInitFailed
	}

	now := s.now()
	txn := &domain.Transaction{
		ID:          uuid.NewString(),
		DonationID:  donation.ID,
		GatewayID:   gw.ID,
		GatewayCode: gw.Code,
		Reference:   reference,
		Amount:      amount,
		CurrencyID:  donation.CurrencyID,
		Status:      domain.TransactionStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.txnRepo.Create(ctx, txn); err != nil {
		return nil, fmt.Errorf("persist transaction: %w", err)
	}
	s.metrics.IncTransaction(gw.Code, string(txn.Status))

	if s.sessions != nil {
		snap := newSnapshot(txn, donation)
		snap.LastAccessedAt = now
		if err := s.sessions.Store(ctx, snap); err != nil {
			s.logger.WarnContext(ctx, "failed to store transaction snapshot", "transaction_id", txn.ID, "error", err)
		}
	}

	s.logger.InfoContext(ctx, "payment started",
		"donation_id", donation.ID,
		"transaction_id", txn.ID,
		"gateway", gw.Code,
		"reference", reference,
		"amount", amount.StringFixed(2),
	)

	return &BeginPaymentResult{
		Gateway:       gw.Code,
		TransactionID: txn.ID,
		Reference:     reference,
		Amount:        amount,
		LaunchData:    started.LaunchData,
		Environment:   s.cfg.Environment,
		ReturnURL:     returnURL,
	}, nil
}

// LastTransactionSummary describes the most recent attempt of a donation.
type LastTransactionSummary struct {
	TransactionID string                   `json:"transaction_id"`
	Status        domain.TransactionStatus `json:"status"`
	Amount        string                   `json:"amount"`
	Currency      string                   `json:"currency"`
	Gateway       string                   `json:"gateway"`
	StartedAt     time.Time                `json:"started_at"`
}

// LastTransaction returns the most recent attempt of a donation, or nil if
// none was ever started.
func (s *PaymentService) LastTransaction(ctx context.Context, donationID string) (*LastTransactionSummary, error) {
	if donationID == "" {
		return nil, ErrInvalidDonationID
	}

	donation, err := s.getDonation(ctx, donationID)
	if err != nil {
		return nil, err
	}

	txn, err := s.txnRepo.GetLatestByDonation(ctx, donationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &LastTransactionSummary{
		TransactionID: txn.ID,
		Status:        txn.Status,
		Amount:        txn.Amount.StringFixed(2),
		Currency:      donation.CurrencySymbol,
		Gateway:       txn.GatewayCode,
		StartedAt:     txn.CreatedAt,
	}, nil
}

// Snapshot returns the cached view of a transaction, falling back to the
// durable record when the cache entry has expired.
func (s *PaymentService) Snapshot(ctx context.Context, transactionID string) (*domain.TransactionSnapshot, error) {
	if transactionID == "" {
		return nil, ErrInvalidTransactionID
	}

	if s.sessions != nil {
		snap, err := s.sessions.Get(ctx, transactionID)
		if err != nil {
			s.logger.WarnContext(ctx, "transaction snapshot read failed", "transaction_id", transactionID, "error", err)
		} else if snap != nil {
			return snap, nil
		}
	}

	txn, err := s.txnRepo.GetByID(ctx, transactionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}

	donation, err := s.getDonation(ctx, txn.DonationID)
	if err != nil {
		return nil, err
	}

	snap := newSnapshot(txn, donation)
	snap.LastAccessedAt = s.now()
	return snap, nil
}

// notifySettled informs the donor about a transaction that just left pending
// and issues the receipt for a completed one. Failures are logged only.
func (s *PaymentService) notifySettled(ctx context.Context, donation *domain.Donation, txn *domain.Transaction) {
	if s.notifications == nil {
		return
	}
	if donation == nil {
		d, err := s.donationRepo.GetByID(ctx, txn.DonationID)
		if err != nil {
			s.logger.WarnContext(ctx, "notification skipped, donation unavailable", "transaction_id", txn.ID, "error", err)
			return
		}
		donation = d
	}

	if txn.Status != domain.TransactionStatusCompleted {
		_ = s.notifications.NotifyPaymentFailed(ctx, donation, txn)
		return
	}

	_ = s.notifications.NotifyPaymentCompleted(ctx, donation, txn)
	if s.receipts == nil {
		return
	}
	if _, err := s.receipts.GenerateReceipt(ctx, GenerateReceiptRequest{Donation: donation, Transaction: txn}); err != nil {
		s.logger.WarnContext(ctx, "failed to issue receipt", "transaction_id", txn.ID, "error", err)
	}
}

func (s *PaymentService) getDonation(ctx context.Context, id string) (*domain.Donation, error) {
	donation, err := s.donationRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrDonationNotFound
		}
		return nil, err
	}
	return donation, nil
}

// makeAdapter maps factory failures onto service errors.
func (s *PaymentService) makeAdapter(ctx context.Context, code string) (gateway.Adapter, error) {
	adapter, err := s.factory.Make(ctx, code, s.cfg.Environment)
	if err == nil {
		return adapter, nil
	}

	switch {
	case errors.Is(err, gateway.ErrUnsupported):
		return nil, ErrGatewayNotSupported
	case gateway.IsConfigurationError(err):
		s.logger.ErrorContext(ctx, "gateway misconfigured", "gateway", code, "environment", s.cfg.Environment, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrGatewayMisconfigured, err)
	default:
		return nil, fmt.Errorf("load gateway %s: %w", code, err)
	}
}

func (s *PaymentService) returnURL(donationID, reference string) string {
	q := url.Values{}
	q.Set("donation_id", donationID)
	q.Set("ref", reference)
	return s.cfg.PublicBaseURL + "/v1/payments/callback?" + q.Encode()
}

func (s *PaymentService) confirmationURL(donationID string) string {
	return s.cfg.WebBaseURL + "/donation/" + url.PathEscape(donationID) + "/confirmation"
}

func (s *PaymentService) selectionURL(donationID string) string {
	return s.cfg.WebBaseURL + "/donation/" + url.PathEscape(donationID) + "/payment"
}

func (s *PaymentService) homeURL() string {
	return s.cfg.WebBaseURL + "/"
}

func newSnapshot(txn *domain.Transaction, donation *domain.Donation) *domain.TransactionSnapshot {
	return &domain.TransactionSnapshot{
		TransactionID:  txn.ID,
		DonationID:     txn.DonationID,
		Amount:         txn.Amount.StringFixed(2),
		CurrencySymbol: donation.CurrencySymbol,
		DonorName:      donation.DonorName(),
		Email:          donation.Email,
		Phone:          donation.FullPhone(),
		Status:         txn.Status,
		Gateway:        txn.GatewayCode,
		CreatedAt:      txn.CreatedAt,
	}
}
