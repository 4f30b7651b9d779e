package tests

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"donation/internal/cache"
	"donation/internal/domain"
	"donation/internal/gateway"
	"donation/internal/gateway/easebuzz"
	"donation/internal/gateway/worldline"
	"donation/internal/metrics"
	"donation/internal/service"
)

const (
	testDonationID = "don-1"
	testWebBase    = "https://donate.example.org"
	testPublicBase = "https://api.example.org"

	testEasebuzzKey  = "EZKEY"
	testEasebuzzSalt = "EZSALT"
)

// harness wires a PaymentService over in-memory collaborators, a scriptable
// fake gateway and the real Worldline and Easebuzz adapters.
type harness struct {
	txns      *MockTransactionRepository
	donations *MockDonationRepository
	gateways  *MockGatewayRepository
	locks     *MockLockStore
	sessions  *cache.MemorySessionStore
	fake      *FakeGateway
	metrics   *metrics.Metrics
	svc       *service.PaymentService
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		txns:      NewMockTransactionRepository(),
		donations: NewMockDonationRepository(),
		gateways:  NewMockGatewayRepository(),
		locks:     NewMockLockStore(),
		sessions:  cache.NewMemorySessionStore(30*time.Minute, 0),
		fake:      NewFakeGateway(),
		metrics:   metrics.New(prometheus.NewRegistry()),
	}
	t.Cleanup(h.sessions.Stop)

	h.donations.AddDonation(&domain.Donation{
		ID:               testDonationID,
		FirstName:        "Asha",
		LastName:         "Rao",
		Email:            "asha@example.org",
		Phone:            "9876543210",
		PhoneCountryCode: "+91",
		Amount:           decimal.NewFromInt(100),
		CurrencyID:       "cur-inr",
		CurrencyCode:     "INR",
		CurrencySymbol:   "₹",
	})
	h.gateways.AddGateway(&domain.PaymentGateway{ID: 1, Code: FakeGatewayCode, Name: "FakePay", IsActive: true},
		gateway.EnvironmentTest, map[string]string{"api_key": "k"})
	h.gateways.AddGateway(&domain.PaymentGateway{ID: 2, Code: worldline.Code, Name: "Worldline", IsActive: true},
		gateway.EnvironmentTest, map[string]string{
			"merchantCode":       "T12345",
			"merchantSchemeCode": "FIRST",
			"salt":               "0123456789",
			"typeOfPayment":      "TEST",
			"currency":           "INR",
		})
	h.gateways.AddGateway(&domain.PaymentGateway{ID: 3, Code: "paypal", Name: "PayPal", IsActive: true},
		gateway.EnvironmentTest, nil)
	h.gateways.AddGateway(&domain.PaymentGateway{ID: 4, Code: easebuzz.Code, Name: "Easebuzz", IsActive: true},
		gateway.EnvironmentTest, map[string]string{"merchant_key": testEasebuzzKey, "salt": testEasebuzzSalt})

	registrations := []gateway.Registration{h.fake.Registration(), worldline.Registration(), easebuzz.Registration()}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	notifications := service.NewNotificationService(logger)

	h.svc = service.NewPaymentService(service.PaymentDeps{
		Transactions: h.txns,
		Donations:    h.donations,
		Gateways:     h.gateways,
		Factory:      gateway.NewFactory(h.gateways, gateway.Deps{Logger: logger, Observer: h.metrics}, registrations...),
		Resolver:     gateway.NewResolver(registrations...),
		Sessions:     h.sessions,
		Locks:        h.locks,
		Metrics:      h.metrics,
		Logger:       logger,

		Notifications: notifications,
		Receipts:      service.NewReceiptService(notifications),
	}, service.PaymentConfig{
		Environment:      gateway.EnvironmentTest,
		SurchargePercent: service.DefaultSurchargePercent,
		PublicBaseURL:    testPublicBase,
		WebBaseURL:       testWebBase,
		VerifyLockTTL:    time.Second,
	})
	return h
}

// seedPending stores a pending fake-gateway transaction and returns it.
func (h *harness) seedPending(id, reference string) *domain.Transaction {
	return h.seedPendingOn(1, FakeGatewayCode, id, reference)
}

func (h *harness) seedPendingOn(gatewayID int64, code, id, reference string) *domain.Transaction {
	txn := &domain.Transaction{
		ID:          id,
		DonationID:  testDonationID,
		GatewayID:   gatewayID,
		GatewayCode: code,
		Reference:   reference,
		Amount:      decimal.RequireFromString("105.00"),
		CurrencyID:  "cur-inr",
		Status:      domain.TransactionStatusPending,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	h.txns.AddTransaction(txn)
	return txn
}
