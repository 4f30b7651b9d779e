package tests

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"

	"donation/internal/domain"
	"donation/internal/gateway"
	"donation/internal/service"
)

// ──────────────────────────────────────────────
// 1. STARTING A PAYMENT
// ──────────────────────────────────────────────

func TestBeginPayment_RecordsPendingTransaction(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	res, err := h.svc.BeginPayment(context.Background(), service.BeginPaymentRequest{
		DonationID:  testDonationID,
		GatewayCode: FakeGatewayCode,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Amount.StringFixed(2) != "105.00" {
		t.Errorf("expected surcharged amount 105.00, got %s", res.Amount.StringFixed(2))
	}
	if res.Environment != gateway.EnvironmentTest {
		t.Errorf("expected test environment, got %s", res.Environment)
	}
	if res.LaunchData["token"] != "launch-token" {
		t.Errorf("expected launch data to be passed through, got %v", res.LaunchData)
	}
	if !strings.HasPrefix(res.Reference, "FAK-") {
		t.Errorf("expected reference prefixed FAK-, got %s", res.Reference)
	}

	returnURL, err := url.Parse(res.ReturnURL)
	if err != nil {
		t.Fatalf("bad return url: %v", err)
	}
	if returnURL.Path != "/v1/payments/callback" ||
		returnURL.Query().Get("donation_id") != testDonationID ||
		returnURL.Query().Get("ref") != res.Reference {
		t.Errorf("unexpected return url %s", res.ReturnURL)
	}

	stored := h.txns.GetTransaction(res.TransactionID)
	if stored == nil {
		t.Fatal("transaction not persisted")
	}
	if stored.Status != domain.TransactionStatusPending {
		t.Errorf("expected pending, got %s", stored.Status)
	}
	if stored.Reference != res.Reference || stored.CurrencyID != "cur-inr" {
		t.Errorf("unexpected stored transaction %+v", stored)
	}

	if len(h.fake.InitRequests) != 1 {
		t.Fatalf("expected 1 initialize call, got %d", len(h.fake.InitRequests))
	}
	req := h.fake.InitRequests[0]
	if req.Name != "Asha Rao" || req.Currency != "INR" || req.ReturnURL != res.ReturnURL {
		t.Errorf("unexpected payment request %+v", req)
	}

	snap, err := h.svc.Snapshot(context.Background(), res.TransactionID)
	if err != nil {
		t.Fatalf("unexpected snapshot error: %v", err)
	}
	if snap.Amount != "105.00" || snap.Phone != "+919876543210" || snap.Status != domain.TransactionStatusPending {
		t.Errorf("unexpected snapshot %+v", snap)
	}
}

func TestBeginPayment_WorldlineLaunchData(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	res, err := h.svc.BeginPayment(context.Background(), service.BeginPaymentRequest{
		DonationID:  testDonationID,
		GatewayCode: "worldline",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	form, ok := res.LaunchData["form_data"].(map[string]string)
	if !ok {
		t.Fatalf("expected form_data, got %T", res.LaunchData["form_data"])
	}
	// TEST payment type charges a token amount at the gateway.
	if form["amount"] != "1" {
		t.Errorf("expected amount 1 in test mode, got %s", form["amount"])
	}
	if form["txnId"] != res.Reference {
		t.Errorf("expected txnId %s, got %s", res.Reference, form["txnId"])
	}

	ui, ok := res.LaunchData["mer_array"].(map[string]string)
	if !ok {
		t.Fatalf("expected mer_array, got %T", res.LaunchData["mer_array"])
	}
	if _, leaked := ui["salt"]; leaked {
		t.Error("salt must not be sent to the browser")
	}
}

func TestBeginPayment_NothingPersistedOnFailure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		gateway string
		setup   func(h *harness)
		wantErr error
	}{
		{
			name:    "gateway without adapter",
			gateway: "paypal",
			wantErr: service.ErrGatewayNotSupported,
		},
		{
			name:    "unknown gateway",
			gateway: "stripe",
			wantErr: service.ErrGatewayNotSupported,
		},
		{
			name:    "inactive gateway",
			gateway: FakeGatewayCode,
			setup: func(h *harness) {
				h.gateways.AddGateway(&domain.PaymentGateway{ID: 1, Code: FakeGatewayCode}, gateway.EnvironmentTest, map[string]string{"api_key": "k"})
			},
			wantErr: service.ErrGatewayNotSupported,
		},
		{
			name:    "missing secret",
			gateway: FakeGatewayCode,
			setup: func(h *harness) {
				h.gateways.AddGateway(&domain.PaymentGateway{ID: 1, Code: FakeGatewayCode, IsActive: true}, gateway.EnvironmentTest, nil)
			},
			wantErr: service.ErrGatewayMisconfigured,
		},
		{
			name:    "gateway refuses",
			gateway: FakeGatewayCode,
			setup: func(h *harness) {
				h.fake.InitResult = gateway.InitResult{Message: "bad merchant", Err: gateway.ErrRejected}
			},
			wantErr: service.ErrPaymentInitFailed,
		},
		{
			name:    "gateway down",
			gateway: FakeGatewayCode,
			setup: func(h *harness) {
				h.fake.InitResult = gateway.InitResult{Message: "timeout", Err: gateway.ErrUnavailable}
			},
			wantErr: service.ErrGatewayUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			if tt.setup != nil {
				tt.setup(h)
			}

			_, err := h.svc.BeginPayment(context.Background(), service.BeginPaymentRequest{
				DonationID:  testDonationID,
				GatewayCode: tt.gateway,
			})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if h.txns.CountTransactions() != 0 {
				t.Errorf("expected no transaction, got %d", h.txns.CountTransactions())
			}
		})
	}
}

func TestBeginPayment_UnknownDonation(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	_, err := h.svc.BeginPayment(context.Background(), service.BeginPaymentRequest{
		DonationID:  "missing",
		GatewayCode: FakeGatewayCode,
	})
	if !errors.Is(err, service.ErrDonationNotFound) {
		t.Fatalf("expected ErrDonationNotFound, got %v", err)
	}
}

func TestLastTransaction(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	last, err := h.svc.LastTransaction(ctx, testDonationID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if last != nil {
		t.Fatalf("expected no transaction yet, got %+v", last)
	}

	h.seedPending("txn-1", "FAK-1")
	h.seedPending("txn-2", "FAK-2")

	last, err = h.svc.LastTransaction(ctx, testDonationID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if last == nil || last.TransactionID != "txn-2" {
		t.Fatalf("expected txn-2, got %+v", last)
	}
	if last.Amount != "105.00" || last.Currency != "₹" {
		t.Errorf("unexpected summary %+v", last)
	}
}
