// Package gateway defines the contract every payment gateway adapter
// implements, together with the shared pieces around it: configuration
// snapshots, the factory that constructs adapters by code, and the resolver
// that recognises which gateway sent a callback.
//
// Adapters never return raw transport faults. Initialize and Verify report
// failures through their result types, with Err wrapping ErrUnavailable or
// ErrRejected so callers can tell a retryable outage from a refusal.
// HandleCallback sets Err, wrapping ErrRejected, when a callback fails
// authentication; such results must not change stored state.
package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"donation/internal/domain"
)

// Environment names a gateway credential set.
const (
	EnvironmentTest = "test"
	EnvironmentLive = "live"
)

// PaymentRequest carries what an adapter needs to start a payment attempt.
type PaymentRequest struct {
	// Amount is the surcharged amount that will be charged.
	Amount   decimal.Decimal
	Currency string
	// Reference is the outbound reference generated for this attempt.
	Reference        string
	DonationID       string
	Name             string
	Email            string
	Phone            string
	PhoneCountryCode string
	// ReturnURL is where the gateway sends the donor back to.
	ReturnURL string
}

// LaunchData is the gateway-specific payload the client uses to open checkout.
type LaunchData map[string]any

// InitResult is the outcome of Adapter.Initialize.
type InitResult struct {
	Success    bool
	LaunchData LaunchData
	// Message is a diagnostic for operators; it is never shown to donors.
	Message string
	Err     error
}

// CallbackResult is a gateway callback normalized to the internal vocabulary.
type CallbackResult struct {
	Success bool
	Status  domain.TransactionStatus
	// GatewayToken is the identifier the gateway assigned to the payment.
	GatewayToken string
	// Reference is our outbound reference when the gateway echoes it back.
	Reference string
	Amount    *decimal.Decimal
	Raw       map[string]string
	Message   string
	// Err is set when the callback could not be authenticated.
	Err error
}

// VerifyRequest identifies the payment to re-query. Email and phone are only
// required by gateways whose status API demands them.
type VerifyRequest struct {
	Reference        string
	TransactionDate  time.Time
	Amount           decimal.Decimal
	Email            string
	Phone            string
	PhoneCountryCode string
}

// VerifyResult is the outcome of Adapter.Verify.
type VerifyResult struct {
	Success bool
	// Status is the gateway's own current status string.
	Status       string
	GatewayToken string
	Amount       string
	Raw          json.RawMessage
	Message      string
	Err          error
}

// Adapter is implemented by each payment gateway integration.
type Adapter interface {
	// Code returns the gateway code, e.g. "worldline".
	Code() string

	// Initialize prepares a payment attempt and returns client launch data.
	Initialize(ctx context.Context, req PaymentRequest) InitResult

	// HandleCallback normalizes an inbound callback. It never fails; malformed
	// input yields an unsuccessful result with status failed.
	HandleCallback(ctx context.Context, fields map[string]string) CallbackResult

	// Verify re-queries the gateway for the current status of a payment.
	// It is a read and safe to repeat.
	Verify(ctx context.Context, req VerifyRequest) VerifyResult
}

// Observer receives timings of outbound gateway calls.
type Observer interface {
	ObserveGatewayCall(gateway, operation, outcome string, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObserveGatewayCall(string, string, string, time.Duration) {}

// Deps are the shared collaborators handed to every adapter constructor.
type Deps struct {
	HTTPClient *http.Client
	Logger     *slog.Logger
	Observer   Observer
	Now        func() time.Time
}

// WithDefaults fills unset collaborators with usable defaults.
func (d Deps) WithDefaults() Deps {
	if d.HTTPClient == nil {
		d.HTTPClient = NewHTTPClient(DefaultTimeout)
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Observer == nil {
		d.Observer = nopObserver{}
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

// Outcome returns the metric label for a call result.
func Outcome(success bool, err error) string {
	switch {
	case success:
		return "success"
	case IsUnavailable(err):
		return "unavailable"
	default:
		return "failure"
	}
}
