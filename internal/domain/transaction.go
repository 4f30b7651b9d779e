package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionStatus represents the current status of a payment attempt.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
	TransactionStatusCancelled TransactionStatus = "cancelled"
	TransactionStatusAborted   TransactionStatus = "aborted"
	TransactionStatusRefunded  TransactionStatus = "refunded"
)

// IsTerminal reports whether the status can no longer change.
func (s TransactionStatus) IsTerminal() bool {
	return s != TransactionStatusPending
}

// Valid reports whether s is one of the known statuses.
func (s TransactionStatus) Valid() bool {
	switch s {
	case TransactionStatusPending,
		TransactionStatusCompleted,
		TransactionStatusFailed,
		TransactionStatusCancelled,
		TransactionStatusAborted,
		TransactionStatusRefunded:
		return true
	}
	return false
}

// Transaction is the durable record of one payment attempt against a donation.
// A donation may accumulate several transactions across retries.
type Transaction struct {
	ID         string
	DonationID string
	GatewayID  int64
	// GatewayCode is denormalized from payment_gateways on read.
	GatewayCode string
	// Reference is the outbound identifier we generated and sent to the gateway.
	Reference string
	// GatewayToken is the identifier the gateway assigned, if any.
	GatewayToken string
	// Amount is the charged amount, surcharge included.
	Amount          decimal.Decimal
	CurrencyID      string
	Status          TransactionStatus
	GatewayResponse json.RawMessage
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// TransactionOutcome is a single status transition applied to a pending transaction.
type TransactionOutcome struct {
	Status       TransactionStatus
	GatewayToken string
	// Response is merged into the stored gateway_response document.
	Response json.RawMessage
}
