package service

import "errors"

var (
	// ErrInvalidDonationID is returned when donation ID is empty.
	ErrInvalidDonationID = errors.New("invalid donation id")

	// ErrInvalidTransactionID is returned when transaction ID is empty.
	ErrInvalidTransactionID = errors.New("invalid transaction id")

	// ErrInvalidGateway is returned when no gateway code was chosen.
	ErrInvalidGateway = errors.New("invalid gateway")

	// ErrDonationNotFound is returned when the donation does not exist.
	ErrDonationNotFound = errors.New("donation not found")

	// ErrTransactionNotFound is returned when no transaction of the donation matches.
	ErrTransactionNotFound = errors.New("transaction not found for this donation")

	// ErrGatewayNotSupported is returned when the chosen gateway has no adapter or is inactive.
	ErrGatewayNotSupported = errors.New("selected gateway is not supported")

	// ErrGatewayMisconfigured is returned when a gateway lacks required settings.
	ErrGatewayMisconfigured = errors.New("gateway is not configured")

	// ErrPaymentInitFailed is returned when the gateway refused to start a payment.
	ErrPaymentInitFailed = errors.New("failed to initialize payment")

	// ErrGatewayUnavailable is returned when the gateway could not be reached.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")

	// ErrUnknownGatewayCallback is returned when no gateway recognises a callback.
	ErrUnknownGatewayCallback = errors.New("unknown payment gateway callback")

	// ErrCallbackRejected is returned when a callback fails the gateway's authentication.
	ErrCallbackRejected = errors.New("payment callback failed authentication")

	// ErrUnsettledCallback is returned when a callback reports a pending or unknown status.
	ErrUnsettledCallback = errors.New("callback does not settle the transaction")

	// ErrGatewayMismatch is returned when a callback's gateway differs from the transaction's.
	ErrGatewayMismatch = errors.New("callback gateway does not match transaction")

	// ErrTransactionNotCompleted is returned when a receipt is requested for an unpaid transaction.
	ErrTransactionNotCompleted = errors.New("transaction is not completed")
)
