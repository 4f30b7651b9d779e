package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"donation/internal/domain"
	"donation/internal/gateway"
	"donation/internal/repository"
)

// Donor-facing callback messages. Gateway text is never shown to donors.
const (
	msgPaymentCompleted = "Payment completed successfully."
	msgPaymentRetry     = "Payment cancelled or failed. Please try again."
	msgPaymentFailed    = "Payment failed or cancelled."
	msgUnknownCallback  = "We could not recognise the payment response. Please try again."
)

// Callback handling outcomes recorded in metrics.
const (
	callbackApplied        = "applied"
	callbackIgnored        = "ignored"
	callbackRejected       = "rejected"
	callbackUnmatched      = "unmatched"
	callbackAmountMismatch = "amount_mismatch"
)

// CallbackRequest is an inbound gateway callback.
type CallbackRequest struct {
	// Fields are the query and form values posted by the gateway.
	Fields map[string]string
	// DonationID comes from the return URL.
	DonationID string
	// Reference is the outbound reference carried in the return URL, if any.
	Reference string
}

// CallbackOutcome tells the handler where to send the donor.
type CallbackOutcome struct {
	Success       bool
	Status        domain.TransactionStatus
	Gateway       string
	TransactionID string
	RedirectURL   string
	// Message is a donor-safe flash message.
	Message string
}

// HandleCallback resolves the sending gateway, normalizes the callback and
// applies it to the matching pending transaction. It always returns a
// redirect outcome; the error explains why nothing was recorded.
func (s *PaymentService) HandleCallback(ctx context.Context, req CallbackRequest) (CallbackOutcome, error) {
	code, ok := s.resolver.Detect(req.Fields)
	if !ok {
		s.logger.WarnContext(ctx, "unrecognised payment callback", "donation_id", req.DonationID, "fields", fieldNames(req.Fields))
		s.metrics.IncCallback("unknown", callbackRejected)
		return s.failureOutcome(req.DonationID, "", msgUnknownCallback), ErrUnknownGatewayCallback
	}

	adapter, err := s.makeAdapter(ctx, code)
	if err != nil {
		return s.failureOutcome(req.DonationID, code, msgPaymentRetry), err
	}

	result := adapter.HandleCallback(ctx, req.Fields)
	s.logger.InfoContext(ctx, "payment callback received",
		"gateway", code,
		"donation_id", req.DonationID,
		"status", result.Status,
		"success", result.Success,
		"reason", result.Message,
	)

	if result.Err != nil {
		s.logger.WarnContext(ctx, "unauthenticated payment callback dropped",
			"gateway", code,
			"donation_id", req.DonationID,
			"ref", req.Reference,
			"error", result.Err,
		)
		s.metrics.IncCallback(code, callbackRejected)
		return s.failureOutcome(req.DonationID, code, msgPaymentRetry), fmt.Errorf("%w: %w", ErrCallbackRejected, result.Err)
	}

	if req.DonationID == "" {
		s.metrics.IncCallback(code, callbackUnmatched)
		return s.homeOutcome(code, result), nil
	}

	txn, err := s.matchTransaction(ctx, req.DonationID, req.Reference, result.Reference)
	if err != nil {
		s.logger.WarnContext(ctx, "callback did not match a transaction",
			"gateway", code,
			"donation_id", req.DonationID,
			"ref", req.Reference,
			"gateway_ref", result.Reference,
			"error", err,
		)
		s.metrics.IncCallback(code, callbackRejected)
		return s.failureOutcome(req.DonationID, code, msgPaymentRetry), err
	}

	if txn.GatewayCode != code {
		s.logger.WarnContext(ctx, "callback gateway differs from transaction gateway",
			"transaction_id", txn.ID,
			"transaction_gateway", txn.GatewayCode,
			"callback_gateway", code,
		)
		s.metrics.IncCallback(code, callbackRejected)
		return s.failureOutcome(req.DonationID, code, msgPaymentRetry), ErrGatewayMismatch
	}

	if result.Amount != nil && !result.Amount.Equal(txn.Amount) {
		s.logger.WarnContext(ctx, "callback amount differs from transaction amount",
			"transaction_id", txn.ID,
			"expected", txn.Amount.StringFixed(2),
			"reported", result.Amount.String(),
		)
		s.metrics.IncCallback(code, callbackAmountMismatch)
	}

	status := result.Status
	if result.Success {
		status = domain.TransactionStatusCompleted
	}

	if !status.Valid() || !status.IsTerminal() {
		s.logger.WarnContext(ctx, "callback does not settle the transaction",
			"transaction_id", txn.ID,
			"gateway", code,
			"callback_status", status,
		)
		s.metrics.IncCallback(code, callbackIgnored)
		return s.outcomeFor(txn), fmt.Errorf("%w: %q", ErrUnsettledCallback, status)
	}

	response, err := json.Marshal(map[string]any{"callback": result.Raw})
	if err != nil {
		return s.failureOutcome(req.DonationID, code, msgPaymentRetry), err
	}

	applied, err := s.txnRepo.ApplyOutcome(ctx, txn.ID, domain.TransactionOutcome{
		Status:       status,
		GatewayToken: result.GatewayToken,
		Response:     response,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to record callback", "transaction_id", txn.ID, "error", err)
		return s.failureOutcome(req.DonationID, code, msgPaymentRetry), fmt.Errorf("apply callback: %w", err)
	}

	if !applied {
		// Terminal rows are immutable; report what is stored instead.
		s.metrics.IncCallback(code, callbackIgnored)
		stored, err := s.txnRepo.GetByID(ctx, txn.ID)
		if err != nil {
			return s.failureOutcome(req.DonationID, code, msgPaymentRetry), err
		}
		s.logger.InfoContext(ctx, "callback for settled transaction ignored",
			"transaction_id", stored.ID,
			"stored_status", stored.Status,
			"callback_status", status,
		)
		return s.outcomeFor(stored), nil
	}

	s.metrics.IncCallback(code, callbackApplied)
	s.metrics.IncTransaction(code, string(status))
	s.updateSnapshotStatus(ctx, txn.ID, status)

	txn.Status = status
	txn.UpdatedAt = s.now()
	if result.GatewayToken != "" {
		txn.GatewayToken = result.GatewayToken
	}
	s.notifySettled(ctx, nil, txn)

	return s.outcomeFor(txn), nil
}

// matchTransaction finds the transaction a callback belongs to. An explicit
// reference from the return URL wins over one echoed by the gateway; with
// neither, the donation's most recent transaction is assumed. That fallback
// is ambiguous when a donor has parallel attempts.
func (s *PaymentService) matchTransaction(ctx context.Context, donationID, hint, echoed string) (*domain.Transaction, error) {
	ref := hint
	if ref == "" {
		ref = echoed
	}

	if ref == "" {
		txn, err := s.txnRepo.GetLatestByDonation(ctx, donationID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTransactionNotFound
		}
		return txn, err
	}

	txn, err := s.txnRepo.GetByReference(ctx, donationID, ref)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}

	if hint != "" && echoed != "" && echoed != txn.Reference && echoed != txn.GatewayToken {
		return nil, fmt.Errorf("%w: gateway reference %q does not match", ErrTransactionNotFound, echoed)
	}
	return txn, nil
}

func (s *PaymentService) updateSnapshotStatus(ctx context.Context, transactionID string, status domain.TransactionStatus) {
	if s.sessions == nil {
		return
	}
	if err := s.sessions.UpdateStatus(ctx, transactionID, status); err != nil {
		s.logger.WarnContext(ctx, "failed to update transaction snapshot", "transaction_id", transactionID, "error", err)
	}
}

func (s *PaymentService) outcomeFor(txn *domain.Transaction) CallbackOutcome {
	if txn.Status == domain.TransactionStatusCompleted {
		return CallbackOutcome{
			Success:       true,
			Status:        txn.Status,
			Gateway:       txn.GatewayCode,
			TransactionID: txn.ID,
			RedirectURL:   s.confirmationURL(txn.DonationID),
			Message:       msgPaymentCompleted,
		}
	}
	return CallbackOutcome{
		Status:        txn.Status,
		Gateway:       txn.GatewayCode,
		TransactionID: txn.ID,
		RedirectURL:   s.selectionURL(txn.DonationID),
		Message:       msgPaymentRetry,
	}
}

func (s *PaymentService) failureOutcome(donationID, code, message string) CallbackOutcome {
	out := CallbackOutcome{
		Status:  domain.TransactionStatusFailed,
		Gateway: code,
		Message: message,
	}
	if donationID == "" {
		out.RedirectURL = s.homeURL()
		if message == msgPaymentRetry {
			out.Message = msgPaymentFailed
		}
		return out
	}
	out.RedirectURL = s.selectionURL(donationID)
	return out
}

func (s *PaymentService) homeOutcome(code string, result gateway.CallbackResult) CallbackOutcome {
	if result.Success {
		return CallbackOutcome{
			Success:     true,
			Status:      domain.TransactionStatusCompleted,
			Gateway:     code,
			RedirectURL: s.homeURL(),
			Message:     msgPaymentCompleted,
		}
	}
	return CallbackOutcome{
		Status:      result.Status,
		Gateway:     code,
		RedirectURL: s.homeURL(),
		Message:     msgPaymentFailed,
	}
}

// fieldNames lists callback keys for logging without leaking values.
func fieldNames(fields map[string]string) []string {
	names := make([]string, 0, len(fields))
	for k := range fields {
		names = append(names, k)
	}
	return names
}
