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

const (
	msgNotCompleted    = "Payment not completed yet."
	msgCheckInProgress = "A status check for this payment is already in progress."
	msgAlreadySettled  = "This payment has already been settled."
)

// CheckStatusRequest identifies the attempt to re-verify.
type CheckStatusRequest struct {
	DonationID    string
	TransactionID string
}

// CheckStatusResult reports the verified state of an attempt.
type CheckStatusResult struct {
	Completed bool
	// Status is the stored status when completed, otherwise the gateway's own
	// status string.
	Status      string
	RedirectURL string
	Message     string
}

type verifyRecord struct {
	Status   string          `json:"status"`
	Token    string          `json:"token,omitempty"`
	Amount   string          `json:"amount,omitempty"`
	Response json.RawMessage `json:"response,omitempty"`
}

// CheckStatus asks the gateway for the current state of a transaction. Only
// an explicit success moves it to completed; any other answer is reported
// without touching stored state.
func (s *PaymentService) CheckStatus(ctx context.Context, req CheckStatusRequest) (*CheckStatusResult, error) {
	if req.DonationID == "" {
		return nil, ErrInvalidDonationID
	}
	if req.TransactionID == "" {
		return nil, ErrInvalidTransactionID
	}

	donation, err := s.getDonation(ctx, req.DonationID)
	if err != nil {
		return nil, err
	}

	txn, err := s.txnRepo.GetByID(ctx, req.TransactionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	if txn.DonationID != donation.ID {
		return nil, ErrTransactionNotFound
	}

	if txn.Status == domain.TransactionStatusCompleted {
		return s.completedResult(txn), nil
	}
	if txn.GatewayCode == "" {
		return nil, ErrGatewayNotSupported
	}

	// Checks racing inside this process share one gateway round trip; the
	// verify lock covers other instances. The shared call outlives any single
	// caller, so one donor closing the page does not fail the others.
	ch := s.inflight.DoChan(txn.ID, func() (any, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.VerifyTimeout)
		defer cancel()
		return s.verifyPending(shared, donation, txn)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*CheckStatusResult), nil
	}
}

func (s *PaymentService) verifyPending(ctx context.Context, donation *domain.Donation, txn *domain.Transaction) (*CheckStatusResult, error) {
	if s.locks != nil {
		acquired, err := s.locks.AcquireVerifyLock(ctx, txn.ID, s.cfg.VerifyLockTTL)
		switch {
		case err != nil:
			s.logger.WarnContext(ctx, "verify lock unavailable, checking without it", "transaction_id", txn.ID, "error", err)
		case !acquired:
			return &CheckStatusResult{Status: string(txn.Status), Message: msgCheckInProgress}, nil
		default:
			defer func() {
				if err := s.locks.ReleaseVerifyLock(context.WithoutCancel(ctx), txn.ID); err != nil {
					s.logger.WarnContext(ctx, "failed to release verify lock", "transaction_id", txn.ID, "error", err)
				}
			}()
		}
	}

	adapter, err := s.makeAdapter(ctx, txn.GatewayCode)
	if err != nil {
		return nil, err
	}

	ref := txn.Reference
	if ref == "" {
		ref = txn.GatewayToken
	}

	verified := adapter.Verify(ctx, gateway.VerifyRequest{
		Reference:        ref,
		TransactionDate:  txn.CreatedAt,
		Amount:           txn.Amount,
		Email:            donation.Email,
		Phone:            donation.Phone,
		PhoneCountryCode: donation.PhoneCountryCode,
	})

	s.logger.InfoContext(ctx, "payment verified",
		"transaction_id", txn.ID,
		"gateway", txn.GatewayCode,
		"success", verified.Success,
		"gateway_status", verified.Status,
		"reason", verified.Message,
	)

	if !verified.Success {
		if gateway.IsUnavailable(verified.Err) {
			return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, verified.Err)
		}
		status := verified.Status
		if status == "" {
			status = string(txn.Status)
		}
		return &CheckStatusResult{Status: status, Message: msgNotCompleted}, nil
	}

	response, err := json.Marshal(map[string]verifyRecord{"verify": {
		Status:   verified.Status,
		Token:    verified.GatewayToken,
		Amount:   verified.Amount,
		Response: verified.Raw,
	}})
	if err != nil {
		return nil, err
	}

	applied, err := s.txnRepo.ApplyOutcome(ctx, txn.ID, domain.TransactionOutcome{
		Status:       domain.TransactionStatusCompleted,
		GatewayToken: verified.GatewayToken,
		Response:     response,
	})
	if err != nil {
		return nil, fmt.Errorf("apply verification: %w", err)
	}

	if !applied {
		stored, err := s.txnRepo.GetByID(ctx, txn.ID)
		if err != nil {
			return nil, err
		}
		if stored.Status == domain.TransactionStatusCompleted {
			return s.completedResult(stored), nil
		}
		s.logger.ErrorContext(ctx, "gateway confirms payment of a settled transaction",
			"transaction_id", stored.ID,
			"stored_status", stored.Status,
			"gateway", stored.GatewayCode,
		)
		return &CheckStatusResult{Status: string(stored.Status), Message: msgAlreadySettled}, nil
	}

	s.metrics.IncTransaction(txn.GatewayCode, string(domain.TransactionStatusCompleted))
	s.updateSnapshotStatus(ctx, txn.ID, domain.TransactionStatusCompleted)

	txn.Status = domain.TransactionStatusCompleted
	txn.UpdatedAt = s.now()
	if verified.GatewayToken != "" {
		txn.GatewayToken = verified.GatewayToken
	}
	s.notifySettled(ctx, donation, txn)

	return s.completedResult(txn), nil
}

func (s *PaymentService) completedResult(txn *domain.Transaction) *CheckStatusResult {
	return &CheckStatusResult{
		Completed:   true,
		Status:      string(domain.TransactionStatusCompleted),
		RedirectURL: s.confirmationURL(txn.DonationID),
	}
}
