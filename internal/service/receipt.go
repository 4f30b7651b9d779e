package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"donation/internal/domain"
)

// ReceiptService builds donor receipts for completed transactions.
type ReceiptService struct {
	notificationService *NotificationService
	now                 func() time.Time
}

// NewReceiptService creates a new ReceiptService.
func NewReceiptService(notificationService *NotificationService) *ReceiptService {
	return &ReceiptService{
		notificationService: notificationService,
		now:                 time.Now,
	}
}

// GenerateReceiptRequest contains the parameters for generating a receipt.
type GenerateReceiptRequest struct {
	Donation    *domain.Donation
	Transaction *domain.Transaction
}

// GenerateReceipt issues a receipt for a completed transaction and notifies
// the donor and the admins.
func (s *ReceiptService) GenerateReceipt(ctx context.Context, req GenerateReceiptRequest) (*domain.Receipt, error) {
	if req.Donation == nil || req.Transaction == nil {
		return nil, ErrInvalidTransactionID
	}
	if req.Transaction.Status != domain.TransactionStatusCompleted {
		return nil, ErrTransactionNotCompleted
	}

	txn := req.Transaction
	surcharge := txn.Amount.Sub(req.Donation.Amount)
	if surcharge.IsNegative() {
		surcharge = decimal.Zero
	}

	receipt := &domain.Receipt{
		ID:             uuid.New().String(),
		DonationID:     req.Donation.ID,
		TransactionID:  txn.ID,
		DonorName:      req.Donation.DonorName(),
		Email:          req.Donation.Email,
		Donation:       req.Donation.Amount,
		Surcharge:      surcharge,
		Total:          txn.Amount,
		CurrencyCode:   req.Donation.CurrencyCode,
		CurrencySymbol: req.Donation.CurrencySymbol,
		Gateway:        txn.GatewayCode,
		Reference:      txn.Reference,
		GatewayToken:   txn.GatewayToken,
		PaidAt:         txn.UpdatedAt,
		CreatedAt:      s.now(),
	}
	if receipt.PaidAt.IsZero() {
		receipt.PaidAt = receipt.CreatedAt
	}

	if s.notificationService != nil {
		_ = s.notificationService.NotifyReceiptReady(ctx, receipt)
		_ = s.notificationService.NotifyAdmins(ctx, receipt)
	}

	return receipt, nil
}

// FormatReceipt formats the receipt as plain text for email.
func (s *ReceiptService) FormatReceipt(receipt *domain.Receipt) string {
	return `
=====================================
         DONATION RECEIPT
=====================================
Receipt ID: ` + receipt.ID + `
Donation:   ` + receipt.DonationID + `
Date:       ` + receipt.PaidAt.Format("Jan 02, 2006 3:04 PM") + `

DONOR
-------------------------------------
Name:  ` + receipt.DonorName + `
Email: ` + receipt.Email + `

AMOUNT
-------------------------------------
Donation:        ` + formatMoney(receipt, receipt.Donation) + `
Processing fee:  ` + formatMoney(receipt, receipt.Surcharge) + `
-------------------------------------
TOTAL:           ` + formatMoney(receipt, receipt.Total) + `

PAYMENT
-------------------------------------
Gateway:   ` + receipt.Gateway + `
Reference: ` + receipt.Reference + `

=====================================
     Thank you for your donation!
=====================================
`
}
