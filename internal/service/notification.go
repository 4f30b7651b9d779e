package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"donation/internal/domain"
)

// NotificationType represents the type of notification.
type NotificationType string

const (
	NotificationPaymentCompleted NotificationType = "PAYMENT_COMPLETED"
	NotificationPaymentFailed    NotificationType = "PAYMENT_FAILED"
	NotificationReceiptReady     NotificationType = "RECEIPT_READY"
	NotificationDonationReceived NotificationType = "DONATION_RECEIVED"
)

// adminRecipient addresses the donation admins as a group.
const adminRecipient = "admins"

// Notification represents a notification to be sent.
type Notification struct {
	Type NotificationType
	// RecipientID is the donor email, or adminRecipient.
	RecipientID string
	Title       string
	Message     string
	Data        map[string]any
	CreatedAt   time.Time
}

// NotificationService delivers donor and admin notifications. Delivery is a
// structured log line; a mail transport plugs in behind send.
type NotificationService struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewNotificationService creates a new NotificationService.
func NewNotificationService(logger *slog.Logger) *NotificationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationService{logger: logger, now: time.Now}
}

// NotifyPaymentCompleted tells the donor their payment went through.
func (s *NotificationService) NotifyPaymentCompleted(ctx context.Context, donation *domain.Donation, txn *domain.Transaction) error {
	return s.send(ctx, Notification{
		Type:        NotificationPaymentCompleted,
		RecipientID: donation.Email,
		Title:       "Payment Successful",
		Message:     "Your donation of " + donation.CurrencySymbol + txn.Amount.StringFixed(2) + " was received. Thank you!",
		Data: map[string]any{
			"donation_id":    donation.ID,
			"transaction_id": txn.ID,
			"gateway":        txn.GatewayCode,
		},
	})
}

// NotifyPaymentFailed tells the donor a payment attempt did not complete.
func (s *NotificationService) NotifyPaymentFailed(ctx context.Context, donation *domain.Donation, txn *domain.Transaction) error {
	return s.send(ctx, Notification{
		Type:        NotificationPaymentFailed,
		RecipientID: donation.Email,
		Title:       "Payment Not Completed",
		Message:     "Your payment of " + donation.CurrencySymbol + txn.Amount.StringFixed(2) + " did not go through. You can try again from your donation page.",
		Data: map[string]any{
			"donation_id":    donation.ID,
			"transaction_id": txn.ID,
			"status":         txn.Status,
		},
	})
}

// NotifyReceiptReady sends the donor their receipt.
func (s *NotificationService) NotifyReceiptReady(ctx context.Context, receipt *domain.Receipt) error {
	return s.send(ctx, Notification{
		Type:        NotificationReceiptReady,
		RecipientID: receipt.Email,
		Title:       "Donation Receipt",
		Message:     "Your receipt for " + formatMoney(receipt, receipt.Total) + " is ready",
		Data: map[string]any{
			"receipt_id":  receipt.ID,
			"donation_id": receipt.DonationID,
			"total":       receipt.Total.StringFixed(2),
		},
	})
}

// NotifyAdmins reports a completed donation to the admins.
func (s *NotificationService) NotifyAdmins(ctx context.Context, receipt *domain.Receipt) error {
	return s.send(ctx, Notification{
		Type:        NotificationDonationReceived,
		RecipientID: adminRecipient,
		Title:       "Donation Received",
		Message:     receipt.DonorName + " donated " + formatMoney(receipt, receipt.Donation),
		Data: map[string]any{
			"donation_id": receipt.DonationID,
			"gateway":     receipt.Gateway,
			"reference":   receipt.Reference,
		},
	})
}

func (s *NotificationService) send(ctx context.Context, notification Notification) error {
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = s.now()
	}
	s.logger.InfoContext(ctx, "notification queued",
		"type", notification.Type,
		"recipient", notification.RecipientID,
		"title", notification.Title,
		"data", notification.Data,
	)
	return nil
}

func formatMoney(receipt *domain.Receipt, amount decimal.Decimal) string {
	symbol := receipt.CurrencySymbol
	if symbol == "" {
		symbol = receipt.CurrencyCode + " "
	}
	return symbol + amount.StringFixed(2)
}
