package domain

import "time"

// TransactionSnapshot is the short-lived denormalized view of an in-flight
// transaction served to status polling. It is never authoritative.
type TransactionSnapshot struct {
	TransactionID  string            `json:"transaction_id"`
	DonationID     string            `json:"donation_id"`
	Amount         string            `json:"amount"`
	CurrencySymbol string            `json:"currency"`
	DonorName      string            `json:"donor_name"`
	Email          string            `json:"email"`
	Phone          string            `json:"phone"`
	Status         TransactionStatus `json:"status"`
	Gateway        string            `json:"gateway"`
	CreatedAt      time.Time         `json:"created_at"`
	LastAccessedAt time.Time         `json:"last_accessed"`
}
