package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Receipt is issued to the donor once a transaction completes.
type Receipt struct {
	ID            string
	DonationID    string
	TransactionID string
	DonorName     string
	Email         string
	// Donation is the pledged amount; Surcharge is the processing fee on top.
	Donation       decimal.Decimal
	Surcharge      decimal.Decimal
	Total          decimal.Decimal
	CurrencyCode   string
	CurrencySymbol string
	Gateway        string
	Reference      string
	GatewayToken   string
	PaidAt         time.Time
	CreatedAt      time.Time
}
