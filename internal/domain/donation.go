package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Donation is a donor's pledge. Donations are owned by the donation web app;
// the payment core only reads them.
type Donation struct {
	ID               string
	FirstName        string
	LastName         string
	Email            string
	Phone            string
	PhoneCountryCode string
	Amount           decimal.Decimal
	CurrencyID       string
	CurrencyCode     string
	CurrencySymbol   string
}

// DonorName returns the donor's display name.
func (d *Donation) DonorName() string {
	return strings.TrimSpace(d.FirstName + " " + d.LastName)
}

// FullPhone returns the country code and phone concatenated.
func (d *Donation) FullPhone() string {
	return d.PhoneCountryCode + d.Phone
}
