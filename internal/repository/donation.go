package repository

import (
	"context"

	"donation/internal/domain"
)

// DonationRepository is the read-only view of donations the payment core needs.
type DonationRepository interface {
	// GetByID retrieves a donation with its currency.
	GetByID(ctx context.Context, id string) (*domain.Donation, error)
}
