package repository

import (
	"context"

	"donation/internal/domain"
)

// TransactionRepository defines the persistence operations for payment transactions.
type TransactionRepository interface {
	// Create persists a new transaction.
	Create(ctx context.Context, txn *domain.Transaction) error

	// GetByID retrieves a transaction by ID.
	GetByID(ctx context.Context, id string) (*domain.Transaction, error)

	// GetByReference retrieves the transaction of a donation whose outbound
	// reference or gateway token equals ref.
	GetByReference(ctx context.Context, donationID, ref string) (*domain.Transaction, error)

	// GetLatestByDonation retrieves the most recently created transaction of a donation.
	GetLatestByDonation(ctx context.Context, donationID string) (*domain.Transaction, error)

	// ApplyOutcome moves a pending transaction to a new status in one atomic
	// update. It returns false when the transaction was no longer pending.
	ApplyOutcome(ctx context.Context, id string, outcome domain.TransactionOutcome) (bool, error)
}
