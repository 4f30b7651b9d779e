package postgres

import (
	"context"
	"database/sql"
	"errors"

	"donation/internal/domain"
	"donation/internal/repository"
)

// DonationRepository is a PostgreSQL implementation of repository.DonationRepository.
type DonationRepository struct {
	q Querier
}

// NewDonationRepository creates a new PostgreSQL donation repository.
func NewDonationRepository(db *sql.DB) *DonationRepository {
	return &DonationRepository{q: db}
}

// GetByID retrieves a donation with its currency code and symbol.
func (r *DonationRepository) GetByID(ctx context.Context, id string) (*domain.Donation, error) {
	query := `
		SELECT d.id, d.first_name, d.last_name, d.email, d.phone, d.phone_country_code,
			d.amount, d.currency_id, COALESCE(c.code, ''), COALESCE(c.symbol, '')
		FROM donations d
		LEFT JOIN currencies c ON c.id = d.currency_id
		WHERE d.id = $1 AND d.deleted_at IS NULL
	`

	var donation domain.Donation
	err := r.q.QueryRowContext(ctx, query, id).Scan(
		&donation.ID,
		&donation.FirstName,
		&donation.LastName,
		&donation.Email,
		&donation.Phone,
		&donation.PhoneCountryCode,
		&donation.Amount,
		&donation.CurrencyID,
		&donation.CurrencyCode,
		&donation.CurrencySymbol,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	return &donation, nil
}
