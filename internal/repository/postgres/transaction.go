package postgres

import (
	"context"
	"database/sql"
	"errors"

	"donation/internal/domain"
	"donation/internal/repository"
)

const transactionColumns = `
	t.id, t.donation_id, t.payment_gateway_id, g.code, t.gateway_transaction_id,
	COALESCE(t.gateway_token, ''), t.amount, t.currency_id, t.status,
	t.gateway_response, t.created_at, t.updated_at
`

// TransactionRepository is a PostgreSQL implementation of repository.TransactionRepository.
type TransactionRepository struct {
	q Querier
}

// NewTransactionRepository creates a new PostgreSQL transaction repository.
func NewTransactionRepository(db *sql.DB) *TransactionRepository {
	return &TransactionRepository{q: db}
}

// Create persists a new transaction.
func (r *TransactionRepository) Create(ctx context.Context, txn *domain.Transaction) error {
	query := `
		INSERT INTO transactions (
			id, donation_id, payment_gateway_id, gateway_transaction_id,
			gateway_token, amount, currency_id, status, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9, $9)
	`

	_, err := r.q.ExecContext(ctx, query,
		txn.ID,
		txn.DonationID,
		txn.GatewayID,
		txn.Reference,
		txn.GatewayToken,
		txn.Amount,
		txn.CurrencyID,
		txn.Status,
		txn.CreatedAt,
	)

	return err
}

// GetByID retrieves a transaction by ID.
func (r *TransactionRepository) GetByID(ctx context.Context, id string) (*domain.Transaction, error) {
	query := `SELECT` + transactionColumns + `
		FROM transactions t
		JOIN payment_gateways g ON g.id = t.payment_gateway_id
		WHERE t.id = $1
	`

	return r.scanOne(r.q.QueryRowContext(ctx, query, id))
}

// GetByReference retrieves the donation's transaction whose outbound reference
// or gateway token equals ref.
func (r *TransactionRepository) GetByReference(ctx context.Context, donationID, ref string) (*domain.Transaction, error) {
	query := `SELECT` + transactionColumns + `
		FROM transactions t
		JOIN payment_gateways g ON g.id = t.payment_gateway_id
		WHERE t.donation_id = $1
		  AND (t.gateway_transaction_id = $2 OR t.gateway_token = $2)
		ORDER BY t.created_at DESC
		LIMIT 1
	`

	return r.scanOne(r.q.QueryRowContext(ctx, query, donationID, ref))
}

// GetLatestByDonation retrieves the most recently created transaction of a donation.
func (r *TransactionRepository) GetLatestByDonation(ctx context.Context, donationID string) (*domain.Transaction, error) {
	query := `SELECT` + transactionColumns + `
		FROM transactions t
		JOIN payment_gateways g ON g.id = t.payment_gateway_id
		WHERE t.donation_id = $1
		ORDER BY t.created_at DESC
		LIMIT 1
	`

	return r.scanOne(r.q.QueryRowContext(ctx, query, donationID))
}

// ApplyOutcome moves a pending transaction to a new status. The status guard
// in the WHERE clause makes the read-modify-write a single atomic statement,
// so a callback and a verify racing on the same row cannot both win.
func (r *TransactionRepository) ApplyOutcome(ctx context.Context, id string, outcome domain.TransactionOutcome) (bool, error) {
	query := `
		UPDATE transactions
		SET status = $1,
			gateway_token = COALESCE(NULLIF($2, ''), gateway_token),
			gateway_response = COALESCE(gateway_response, '{}'::jsonb) || COALESCE($3::jsonb, '{}'::jsonb),
			updated_at = NOW()
		WHERE id = $4 AND status = $5
	`

	var response any
	if len(outcome.Response) > 0 {
		response = string(outcome.Response)
	}

	result, err := r.q.ExecContext(ctx, query,
		outcome.Status,
		outcome.GatewayToken,
		response,
		id,
		domain.TransactionStatusPending,
	)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	if rowsAffected > 0 {
		return true, nil
	}

	var exists bool
	if err := r.q.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM transactions WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, err
	}
	if !exists {
		return false, repository.ErrNotFound
	}

	return false, nil
}

func (r *TransactionRepository) scanOne(row *sql.Row) (*domain.Transaction, error) {
	var txn domain.Transaction
	var response []byte

	err := row.Scan(
		&txn.ID,
		&txn.DonationID,
		&txn.GatewayID,
		&txn.GatewayCode,
		&txn.Reference,
		&txn.GatewayToken,
		&txn.Amount,
		&txn.CurrencyID,
		&txn.Status,
		&response,
		&txn.CreatedAt,
		&txn.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	if len(response) > 0 {
		txn.GatewayResponse = response
	}

	return &txn, nil
}
