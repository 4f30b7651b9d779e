package postgres

import (
	"context"
	"database/sql"
	"errors"

	"donation/internal/domain"
	"donation/internal/repository"
)

// GatewayRepository is a PostgreSQL implementation of repository.GatewayRepository.
type GatewayRepository struct {
	q Querier
}

// NewGatewayRepository creates a new PostgreSQL gateway repository.
func NewGatewayRepository(db *sql.DB) *GatewayRepository {
	return &GatewayRepository{q: db}
}

// GetByCode retrieves a gateway by its code.
func (r *GatewayRepository) GetByCode(ctx context.Context, code string) (*domain.PaymentGateway, error) {
	query := `
		SELECT id, name, code, display_order, is_active, is_default
		FROM payment_gateways WHERE code = $1
	`

	var gw domain.PaymentGateway
	err := r.q.QueryRowContext(ctx, query, code).Scan(
		&gw.ID,
		&gw.Name,
		&gw.Code,
		&gw.DisplayOrder,
		&gw.IsActive,
		&gw.IsDefault,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	return &gw, nil
}

// ListActive returns active gateways ordered for display.
func (r *GatewayRepository) ListActive(ctx context.Context) ([]*domain.PaymentGateway, error) {
	query := `
		SELECT id, name, code, display_order, is_active, is_default
		FROM payment_gateways
		WHERE is_active = TRUE
		ORDER BY display_order, id
	`

	rows, err := r.q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var gateways []*domain.PaymentGateway
	for rows.Next() {
		var gw domain.PaymentGateway
		if err := rows.Scan(&gw.ID, &gw.Name, &gw.Code, &gw.DisplayOrder, &gw.IsActive, &gw.IsDefault); err != nil {
			return nil, err
		}
		gateways = append(gateways, &gw)
	}

	return gateways, rows.Err()
}

// LoadConfig returns the active settings of a gateway for one environment.
func (r *GatewayRepository) LoadConfig(ctx context.Context, code, environment string) (map[string]string, error) {
	query := `
		SELECT c.key, COALESCE(c.value, '')
		FROM payment_gateway_configs c
		JOIN payment_gateways g ON g.id = c.payment_gateway_id
		WHERE g.code = $1 AND c.environment = $2 AND c.is_active = TRUE
	`

	rows, err := r.q.QueryContext(ctx, query, code, environment)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		values[key] = value
	}

	return values, rows.Err()
}
