package repository

import (
	"context"

	"donation/internal/domain"
)

// GatewayRepository defines read access to configured payment gateways.
type GatewayRepository interface {
	// GetByCode retrieves a gateway by its code.
	GetByCode(ctx context.Context, code string) (*domain.PaymentGateway, error)

	// ListActive returns active gateways ordered for display.
	ListActive(ctx context.Context) ([]*domain.PaymentGateway, error)

	// LoadConfig returns the active key/value settings of a gateway for one environment.
	LoadConfig(ctx context.Context, code, environment string) (map[string]string, error)
}
