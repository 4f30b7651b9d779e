package domain

// PaymentGateway is a configured payment provider.
type PaymentGateway struct {
	ID           int64
	Name         string
	Code         string
	DisplayOrder int
	IsActive     bool
	IsDefault    bool
}
