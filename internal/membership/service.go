// internal/membership/service.go
package membership

import (
	"context"

	"libraengage/internal/domain"
)

// Service defines the interface for the patron directory.
type Service interface {
	RegisterPatron(ctx context.Context, req RegisterRequest) (*domain.Patron, error)
	GetPatron(ctx context.Context, barcode string) (*domain.Patron, error)
	SetPhoto(ctx context.Context, barcode string, req PhotoRequest) (*domain.Patron, error)
	Suspend(ctx context.Context, barcode string, suspended bool) (*domain.Patron, error)
}
