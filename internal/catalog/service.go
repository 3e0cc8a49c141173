// internal/catalog/service.go
package catalog

import (
	"context"

	"libraengage/internal/domain"
)

// Service defines the interface for the catalog service.
type Service interface {
	AddItem(ctx context.Context, req AddItemRequest) (*domain.Item, error)
	GetItem(ctx context.Context, barcode string) (*domain.Item, error)
	ListItems(ctx context.Context, filter ListFilter) ([]*domain.Item, error)
}
