// internal/circulation/service.go
package circulation

import (
	"context"
)

// Service defines the interface for the item ledger. Each operation runs as one
// store transaction covering the item, the patron and the engagement ledger.
type Service interface {
	Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error)
	CheckIn(ctx context.Context, req CheckInRequest) (*CheckInResult, error)
	Renew(ctx context.Context, req RenewRequest) (*RenewResult, error)
	ListOverdue(ctx context.Context, minDays int) ([]OverdueItem, error)
	GetItemHistory(ctx context.Context, itemBarcode string) (*ItemHistory, error)
}
