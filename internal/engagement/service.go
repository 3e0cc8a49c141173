// internal/engagement/service.go
package engagement

import (
	"context"

	"libraengage/internal/domain"
)

// Service defines the interface for the engagement ledger.
type Service interface {
	RecordActivity(ctx context.Context, req RecordRequest) (*RecordResult, error)
	GetMonthlyActivity(ctx context.Context, patronBarcode string, year, month int) (*domain.MonthlyActivity, error)
}
