package attendance

import (
	"context"

	"libraengage/internal/domain"
)

// Service records class attendance and feeds it into the engagement ledger.
type Service interface {
	MarkAttendance(ctx context.Context, req MarkRequest) (*domain.Attendance, error)
	ListAttendance(ctx context.Context, patronBarcode string) ([]*domain.Attendance, error)
}
