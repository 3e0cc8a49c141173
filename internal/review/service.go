package review

import (
	"context"

	"github.com/google/uuid"

	"libraengage/internal/domain"
)

// Service runs the book summary workflow: pending summaries are approved or rejected exactly once.
type Service interface {
	SubmitSummary(ctx context.Context, actor domain.Actor, req SubmitRequest) (*domain.BookSummary, error)
	SubmitStaffSummary(ctx context.Context, actor domain.Actor, req StaffSubmitRequest) (*domain.BookSummary, error)
	ReviewSummary(ctx context.Context, actor domain.Actor, id uuid.UUID, req ReviewRequest) (*domain.BookSummary, error)
	GetSummary(ctx context.Context, id uuid.UUID) (*domain.BookSummary, error)
	ListSummaries(ctx context.Context, filter ListFilter) ([]*domain.BookSummary, error)
}
