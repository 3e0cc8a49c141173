package dashboard

import (
	"context"
)

type Service interface {
	// GetDashboard counts items overdue by more than overdueDays separately; zero means DefaultOverdueDays.
	GetDashboard(ctx context.Context, overdueDays int) (*Dashboard, error)
}
