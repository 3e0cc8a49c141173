package ranking

import (
	"context"
)

// Service computes monthly leaderboards.
type Service interface {
	// RecomputeMonth ranks the month and persists each row's score and rank.
	RecomputeMonth(ctx context.Context, year, month, limit int) (*Leaderboard, error)
	// GetMonthlyLeaderboard ranks the month, persisting only when the persist throttle allows it.
	GetMonthlyLeaderboard(ctx context.Context, year, month, limit int) (*Leaderboard, error)
}
