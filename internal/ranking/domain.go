package ranking

import (
	"time"

	"libraengage/internal/domain"
)

// Leaderboard is the result of ranking one month.
type Leaderboard struct {
	Period     domain.Period             `json:"period"`
	Entries    []*domain.MonthlyActivity `json:"entries"`
	Inactive   []InactivePatron          `json:"inactive"`
	Stats      Stats                     `json:"stats"`
	Persisted  bool                      `json:"persisted"`
	ComputedAt time.Time                 `json:"computed_at"`
}

// InactivePatron is a non-suspended patron with no ledger row for the month.
type InactivePatron struct {
	Barcode string `json:"barcode"`
	Name    string `json:"name"`
}

// Stats aggregates the whole month, not just the returned entries.
type Stats struct {
	ActivePatrons   int                  `json:"active_patrons"`
	InactivePatrons int                  `json:"inactive_patrons"`
	TotalPoints     int                  `json:"total_points"`
	Totals          domain.ActivityDelta `json:"totals"`
	AverageScore    float64              `json:"average_score"`
}
