package dashboard

import (
	"time"

	"libraengage/internal/circulation"
	"libraengage/internal/domain"
)

// DefaultOverdueDays is the "seriously overdue" threshold when none is given.
const DefaultOverdueDays = 7

type ItemCounts struct {
	Total         int `json:"total"`
	Available     int `json:"available"`
	CheckedOut    int `json:"checked_out"`
	Overdue       int `json:"overdue"`
	OverdueBeyond int `json:"overdue_beyond"`
}

type PatronCounts struct {
	Total        int `json:"total"`
	WithOpenLoan int `json:"with_open_loan"`
	Suspended    int `json:"suspended"`
}

// MonthSummary is the current month's ledger at a glance.
type MonthSummary struct {
	Period        domain.Period `json:"period"`
	ActivePatrons int           `json:"active_patrons"`
	TotalPoints   int           `json:"total_points"`
}

// Dashboard is a read-only snapshot for the staff desk.
type Dashboard struct {
	Items             ItemCounts                `json:"items"`
	OverdueBeyondDays int                       `json:"overdue_beyond_days"`
	Patrons           PatronCounts              `json:"patrons"`
	PendingSummaries  int                       `json:"pending_summaries"`
	Month             MonthSummary              `json:"month"`
	Overdue           []circulation.OverdueItem `json:"overdue"`
	GeneratedAt       time.Time                 `json:"generated_at"`
}
