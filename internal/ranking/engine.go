package ranking

import (
	"sort"
	"strings"

	"libraengage/internal/config"
	"libraengage/internal/domain"
	"libraengage/internal/engagement"
	"libraengage/internal/store"
)

func fieldValue(row *domain.MonthlyActivity, field string) int {
	switch field {
	case "activity_score":
		return row.ActivityScore
	case "total_points":
		return row.TotalPoints
	case "books_checked_out":
		return row.BooksCheckedOut
	case "books_returned":
		return row.BooksReturned
	case "classes_attended":
		return row.ClassesAttended
	case "summaries_submitted":
		return row.SummariesSubmitted
	case "summaries_approved":
		return row.SummariesApproved
	}
	return 0
}

// compare orders a before b (negative), after b (positive) or neither (zero) by keys.
func compare(a, b *domain.MonthlyActivity, keys []config.RankKey) int {
	for _, k := range keys {
		var c int
		if k.Field == "patron_barcode" {
			c = strings.Compare(a.PatronBarcode, b.PatronBarcode)
		} else {
			c = fieldValue(a, k.Field) - fieldValue(b, k.Field)
		}
		if c == 0 {
			continue
		}
		if k.Desc {
			return -c
		}
		return c
	}
	return strings.Compare(a.PatronBarcode, b.PatronBarcode)
}

// Rank scores rows, orders them by keys and assigns positional ranks starting at 1.
// Rows that tie on every key are ordered by patron barcode, so the result does not
// depend on the input order.
func Rank(rows []*domain.MonthlyActivity, weights config.Weights, keys []config.RankKey) []*domain.MonthlyActivity {
	out := make([]*domain.MonthlyActivity, len(rows))
	for i, r := range rows {
		row := *r
		row.ActivityScore = engagement.Score(row.Counters(), weights)
		out[i] = &row
	}
	sort.SliceStable(out, func(i, j int) bool { return compare(out[i], out[j], keys) < 0 })
	for i, row := range out {
		row.Rank = i + 1
	}
	return out
}

func rankUpdates(ranked []*domain.MonthlyActivity) []store.RankUpdate {
	updates := make([]store.RankUpdate, len(ranked))
	for i, row := range ranked {
		updates[i] = store.RankUpdate{PatronBarcode: row.PatronBarcode, Score: row.ActivityScore, Rank: row.Rank}
	}
	return updates
}

func summarize(ranked []*domain.MonthlyActivity, inactive int) Stats {
	stats := Stats{ActivePatrons: len(ranked), InactivePatrons: inactive}
	scores := 0
	for _, row := range ranked {
		stats.Totals = stats.Totals.Add(row.Counters())
		scores += row.ActivityScore
	}
	stats.TotalPoints = stats.Totals.TotalPoints
	if len(ranked) > 0 {
		stats.AverageScore = float64(scores) / float64(len(ranked))
	}
	return stats
}
