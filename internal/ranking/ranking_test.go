package ranking_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"libraengage/internal/config"
	"libraengage/internal/domain"
	"libraengage/internal/ranking"
	"libraengage/internal/store"
	"libraengage/internal/store/memory"
)

var march = domain.Period{Year: 2025, Month: 3}

type row struct {
	patron string
	delta  domain.ActivityDelta
}

func seed(t testing.TB, st store.Store, patrons []domain.Patron, rows []row) {
	require.NoError(t, st.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		for i := range patrons {
			if err := tx.InsertPatron(ctx, &patrons[i]); err != nil {
				return err
			}
		}
		for _, r := range rows {
			if _, err := tx.UpsertActivity(ctx, r.patron, "Patron "+r.patron, march, r.delta, time.Now()); err != nil {
				return err
			}
		}
		return nil
	}))
}

func ranks(board *ranking.Leaderboard) map[string]int {
	out := make(map[string]int, len(board.Entries))
	for _, e := range board.Entries {
		out[e.PatronBarcode] = e.Rank
	}
	return out
}

func TestRecomputeMonth_TieBreakOnTotalPoints(t *testing.T) {
	st := memory.New()
	seed(t, st,
		[]domain.Patron{{Barcode: "A"}, {Barcode: "B"}, {Barcode: "C"}, {Barcode: "D", Name: "Idle"}, {Barcode: "S", Suspended: true}},
		[]row{
			{"B", domain.ActivityDelta{BooksCheckedOut: 5, TotalPoints: 50}}, // 100, 50 points
			{"A", domain.ActivityDelta{TotalPoints: 100}},                    // 100, 100 points
			{"C", domain.ActivityDelta{TotalPoints: 80}},                     // 80
		})
	svc := ranking.NewService(st, config.DefaultPolicy())

	board, err := svc.RecomputeMonth(context.Background(), 2025, 3, 0)
	require.NoError(t, err)

	require.Len(t, board.Entries, 3)
	assert.Equal(t, []string{"A", "B", "C"}, []string{board.Entries[0].PatronBarcode, board.Entries[1].PatronBarcode, board.Entries[2].PatronBarcode})
	assert.Equal(t, map[string]int{"A": 1, "B": 2, "C": 3}, ranks(board))
	assert.Equal(t, 100, board.Entries[0].ActivityScore)
	assert.Equal(t, 100, board.Entries[1].ActivityScore)
	assert.Equal(t, 80, board.Entries[2].ActivityScore)
	assert.True(t, board.Persisted)

	assert.Equal(t, []ranking.InactivePatron{{Barcode: "D", Name: "Idle"}}, board.Inactive)
	assert.Equal(t, 3, board.Stats.ActivePatrons)
	assert.Equal(t, 1, board.Stats.InactivePatrons)
	assert.Equal(t, 230, board.Stats.TotalPoints)
	assert.Equal(t, 5, board.Stats.Totals.BooksCheckedOut)
	assert.InDelta(t, 280.0/3, board.Stats.AverageScore, 0.001)

	require.NoError(t, st.ReadOnly(context.Background(), func(ctx context.Context, tx store.Tx) error {
		b, err := tx.GetActivity(ctx, "B", march)
		require.NoError(t, err)
		assert.Equal(t, 2, b.Rank)
		assert.Equal(t, 100, b.ActivityScore)
		return nil
	}))
}

func TestRecomputeMonth_LimitAndInactiveCap(t *testing.T) {
	st := memory.New()
	var patrons []domain.Patron
	var rows []row
	for i := 0; i < 30; i++ {
		patrons = append(patrons, domain.Patron{Barcode: fmt.Sprintf("I%02d", i)})
	}
	for i := 0; i < 5; i++ {
		b := fmt.Sprintf("A%02d", i)
		patrons = append(patrons, domain.Patron{Barcode: b})
		rows = append(rows, row{b, domain.ActivityDelta{TotalPoints: 10 * (i + 1)}})
	}
	seed(t, st, patrons, rows)
	svc := ranking.NewService(st, config.DefaultPolicy())

	board, err := svc.RecomputeMonth(context.Background(), 2025, 3, 2)
	require.NoError(t, err)

	require.Len(t, board.Entries, 2)
	assert.Equal(t, "A04", board.Entries[0].PatronBarcode)
	assert.Len(t, board.Inactive, 20)
	assert.Equal(t, 30, board.Stats.InactivePatrons)
	assert.Equal(t, 5, board.Stats.ActivePatrons)
}

func TestRecomputeMonth_ConfiguredKeys(t *testing.T) {
	st := memory.New()
	seed(t, st, []domain.Patron{{Barcode: "A"}, {Barcode: "B"}}, []row{
		{"A", domain.ActivityDelta{TotalPoints: 100}},
		{"B", domain.ActivityDelta{ClassesAttended: 2}},
	})
	policy := config.DefaultPolicy()
	policy.TieBreak = []string{"classes_attended desc"}
	require.NoError(t, policy.Validate())

	board, err := ranking.NewService(st, policy).RecomputeMonth(context.Background(), 2025, 3, 0)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"B": 1, "A": 2}, ranks(board))
}

func TestGetMonthlyLeaderboard_ThrottledReadDoesNotPersist(t *testing.T) {
	st := memory.New()
	seed(t, st, []domain.Patron{{Barcode: "A"}}, []row{{"A", domain.ActivityDelta{TotalPoints: 5}}})
	svc := ranking.NewService(st, config.DefaultPolicy(), ranking.WithPersistEvery(time.Hour))
	ctx := context.Background()

	first, err := svc.GetMonthlyLeaderboard(ctx, 2025, 3, 0)
	require.NoError(t, err)
	assert.True(t, first.Persisted)

	require.NoError(t, st.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.UpsertActivity(ctx, "A", "", march, domain.ActivityDelta{TotalPoints: 5}, time.Now())
		return err
	}))

	second, err := svc.GetMonthlyLeaderboard(ctx, 2025, 3, 0)
	require.NoError(t, err)
	assert.False(t, second.Persisted)
	assert.Equal(t, 10, second.Entries[0].ActivityScore)

	require.NoError(t, st.ReadOnly(ctx, func(ctx context.Context, tx store.Tx) error {
		a, err := tx.GetActivity(ctx, "A", march)
		require.NoError(t, err)
		assert.Equal(t, 5, a.ActivityScore)
		return nil
	}))
}

func TestGetMonthlyLeaderboard_InvalidArgs(t *testing.T) {
	svc := ranking.NewService(memory.New(), config.DefaultPolicy())

	_, err := svc.GetMonthlyLeaderboard(context.Background(), 2025, 0, 0)
	assert.True(t, domain.IsKind(err, domain.KindInvalidArgument))

	_, err = svc.GetMonthlyLeaderboard(context.Background(), 2025, 3, -1)
	assert.True(t, domain.IsKind(err, domain.KindInvalidArgument))

	board, err := svc.GetMonthlyLeaderboard(context.Background(), 2025, 3, 0)
	require.NoError(t, err)
	assert.Empty(t, board.Entries)
	assert.Zero(t, board.Stats.AverageScore)
}

func TestGetMonthlyLeaderboard_ThrottleIsPerMonth(t *testing.T) {
	svc := ranking.NewService(memory.New(), config.DefaultPolicy(), ranking.WithPersistEvery(time.Hour))
	ctx := context.Background()

	// A rejected read does not use up the month's persist.
	_, err := svc.GetMonthlyLeaderboard(ctx, 2025, 13, 0)
	require.True(t, domain.IsKind(err, domain.KindInvalidArgument))

	feb, err := svc.GetMonthlyLeaderboard(ctx, 2025, 2, 0)
	require.NoError(t, err)
	assert.True(t, feb.Persisted)

	mar, err := svc.GetMonthlyLeaderboard(ctx, 2025, 3, 0)
	require.NoError(t, err)
	assert.True(t, mar.Persisted)

	again, err := svc.GetMonthlyLeaderboard(ctx, 2025, 3, 0)
	require.NoError(t, err)
	assert.False(t, again.Persisted)
}

// The same rows always get the same ranks, whatever order they arrive in.
func TestRank_Deterministic(t *testing.T) {
	policy := config.DefaultPolicy()
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 25).Draw(t, "n")
		rows := make([]*domain.MonthlyActivity, n)
		for i := range rows {
			rows[i] = &domain.MonthlyActivity{
				PatronBarcode:   fmt.Sprintf("P%02d", i),
				BooksCheckedOut: rapid.IntRange(0, 3).Draw(t, "checked_out"),
				BooksReturned:   rapid.IntRange(0, 3).Draw(t, "returned"),
				TotalPoints:     rapid.IntRange(0, 40).Draw(t, "points"),
			}
		}
		shuffled := make([]*domain.MonthlyActivity, n)
		for i, j := range rapid.Permutation(rangeOf(n)).Draw(t, "perm") {
			shuffled[i] = rows[j]
		}

		a := ranking.Rank(rows, policy.Weights, policy.RankKeys())
		b := ranking.Rank(shuffled, policy.Weights, policy.RankKeys())
		for i := range a {
			if a[i].PatronBarcode != b[i].PatronBarcode || a[i].Rank != b[i].Rank {
				t.Fatalf("position %d: %s/%d vs %s/%d", i, a[i].PatronBarcode, a[i].Rank, b[i].PatronBarcode, b[i].Rank)
			}
			if a[i].Rank != i+1 {
				t.Fatalf("rank at %d is %d", i, a[i].Rank)
			}
			if i > 0 {
				prev, cur := a[i-1], a[i]
				if prev.ActivityScore < cur.ActivityScore ||
					(prev.ActivityScore == cur.ActivityScore && prev.TotalPoints < cur.TotalPoints) {
					t.Fatalf("rows %s and %s are out of order", prev.PatronBarcode, cur.PatronBarcode)
				}
			}
		}
	})
}

func rangeOf(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
