package postgres_test

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libraengage/internal/domain"
	"libraengage/internal/store"
	"libraengage/internal/store/postgres"
)

// setupTestDB connects to the database named by the PG* environment variables.
// It skips the test if the connection cannot be established.
func setupTestDB(t testing.TB) *postgres.Store {
	t.Helper()

	connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		getEnv("PGHOST", "localhost"),
		getEnv("PGPORT", "5432"),
		getEnv("PGUSER", "user"),
		getEnv("PGPASSWORD", "password"),
		getEnv("PGDATABASE", "testdb"),
	)

	db, err := sqlx.Open("postgres", connStr)
	if err != nil {
		t.Fatalf("failed to open database connection: %v", err)
	}
	if err := db.Ping(); err != nil {
		t.Skipf("skipping postgres tests: could not connect to postgres: %v", err)
	}

	s := postgres.New(db)
	require.NoError(t, s.Migrate(context.Background()))

	_, err = db.Exec(`TRUNCATE items, checkout_records, patrons, patron_borrowed_items,
		monthly_activity, activity_events, book_summaries, attendance`)
	require.NoError(t, err)

	t.Cleanup(func() { s.Close() })
	return s
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

var now = time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)

func seed(t *testing.T, s store.Store) {
	t.Helper()
	err := s.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		if err := tx.InsertItem(ctx, &domain.Item{Barcode: "B1", Title: "Dune", Available: true, CreatedAt: now, UpdatedAt: now}); err != nil {
			return err
		}
		if err := tx.InsertPatron(ctx, &domain.Patron{Barcode: "P1", Name: "Ada", CreatedAt: now, UpdatedAt: now}); err != nil {
			return err
		}
		return tx.InsertPatron(ctx, &domain.Patron{Barcode: "P2", Name: "Grace", CreatedAt: now, UpdatedAt: now})
	})
	require.NoError(t, err)
}

func record(id, patron string) domain.CheckoutRecord {
	return domain.CheckoutRecord{
		ID:              id,
		BorrowerBarcode: patron,
		CheckedOutAt:    now,
		DueDate:         now.AddDate(0, 0, 14),
	}
}

func TestCheckoutLifecycle(t *testing.T) {
	s := setupTestDB(t)
	seed(t, s)
	ctx := context.Background()

	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.OpenCheckout(ctx, "B1", record("R1", "P1")); err != nil {
			return err
		}
		if err := tx.SetPatronLoan(ctx, "P1", "B1", record("R1", "P1")); err != nil {
			return err
		}
		return tx.AddBorrowedItem(ctx, "P1", "B1")
	}))

	err := s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.OpenCheckout(ctx, "B1", record("R2", "P2"))
	})
	assert.ErrorIs(t, err, store.ErrConflict)

	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		due := now.AddDate(0, 0, 21)
		if err := tx.RenewCheckout(ctx, "B1", "R1", due, now); err != nil {
			return err
		}
		return tx.RenewPatronLoan(ctx, "P1", due, now)
	}))

	require.NoError(t, s.ReadOnly(ctx, func(ctx context.Context, tx store.Tx) error {
		item, err := tx.GetItem(ctx, "B1")
		require.NoError(t, err)
		assert.False(t, item.Available)
		require.Len(t, item.CheckoutHistory, 1)
		assert.NotNil(t, item.CheckoutHistory[0].RenewedAt)

		p, err := tx.GetPatron(ctx, "P1")
		require.NoError(t, err)
		assert.True(t, p.HasOpenLoan)
		assert.Equal(t, []string{"B1"}, p.ItemsBorrowed)
		require.NotNil(t, p.CurrentLoan)
		assert.True(t, p.CurrentLoan.DueDate.Equal(now.AddDate(0, 0, 21)))
		return nil
	}))

	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.CloseCheckout(ctx, "B1", "R1", now.Add(time.Hour)); err != nil {
			return err
		}
		return tx.ClearPatronLoan(ctx, "P1", "B1")
	}))
}

func TestConcurrentCheckoutsYieldOneWinner(t *testing.T) {
	s := setupTestDB(t)
	seed(t, s)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i, patron := range []string{"P1", "P2"} {
		wg.Add(1)
		go func(i int, patron string) {
			defer wg.Done()
			results[i] = s.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
				rec := record(fmt.Sprintf("R-%s", patron), patron)
				if err := tx.OpenCheckout(ctx, "B1", rec); err != nil {
					return err
				}
				return tx.SetPatronLoan(ctx, patron, "B1", rec)
			})
		}(i, patron)
	}
	wg.Wait()

	successes := 0
	for _, err := range results {
		if err == nil {
			successes++
		} else {
			assert.ErrorIs(t, err, store.ErrConflict)
		}
	}
	assert.Equal(t, 1, successes)
}

func TestLedgerUpsertAndRanks(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	period := domain.Period{Year: 2025, Month: 3}

	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		ev := &domain.ActivityEvent{ID: uuid.New(), Type: domain.EventClassAttended, PatronBarcode: "P1", Period: period,
			Delta: domain.ActivityDelta{ClassesAttended: 1, TotalPoints: 5}, OccurredAt: now}
		if err := tx.AppendEvent(ctx, ev); err != nil {
			return err
		}
		if err := tx.AppendEvent(ctx, &domain.ActivityEvent{ID: ev.ID, Period: period, OccurredAt: now}); err != store.ErrDuplicate {
			return fmt.Errorf("expected duplicate, got %v", err)
		}
		_, err := tx.UpsertActivity(ctx, "P1", "Ada", period, ev.Delta, now)
		return err
	}))

	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		rows, err := tx.LockActivity(ctx, period)
		if err != nil {
			return err
		}
		require.Len(t, rows, 1)
		return tx.SaveRanks(ctx, period, []store.RankUpdate{{PatronBarcode: "P1", Score: 25, Rank: 1}})
	}))

	require.NoError(t, s.ReadOnly(ctx, func(ctx context.Context, tx store.Tx) error {
		row, err := tx.GetActivity(ctx, "P1", period)
		require.NoError(t, err)
		assert.Equal(t, 1, row.ClassesAttended)
		assert.Equal(t, 25, row.ActivityScore)
		assert.Equal(t, 1, row.Rank)

		events, err := tx.StreamEvents(ctx, 0, 0)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, 5, events[0].Delta.TotalPoints)
		return nil
	}))
}

func TestSummaryReviewIsConditional(t *testing.T) {
	s := setupTestDB(t)
	ctx := context.Background()
	summary := &domain.BookSummary{ID: uuid.New(), PatronBarcode: "P1", BookBarcode: "B1", Content: "x", Rating: 4,
		Status: domain.SummaryPending, SubmittedAt: now}

	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.InsertSummary(ctx, summary)
	}))

	reviewed := summary.Clone()
	require.NoError(t, reviewed.Review(true, 10, "staff", now))
	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.ReviewSummary(ctx, reviewed)
	}))

	err := s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.ReviewSummary(ctx, reviewed)
	})
	assert.ErrorIs(t, err, store.ErrConflict)
}
