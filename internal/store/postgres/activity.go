package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"

	"libraengage/internal/domain"
	"libraengage/internal/store"
)

var activityColumns = []any{
	"patron_barcode", "patron_name", "year", "month",
	"books_checked_out", "books_returned", "classes_attended",
	"summaries_submitted", "summaries_approved", "total_points",
	"activity_score", "rank", "is_active", "updated_at",
}

const upsertActivity = `
	INSERT INTO monthly_activity (
		patron_barcode, patron_name, year, month,
		books_checked_out, books_returned, classes_attended,
		summaries_submitted, summaries_approved, total_points,
		is_active, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, TRUE, $11)
	ON CONFLICT (patron_barcode, year, month) DO UPDATE SET
		patron_name         = COALESCE(NULLIF(EXCLUDED.patron_name, ''), monthly_activity.patron_name),
		books_checked_out   = monthly_activity.books_checked_out + EXCLUDED.books_checked_out,
		books_returned      = monthly_activity.books_returned + EXCLUDED.books_returned,
		classes_attended    = monthly_activity.classes_attended + EXCLUDED.classes_attended,
		summaries_submitted = monthly_activity.summaries_submitted + EXCLUDED.summaries_submitted,
		summaries_approved  = monthly_activity.summaries_approved + EXCLUDED.summaries_approved,
		total_points        = monthly_activity.total_points + EXCLUDED.total_points,
		is_active           = TRUE,
		updated_at          = EXCLUDED.updated_at
	RETURNING patron_barcode, patron_name, year, month,
		books_checked_out, books_returned, classes_attended,
		summaries_submitted, summaries_approved, total_points,
		activity_score, rank, is_active, updated_at
`

func (t *tx) UpsertActivity(ctx context.Context, patronBarcode, patronName string, period domain.Period, delta domain.ActivityDelta, at time.Time) (*domain.MonthlyActivity, error) {
	var row domain.MonthlyActivity
	err := t.tx.GetContext(ctx, &row, upsertActivity,
		patronBarcode, patronName, period.Year, period.Month,
		delta.BooksCheckedOut, delta.BooksReturned, delta.ClassesAttended,
		delta.SummariesSubmitted, delta.SummariesApproved, delta.TotalPoints,
		at,
	)
	if err != nil {
		return nil, mapError(err)
	}
	return &row, nil
}

func (t *tx) GetActivity(ctx context.Context, patronBarcode string, period domain.Period) (*domain.MonthlyActivity, error) {
	ds := dialect.From("monthly_activity").
		Select(activityColumns...).
		Where(goqu.Ex{
			"patron_barcode": patronBarcode,
			"year":           period.Year,
			"month":          period.Month,
		})
	var rows []*domain.MonthlyActivity
	if err := t.selectDataset(ctx, &rows, ds); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, store.ErrNotFound
	}
	return rows[0], nil
}

func (t *tx) monthDataset(period domain.Period) *goqu.SelectDataset {
	return dialect.From("monthly_activity").
		Select(activityColumns...).
		Where(goqu.Ex{"year": period.Year, "month": period.Month}).
		Order(goqu.C("patron_barcode").Asc())
}

func (t *tx) ListActivity(ctx context.Context, period domain.Period) ([]*domain.MonthlyActivity, error) {
	var rows []*domain.MonthlyActivity
	if err := t.selectDataset(ctx, &rows, t.monthDataset(period)); err != nil {
		return nil, err
	}
	return rows, nil
}

// LockActivity selects the month's rows FOR UPDATE, so concurrent recomputes of a month serialize.
func (t *tx) LockActivity(ctx context.Context, period domain.Period) ([]*domain.MonthlyActivity, error) {
	var rows []*domain.MonthlyActivity
	if err := t.selectDataset(ctx, &rows, t.monthDataset(period).ForUpdate(exp.Wait)); err != nil {
		return nil, err
	}
	return rows, nil
}

func (t *tx) SaveRanks(ctx context.Context, period domain.Period, updates []store.RankUpdate) error {
	stmt, err := t.tx.PreparexContext(ctx, `
		UPDATE monthly_activity SET activity_score = $4, rank = $5
		WHERE patron_barcode = $1 AND year = $2 AND month = $3
	`)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", mapError(err))
	}
	defer stmt.Close()

	for _, u := range updates {
		res, err := stmt.ExecContext(ctx, u.PatronBarcode, period.Year, period.Month, u.Score, u.Rank)
		if err != nil {
			return mapError(err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("%w: ledger row %s %s", store.ErrNotFound, u.PatronBarcode, period)
		}
	}
	return nil
}
