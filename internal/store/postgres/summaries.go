package postgres

import (
	"context"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"

	"libraengage/internal/domain"
	"libraengage/internal/store"
)

type summaryRow struct {
	ID            uuid.UUID  `db:"id"`
	PatronBarcode string     `db:"patron_barcode"`
	BookBarcode   string     `db:"book_barcode"`
	Content       string     `db:"content"`
	Rating        int        `db:"rating"`
	Status        string     `db:"status"`
	Points        int        `db:"points"`
	ReviewedBy    string     `db:"reviewed_by"`
	ReviewDate    *time.Time `db:"review_date"`
	StaffCreated  bool       `db:"staff_created"`
	SubmittedAt   time.Time  `db:"submitted_at"`
}

func (r summaryRow) toDomain() *domain.BookSummary {
	return &domain.BookSummary{
		ID:            r.ID,
		PatronBarcode: r.PatronBarcode,
		BookBarcode:   r.BookBarcode,
		Content:       r.Content,
		Rating:        r.Rating,
		Status:        domain.SummaryStatus(r.Status),
		Points:        r.Points,
		ReviewedBy:    r.ReviewedBy,
		ReviewDate:    r.ReviewDate,
		StaffCreated:  r.StaffCreated,
		SubmittedAt:   r.SubmittedAt,
	}
}

var summaryColumns = []any{
	"id", "patron_barcode", "book_barcode", "content", "rating", "status",
	"points", "reviewed_by", "review_date", "staff_created", "submitted_at",
}

func (t *tx) InsertSummary(ctx context.Context, s *domain.BookSummary) error {
	_, err := t.exec(ctx, `
		INSERT INTO book_summaries
			(id, patron_barcode, book_barcode, content, rating, status, points, reviewed_by, review_date, staff_created, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, s.ID, s.PatronBarcode, s.BookBarcode, s.Content, s.Rating, string(s.Status), s.Points,
		s.ReviewedBy, s.ReviewDate, s.StaffCreated, s.SubmittedAt)
	return err
}

func (t *tx) findSummary(ctx context.Context, where goqu.Ex) (*domain.BookSummary, error) {
	var rows []summaryRow
	if err := t.selectDataset(ctx, &rows, dialect.From("book_summaries").Select(summaryColumns...).Where(where)); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, store.ErrNotFound
	}
	return rows[0].toDomain(), nil
}

func (t *tx) GetSummary(ctx context.Context, id uuid.UUID) (*domain.BookSummary, error) {
	return t.findSummary(ctx, goqu.Ex{"id": id})
}

func (t *tx) FindSummary(ctx context.Context, patronBarcode, bookBarcode string) (*domain.BookSummary, error) {
	return t.findSummary(ctx, goqu.Ex{"patron_barcode": patronBarcode, "book_barcode": bookBarcode})
}

func (t *tx) ListSummaries(ctx context.Context, filter store.SummaryFilter) ([]*domain.BookSummary, error) {
	ds := dialect.From("book_summaries").
		Select(summaryColumns...).
		Order(goqu.C("submitted_at").Asc(), goqu.C("id").Asc())
	if filter.Status != "" {
		ds = ds.Where(goqu.C("status").Eq(string(filter.Status)))
	}
	if filter.PatronBarcode != "" {
		ds = ds.Where(goqu.C("patron_barcode").Eq(filter.PatronBarcode))
	}

	var rows []summaryRow
	if err := t.selectDataset(ctx, &rows, ds); err != nil {
		return nil, err
	}
	out := make([]*domain.BookSummary, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

func (t *tx) CountSummaries(ctx context.Context, patronBarcode string, from, to time.Time) (int, error) {
	var n int
	err := t.tx.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM book_summaries
		WHERE patron_barcode = $1 AND submitted_at >= $2 AND submitted_at < $3
	`, patronBarcode, from, to)
	if err != nil {
		return 0, mapError(err)
	}
	return n, nil
}

func (t *tx) ReviewSummary(ctx context.Context, s *domain.BookSummary) error {
	res, err := t.exec(ctx, `
		UPDATE book_summaries
		SET status = $2, points = $3, reviewed_by = $4, review_date = $5
		WHERE id = $1 AND status = 'pending'
	`, s.ID, string(s.Status), s.Points, s.ReviewedBy, s.ReviewDate)
	if err != nil {
		return err
	}
	return t.guarded(ctx, res, `SELECT EXISTS (SELECT 1 FROM book_summaries WHERE id = $1)`, s.ID)
}
