package postgres

import (
	"context"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"

	"libraengage/internal/domain"
)

type attendanceRow struct {
	ID            uuid.UUID `db:"id"`
	PatronBarcode string    `db:"patron_barcode"`
	ClassName     string    `db:"class_name"`
	ClassDate     time.Time `db:"class_date"`
	Points        int       `db:"points"`
	RecordedAt    time.Time `db:"recorded_at"`
}

func (t *tx) InsertAttendance(ctx context.Context, a *domain.Attendance) error {
	_, err := t.exec(ctx, `
		INSERT INTO attendance (id, patron_barcode, class_name, class_date, points, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, a.ID, a.PatronBarcode, a.ClassName, a.ClassDate.Format(time.DateOnly), a.Points, a.RecordedAt)
	return err
}

func (t *tx) ListAttendance(ctx context.Context, patronBarcode string) ([]*domain.Attendance, error) {
	ds := dialect.From("attendance").
		Select("id", "patron_barcode", "class_name", "class_date", "points", "recorded_at").
		Order(goqu.C("class_date").Asc(), goqu.C("recorded_at").Asc())
	if patronBarcode != "" {
		ds = ds.Where(goqu.C("patron_barcode").Eq(patronBarcode))
	}

	var rows []attendanceRow
	if err := t.selectDataset(ctx, &rows, ds); err != nil {
		return nil, err
	}
	out := make([]*domain.Attendance, len(rows))
	for i, r := range rows {
		out[i] = &domain.Attendance{
			ID:            r.ID,
			PatronBarcode: r.PatronBarcode,
			ClassName:     r.ClassName,
			ClassDate:     r.ClassDate,
			Points:        r.Points,
			RecordedAt:    r.RecordedAt,
		}
	}
	return out, nil
}
