package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/lib/pq"

	"libraengage/internal/domain"
	"libraengage/internal/store"
)

type itemRow struct {
	Barcode   string    `db:"barcode"`
	Title     string    `db:"title"`
	Available bool      `db:"available"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

type recordRow struct {
	ID              string     `db:"id"`
	ItemBarcode     string     `db:"item_barcode"`
	BorrowerBarcode string     `db:"borrower_barcode"`
	BorrowerName    string     `db:"borrower_name"`
	ContactInfo     string     `db:"contact_info"`
	CheckedOutAt    time.Time  `db:"checked_out_at"`
	DueDate         time.Time  `db:"due_date"`
	RenewedAt       *time.Time `db:"renewed_at"`
	ReturnedAt      *time.Time `db:"returned_at"`
}

func (r recordRow) toDomain() domain.CheckoutRecord {
	return domain.CheckoutRecord{
		ID:              r.ID,
		BorrowerBarcode: r.BorrowerBarcode,
		BorrowerName:    r.BorrowerName,
		ContactInfo:     r.ContactInfo,
		CheckedOutAt:    r.CheckedOutAt,
		DueDate:         r.DueDate,
		RenewedAt:       r.RenewedAt,
		ReturnedAt:      r.ReturnedAt,
	}
}

const selectRecordsForItems = `
	SELECT id, item_barcode, borrower_barcode, borrower_name, contact_info,
	       checked_out_at, due_date, renewed_at, returned_at
	FROM checkout_records
	WHERE item_barcode = ANY($1)
	ORDER BY item_barcode, checked_out_at, id
`

func (t *tx) InsertItem(ctx context.Context, item *domain.Item) error {
	_, err := t.exec(ctx, `
		INSERT INTO items (barcode, title, available, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, item.Barcode, item.Title, item.Available, item.CreatedAt, item.UpdatedAt)
	return err
}

func (t *tx) GetItem(ctx context.Context, barcode string) (*domain.Item, error) {
	var row itemRow
	err := t.tx.GetContext(ctx, &row, `
		SELECT barcode, title, available, created_at, updated_at
		FROM items WHERE barcode = $1
	`, barcode)
	if err != nil {
		return nil, mapError(err)
	}
	items, err := t.withHistory(ctx, []itemRow{row})
	if err != nil {
		return nil, err
	}
	return items[0], nil
}

func (t *tx) ListItems(ctx context.Context, filter store.ItemFilter) ([]*domain.Item, error) {
	ds := dialect.From(goqu.T("items").As("i")).
		Select(
			goqu.I("i.barcode"),
			goqu.I("i.title"),
			goqu.I("i.available"),
			goqu.I("i.created_at"),
			goqu.I("i.updated_at"),
		).
		Order(goqu.I("i.barcode").Asc())

	if filter.CheckedOutOnly {
		ds = ds.Where(goqu.I("i.available").IsFalse())
	}
	if filter.DueBefore != nil {
		ds = ds.Where(goqu.L(
			"EXISTS (SELECT 1 FROM checkout_records r WHERE r.item_barcode = i.barcode AND r.returned_at IS NULL AND r.due_date < ?)",
			*filter.DueBefore,
		))
	}

	var rows []itemRow
	if err := t.selectDataset(ctx, &rows, ds); err != nil {
		return nil, err
	}
	return t.withHistory(ctx, rows)
}

// withHistory loads the checkout logs of rows in one query.
func (t *tx) withHistory(ctx context.Context, rows []itemRow) ([]*domain.Item, error) {
	out := make([]*domain.Item, 0, len(rows))
	if len(rows) == 0 {
		return out, nil
	}

	barcodes := make([]string, len(rows))
	for i, r := range rows {
		barcodes[i] = r.Barcode
	}
	var records []recordRow
	if err := t.tx.SelectContext(ctx, &records, selectRecordsForItems, pq.Array(barcodes)); err != nil {
		return nil, mapError(err)
	}
	history := make(map[string][]domain.CheckoutRecord, len(rows))
	for _, r := range records {
		history[r.ItemBarcode] = append(history[r.ItemBarcode], r.toDomain())
	}

	for _, r := range rows {
		out = append(out, &domain.Item{
			Barcode:         r.Barcode,
			Title:           r.Title,
			Available:       r.Available,
			CheckoutHistory: history[r.Barcode],
			CreatedAt:       r.CreatedAt,
			UpdatedAt:       r.UpdatedAt,
		})
	}
	return out, nil
}

const itemExists = `SELECT EXISTS (SELECT 1 FROM items WHERE barcode = $1)`

func (t *tx) OpenCheckout(ctx context.Context, itemBarcode string, rec domain.CheckoutRecord) error {
	res, err := t.exec(ctx, `
		UPDATE items SET available = FALSE, updated_at = $2
		WHERE barcode = $1 AND available
	`, itemBarcode, rec.CheckedOutAt)
	if err != nil {
		return err
	}
	if err := t.guarded(ctx, res, itemExists, itemBarcode); err != nil {
		return err
	}

	_, err = t.exec(ctx, `
		INSERT INTO checkout_records
			(id, item_barcode, borrower_barcode, borrower_name, contact_info, checked_out_at, due_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, rec.ID, itemBarcode, rec.BorrowerBarcode, rec.BorrowerName, rec.ContactInfo, rec.CheckedOutAt, rec.DueDate)
	if errors.Is(err, store.ErrDuplicate) {
		// checkout_records_one_open
		return fmt.Errorf("%w: item %s already has an open record", store.ErrConflict, itemBarcode)
	}
	return err
}

func (t *tx) CloseCheckout(ctx context.Context, itemBarcode, recordID string, returnedAt time.Time) error {
	res, err := t.exec(ctx, `
		UPDATE checkout_records SET returned_at = $3
		WHERE item_barcode = $1 AND id = $2 AND returned_at IS NULL
	`, itemBarcode, recordID, returnedAt)
	if err != nil {
		return err
	}
	if err := t.guarded(ctx, res, itemExists, itemBarcode); err != nil {
		return err
	}

	_, err = t.exec(ctx, `
		UPDATE items SET available = TRUE, updated_at = $2 WHERE barcode = $1
	`, itemBarcode, returnedAt)
	return err
}

func (t *tx) RenewCheckout(ctx context.Context, itemBarcode, recordID string, dueDate, renewedAt time.Time) error {
	res, err := t.exec(ctx, `
		UPDATE checkout_records SET due_date = $3, renewed_at = $4
		WHERE item_barcode = $1 AND id = $2 AND returned_at IS NULL
	`, itemBarcode, recordID, dueDate, renewedAt)
	if err != nil {
		return err
	}
	if err := t.guarded(ctx, res, itemExists, itemBarcode); err != nil {
		return err
	}

	_, err = t.exec(ctx, `UPDATE items SET updated_at = $2 WHERE barcode = $1`, itemBarcode, renewedAt)
	return err
}
