package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/lib/pq"

	"libraengage/internal/domain"
	"libraengage/internal/store"
)

type patronRow struct {
	Barcode          string         `db:"barcode"`
	Name             string         `db:"name"`
	ContactInfo      string         `db:"contact_info"`
	PhotoURL         string         `db:"photo_url"`
	IdentityVerified bool           `db:"identity_verified"`
	Suspended        bool           `db:"suspended"`
	HasOpenLoan      bool           `db:"has_open_loan"`
	CurrentItem      sql.NullString `db:"current_item"`
	CurrentLoan      []byte         `db:"current_loan"`
	Points           int            `db:"points"`
	CreatedAt        time.Time      `db:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at"`
}

var patronColumns = []any{
	"barcode", "name", "contact_info", "photo_url", "identity_verified", "suspended",
	"has_open_loan", "current_item", "current_loan", "points", "created_at", "updated_at",
}

type borrowedRow struct {
	PatronBarcode string `db:"patron_barcode"`
	ItemBarcode   string `db:"item_barcode"`
}

const patronExists = `SELECT EXISTS (SELECT 1 FROM patrons WHERE barcode = $1)`

func (t *tx) InsertPatron(ctx context.Context, p *domain.Patron) error {
	_, err := t.exec(ctx, `
		INSERT INTO patrons (barcode, name, contact_info, photo_url, identity_verified, suspended, points, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, p.Barcode, p.Name, p.ContactInfo, p.PhotoURL, p.IdentityVerified, p.Suspended, p.Points, p.CreatedAt, p.UpdatedAt)
	return err
}

func (t *tx) GetPatron(ctx context.Context, barcode string) (*domain.Patron, error) {
	ds := dialect.From("patrons").Select(patronColumns...).Where(goqu.C("barcode").Eq(barcode))
	var rows []patronRow
	if err := t.selectDataset(ctx, &rows, ds); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, store.ErrNotFound
	}
	patrons, err := t.withBorrowed(ctx, rows)
	if err != nil {
		return nil, err
	}
	return patrons[0], nil
}

func (t *tx) ListPatrons(ctx context.Context, filter store.PatronFilter) ([]*domain.Patron, error) {
	ds := dialect.From("patrons").Select(patronColumns...).Order(goqu.C("barcode").Asc())
	if filter.ExcludeSuspended {
		ds = ds.Where(goqu.C("suspended").IsFalse())
	}
	if filter.WithOpenLoan {
		ds = ds.Where(goqu.C("has_open_loan").IsTrue())
	}

	var rows []patronRow
	if err := t.selectDataset(ctx, &rows, ds); err != nil {
		return nil, err
	}
	return t.withBorrowed(ctx, rows)
}

func (t *tx) withBorrowed(ctx context.Context, rows []patronRow) ([]*domain.Patron, error) {
	out := make([]*domain.Patron, 0, len(rows))
	if len(rows) == 0 {
		return out, nil
	}

	barcodes := make([]string, len(rows))
	for i, r := range rows {
		barcodes[i] = r.Barcode
	}
	var borrowed []borrowedRow
	err := t.tx.SelectContext(ctx, &borrowed, `
		SELECT patron_barcode, item_barcode FROM patron_borrowed_items
		WHERE patron_barcode = ANY($1)
		ORDER BY patron_barcode, item_barcode
	`, pq.Array(barcodes))
	if err != nil {
		return nil, mapError(err)
	}
	byPatron := make(map[string][]string, len(rows))
	for _, b := range borrowed {
		byPatron[b.PatronBarcode] = append(byPatron[b.PatronBarcode], b.ItemBarcode)
	}

	for _, r := range rows {
		p := &domain.Patron{
			Barcode:          r.Barcode,
			Name:             r.Name,
			ContactInfo:      r.ContactInfo,
			PhotoURL:         r.PhotoURL,
			IdentityVerified: r.IdentityVerified,
			Suspended:        r.Suspended,
			HasOpenLoan:      r.HasOpenLoan,
			CurrentItem:      r.CurrentItem.String,
			Points:           r.Points,
			ItemsBorrowed:    byPatron[r.Barcode],
			CreatedAt:        r.CreatedAt,
			UpdatedAt:        r.UpdatedAt,
		}
		if len(r.CurrentLoan) > 0 {
			var loan domain.CheckoutRecord
			if err := json.Unmarshal(r.CurrentLoan, &loan); err != nil {
				return nil, fmt.Errorf("decode current loan of %s: %w", r.Barcode, err)
			}
			p.CurrentLoan = &loan
		}
		out = append(out, p)
	}
	return out, nil
}

func (t *tx) UpdatePatronProfile(ctx context.Context, p *domain.Patron) error {
	res, err := t.exec(ctx, `
		UPDATE patrons
		SET name = $2, contact_info = $3, photo_url = $4, identity_verified = $5, suspended = $6, updated_at = $7
		WHERE barcode = $1
	`, p.Barcode, p.Name, p.ContactInfo, p.PhotoURL, p.IdentityVerified, p.Suspended, p.UpdatedAt)
	if err != nil {
		return err
	}
	return t.guarded(ctx, res, patronExists, p.Barcode)
}

func (t *tx) SetPatronLoan(ctx context.Context, patronBarcode, itemBarcode string, loan domain.CheckoutRecord) error {
	encoded, err := json.Marshal(loan)
	if err != nil {
		return fmt.Errorf("encode loan: %w", err)
	}
	res, err := t.exec(ctx, `
		UPDATE patrons
		SET has_open_loan = TRUE, current_item = $2, current_loan = $3, updated_at = $4
		WHERE barcode = $1 AND NOT has_open_loan
	`, patronBarcode, itemBarcode, string(encoded), loan.CheckedOutAt)
	if err != nil {
		return err
	}
	return t.guarded(ctx, res, patronExists, patronBarcode)
}

func (t *tx) ClearPatronLoan(ctx context.Context, patronBarcode, itemBarcode string) error {
	res, err := t.exec(ctx, `
		UPDATE patrons
		SET has_open_loan = FALSE, current_item = NULL, current_loan = NULL
		WHERE barcode = $1 AND has_open_loan AND current_item = $2
	`, patronBarcode, itemBarcode)
	if err != nil {
		return err
	}
	return t.guarded(ctx, res, patronExists, patronBarcode)
}

func (t *tx) RenewPatronLoan(ctx context.Context, patronBarcode string, dueDate, renewedAt time.Time) error {
	var raw []byte
	err := t.tx.GetContext(ctx, &raw, `
		SELECT current_loan FROM patrons
		WHERE barcode = $1 AND has_open_loan AND current_loan IS NOT NULL
		FOR UPDATE
	`, patronBarcode)
	if err != nil {
		err = mapError(err)
		if errors.Is(err, store.ErrNotFound) {
			var exists bool
			if existsErr := t.tx.GetContext(ctx, &exists, patronExists, patronBarcode); existsErr != nil {
				return mapError(existsErr)
			}
			if exists {
				return store.ErrConflict
			}
		}
		return err
	}

	var loan domain.CheckoutRecord
	if err := json.Unmarshal(raw, &loan); err != nil {
		return fmt.Errorf("decode current loan: %w", err)
	}
	loan.DueDate = dueDate
	loan.RenewedAt = &renewedAt
	encoded, err := json.Marshal(loan)
	if err != nil {
		return fmt.Errorf("encode loan: %w", err)
	}

	_, err = t.exec(ctx, `
		UPDATE patrons SET current_loan = $2, updated_at = $3 WHERE barcode = $1
	`, patronBarcode, string(encoded), renewedAt)
	return err
}

func (t *tx) AddPatronPoints(ctx context.Context, patronBarcode string, points int) error {
	res, err := t.exec(ctx, `UPDATE patrons SET points = points + $2 WHERE barcode = $1`, patronBarcode, points)
	if err != nil {
		return err
	}
	return t.guarded(ctx, res, patronExists, patronBarcode)
}

func (t *tx) AddBorrowedItem(ctx context.Context, patronBarcode, itemBarcode string) error {
	_, err := t.exec(ctx, `
		INSERT INTO patron_borrowed_items (patron_barcode, item_barcode)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, patronBarcode, itemBarcode)
	return err
}
