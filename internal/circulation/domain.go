// internal/circulation/domain.go
package circulation

import (
	"time"

	"github.com/google/uuid"

	"libraengage/internal/domain"
)

// CheckoutRequest lends an item. DueInDays of zero means the policy default.
// EventID is the idempotency key of the ledger increment; a nil id gets a fresh one.
type CheckoutRequest struct {
	EventID       uuid.UUID `json:"-"`
	ItemBarcode   string    `json:"item_barcode" validate:"required"`
	PatronBarcode string    `json:"patron_barcode" validate:"required"`
	DueInDays     int       `json:"due_in_days" validate:"min=0"`
}

type CheckoutResult struct {
	Item    *domain.Item `json:"item"`
	DueDate time.Time    `json:"due_date"`
}

// CheckInRequest returns an item and awards BonusPoints to the borrower.
type CheckInRequest struct {
	EventID       uuid.UUID `json:"-"`
	ItemBarcode   string    `json:"item_barcode" validate:"required"`
	PatronBarcode string    `json:"patron_barcode" validate:"required"`
	BonusPoints   int       `json:"bonus_points" validate:"min=0"`
}

type CheckInResult struct {
	AwardedPoints int          `json:"awarded_points"`
	Item          *domain.Item `json:"item"`
}

// RenewRequest moves the due date of the borrower's open record.
type RenewRequest struct {
	EventID       uuid.UUID `json:"-"`
	ItemBarcode   string    `json:"item_barcode" validate:"required"`
	PatronBarcode string    `json:"patron_barcode" validate:"required"`
	NewDueDate    time.Time `json:"new_due_date" validate:"required"`
}

type RenewResult struct {
	NewDueDate time.Time `json:"new_due_date"`
}

// ItemHistory is an item's full checkout log with its derived loan state.
type ItemHistory struct {
	Item       *domain.Item           `json:"item"`
	OpenRecord *domain.CheckoutRecord `json:"open_record,omitempty"`
	Overdue    bool                   `json:"overdue"`
	Loans      int                    `json:"loans"`
}

// OverdueItem is one row of the overdue report.
type OverdueItem struct {
	ItemBarcode     string    `json:"item_barcode"`
	Title           string    `json:"title"`
	RecordID        string    `json:"record_id"`
	BorrowerBarcode string    `json:"borrower_barcode"`
	BorrowerName    string    `json:"borrower_name"`
	ContactInfo     string    `json:"contact_info,omitempty"`
	DueDate         time.Time `json:"due_date"`
	DaysOverdue     int       `json:"days_overdue"`
}

// NewOverdueItem builds the report row for an item whose open record is past due.
func NewOverdueItem(item *domain.Item, rec *domain.CheckoutRecord, now time.Time) OverdueItem {
	return OverdueItem{
		ItemBarcode:     item.Barcode,
		Title:           item.Title,
		RecordID:        rec.ID,
		BorrowerBarcode: rec.BorrowerBarcode,
		BorrowerName:    rec.BorrowerName,
		ContactInfo:     rec.ContactInfo,
		DueDate:         rec.DueDate,
		DaysOverdue:     int(rec.OverdueBy(now) / (24 * time.Hour)),
	}
}
