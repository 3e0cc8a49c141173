package domain

import (
	"time"
)

// Item is a physical copy identified by its barcode. CheckoutHistory is an append-only log;
// at most one record is open and, if present, it is the last element.
type Item struct {
	Barcode         string           `json:"barcode"`
	Title           string           `json:"title"`
	Available       bool             `json:"available"`
	CheckoutHistory []CheckoutRecord `json:"checkout_history"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// CheckoutRecord is one loan of an item.
type CheckoutRecord struct {
	ID              string     `json:"id"`
	BorrowerBarcode string     `json:"borrower_barcode"`
	BorrowerName    string     `json:"borrower_name"`
	ContactInfo     string     `json:"contact_info,omitempty"`
	CheckedOutAt    time.Time  `json:"checked_out_at"`
	DueDate         time.Time  `json:"due_date"`
	RenewedAt       *time.Time `json:"renewed_at,omitempty"`
	ReturnedAt      *time.Time `json:"returned_at,omitempty"`
}

// IsOpen reports whether the record is still with a borrower.
func (r CheckoutRecord) IsOpen() bool {
	return r.ReturnedAt == nil
}

// OverdueBy is how far past the due date the record is at now. Zero or negative means not overdue.
func (r CheckoutRecord) OverdueBy(now time.Time) time.Duration {
	return now.Sub(r.DueDate)
}

// OpenRecord returns the open record, which by convention is the last one in the log.
func (i *Item) OpenRecord() (*CheckoutRecord, bool) {
	n := len(i.CheckoutHistory)
	if n == 0 || !i.CheckoutHistory[n-1].IsOpen() {
		return nil, false
	}
	return &i.CheckoutHistory[n-1], true
}

// OpenRecordCount counts records without a return date. Used by consistency checks.
func (i *Item) OpenRecordCount() int {
	count := 0
	for _, r := range i.CheckoutHistory {
		if r.IsOpen() {
			count++
		}
	}
	return count
}

// IsOverdue is derived, never stored: the open record's due date has passed.
func (i *Item) IsOverdue(now time.Time) bool {
	rec, ok := i.OpenRecord()
	return ok && rec.DueDate.Before(now)
}

// IsOverdueBeyond reports whether the item is overdue by more than days.
func (i *Item) IsOverdueBeyond(now time.Time, days int) bool {
	rec, ok := i.OpenRecord()
	if !ok {
		return false
	}
	return rec.OverdueBy(now) > time.Duration(days)*24*time.Hour
}

// Clone returns a deep copy.
func (i *Item) Clone() *Item {
	c := *i
	c.CheckoutHistory = make([]CheckoutRecord, len(i.CheckoutHistory))
	for n, r := range i.CheckoutHistory {
		c.CheckoutHistory[n] = r.Clone()
	}
	return &c
}

// Clone returns a deep copy.
func (r CheckoutRecord) Clone() CheckoutRecord {
	c := r
	if r.RenewedAt != nil {
		t := *r.RenewedAt
		c.RenewedAt = &t
	}
	if r.ReturnedAt != nil {
		t := *r.ReturnedAt
		c.ReturnedAt = &t
	}
	return c
}
