package domain

import (
	"slices"
	"time"
)

// Role of an authenticated caller.
type Role string

const (
	RolePatron Role = "patron"
	RoleStaff  Role = "staff"
	RoleKiosk  Role = "kiosk"
)

// Actor is whoever is calling an operation.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

func (a Actor) IsStaff() bool {
	return a.Role == RoleStaff
}

// Patron is a library member identified by barcode.
type Patron struct {
	Barcode          string          `json:"barcode"`
	Name             string          `json:"name"`
	ContactInfo      string          `json:"contact_info,omitempty"`
	PhotoURL         string          `json:"photo_url,omitempty"`
	IdentityVerified bool            `json:"identity_verified"`
	Suspended        bool            `json:"suspended"`
	HasOpenLoan      bool            `json:"has_open_loan"`
	CurrentLoan      *CheckoutRecord `json:"current_loan,omitempty"`
	CurrentItem      string          `json:"current_item,omitempty"`
	Points           int             `json:"points"`
	ItemsBorrowed    []string        `json:"items_borrowed"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// HasBorrowed reports whether the patron ever borrowed the item.
func (p *Patron) HasBorrowed(itemBarcode string) bool {
	return slices.Contains(p.ItemsBorrowed, itemBarcode)
}

// Clone returns a deep copy.
func (p *Patron) Clone() *Patron {
	c := *p
	c.ItemsBorrowed = slices.Clone(p.ItemsBorrowed)
	if p.CurrentLoan != nil {
		loan := p.CurrentLoan.Clone()
		c.CurrentLoan = &loan
	}
	return &c
}
