package review

import (
	"github.com/google/uuid"

	"libraengage/internal/domain"
)

// SubmitRequest is a patron's summary of a book they borrowed and returned.
type SubmitRequest struct {
	EventID       uuid.UUID `json:"-"`
	PatronBarcode string    `json:"patron_barcode" validate:"required"`
	BookBarcode   string    `json:"book_barcode" validate:"required"`
	Content       string    `json:"content" validate:"required"`
	Rating        int       `json:"rating"`
}

// StaffSubmitRequest creates an already approved summary on a patron's behalf.
type StaffSubmitRequest struct {
	SubmitRequest
	BonusPoints int `json:"bonus_points"`
}

// ReviewRequest approves a pending summary with Points bonus, or rejects it.
type ReviewRequest struct {
	EventID uuid.UUID `json:"-"`
	Approve bool      `json:"approve"`
	Points  int       `json:"points"`
}

// ListFilter narrows ListSummaries. Empty fields match everything.
type ListFilter struct {
	Status        domain.SummaryStatus
	PatronBarcode string
}
