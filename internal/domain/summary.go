package domain

import (
	"time"

	"github.com/google/uuid"
)

// SummaryStatus is the review state of a book summary.
type SummaryStatus string

const (
	SummaryPending  SummaryStatus = "pending"
	SummaryApproved SummaryStatus = "approved"
	SummaryRejected SummaryStatus = "rejected"
)

func (s SummaryStatus) Valid() bool {
	switch s {
	case SummaryPending, SummaryApproved, SummaryRejected:
		return true
	}
	return false
}

// BookSummary is a patron's write-up of a borrowed book. One per patron per book.
type BookSummary struct {
	ID            uuid.UUID     `json:"id"`
	PatronBarcode string        `json:"patron_barcode"`
	BookBarcode   string        `json:"book_barcode"`
	Content       string        `json:"content"`
	Rating        int           `json:"rating"`
	Status        SummaryStatus `json:"status"`
	Points        int           `json:"points"`
	ReviewedBy    string        `json:"reviewed_by,omitempty"`
	ReviewDate    *time.Time    `json:"review_date,omitempty"`
	StaffCreated  bool          `json:"staff_created"`
	SubmittedAt   time.Time     `json:"submitted_at"`
}

// Review moves a pending summary to a terminal state exactly once.
// Approved summaries keep points; rejected ones get zero.
func (s *BookSummary) Review(approve bool, points int, reviewer string, at time.Time) error {
	if s.Status != SummaryPending {
		return Conflict("summary %s was already reviewed", s.ID).
			WithDetail("existing_status", s.Status).
			WithDetail("existing_points", s.Points)
	}
	if approve {
		s.Status = SummaryApproved
		s.Points = points
	} else {
		s.Status = SummaryRejected
		s.Points = 0
	}
	s.ReviewedBy = reviewer
	reviewed := at
	s.ReviewDate = &reviewed
	return nil
}

// Clone returns a deep copy.
func (s *BookSummary) Clone() *BookSummary {
	c := *s
	if s.ReviewDate != nil {
		t := *s.ReviewDate
		c.ReviewDate = &t
	}
	return &c
}
