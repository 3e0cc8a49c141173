package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventType names the real-world occurrence behind a ledger increment.
type EventType string

const (
	EventItemCheckedOut   EventType = "ItemCheckedOut"
	EventItemReturned     EventType = "ItemReturned"
	EventLoanRenewed      EventType = "LoanRenewed"
	EventClassAttended    EventType = "ClassAttended"
	EventSummarySubmitted EventType = "SummarySubmitted"
	EventSummaryApproved  EventType = "SummaryApproved"
	EventActivityAdjusted EventType = "ActivityAdjusted"
)

// ActivityEvent is one entry of the append-only feed that drives the engagement ledger.
// ID is the idempotency key: an event id is applied at most once.
type ActivityEvent struct {
	Sequence      int64         `json:"sequence"`
	ID            uuid.UUID     `json:"id"`
	Type          EventType     `json:"type"`
	PatronBarcode string        `json:"patron_barcode"`
	PatronName    string        `json:"patron_name"`
	Period        Period        `json:"period"`
	Delta         ActivityDelta `json:"delta"`
	OccurredAt    time.Time     `json:"occurred_at"`
}

// SameRequest reports whether o describes the same increment as e. Ids, sequence,
// names and timestamps are ignored so a retried request matches its first delivery.
func (e ActivityEvent) SameRequest(o ActivityEvent) bool {
	return e.Type == o.Type &&
		e.PatronBarcode == o.PatronBarcode &&
		e.Period == o.Period &&
		e.Delta == o.Delta
}

// Attendance is an append-only fact that a patron attended a class.
type Attendance struct {
	ID            uuid.UUID `json:"id"`
	PatronBarcode string    `json:"patron_barcode"`
	ClassName     string    `json:"class_name"`
	ClassDate     time.Time `json:"class_date"`
	Points        int       `json:"points"`
	RecordedAt    time.Time `json:"recorded_at"`
}

// ClassDay returns midnight UTC of t's calendar day in t's location, so the same
// class day compares equal whichever offset it was given in.
func ClassDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
