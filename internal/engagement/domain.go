// internal/engagement/domain.go
package engagement

import (
	"time"

	"github.com/google/uuid"

	"libraengage/internal/config"
	"libraengage/internal/domain"
)

// Entry is one ledger increment, recorded inside the caller's transaction.
// A zero EventID gets a fresh id; a repeated EventID is applied at most once.
type Entry struct {
	EventID       uuid.UUID
	Type          domain.EventType
	PatronBarcode string
	PatronName    string
	Period        domain.Period
	Delta         domain.ActivityDelta
	At            time.Time
}

// RecordRequest is a direct ledger adjustment.
type RecordRequest struct {
	EventID       uuid.UUID
	PatronBarcode string
	Year          int
	Month         int
	Delta         domain.ActivityDelta
}

// RecordResult reports the ledger row after a RecordActivity call.
// Applied is false when the event id had been recorded before.
type RecordResult struct {
	EventID  uuid.UUID               `json:"event_id"`
	Applied  bool                    `json:"applied"`
	Activity *domain.MonthlyActivity `json:"activity"`
}

// Key identifies a ledger row.
type Key struct {
	PatronBarcode string
	Period        domain.Period
}

// Score is the weighted activity score of a month's counters.
func Score(c domain.ActivityDelta, w config.Weights) int {
	return c.BooksCheckedOut*w.BooksCheckedOut +
		c.BooksReturned*w.BooksReturned +
		c.ClassesAttended*w.ClassesAttended +
		c.SummariesApproved*w.SummariesApproved +
		c.TotalPoints*w.TotalPoints
}

// Replay folds an event feed into per-row counters. Applying the same feed to empty
// ledger rows must reproduce the stored counters.
func Replay(events []domain.ActivityEvent) map[Key]domain.ActivityDelta {
	out := make(map[Key]domain.ActivityDelta)
	for _, ev := range events {
		k := Key{PatronBarcode: ev.PatronBarcode, Period: ev.Period}
		out[k] = out[k].Add(ev.Delta)
	}
	return out
}
