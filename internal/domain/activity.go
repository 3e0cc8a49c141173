package domain

import (
	"fmt"
	"time"
)

// Period is a calendar month.
type Period struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

// PeriodOf returns the month containing t, in t's location.
func PeriodOf(t time.Time) Period {
	return Period{Year: t.Year(), Month: int(t.Month())}
}

// Validate rejects months outside 1..12 and implausible years.
func (p Period) Validate() error {
	if p.Month < 1 || p.Month > 12 {
		return InvalidArgument("month must be between 1 and 12, got %d", p.Month)
	}
	if p.Year < 1970 || p.Year > 9999 {
		return InvalidArgument("year %d is out of range", p.Year)
	}
	return nil
}

// Bounds returns [start, end) of the month in loc.
func (p Period) Bounds(loc *time.Location) (time.Time, time.Time) {
	start := time.Date(p.Year, time.Month(p.Month), 1, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 1, 0)
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

// ActivityDelta is a partial counter increment. Zero fields add nothing.
type ActivityDelta struct {
	BooksCheckedOut    int `json:"books_checked_out,omitempty"`
	BooksReturned      int `json:"books_returned,omitempty"`
	ClassesAttended    int `json:"classes_attended,omitempty"`
	SummariesSubmitted int `json:"summaries_submitted,omitempty"`
	SummariesApproved  int `json:"summaries_approved,omitempty"`
	TotalPoints        int `json:"total_points,omitempty"`
}

// Validate rejects negative increments; counters never go down.
func (d ActivityDelta) Validate() error {
	fields := map[string]int{
		"books_checked_out":   d.BooksCheckedOut,
		"books_returned":      d.BooksReturned,
		"classes_attended":    d.ClassesAttended,
		"summaries_submitted": d.SummariesSubmitted,
		"summaries_approved":  d.SummariesApproved,
		"total_points":        d.TotalPoints,
	}
	for name, v := range fields {
		if v < 0 {
			return PreconditionFailed("%s increment must not be negative, got %d", name, v)
		}
	}
	return nil
}

// Add returns the field-wise sum.
func (d ActivityDelta) Add(o ActivityDelta) ActivityDelta {
	return ActivityDelta{
		BooksCheckedOut:    d.BooksCheckedOut + o.BooksCheckedOut,
		BooksReturned:      d.BooksReturned + o.BooksReturned,
		ClassesAttended:    d.ClassesAttended + o.ClassesAttended,
		SummariesSubmitted: d.SummariesSubmitted + o.SummariesSubmitted,
		SummariesApproved:  d.SummariesApproved + o.SummariesApproved,
		TotalPoints:        d.TotalPoints + o.TotalPoints,
	}
}

// MonthlyActivity is the engagement ledger row for one patron and month.
type MonthlyActivity struct {
	PatronBarcode      string    `json:"patron_barcode" db:"patron_barcode"`
	PatronName         string    `json:"patron_name" db:"patron_name"`
	Year               int       `json:"year" db:"year"`
	Month              int       `json:"month" db:"month"`
	BooksCheckedOut    int       `json:"books_checked_out" db:"books_checked_out"`
	BooksReturned      int       `json:"books_returned" db:"books_returned"`
	ClassesAttended    int       `json:"classes_attended" db:"classes_attended"`
	SummariesSubmitted int       `json:"summaries_submitted" db:"summaries_submitted"`
	SummariesApproved  int       `json:"summaries_approved" db:"summaries_approved"`
	TotalPoints        int       `json:"total_points" db:"total_points"`
	ActivityScore      int       `json:"activity_score" db:"activity_score"`
	Rank               int       `json:"rank" db:"rank"`
	IsActive           bool      `json:"is_active" db:"is_active"`
	UpdatedAt          time.Time `json:"updated_at" db:"updated_at"`
}

// Period returns the row's key month.
func (m *MonthlyActivity) Period() Period {
	return Period{Year: m.Year, Month: m.Month}
}

// Apply adds delta to the counters and marks the row active.
func (m *MonthlyActivity) Apply(delta ActivityDelta) {
	m.BooksCheckedOut += delta.BooksCheckedOut
	m.BooksReturned += delta.BooksReturned
	m.ClassesAttended += delta.ClassesAttended
	m.SummariesSubmitted += delta.SummariesSubmitted
	m.SummariesApproved += delta.SummariesApproved
	m.TotalPoints += delta.TotalPoints
	m.IsActive = true
}

// Counters returns the row's counters as a delta, for comparison against a replayed feed.
func (m *MonthlyActivity) Counters() ActivityDelta {
	return ActivityDelta{
		BooksCheckedOut:    m.BooksCheckedOut,
		BooksReturned:      m.BooksReturned,
		ClassesAttended:    m.ClassesAttended,
		SummariesSubmitted: m.SummariesSubmitted,
		SummariesApproved:  m.SummariesApproved,
		TotalPoints:        m.TotalPoints,
	}
}
