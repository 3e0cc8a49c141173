// Package store defines the persistence contract shared by the postgres and in-memory stores.
//
// Every mutating operation runs inside InTx so that item, patron, ledger and event writes commit
// or roll back together. Conditional writes (OpenCheckout, SetPatronLoan, ReviewSummary) return
// ErrConflict when their guard does not hold.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"libraengage/internal/domain"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrConflict is returned when a conditional write's guard did not hold.
	ErrConflict = errors.New("conditional write conflict")

	// ErrDuplicate is returned when an insert violates a uniqueness rule.
	ErrDuplicate = errors.New("duplicate record")
)

// Store opens transactions.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	ReadOnly(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Close() error
}

// Tx is the set of repositories available inside a transaction.
type Tx interface {
	ItemRepository
	PatronRepository
	ActivityRepository
	EventRepository
	SummaryRepository
	AttendanceRepository
}

// ItemFilter narrows ListItems.
type ItemFilter struct {
	CheckedOutOnly bool
	DueBefore      *time.Time
}

type ItemRepository interface {
	InsertItem(ctx context.Context, item *domain.Item) error
	GetItem(ctx context.Context, barcode string) (*domain.Item, error)
	ListItems(ctx context.Context, filter ItemFilter) ([]*domain.Item, error)
	// OpenCheckout appends rec and marks the item unavailable, only if it is available.
	OpenCheckout(ctx context.Context, itemBarcode string, rec domain.CheckoutRecord) error
	// CloseCheckout sets the return time of the open record and marks the item available.
	CloseCheckout(ctx context.Context, itemBarcode, recordID string, returnedAt time.Time) error
	// RenewCheckout moves the due date of the open record.
	RenewCheckout(ctx context.Context, itemBarcode, recordID string, dueDate, renewedAt time.Time) error
}

// PatronFilter narrows ListPatrons.
type PatronFilter struct {
	ExcludeSuspended bool
	WithOpenLoan     bool
}

type PatronRepository interface {
	InsertPatron(ctx context.Context, patron *domain.Patron) error
	GetPatron(ctx context.Context, barcode string) (*domain.Patron, error)
	ListPatrons(ctx context.Context, filter PatronFilter) ([]*domain.Patron, error)
	UpdatePatronProfile(ctx context.Context, patron *domain.Patron) error
	// SetPatronLoan records the open loan, only if the patron has none.
	SetPatronLoan(ctx context.Context, patronBarcode, itemBarcode string, loan domain.CheckoutRecord) error
	// ClearPatronLoan removes the open loan, only if it is for itemBarcode.
	ClearPatronLoan(ctx context.Context, patronBarcode, itemBarcode string) error
	RenewPatronLoan(ctx context.Context, patronBarcode string, dueDate, renewedAt time.Time) error
	AddPatronPoints(ctx context.Context, patronBarcode string, points int) error
	AddBorrowedItem(ctx context.Context, patronBarcode, itemBarcode string) error
}

// RankUpdate is a computed score and rank for one ledger row.
type RankUpdate struct {
	PatronBarcode string
	Score         int
	Rank          int
}

type ActivityRepository interface {
	// UpsertActivity adds delta to the (patron, period) row, creating it if needed.
	UpsertActivity(ctx context.Context, patronBarcode, patronName string, period domain.Period, delta domain.ActivityDelta, at time.Time) (*domain.MonthlyActivity, error)
	GetActivity(ctx context.Context, patronBarcode string, period domain.Period) (*domain.MonthlyActivity, error)
	// ListActivity returns the month's rows ordered by patron barcode.
	ListActivity(ctx context.Context, period domain.Period) ([]*domain.MonthlyActivity, error)
	// LockActivity is ListActivity that also holds the rows until the transaction ends.
	LockActivity(ctx context.Context, period domain.Period) ([]*domain.MonthlyActivity, error)
	SaveRanks(ctx context.Context, period domain.Period, updates []RankUpdate) error
}

type EventRepository interface {
	// AppendEvent stores ev and assigns its sequence. It returns ErrDuplicate if ev.ID was seen before.
	AppendEvent(ctx context.Context, ev *domain.ActivityEvent) error
	GetEvent(ctx context.Context, id uuid.UUID) (*domain.ActivityEvent, error)
	// StreamEvents returns up to limit events with sequence greater than after.
	StreamEvents(ctx context.Context, after int64, limit int) ([]domain.ActivityEvent, error)
}

// SummaryFilter narrows ListSummaries.
type SummaryFilter struct {
	Status        domain.SummaryStatus
	PatronBarcode string
}

type SummaryRepository interface {
	InsertSummary(ctx context.Context, s *domain.BookSummary) error
	GetSummary(ctx context.Context, id uuid.UUID) (*domain.BookSummary, error)
	FindSummary(ctx context.Context, patronBarcode, bookBarcode string) (*domain.BookSummary, error)
	ListSummaries(ctx context.Context, filter SummaryFilter) ([]*domain.BookSummary, error)
	// CountSummaries counts the summaries a patron submitted in [from, to).
	CountSummaries(ctx context.Context, patronBarcode string, from, to time.Time) (int, error)
	// ReviewSummary stores the review outcome, only if the summary is still pending.
	ReviewSummary(ctx context.Context, s *domain.BookSummary) error
}

type AttendanceRepository interface {
	InsertAttendance(ctx context.Context, a *domain.Attendance) error
	ListAttendance(ctx context.Context, patronBarcode string) ([]*domain.Attendance, error)
}
