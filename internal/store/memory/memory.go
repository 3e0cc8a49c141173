// Package memory is an in-process implementation of store.Store.
//
// Write transactions are serialized by a mutex and run against a private copy of the state, which
// replaces the live state only when the transaction function returns nil.
package memory

import (
	"context"
	"errors"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"libraengage/internal/domain"
	"libraengage/internal/store"
)

var errReadOnly = errors.New("write in read-only transaction")

type activityKey struct {
	patron string
	year   int
	month  int
}

type summaryKey struct {
	patron string
	book   string
}

type state struct {
	items      map[string]*domain.Item
	patrons    map[string]*domain.Patron
	activity   map[activityKey]*domain.MonthlyActivity
	events     []domain.ActivityEvent
	eventIDs   map[uuid.UUID]int // position in events
	summaries  map[uuid.UUID]*domain.BookSummary
	attendance []*domain.Attendance
	sequence   int64
}

func newState() *state {
	return &state{
		items:     make(map[string]*domain.Item),
		patrons:   make(map[string]*domain.Patron),
		activity:  make(map[activityKey]*domain.MonthlyActivity),
		eventIDs:  make(map[uuid.UUID]int),
		summaries: make(map[uuid.UUID]*domain.BookSummary),
	}
}

func (s *state) clone() *state {
	c := &state{
		items:      make(map[string]*domain.Item, len(s.items)),
		patrons:    make(map[string]*domain.Patron, len(s.patrons)),
		activity:   make(map[activityKey]*domain.MonthlyActivity, len(s.activity)),
		events:     slices.Clone(s.events),
		eventIDs:   make(map[uuid.UUID]int, len(s.eventIDs)),
		summaries:  make(map[uuid.UUID]*domain.BookSummary, len(s.summaries)),
		attendance: make([]*domain.Attendance, len(s.attendance)),
		sequence:   s.sequence,
	}
	for k, v := range s.items {
		c.items[k] = v.Clone()
	}
	for k, v := range s.patrons {
		c.patrons[k] = v.Clone()
	}
	for k, v := range s.activity {
		row := *v
		c.activity[k] = &row
	}
	for k, v := range s.eventIDs {
		c.eventIDs[k] = v
	}
	for k, v := range s.summaries {
		c.summaries[k] = v.Clone()
	}
	for i, a := range s.attendance {
		rec := *a
		c.attendance[i] = &rec
	}
	return c
}

// Store keeps all records in memory.
type Store struct {
	mu    sync.RWMutex
	state *state
}

// New returns an empty store.
func New() *Store {
	return &Store{state: newState()}
}

// InTx runs fn against a copy of the state and publishes the copy if fn succeeds.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.state.clone()
	if err := fn(ctx, &tx{state: working}); err != nil {
		return err
	}
	s.state = working
	return nil
}

// ReadOnly runs fn against the live state. Writes fail with an error.
func (s *Store) ReadOnly(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(ctx, &tx{state: s.state, readOnly: true})
}

func (s *Store) Close() error { return nil }

type tx struct {
	state    *state
	readOnly bool
}

func (t *tx) writable() error {
	if t.readOnly {
		return errReadOnly
	}
	return nil
}

// Items

func (t *tx) InsertItem(_ context.Context, item *domain.Item) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.state.items[item.Barcode]; ok {
		return store.ErrDuplicate
	}
	t.state.items[item.Barcode] = item.Clone()
	return nil
}

func (t *tx) GetItem(_ context.Context, barcode string) (*domain.Item, error) {
	item, ok := t.state.items[barcode]
	if !ok {
		return nil, store.ErrNotFound
	}
	return item.Clone(), nil
}

func (t *tx) ListItems(_ context.Context, filter store.ItemFilter) ([]*domain.Item, error) {
	out := make([]*domain.Item, 0, len(t.state.items))
	for _, item := range t.state.items {
		if filter.CheckedOutOnly && item.Available {
			continue
		}
		if filter.DueBefore != nil {
			rec, ok := item.OpenRecord()
			if !ok || !rec.DueDate.Before(*filter.DueBefore) {
				continue
			}
		}
		out = append(out, item.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Barcode < out[j].Barcode })
	return out, nil
}

func (t *tx) OpenCheckout(_ context.Context, itemBarcode string, rec domain.CheckoutRecord) error {
	if err := t.writable(); err != nil {
		return err
	}
	item, ok := t.state.items[itemBarcode]
	if !ok {
		return store.ErrNotFound
	}
	if !item.Available {
		return store.ErrConflict
	}
	item.CheckoutHistory = append(item.CheckoutHistory, rec.Clone())
	item.Available = false
	item.UpdatedAt = rec.CheckedOutAt
	return nil
}

func (t *tx) openRecord(itemBarcode, recordID string) (*domain.Item, *domain.CheckoutRecord, error) {
	item, ok := t.state.items[itemBarcode]
	if !ok {
		return nil, nil, store.ErrNotFound
	}
	rec, ok := item.OpenRecord()
	if !ok || rec.ID != recordID {
		return nil, nil, store.ErrConflict
	}
	return item, rec, nil
}

func (t *tx) CloseCheckout(_ context.Context, itemBarcode, recordID string, returnedAt time.Time) error {
	if err := t.writable(); err != nil {
		return err
	}
	item, rec, err := t.openRecord(itemBarcode, recordID)
	if err != nil {
		return err
	}
	rec.ReturnedAt = &returnedAt
	item.Available = true
	item.UpdatedAt = returnedAt
	return nil
}

func (t *tx) RenewCheckout(_ context.Context, itemBarcode, recordID string, dueDate, renewedAt time.Time) error {
	if err := t.writable(); err != nil {
		return err
	}
	item, rec, err := t.openRecord(itemBarcode, recordID)
	if err != nil {
		return err
	}
	rec.DueDate = dueDate
	rec.RenewedAt = &renewedAt
	item.UpdatedAt = renewedAt
	return nil
}

// Patrons

func (t *tx) InsertPatron(_ context.Context, patron *domain.Patron) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.state.patrons[patron.Barcode]; ok {
		return store.ErrDuplicate
	}
	t.state.patrons[patron.Barcode] = patron.Clone()
	return nil
}

func (t *tx) GetPatron(_ context.Context, barcode string) (*domain.Patron, error) {
	p, ok := t.state.patrons[barcode]
	if !ok {
		return nil, store.ErrNotFound
	}
	return p.Clone(), nil
}

func (t *tx) ListPatrons(_ context.Context, filter store.PatronFilter) ([]*domain.Patron, error) {
	out := make([]*domain.Patron, 0, len(t.state.patrons))
	for _, p := range t.state.patrons {
		if filter.ExcludeSuspended && p.Suspended {
			continue
		}
		if filter.WithOpenLoan && !p.HasOpenLoan {
			continue
		}
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Barcode < out[j].Barcode })
	return out, nil
}

func (t *tx) UpdatePatronProfile(_ context.Context, patron *domain.Patron) error {
	if err := t.writable(); err != nil {
		return err
	}
	p, ok := t.state.patrons[patron.Barcode]
	if !ok {
		return store.ErrNotFound
	}
	p.Name = patron.Name
	p.ContactInfo = patron.ContactInfo
	p.PhotoURL = patron.PhotoURL
	p.IdentityVerified = patron.IdentityVerified
	p.Suspended = patron.Suspended
	p.UpdatedAt = patron.UpdatedAt
	return nil
}

func (t *tx) SetPatronLoan(_ context.Context, patronBarcode, itemBarcode string, loan domain.CheckoutRecord) error {
	if err := t.writable(); err != nil {
		return err
	}
	p, ok := t.state.patrons[patronBarcode]
	if !ok {
		return store.ErrNotFound
	}
	if p.HasOpenLoan {
		return store.ErrConflict
	}
	mirrored := loan.Clone()
	p.HasOpenLoan = true
	p.CurrentLoan = &mirrored
	p.CurrentItem = itemBarcode
	p.UpdatedAt = loan.CheckedOutAt
	return nil
}

func (t *tx) ClearPatronLoan(_ context.Context, patronBarcode, itemBarcode string) error {
	if err := t.writable(); err != nil {
		return err
	}
	p, ok := t.state.patrons[patronBarcode]
	if !ok {
		return store.ErrNotFound
	}
	if !p.HasOpenLoan || p.CurrentItem != itemBarcode {
		return store.ErrConflict
	}
	p.HasOpenLoan = false
	p.CurrentLoan = nil
	p.CurrentItem = ""
	return nil
}

func (t *tx) RenewPatronLoan(_ context.Context, patronBarcode string, dueDate, renewedAt time.Time) error {
	if err := t.writable(); err != nil {
		return err
	}
	p, ok := t.state.patrons[patronBarcode]
	if !ok {
		return store.ErrNotFound
	}
	if !p.HasOpenLoan || p.CurrentLoan == nil {
		return store.ErrConflict
	}
	p.CurrentLoan.DueDate = dueDate
	p.CurrentLoan.RenewedAt = &renewedAt
	p.UpdatedAt = renewedAt
	return nil
}

func (t *tx) AddPatronPoints(_ context.Context, patronBarcode string, points int) error {
	if err := t.writable(); err != nil {
		return err
	}
	p, ok := t.state.patrons[patronBarcode]
	if !ok {
		return store.ErrNotFound
	}
	p.Points += points
	return nil
}

func (t *tx) AddBorrowedItem(_ context.Context, patronBarcode, itemBarcode string) error {
	if err := t.writable(); err != nil {
		return err
	}
	p, ok := t.state.patrons[patronBarcode]
	if !ok {
		return store.ErrNotFound
	}
	if !p.HasBorrowed(itemBarcode) {
		p.ItemsBorrowed = append(p.ItemsBorrowed, itemBarcode)
	}
	return nil
}

// Engagement ledger

func (t *tx) UpsertActivity(_ context.Context, patronBarcode, patronName string, period domain.Period, delta domain.ActivityDelta, at time.Time) (*domain.MonthlyActivity, error) {
	if err := t.writable(); err != nil {
		return nil, err
	}
	key := activityKey{patron: patronBarcode, year: period.Year, month: period.Month}
	row, ok := t.state.activity[key]
	if !ok {
		row = &domain.MonthlyActivity{
			PatronBarcode: patronBarcode,
			Year:          period.Year,
			Month:         period.Month,
		}
		t.state.activity[key] = row
	}
	if patronName != "" {
		row.PatronName = patronName
	}
	row.Apply(delta)
	row.UpdatedAt = at
	out := *row
	return &out, nil
}

func (t *tx) GetActivity(_ context.Context, patronBarcode string, period domain.Period) (*domain.MonthlyActivity, error) {
	row, ok := t.state.activity[activityKey{patron: patronBarcode, year: period.Year, month: period.Month}]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := *row
	return &out, nil
}

func (t *tx) ListActivity(_ context.Context, period domain.Period) ([]*domain.MonthlyActivity, error) {
	var out []*domain.MonthlyActivity
	for k, row := range t.state.activity {
		if k.year != period.Year || k.month != period.Month {
			continue
		}
		r := *row
		out = append(out, &r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PatronBarcode < out[j].PatronBarcode })
	return out, nil
}

// LockActivity needs no extra locking: the store mutex already serializes write transactions.
func (t *tx) LockActivity(ctx context.Context, period domain.Period) ([]*domain.MonthlyActivity, error) {
	if err := t.writable(); err != nil {
		return nil, err
	}
	return t.ListActivity(ctx, period)
}

func (t *tx) SaveRanks(_ context.Context, period domain.Period, updates []store.RankUpdate) error {
	if err := t.writable(); err != nil {
		return err
	}
	for _, u := range updates {
		row, ok := t.state.activity[activityKey{patron: u.PatronBarcode, year: period.Year, month: period.Month}]
		if !ok {
			return store.ErrNotFound
		}
		row.ActivityScore = u.Score
		row.Rank = u.Rank
	}
	return nil
}

// Event log

func (t *tx) AppendEvent(_ context.Context, ev *domain.ActivityEvent) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, seen := t.state.eventIDs[ev.ID]; seen {
		return store.ErrDuplicate
	}
	t.state.sequence++
	ev.Sequence = t.state.sequence
	t.state.eventIDs[ev.ID] = len(t.state.events)
	t.state.events = append(t.state.events, *ev)
	return nil
}

func (t *tx) GetEvent(_ context.Context, id uuid.UUID) (*domain.ActivityEvent, error) {
	i, ok := t.state.eventIDs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	ev := t.state.events[i]
	return &ev, nil
}

func (t *tx) StreamEvents(_ context.Context, after int64, limit int) ([]domain.ActivityEvent, error) {
	var out []domain.ActivityEvent
	for _, ev := range t.state.events {
		if ev.Sequence <= after {
			continue
		}
		out = append(out, ev)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Summaries

func (t *tx) InsertSummary(_ context.Context, s *domain.BookSummary) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.state.summaries[s.ID]; ok {
		return store.ErrDuplicate
	}
	want := summaryKey{patron: s.PatronBarcode, book: s.BookBarcode}
	for _, existing := range t.state.summaries {
		if (summaryKey{patron: existing.PatronBarcode, book: existing.BookBarcode}) == want {
			return store.ErrDuplicate
		}
	}
	t.state.summaries[s.ID] = s.Clone()
	return nil
}

func (t *tx) GetSummary(_ context.Context, id uuid.UUID) (*domain.BookSummary, error) {
	s, ok := t.state.summaries[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return s.Clone(), nil
}

func (t *tx) FindSummary(_ context.Context, patronBarcode, bookBarcode string) (*domain.BookSummary, error) {
	for _, s := range t.state.summaries {
		if s.PatronBarcode == patronBarcode && s.BookBarcode == bookBarcode {
			return s.Clone(), nil
		}
	}
	return nil, store.ErrNotFound
}

func (t *tx) ListSummaries(_ context.Context, filter store.SummaryFilter) ([]*domain.BookSummary, error) {
	var out []*domain.BookSummary
	for _, s := range t.state.summaries {
		if filter.Status != "" && s.Status != filter.Status {
			continue
		}
		if filter.PatronBarcode != "" && s.PatronBarcode != filter.PatronBarcode {
			continue
		}
		out = append(out, s.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].SubmittedAt.Before(out[j].SubmittedAt)
		}
		return strings.Compare(out[i].ID.String(), out[j].ID.String()) < 0
	})
	return out, nil
}

func (t *tx) CountSummaries(_ context.Context, patronBarcode string, from, to time.Time) (int, error) {
	count := 0
	for _, s := range t.state.summaries {
		if s.PatronBarcode != patronBarcode {
			continue
		}
		if s.SubmittedAt.Before(from) || !s.SubmittedAt.Before(to) {
			continue
		}
		count++
	}
	return count, nil
}

func (t *tx) ReviewSummary(_ context.Context, s *domain.BookSummary) error {
	if err := t.writable(); err != nil {
		return err
	}
	existing, ok := t.state.summaries[s.ID]
	if !ok {
		return store.ErrNotFound
	}
	if existing.Status != domain.SummaryPending {
		return store.ErrConflict
	}
	t.state.summaries[s.ID] = s.Clone()
	return nil
}

// Attendance

func (t *tx) InsertAttendance(_ context.Context, a *domain.Attendance) error {
	if err := t.writable(); err != nil {
		return err
	}
	for _, existing := range t.state.attendance {
		if existing.PatronBarcode == a.PatronBarcode &&
			existing.ClassName == a.ClassName &&
			existing.ClassDate.Equal(a.ClassDate) {
			return store.ErrDuplicate
		}
	}
	rec := *a
	t.state.attendance = append(t.state.attendance, &rec)
	return nil
}

func (t *tx) ListAttendance(_ context.Context, patronBarcode string) ([]*domain.Attendance, error) {
	var out []*domain.Attendance
	for _, a := range t.state.attendance {
		if patronBarcode != "" && a.PatronBarcode != patronBarcode {
			continue
		}
		rec := *a
		out = append(out, &rec)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ClassDate.Before(out[j].ClassDate) })
	return out, nil
}

var _ store.Store = (*Store)(nil)
