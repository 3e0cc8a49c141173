// internal/circulation/implementation.go
package circulation

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"libraengage/internal/config"
	"libraengage/internal/domain"
	"libraengage/internal/engagement"
	"libraengage/internal/membership"
	"libraengage/internal/store"
)

const day = 24 * time.Hour

// service implements the Service interface.
type service struct {
	store       store.Store
	ledger      *engagement.Ledger
	eligibility membership.EligibilityChecker
	policy      config.Policy
	tracer      trace.Tracer
	now         func() time.Time
}

// Option configures the service.
type Option func(*service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

// NewService creates a new circulation service instance.
func NewService(st store.Store, ledger *engagement.Ledger, eligibility membership.EligibilityChecker, policy config.Policy, opts ...Option) Service {
	s := &service{
		store:       st,
		ledger:      ledger,
		eligibility: eligibility,
		policy:      policy,
		tracer:      otel.Tracer("libraengage/circulation"),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newRecordID(t time.Time) string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

func (s *service) startSpan(ctx context.Context, name, item, patron string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("item", item),
		attribute.String("patron", patron),
	))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Checkout lends an item to a patron.
func (s *service) Checkout(ctx context.Context, req CheckoutRequest) (result *CheckoutResult, err error) {
	ctx, span := s.startSpan(ctx, "circulation.Checkout", req.ItemBarcode, req.PatronBarcode)
	defer func() { endSpan(span, err) }()

	days := req.DueInDays
	if days == 0 {
		days = s.policy.DefaultLoanDays
	}
	if days < 1 || days > s.policy.MaxLoanDays {
		return nil, domain.PreconditionFailed("loan period must be between 1 and %d days, got %d", s.policy.MaxLoanDays, days)
	}

	// Eligibility may call out to the identity service, so it is checked before the transaction.
	if err := s.checkEligibility(ctx, req.ItemBarcode, req.PatronBarcode); err != nil {
		return nil, err
	}

	now := s.now()
	rec := domain.CheckoutRecord{
		ID:              newRecordID(now),
		BorrowerBarcode: req.PatronBarcode,
		CheckedOutAt:    now,
		DueDate:         now.Add(time.Duration(days) * day),
	}

	err = s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := getItem(ctx, tx, req.ItemBarcode); err != nil {
			return err
		}
		patron, err := getPatron(ctx, tx, req.PatronBarcode)
		if err != nil {
			return err
		}
		if patron.HasOpenLoan {
			return domain.Conflict("patron %s already has an open loan", patron.Barcode).
				WithDetail("current_item", patron.CurrentItem)
		}
		rec.BorrowerName = patron.Name
		rec.ContactInfo = patron.ContactInfo

		// Item first, then patron.
		err = tx.OpenCheckout(ctx, req.ItemBarcode, rec)
		if errors.Is(err, store.ErrConflict) {
			return domain.Conflict("item %s is already checked out", req.ItemBarcode)
		}
		if err != nil {
			return fmt.Errorf("failed to open checkout: %w", err)
		}

		err = tx.SetPatronLoan(ctx, patron.Barcode, req.ItemBarcode, rec)
		if errors.Is(err, store.ErrConflict) {
			return domain.Conflict("patron %s already has an open loan", patron.Barcode)
		}
		if err != nil {
			return fmt.Errorf("failed to set patron loan: %w", err)
		}
		if err := tx.AddBorrowedItem(ctx, patron.Barcode, req.ItemBarcode); err != nil {
			return fmt.Errorf("failed to record borrowed item: %w", err)
		}
		if s.policy.CheckoutPoints > 0 {
			if err := tx.AddPatronPoints(ctx, patron.Barcode, s.policy.CheckoutPoints); err != nil {
				return fmt.Errorf("failed to add points: %w", err)
			}
		}

		if _, err := s.ledger.Apply(ctx, tx, engagement.Entry{
			EventID:       req.EventID,
			Type:          domain.EventItemCheckedOut,
			PatronBarcode: patron.Barcode,
			PatronName:    patron.Name,
			Period:        domain.PeriodOf(now),
			Delta:         domain.ActivityDelta{BooksCheckedOut: 1, TotalPoints: s.policy.CheckoutPoints},
			At:            now,
		}); err != nil {
			return err
		}

		item, err := getItem(ctx, tx, req.ItemBarcode)
		if err != nil {
			return err
		}
		result = &CheckoutResult{Item: item, DueDate: rec.DueDate}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("item", req.ItemBarcode).
		Str("patron", req.PatronBarcode).
		Str("record_id", rec.ID).
		Time("due_date", rec.DueDate).
		Msg("item checked out")
	return result, nil
}

func (s *service) checkEligibility(ctx context.Context, itemBarcode, patronBarcode string) error {
	var patron *domain.Patron
	err := s.store.ReadOnly(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := getItem(ctx, tx, itemBarcode); err != nil {
			return err
		}
		var err error
		patron, err = getPatron(ctx, tx, patronBarcode)
		return err
	})
	if err != nil {
		return err
	}
	return s.eligibility.CheckEligibility(ctx, patron)
}

// CheckIn closes the open record of an item and credits the borrower.
func (s *service) CheckIn(ctx context.Context, req CheckInRequest) (result *CheckInResult, err error) {
	ctx, span := s.startSpan(ctx, "circulation.CheckIn", req.ItemBarcode, req.PatronBarcode)
	defer func() { endSpan(span, err) }()

	if req.BonusPoints < 0 || req.BonusPoints > s.policy.MaxReturnBonus {
		return nil, domain.PreconditionFailed("bonus points must be between 0 and %d, got %d", s.policy.MaxReturnBonus, req.BonusPoints)
	}

	now := s.now()
	err = s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		item, err := getItem(ctx, tx, req.ItemBarcode)
		if err != nil {
			return err
		}
		rec, ok := item.OpenRecord()
		if !ok {
			return domain.Conflict("item %s is not checked out", item.Barcode)
		}
		if rec.BorrowerBarcode != req.PatronBarcode {
			return domain.Conflict("item %s is checked out by another patron", item.Barcode)
		}
		patron, err := getPatron(ctx, tx, req.PatronBarcode)
		if err != nil {
			return err
		}

		err = tx.CloseCheckout(ctx, item.Barcode, rec.ID, now)
		if errors.Is(err, store.ErrConflict) {
			return domain.Conflict("item %s is not checked out", item.Barcode)
		}
		if err != nil {
			return fmt.Errorf("failed to close checkout: %w", err)
		}

		err = tx.ClearPatronLoan(ctx, patron.Barcode, item.Barcode)
		if errors.Is(err, store.ErrConflict) {
			return domain.Conflict("patron %s has no open loan for item %s", patron.Barcode, item.Barcode)
		}
		if err != nil {
			return fmt.Errorf("failed to clear patron loan: %w", err)
		}
		if req.BonusPoints > 0 {
			if err := tx.AddPatronPoints(ctx, patron.Barcode, req.BonusPoints); err != nil {
				return fmt.Errorf("failed to add points: %w", err)
			}
		}

		if _, err := s.ledger.Apply(ctx, tx, engagement.Entry{
			EventID:       req.EventID,
			Type:          domain.EventItemReturned,
			PatronBarcode: patron.Barcode,
			PatronName:    patron.Name,
			Period:        domain.PeriodOf(now),
			Delta:         domain.ActivityDelta{BooksReturned: 1, TotalPoints: req.BonusPoints},
			At:            now,
		}); err != nil {
			return err
		}

		updated, err := getItem(ctx, tx, item.Barcode)
		if err != nil {
			return err
		}
		result = &CheckInResult{AwardedPoints: req.BonusPoints, Item: updated}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("item", req.ItemBarcode).
		Str("patron", req.PatronBarcode).
		Int("bonus_points", req.BonusPoints).
		Msg("item checked in")
	return result, nil
}

// Renew moves the due date on the item's open record and the patron's copy of it.
func (s *service) Renew(ctx context.Context, req RenewRequest) (result *RenewResult, err error) {
	ctx, span := s.startSpan(ctx, "circulation.Renew", req.ItemBarcode, req.PatronBarcode)
	defer func() { endSpan(span, err) }()

	now := s.now()
	if !req.NewDueDate.After(now) {
		return nil, domain.PreconditionFailed("new due date must be in the future")
	}
	if req.NewDueDate.After(now.Add(time.Duration(s.policy.MaxLoanDays) * day)) {
		return nil, domain.PreconditionFailed("new due date must be within %d days", s.policy.MaxLoanDays)
	}

	err = s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		item, err := getItem(ctx, tx, req.ItemBarcode)
		if err != nil {
			return err
		}
		patron, err := getPatron(ctx, tx, req.PatronBarcode)
		if err != nil {
			return err
		}
		rec, ok := item.OpenRecord()
		if !ok {
			return domain.Conflict("item %s has no open checkout", item.Barcode)
		}
		if rec.BorrowerBarcode != patron.Barcode {
			return domain.Conflict("item %s is checked out by another patron", item.Barcode)
		}

		err = tx.RenewCheckout(ctx, item.Barcode, rec.ID, req.NewDueDate, now)
		if errors.Is(err, store.ErrConflict) {
			return domain.Conflict("item %s has no open checkout", item.Barcode)
		}
		if err != nil {
			return fmt.Errorf("failed to renew checkout: %w", err)
		}
		err = tx.RenewPatronLoan(ctx, patron.Barcode, req.NewDueDate, now)
		if errors.Is(err, store.ErrConflict) {
			return domain.Conflict("patron %s has no open loan", patron.Barcode)
		}
		if err != nil {
			return fmt.Errorf("failed to renew patron loan: %w", err)
		}

		// An empty increment still marks the month active.
		_, err = s.ledger.Apply(ctx, tx, engagement.Entry{
			EventID:       req.EventID,
			Type:          domain.EventLoanRenewed,
			PatronBarcode: patron.Barcode,
			PatronName:    patron.Name,
			Period:        domain.PeriodOf(now),
			At:            now,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("item", req.ItemBarcode).
		Str("patron", req.PatronBarcode).
		Time("due_date", req.NewDueDate).
		Msg("loan renewed")
	return &RenewResult{NewDueDate: req.NewDueDate}, nil
}

// ListOverdue returns items overdue by more than minDays, oldest due date first.
// A minDays of zero lists everything past its due date.
func (s *service) ListOverdue(ctx context.Context, minDays int) ([]OverdueItem, error) {
	if minDays < 0 {
		return nil, domain.InvalidArgument("min_days must not be negative")
	}
	now := s.now()
	cutoff := now.Add(-time.Duration(minDays) * day)

	var items []*domain.Item
	err := s.store.ReadOnly(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		items, err = tx.ListItems(ctx, store.ItemFilter{CheckedOutOnly: true, DueBefore: &cutoff})
		if err != nil {
			return fmt.Errorf("failed to list items: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]OverdueItem, 0, len(items))
	for _, item := range items {
		rec, ok := item.OpenRecord()
		if !ok {
			continue
		}
		if minDays == 0 && !item.IsOverdue(now) {
			continue
		}
		if minDays > 0 && !item.IsOverdueBeyond(now, minDays) {
			continue
		}
		out = append(out, NewOverdueItem(item, rec, now))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DueDate.Before(out[j].DueDate) })
	return out, nil
}

// GetItemHistory returns the item with its full checkout log. Overdue is derived at read time.
func (s *service) GetItemHistory(ctx context.Context, itemBarcode string) (*ItemHistory, error) {
	var item *domain.Item
	err := s.store.ReadOnly(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		item, err = getItem(ctx, tx, itemBarcode)
		return err
	})
	if err != nil {
		return nil, err
	}

	history := &ItemHistory{
		Item:    item,
		Overdue: item.IsOverdue(s.now()),
		Loans:   len(item.CheckoutHistory),
	}
	if rec, ok := item.OpenRecord(); ok {
		open := rec.Clone()
		history.OpenRecord = &open
	}
	return history, nil
}

func getItem(ctx context.Context, tx store.Tx, barcode string) (*domain.Item, error) {
	item, err := tx.GetItem(ctx, barcode)
	if errors.Is(err, store.ErrNotFound) {
		return nil, domain.NotFound("item %s not found", barcode)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return item, nil
}

func getPatron(ctx context.Context, tx store.Tx, barcode string) (*domain.Patron, error) {
	patron, err := tx.GetPatron(ctx, barcode)
	if errors.Is(err, store.ErrNotFound) {
		return nil, domain.NotFound("patron %s not found", barcode)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get patron: %w", err)
	}
	return patron, nil
}
