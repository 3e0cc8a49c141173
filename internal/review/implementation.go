package review

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"libraengage/internal/config"
	"libraengage/internal/domain"
	"libraengage/internal/engagement"
	"libraengage/internal/store"
)

type service struct {
	store  store.Store
	ledger *engagement.Ledger
	policy config.Policy
	tracer trace.Tracer
	now    func() time.Time
}

// Option configures the service.
type Option func(*service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

func NewService(st store.Store, ledger *engagement.Ledger, policy config.Policy, opts ...Option) Service {
	s := &service{
		store:  st,
		ledger: ledger,
		policy: policy,
		tracer: otel.Tracer("libraengage/review"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *service) checkContent(content string, rating int) error {
	if !s.policy.Rating.Contains(rating) {
		return domain.PreconditionFailed("rating must be between %d and %d, got %d", s.policy.Rating.Min, s.policy.Rating.Max, rating)
	}
	if n := utf8.RuneCountInString(strings.TrimSpace(content)); n < s.policy.MinSummaryLength {
		return domain.PreconditionFailed("summary must be at least %d characters, got %d", s.policy.MinSummaryLength, n).
			WithDetail("min_length", s.policy.MinSummaryLength)
	}
	return nil
}

// SubmitSummary creates a pending summary and pays the flat submission award.
func (s *service) SubmitSummary(ctx context.Context, actor domain.Actor, req SubmitRequest) (*domain.BookSummary, error) {
	ctx, span := s.tracer.Start(ctx, "review.SubmitSummary", trace.WithAttributes(
		attribute.String("patron", req.PatronBarcode),
		attribute.String("book", req.BookBarcode),
	))
	defer span.End()

	if actor.Role == domain.RolePatron && actor.ID != req.PatronBarcode {
		return nil, domain.Forbidden("patrons may only submit their own summaries")
	}
	if err := s.checkContent(req.Content, req.Rating); err != nil {
		return nil, err
	}

	now := s.now()
	summary := &domain.BookSummary{
		ID:            uuid.New(),
		PatronBarcode: req.PatronBarcode,
		BookBarcode:   req.BookBarcode,
		Content:       req.Content,
		Rating:        req.Rating,
		Status:        domain.SummaryPending,
		SubmittedAt:   now,
	}

	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		patron, err := getPatron(ctx, tx, req.PatronBarcode)
		if err != nil {
			return err
		}
		if !patron.HasBorrowed(req.BookBarcode) {
			return domain.PreconditionFailed("patron %s has never borrowed item %s", patron.Barcode, req.BookBarcode)
		}
		item, err := tx.GetItem(ctx, req.BookBarcode)
		if errors.Is(err, store.ErrNotFound) {
			return domain.NotFound("item %s not found", req.BookBarcode)
		}
		if err != nil {
			return fmt.Errorf("failed to get item: %w", err)
		}
		if !item.Available {
			return domain.PreconditionFailed("item %s must be returned before it can be summarized", item.Barcode)
		}

		return s.insert(ctx, tx, patron, summary, engagement.Entry{
			EventID: req.EventID,
			Type:    domain.EventSummarySubmitted,
			Delta: domain.ActivityDelta{
				SummariesSubmitted: 1,
				TotalPoints:        s.policy.SubmissionPoints,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("summary_id", summary.ID.String()).Str("patron", summary.PatronBarcode).Msg("summary submitted")
	return summary, nil
}

// SubmitStaffSummary creates an approved summary and pays the submission award plus the staff bonus.
// Borrowing history and return state are not checked.
func (s *service) SubmitStaffSummary(ctx context.Context, actor domain.Actor, req StaffSubmitRequest) (*domain.BookSummary, error) {
	ctx, span := s.tracer.Start(ctx, "review.SubmitStaffSummary", trace.WithAttributes(
		attribute.String("patron", req.PatronBarcode),
		attribute.String("book", req.BookBarcode),
	))
	defer span.End()

	if !actor.IsStaff() {
		return nil, domain.Forbidden("only staff may create summaries on a patron's behalf")
	}
	if !s.policy.StaffBonus.Contains(req.BonusPoints) {
		return nil, domain.PreconditionFailed("staff bonus must be between %d and %d, got %d", s.policy.StaffBonus.Min, s.policy.StaffBonus.Max, req.BonusPoints)
	}
	if err := s.checkContent(req.Content, req.Rating); err != nil {
		return nil, err
	}

	now := s.now()
	reviewed := now
	summary := &domain.BookSummary{
		ID:            uuid.New(),
		PatronBarcode: req.PatronBarcode,
		BookBarcode:   req.BookBarcode,
		Content:       req.Content,
		Rating:        req.Rating,
		Status:        domain.SummaryApproved,
		Points:        req.BonusPoints,
		ReviewedBy:    actor.ID,
		ReviewDate:    &reviewed,
		StaffCreated:  true,
		SubmittedAt:   now,
	}

	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		patron, err := getPatron(ctx, tx, req.PatronBarcode)
		if err != nil {
			return err
		}
		return s.insert(ctx, tx, patron, summary, engagement.Entry{
			EventID: req.EventID,
			Type:    domain.EventSummaryApproved,
			Delta: domain.ActivityDelta{
				SummariesSubmitted: 1,
				SummariesApproved:  1,
				TotalPoints:        s.policy.SubmissionPoints + req.BonusPoints,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("summary_id", summary.ID.String()).
		Str("patron", summary.PatronBarcode).
		Str("staff", actor.ID).
		Int("bonus_points", req.BonusPoints).
		Msg("staff summary created")
	return summary, nil
}

// insert enforces the monthly cap and the one-summary-per-book rule, stores the summary
// and credits the patron with entry's points.
func (s *service) insert(ctx context.Context, tx store.Tx, patron *domain.Patron, summary *domain.BookSummary, entry engagement.Entry) error {
	from, to := domain.PeriodOf(summary.SubmittedAt).Bounds(summary.SubmittedAt.Location())
	count, err := tx.CountSummaries(ctx, patron.Barcode, from, to)
	if err != nil {
		return fmt.Errorf("failed to count summaries: %w", err)
	}
	if count >= s.policy.SubmissionCap {
		return domain.PreconditionFailed("patron %s already submitted %d summaries this month", patron.Barcode, count).
			WithDetail("monthly_cap", s.policy.SubmissionCap)
	}

	existing, err := tx.FindSummary(ctx, patron.Barcode, summary.BookBarcode)
	switch {
	case err == nil:
		return duplicate(existing)
	case !errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("failed to find summary: %w", err)
	}

	err = tx.InsertSummary(ctx, summary)
	if errors.Is(err, store.ErrDuplicate) {
		return domain.Conflict("patron %s already submitted a summary for item %s", patron.Barcode, summary.BookBarcode)
	}
	if err != nil {
		return fmt.Errorf("failed to insert summary: %w", err)
	}

	if entry.Delta.TotalPoints > 0 {
		if err := tx.AddPatronPoints(ctx, patron.Barcode, entry.Delta.TotalPoints); err != nil {
			return fmt.Errorf("failed to add points: %w", err)
		}
	}
	entry.PatronBarcode = patron.Barcode
	entry.PatronName = patron.Name
	entry.Period = domain.PeriodOf(summary.SubmittedAt)
	entry.At = summary.SubmittedAt
	_, err = s.ledger.Apply(ctx, tx, entry)
	return err
}

func duplicate(existing *domain.BookSummary) error {
	return domain.Conflict("patron %s already submitted a summary for item %s", existing.PatronBarcode, existing.BookBarcode).
		WithDetail("summary_id", existing.ID.String()).
		WithDetail("existing_status", existing.Status).
		WithDetail("existing_points", existing.Points)
}

// ReviewSummary approves or rejects a pending summary. Approval pays the bonus.
func (s *service) ReviewSummary(ctx context.Context, actor domain.Actor, id uuid.UUID, req ReviewRequest) (*domain.BookSummary, error) {
	ctx, span := s.tracer.Start(ctx, "review.ReviewSummary", trace.WithAttributes(
		attribute.String("summary_id", id.String()),
		attribute.Bool("approve", req.Approve),
	))
	defer span.End()

	if !actor.IsStaff() {
		return nil, domain.Forbidden("only staff may review summaries")
	}
	if req.Approve && !s.policy.ApprovalBonus.Contains(req.Points) {
		return nil, domain.PreconditionFailed("approval points must be between %d and %d, got %d", s.policy.ApprovalBonus.Min, s.policy.ApprovalBonus.Max, req.Points)
	}

	now := s.now()
	var summary *domain.BookSummary
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		summary, err = getSummary(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := summary.Review(req.Approve, req.Points, actor.ID, now); err != nil {
			return err
		}
		err = tx.ReviewSummary(ctx, summary)
		if errors.Is(err, store.ErrConflict) {
			return domain.Conflict("summary %s was already reviewed", id)
		}
		if err != nil {
			return fmt.Errorf("failed to store review: %w", err)
		}
		if summary.Status != domain.SummaryApproved {
			return nil
		}

		patron, err := getPatron(ctx, tx, summary.PatronBarcode)
		if err != nil {
			return err
		}
		if err := tx.AddPatronPoints(ctx, patron.Barcode, summary.Points); err != nil {
			return fmt.Errorf("failed to add points: %w", err)
		}
		_, err = s.ledger.Apply(ctx, tx, engagement.Entry{
			EventID:       req.EventID,
			Type:          domain.EventSummaryApproved,
			PatronBarcode: patron.Barcode,
			PatronName:    patron.Name,
			Period:        domain.PeriodOf(now),
			Delta:         domain.ActivityDelta{SummariesApproved: 1, TotalPoints: summary.Points},
			At:            now,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("summary_id", id.String()).
		Str("status", string(summary.Status)).
		Int("points", summary.Points).
		Str("reviewer", actor.ID).
		Msg("summary reviewed")
	return summary, nil
}

func (s *service) GetSummary(ctx context.Context, id uuid.UUID) (*domain.BookSummary, error) {
	var summary *domain.BookSummary
	err := s.store.ReadOnly(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		summary, err = getSummary(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}

func (s *service) ListSummaries(ctx context.Context, filter ListFilter) ([]*domain.BookSummary, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, domain.InvalidArgument("unknown summary status %q", filter.Status)
	}
	var out []*domain.BookSummary
	err := s.store.ReadOnly(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = tx.ListSummaries(ctx, store.SummaryFilter{Status: filter.Status, PatronBarcode: filter.PatronBarcode})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list summaries: %w", err)
	}
	return out, nil
}

func getSummary(ctx context.Context, tx store.Tx, id uuid.UUID) (*domain.BookSummary, error) {
	summary, err := tx.GetSummary(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, domain.NotFound("summary %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get summary: %w", err)
	}
	return summary, nil
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
