package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"libraengage/internal/config"
	"libraengage/internal/domain"
	"libraengage/internal/engagement"
	"libraengage/internal/store"
)

type service struct {
	store  store.Store
	ledger *engagement.Ledger
	policy config.Policy
	now    func() time.Time
}

// Option configures the service.
type Option func(*service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

func NewService(st store.Store, ledger *engagement.Ledger, policy config.Policy, opts ...Option) Service {
	s := &service{store: st, ledger: ledger, policy: policy, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MarkAttendance stores the attendance fact, credits the patron and counts the class
// toward the month in which it was recorded.
func (s *service) MarkAttendance(ctx context.Context, req MarkRequest) (*domain.Attendance, error) {
	points := s.policy.AttendancePoints
	if req.Points != nil {
		points = *req.Points
	}
	if points < 0 || points > s.policy.MaxAttendancePoints {
		return nil, domain.PreconditionFailed("attendance points must be between 0 and %d, got %d", s.policy.MaxAttendancePoints, points)
	}
	if req.ClassName == "" {
		return nil, domain.InvalidArgument("class name is required")
	}

	now := s.now()
	rec := &domain.Attendance{
		ID:            uuid.New(),
		PatronBarcode: req.PatronBarcode,
		ClassName:     req.ClassName,
		ClassDate:     domain.ClassDay(req.ClassDate),
		Points:        points,
		RecordedAt:    now,
	}

	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		patron, err := tx.GetPatron(ctx, req.PatronBarcode)
		if errors.Is(err, store.ErrNotFound) {
			return domain.NotFound("patron %s not found", req.PatronBarcode)
		}
		if err != nil {
			return fmt.Errorf("failed to get patron: %w", err)
		}

		err = tx.InsertAttendance(ctx, rec)
		if errors.Is(err, store.ErrDuplicate) {
			return domain.Conflict("attendance for %s at %q on %s is already recorded",
				req.PatronBarcode, req.ClassName, rec.ClassDate.Format(time.DateOnly))
		}
		if err != nil {
			return fmt.Errorf("failed to insert attendance: %w", err)
		}
		if points > 0 {
			if err := tx.AddPatronPoints(ctx, patron.Barcode, points); err != nil {
				return fmt.Errorf("failed to add points: %w", err)
			}
		}

		_, err = s.ledger.Apply(ctx, tx, engagement.Entry{
			EventID:       req.EventID,
			Type:          domain.EventClassAttended,
			PatronBarcode: patron.Barcode,
			PatronName:    patron.Name,
			Period:        domain.PeriodOf(now),
			Delta:         domain.ActivityDelta{ClassesAttended: 1, TotalPoints: points},
			At:            now,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("patron", rec.PatronBarcode).
		Str("class", rec.ClassName).
		Int("points", points).
		Msg("attendance recorded")
	return rec, nil
}

func (s *service) ListAttendance(ctx context.Context, patronBarcode string) ([]*domain.Attendance, error) {
	var out []*domain.Attendance
	err := s.store.ReadOnly(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = tx.ListAttendance(ctx, patronBarcode)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list attendance: %w", err)
	}
	return out, nil
}
