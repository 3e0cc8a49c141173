// internal/engagement/implementation.go
package engagement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"libraengage/internal/config"
	"libraengage/internal/domain"
	"libraengage/internal/store"
)

// service implements the Service interface.
type service struct {
	store  store.Store
	ledger *Ledger
	policy config.Policy
	now    func() time.Time
}

// Option configures the service.
type Option func(*service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

// NewService creates a new engagement service instance.
func NewService(st store.Store, ledger *Ledger, policy config.Policy, opts ...Option) Service {
	s := &service{store: st, ledger: ledger, policy: policy, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RecordActivity adds a partial increment to a patron's row for the given month.
func (s *service) RecordActivity(ctx context.Context, req RecordRequest) (*RecordResult, error) {
	period := domain.Period{Year: req.Year, Month: req.Month}
	if err := period.Validate(); err != nil {
		return nil, err
	}
	if err := req.Delta.Validate(); err != nil {
		return nil, err
	}

	eventID := req.EventID
	if eventID == uuid.Nil {
		eventID = uuid.New()
	}

	result := &RecordResult{EventID: eventID}
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		patron, err := tx.GetPatron(ctx, req.PatronBarcode)
		if errors.Is(err, store.ErrNotFound) {
			return domain.NotFound("patron %s not found", req.PatronBarcode)
		}
		if err != nil {
			return fmt.Errorf("failed to get patron: %w", err)
		}

		entry := Entry{
			EventID:       eventID,
			Type:          domain.EventActivityAdjusted,
			PatronBarcode: patron.Barcode,
			PatronName:    patron.Name,
			Period:        period,
			Delta:         req.Delta,
			At:            s.now(),
		}
		row, applied, err := s.ledger.Record(ctx, tx, entry)
		if err != nil {
			return err
		}
		result.Applied = applied
		result.Activity = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GetMonthlyActivity returns one ledger row, with its score computed from the current counters.
func (s *service) GetMonthlyActivity(ctx context.Context, patronBarcode string, year, month int) (*domain.MonthlyActivity, error) {
	period := domain.Period{Year: year, Month: month}
	if err := period.Validate(); err != nil {
		return nil, err
	}

	var row *domain.MonthlyActivity
	err := s.store.ReadOnly(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		row, err = tx.GetActivity(ctx, patronBarcode, period)
		if errors.Is(err, store.ErrNotFound) {
			return domain.NotFound("no activity for patron %s in %s", patronBarcode, period)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	row.ActivityScore = Score(row.Counters(), s.policy.Weights)
	return row, nil
}
