package dashboard

import (
	"context"
	"fmt"
	"sort"
	"time"

	"libraengage/internal/circulation"
	"libraengage/internal/domain"
	"libraengage/internal/store"
)

type service struct {
	store store.Store
	now   func() time.Time
}

// Option configures the service.
type Option func(*service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

func NewService(st store.Store, opts ...Option) Service {
	s := &service{store: st, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetDashboard reads everything in one read-only transaction so the counts agree with each other.
func (s *service) GetDashboard(ctx context.Context, overdueDays int) (*Dashboard, error) {
	if overdueDays < 0 {
		return nil, domain.InvalidArgument("overdue_days must not be negative")
	}
	if overdueDays == 0 {
		overdueDays = DefaultOverdueDays
	}
	now := s.now()
	period := domain.PeriodOf(now)
	d := &Dashboard{
		OverdueBeyondDays: overdueDays,
		Month:             MonthSummary{Period: period},
		Overdue:           []circulation.OverdueItem{},
		GeneratedAt:       now,
	}

	err := s.store.ReadOnly(ctx, func(ctx context.Context, tx store.Tx) error {
		items, err := tx.ListItems(ctx, store.ItemFilter{})
		if err != nil {
			return fmt.Errorf("failed to list items: %w", err)
		}
		for _, item := range items {
			d.Items.Total++
			if item.Available {
				d.Items.Available++
				continue
			}
			d.Items.CheckedOut++
			rec, ok := item.OpenRecord()
			if !ok || !item.IsOverdue(now) {
				continue
			}
			d.Items.Overdue++
			if item.IsOverdueBeyond(now, overdueDays) {
				d.Items.OverdueBeyond++
			}
			d.Overdue = append(d.Overdue, circulation.NewOverdueItem(item, rec, now))
		}

		patrons, err := tx.ListPatrons(ctx, store.PatronFilter{})
		if err != nil {
			return fmt.Errorf("failed to list patrons: %w", err)
		}
		for _, p := range patrons {
			d.Patrons.Total++
			if p.HasOpenLoan {
				d.Patrons.WithOpenLoan++
			}
			if p.Suspended {
				d.Patrons.Suspended++
			}
		}

		pending, err := tx.ListSummaries(ctx, store.SummaryFilter{Status: domain.SummaryPending})
		if err != nil {
			return fmt.Errorf("failed to list summaries: %w", err)
		}
		d.PendingSummaries = len(pending)

		rows, err := tx.ListActivity(ctx, period)
		if err != nil {
			return fmt.Errorf("failed to list activity: %w", err)
		}
		d.Month.ActivePatrons = len(rows)
		for _, row := range rows {
			d.Month.TotalPoints += row.TotalPoints
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(d.Overdue, func(i, j int) bool { return d.Overdue[i].DueDate.Before(d.Overdue[j].DueDate) })
	return d, nil
}
