package ranking

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"libraengage/internal/config"
	"libraengage/internal/domain"
	"libraengage/internal/store"
)

type service struct {
	store      store.Store
	policy     config.Policy
	every      rate.Limit
	mu         sync.Mutex
	limiters   map[domain.Period]*rate.Limiter
	tracer     trace.Tracer
	recomputes metric.Int64Counter
	now        func() time.Time
}

// Option configures the service.
type Option func(*service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

// WithPersistEvery lets leaderboard reads persist a month's ranks at most once per interval.
// Each month is throttled on its own. Zero persists on every read.
func WithPersistEvery(interval time.Duration) Option {
	return func(s *service) {
		if interval <= 0 {
			s.every = rate.Inf
			return
		}
		s.every = rate.Every(interval)
	}
}

func NewService(st store.Store, policy config.Policy, opts ...Option) Service {
	meter := otel.Meter("libraengage/ranking")
	recomputes, _ := meter.Int64Counter("ranking.recomputes",
		metric.WithDescription("Leaderboard computations, by whether ranks were persisted"))
	s := &service{
		store:      st,
		policy:     policy,
		every:      rate.Inf,
		limiters:   make(map[domain.Period]*rate.Limiter),
		tracer:     otel.Tracer("libraengage/ranking"),
		recomputes: recomputes,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *service) limiterFor(period domain.Period) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.limiters[period]
	if !ok {
		l = rate.NewLimiter(s.every, 1)
		s.limiters[period] = l
	}
	return l
}

func (s *service) args(year, month, limit int) (domain.Period, int, error) {
	period := domain.Period{Year: year, Month: month}
	if err := period.Validate(); err != nil {
		return period, 0, err
	}
	if limit < 0 {
		return period, 0, domain.InvalidArgument("limit must not be negative")
	}
	if limit == 0 {
		limit = s.policy.LeaderboardLimit
	}
	return period, limit, nil
}

// RecomputeMonth locks the month's rows, so concurrent recomputes run one after the other.
// Each writes the same values because ranking is deterministic.
func (s *service) RecomputeMonth(ctx context.Context, year, month, limit int) (*Leaderboard, error) {
	period, limit, err := s.args(year, month, limit)
	if err != nil {
		return nil, err
	}
	ctx, span := s.tracer.Start(ctx, "ranking.RecomputeMonth", trace.WithAttributes(attribute.String("period", period.String())))
	defer span.End()

	var board *Leaderboard
	err = s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		rows, err := tx.LockActivity(ctx, period)
		if err != nil {
			return fmt.Errorf("failed to lock activity: %w", err)
		}
		ranked := Rank(rows, s.policy.Weights, s.policy.RankKeys())
		if err := tx.SaveRanks(ctx, period, rankUpdates(ranked)); err != nil {
			return fmt.Errorf("failed to save ranks: %w", err)
		}
		board, err = s.build(ctx, tx, period, ranked, limit)
		return err
	})
	if err != nil {
		return nil, err
	}
	board.Persisted = true

	s.recomputes.Add(ctx, 1, metric.WithAttributes(attribute.Bool("persisted", true)))
	log.Debug().
		Str("period", period.String()).
		Int("active", board.Stats.ActivePatrons).
		Msg("leaderboard recomputed")
	return board, nil
}

// GetMonthlyLeaderboard computes the leaderboard on read. Reads inside the throttle window
// return freshly computed ranks without writing them.
func (s *service) GetMonthlyLeaderboard(ctx context.Context, year, month, limit int) (*Leaderboard, error) {
	period, limit, err := s.args(year, month, limit)
	if err != nil {
		return nil, err
	}
	if s.limiterFor(period).Allow() {
		return s.RecomputeMonth(ctx, year, month, limit)
	}

	ctx, span := s.tracer.Start(ctx, "ranking.GetMonthlyLeaderboard", trace.WithAttributes(attribute.String("period", period.String())))
	defer span.End()

	var board *Leaderboard
	err = s.store.ReadOnly(ctx, func(ctx context.Context, tx store.Tx) error {
		rows, err := tx.ListActivity(ctx, period)
		if err != nil {
			return fmt.Errorf("failed to list activity: %w", err)
		}
		board, err = s.build(ctx, tx, period, Rank(rows, s.policy.Weights, s.policy.RankKeys()), limit)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.recomputes.Add(ctx, 1, metric.WithAttributes(attribute.Bool("persisted", false)))
	return board, nil
}

func (s *service) build(ctx context.Context, tx store.Tx, period domain.Period, ranked []*domain.MonthlyActivity, limit int) (*Leaderboard, error) {
	patrons, err := tx.ListPatrons(ctx, store.PatronFilter{ExcludeSuspended: true})
	if err != nil {
		return nil, fmt.Errorf("failed to list patrons: %w", err)
	}
	active := make(map[string]bool, len(ranked))
	for _, row := range ranked {
		active[row.PatronBarcode] = true
	}

	inactive := []InactivePatron{}
	count := 0
	for _, p := range patrons {
		if active[p.Barcode] {
			continue
		}
		count++
		if len(inactive) < s.policy.InactiveDisplayCap {
			inactive = append(inactive, InactivePatron{Barcode: p.Barcode, Name: p.Name})
		}
	}

	entries := ranked
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return &Leaderboard{
		Period:     period,
		Entries:    entries,
		Inactive:   inactive,
		Stats:      summarize(ranked, count),
		ComputedAt: s.now(),
	}, nil
}

// RunScheduled recomputes the current month every interval until ctx is done.
func RunScheduled(ctx context.Context, svc Service, interval time.Duration, now func() time.Time) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p := domain.PeriodOf(now())
			if _, err := svc.RecomputeMonth(ctx, p.Year, p.Month, 0); err != nil {
				log.Error().Err(err).Str("period", p.String()).Msg("scheduled recompute failed")
			}
		}
	}
}
