// Package consistency audits the store for states the circulation and ledger rules forbid.
//
// Each Check measures one steady-state property of a snapshot and compares it with a
// threshold; a failed check lists the records that violate it.
package consistency

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"libraengage/internal/domain"
	"libraengage/internal/store"
)

// Threshold is the bound a check's value must satisfy.
type Threshold struct {
	Operator string  `json:"operator"` // >, <, >=, <=, ==
	Value    float64 `json:"value"`
}

func (t Threshold) Holds(value float64) bool {
	switch t.Operator {
	case ">":
		return value > t.Value
	case "<":
		return value < t.Value
	case ">=":
		return value >= t.Value
	case "<=":
		return value <= t.Value
	case "==":
		return value == t.Value
	default:
		return false
	}
}

// Check measures one property. Measure returns the value and the offending records.
type Check struct {
	Name        string
	Description string
	Threshold   Threshold
	Measure     func(s *Snapshot) (float64, []string)
}

// Snapshot is everything the checks look at, read in one transaction.
type Snapshot struct {
	Items    []*domain.Item
	Patrons  []*domain.Patron
	Activity []*domain.MonthlyActivity
	Events   []domain.ActivityEvent
}

type Result struct {
	Check      string    `json:"check"`
	Value      float64   `json:"value"`
	Threshold  Threshold `json:"threshold"`
	Passed     bool      `json:"passed"`
	Violations []string  `json:"violations,omitempty"`
}

type Report struct {
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Healthy   bool          `json:"healthy"`
	Results   []Result      `json:"results"`
}

// Violations counts failed checks.
func (r *Report) Violations() int {
	n := 0
	for _, res := range r.Results {
		if !res.Passed {
			n++
		}
	}
	return n
}

// Auditor runs the registered checks against a store.
type Auditor struct {
	store    store.Store
	tracer   trace.Tracer
	checks   []Check
	pageSize int
}

// NewAuditor returns an auditor with the default checks registered.
func NewAuditor(st store.Store) *Auditor {
	a := &Auditor{
		store:    st,
		tracer:   otel.Tracer("libraengage/consistency"),
		pageSize: 1000,
	}
	for _, c := range DefaultChecks() {
		a.Register(c)
	}
	return a
}

func (a *Auditor) Register(c Check) {
	a.checks = append(a.checks, c)
}

func (a *Auditor) Checks() []Check {
	return a.checks
}

// Run loads a snapshot and evaluates every check.
func (a *Auditor) Run(ctx context.Context) (*Report, error) {
	ctx, span := a.tracer.Start(ctx, "consistency.run")
	defer span.End()

	report := &Report{StartTime: time.Now(), Healthy: true}

	span.AddEvent("loading_snapshot")
	snap, err := a.load(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.AddEvent("evaluating_checks")
	for _, c := range a.checks {
		value, violations := c.Measure(snap)
		res := Result{
			Check:      c.Name,
			Value:      value,
			Threshold:  c.Threshold,
			Passed:     c.Threshold.Holds(value),
			Violations: violations,
		}
		if !res.Passed {
			report.Healthy = false
			log.Warn().
				Str("check", c.Name).
				Float64("value", value).
				Strs("violations", violations).
				Msg("consistency check failed")
		}
		report.Results = append(report.Results, res)
	}

	report.EndTime = time.Now()
	report.Duration = report.EndTime.Sub(report.StartTime)
	span.SetAttributes(
		attribute.Bool("healthy", report.Healthy),
		attribute.Int("violations", report.Violations()),
	)
	return report, nil
}

func (a *Auditor) load(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{}
	err := a.store.ReadOnly(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		if snap.Items, err = tx.ListItems(ctx, store.ItemFilter{}); err != nil {
			return fmt.Errorf("failed to list items: %w", err)
		}
		if snap.Patrons, err = tx.ListPatrons(ctx, store.PatronFilter{}); err != nil {
			return fmt.Errorf("failed to list patrons: %w", err)
		}

		var after int64
		for {
			page, err := tx.StreamEvents(ctx, after, a.pageSize)
			if err != nil {
				return fmt.Errorf("failed to stream events: %w", err)
			}
			snap.Events = append(snap.Events, page...)
			if len(page) < a.pageSize {
				break
			}
			after = page[len(page)-1].Sequence
		}

		// Every ledger row was created by an event, so the event periods cover all rows.
		seen := make(map[domain.Period]bool)
		for _, ev := range snap.Events {
			if seen[ev.Period] {
				continue
			}
			seen[ev.Period] = true
			rows, err := tx.ListActivity(ctx, ev.Period)
			if err != nil {
				return fmt.Errorf("failed to list activity: %w", err)
			}
			snap.Activity = append(snap.Activity, rows...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}
