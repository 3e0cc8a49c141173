package engagement

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"libraengage/internal/domain"
	"libraengage/internal/store"
)

// Ledger applies increments to the monthly engagement rows. Every increment is first appended
// to the event log under its event id; the row is only updated when the append is new.
type Ledger struct {
	tracer     trace.Tracer
	applied    metric.Int64Counter
	duplicates metric.Int64Counter
}

func NewLedger() *Ledger {
	meter := otel.Meter("libraengage/engagement")
	applied, _ := meter.Int64Counter("engagement.events.applied",
		metric.WithDescription("Ledger increments applied"))
	duplicates, _ := meter.Int64Counter("engagement.events.duplicate",
		metric.WithDescription("Ledger increments skipped because their event id was already recorded"))
	return &Ledger{
		tracer:     otel.Tracer("libraengage/engagement"),
		applied:    applied,
		duplicates: duplicates,
	}
}

// Record applies e within tx. It returns the row after the call and whether e was applied.
// When e's id was seen before for the same increment, the row is returned unchanged (nil if
// it does not exist). An id seen before for a different increment is a Conflict.
func (l *Ledger) Record(ctx context.Context, tx store.Tx, e Entry) (*domain.MonthlyActivity, bool, error) {
	if err := e.Delta.Validate(); err != nil {
		return nil, false, err
	}
	if err := e.Period.Validate(); err != nil {
		return nil, false, err
	}
	if e.EventID == uuid.Nil {
		e.EventID = uuid.New()
	}

	ctx, span := l.tracer.Start(ctx, "engagement.record", trace.WithAttributes(
		attribute.String("event.id", e.EventID.String()),
		attribute.String("event.type", string(e.Type)),
		attribute.String("patron", e.PatronBarcode),
		attribute.String("period", e.Period.String()),
	))
	defer span.End()

	ev := &domain.ActivityEvent{
		ID:            e.EventID,
		Type:          e.Type,
		PatronBarcode: e.PatronBarcode,
		PatronName:    e.PatronName,
		Period:        e.Period,
		Delta:         e.Delta,
		OccurredAt:    e.At,
	}
	err := tx.AppendEvent(ctx, ev)
	if errors.Is(err, store.ErrDuplicate) {
		prior, err := tx.GetEvent(ctx, e.EventID)
		if err != nil {
			return nil, false, fmt.Errorf("failed to load event: %w", err)
		}
		if !prior.SameRequest(*ev) {
			span.SetAttributes(attribute.Bool("event.key_reused", true))
			return nil, false, keyReused(e.EventID, prior)
		}

		l.duplicates.Add(ctx, 1, metric.WithAttributes(attribute.String("event.type", string(e.Type))))
		span.SetAttributes(attribute.Bool("event.duplicate", true))
		log.Debug().Str("event_id", e.EventID.String()).Str("patron", e.PatronBarcode).Msg("ledger event already applied")

		row, err := tx.GetActivity(ctx, e.PatronBarcode, e.Period)
		if errors.Is(err, store.ErrNotFound) {
			return nil, false, nil
		}
		if err != nil {
			return nil, false, fmt.Errorf("failed to load activity: %w", err)
		}
		return row, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to append event: %w", err)
	}

	row, err := tx.UpsertActivity(ctx, e.PatronBarcode, e.PatronName, e.Period, e.Delta, e.At)
	if err != nil {
		return nil, false, fmt.Errorf("failed to upsert activity: %w", err)
	}

	l.applied.Add(ctx, 1, metric.WithAttributes(attribute.String("event.type", string(e.Type))))
	span.SetAttributes(attribute.Int64("event.sequence", ev.Sequence))
	log.Debug().
		Str("event_id", e.EventID.String()).
		Str("event_type", string(e.Type)).
		Str("patron", e.PatronBarcode).
		Str("period", e.Period.String()).
		Msg("ledger event applied")
	return row, true, nil
}

// Apply is Record for operations whose other writes are not idempotent. Their own
// preconditions reject a true retry before the ledger is reached, so an id that was
// already recorded can only be a reused key, and the whole transaction must fail.
func (l *Ledger) Apply(ctx context.Context, tx store.Tx, e Entry) (*domain.MonthlyActivity, error) {
	row, applied, err := l.Record(ctx, tx, e)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, domain.Conflict("idempotency key %s already used for a different request", e.EventID).
			WithDetail("event_id", e.EventID.String())
	}
	return row, nil
}

func keyReused(id uuid.UUID, prior *domain.ActivityEvent) error {
	return domain.Conflict("idempotency key %s already used for a different request", id).
		WithDetail("event_id", id.String()).
		WithDetail("existing_type", string(prior.Type)).
		WithDetail("existing_patron", prior.PatronBarcode)
}
