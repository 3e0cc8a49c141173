package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"libraengage/internal/domain"
	"libraengage/internal/store"
)

type eventRow struct {
	Sequence      int64     `db:"sequence"`
	EventID       uuid.UUID `db:"event_id"`
	EventType     string    `db:"event_type"`
	PatronBarcode string    `db:"patron_barcode"`
	PatronName    string    `db:"patron_name"`
	Year          int       `db:"year"`
	Month         int       `db:"month"`
	Delta         []byte    `db:"delta"`
	OccurredAt    time.Time `db:"occurred_at"`
}

// AppendEvent inserts ev unless its id is already in the log. ON CONFLICT keeps the
// transaction usable when the id was seen, so callers can treat the duplicate as a no-op.
func (t *tx) AppendEvent(ctx context.Context, ev *domain.ActivityEvent) error {
	payload, err := json.Marshal(ev.Delta)
	if err != nil {
		return fmt.Errorf("encode delta: %w", err)
	}

	var sequence int64
	err = t.tx.GetContext(ctx, &sequence, `
		INSERT INTO activity_events (event_id, event_type, patron_barcode, patron_name, year, month, delta, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (event_id) DO NOTHING
		RETURNING sequence
	`, ev.ID, string(ev.Type), ev.PatronBarcode, ev.PatronName, ev.Period.Year, ev.Period.Month, string(payload), ev.OccurredAt.UTC())
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrDuplicate
	}
	if err != nil {
		return mapError(err)
	}

	ev.Sequence = sequence
	trace.SpanFromContext(ctx).AddEvent("event.appended", trace.WithAttributes(
		attribute.Int64("event.sequence", sequence),
		attribute.String("event.id", ev.ID.String()),
		attribute.String("event.type", string(ev.Type)),
	))
	return nil
}

func (t *tx) GetEvent(ctx context.Context, id uuid.UUID) (*domain.ActivityEvent, error) {
	ds := dialect.From("activity_events").
		Select("sequence", "event_id", "event_type", "patron_barcode", "patron_name", "year", "month", "delta", "occurred_at").
		Where(goqu.C("event_id").Eq(id.String()))

	var rows []eventRow
	if err := t.selectDataset(ctx, &rows, ds); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, store.ErrNotFound
	}
	return rows[0].event()
}

func (t *tx) StreamEvents(ctx context.Context, after int64, limit int) ([]domain.ActivityEvent, error) {
	ds := dialect.From("activity_events").
		Select("sequence", "event_id", "event_type", "patron_barcode", "patron_name", "year", "month", "delta", "occurred_at").
		Where(goqu.C("sequence").Gt(after)).
		Order(goqu.C("sequence").Asc())
	if limit > 0 {
		ds = ds.Limit(uint(limit))
	}

	var rows []eventRow
	if err := t.selectDataset(ctx, &rows, ds); err != nil {
		return nil, err
	}

	events := make([]domain.ActivityEvent, 0, len(rows))
	for _, r := range rows {
		ev, err := r.event()
		if err != nil {
			return nil, err
		}
		events = append(events, *ev)
	}
	return events, nil
}

func (r eventRow) event() (*domain.ActivityEvent, error) {
	var delta domain.ActivityDelta
	if err := json.Unmarshal(r.Delta, &delta); err != nil {
		return nil, fmt.Errorf("decode event %d: %w", r.Sequence, err)
	}
	return &domain.ActivityEvent{
		Sequence:      r.Sequence,
		ID:            r.EventID,
		Type:          domain.EventType(r.EventType),
		PatronBarcode: r.PatronBarcode,
		PatronName:    r.PatronName,
		Period:        domain.Period{Year: r.Year, Month: r.Month},
		Delta:         delta,
		OccurredAt:    r.OccurredAt,
	}, nil
}
