package engagement_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"libraengage/internal/config"
	"libraengage/internal/domain"
	"libraengage/internal/engagement"
	"libraengage/internal/store"
	"libraengage/internal/store/memory"
)

var march = time.Date(2025, time.March, 15, 12, 0, 0, 0, time.UTC)

func setup(t *testing.T) (engagement.Service, *memory.Store) {
	t.Helper()
	st := memory.New()
	require.NoError(t, st.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.InsertPatron(ctx, &domain.Patron{Barcode: "P1", Name: "Ada"})
	}))
	svc := engagement.NewService(st, engagement.NewLedger(), config.DefaultPolicy(),
		engagement.WithClock(func() time.Time { return march }))
	return svc, st
}

func Test_Score_UsesWeights(t *testing.T) {
	counters := domain.ActivityDelta{
		BooksCheckedOut:    2,
		BooksReturned:      1,
		ClassesAttended:    1,
		SummariesSubmitted: 3,
		SummariesApproved:  1,
		TotalPoints:        40,
	}

	score := engagement.Score(counters, config.DefaultPolicy().Weights)

	// 2*10 + 1*15 + 1*20 + 1*25 + 40*1; submissions are not weighted.
	assert.Equal(t, 120, score)
}

func Test_RecordActivity_AddsDelta(t *testing.T) {
	// setup
	svc, _ := setup(t)
	ctx := context.Background()

	// act
	_, err := svc.RecordActivity(ctx, engagement.RecordRequest{PatronBarcode: "P1", Year: 2025, Month: 3,
		Delta: domain.ActivityDelta{ClassesAttended: 1, TotalPoints: 5}})
	require.NoError(t, err)
	res, err := svc.RecordActivity(ctx, engagement.RecordRequest{PatronBarcode: "P1", Year: 2025, Month: 3,
		Delta: domain.ActivityDelta{TotalPoints: 7}})

	// assert
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.NotEqual(t, uuid.Nil, res.EventID)
	assert.Equal(t, 1, res.Activity.ClassesAttended)
	assert.Equal(t, 12, res.Activity.TotalPoints)
	assert.Equal(t, "Ada", res.Activity.PatronName)
	assert.True(t, res.Activity.IsActive)
}

func Test_RecordActivity_SameEventIDAppliesOnce(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()
	req := engagement.RecordRequest{EventID: uuid.New(), PatronBarcode: "P1", Year: 2025, Month: 3,
		Delta: domain.ActivityDelta{BooksReturned: 1, TotalPoints: 10}}

	first, err := svc.RecordActivity(ctx, req)
	require.NoError(t, err)
	second, err := svc.RecordActivity(ctx, req)
	require.NoError(t, err)

	assert.True(t, first.Applied)
	assert.False(t, second.Applied)
	assert.Equal(t, 1, second.Activity.BooksReturned)
	assert.Equal(t, 10, second.Activity.TotalPoints)
}

func Test_RecordActivity_ReusedKeyForDifferentRequestConflicts(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()
	key := uuid.New()

	_, err := svc.RecordActivity(ctx, engagement.RecordRequest{EventID: key, PatronBarcode: "P1", Year: 2025, Month: 3,
		Delta: domain.ActivityDelta{TotalPoints: 10}})
	require.NoError(t, err)

	_, err = svc.RecordActivity(ctx, engagement.RecordRequest{EventID: key, PatronBarcode: "P1", Year: 2025, Month: 3,
		Delta: domain.ActivityDelta{TotalPoints: 50}})
	require.True(t, domain.IsKind(err, domain.KindConflict))
	var derr *domain.Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, key.String(), derr.Details["event_id"])

	_, err = svc.RecordActivity(ctx, engagement.RecordRequest{EventID: key, PatronBarcode: "P1", Year: 2025, Month: 4,
		Delta: domain.ActivityDelta{TotalPoints: 10}})
	assert.True(t, domain.IsKind(err, domain.KindConflict))

	row, err := svc.GetMonthlyActivity(ctx, "P1", 2025, 3)
	require.NoError(t, err)
	assert.Equal(t, 10, row.TotalPoints)
	_, err = svc.GetMonthlyActivity(ctx, "P1", 2025, 4)
	assert.True(t, domain.IsKind(err, domain.KindNotFound))
}

func Test_Apply_RejectsAnyRecordedKey(t *testing.T) {
	st := memory.New()
	ledger := engagement.NewLedger()
	ctx := context.Background()
	entry := engagement.Entry{EventID: uuid.New(), Type: domain.EventClassAttended, PatronBarcode: "P1",
		Period: domain.Period{Year: 2025, Month: 3}, Delta: domain.ActivityDelta{ClassesAttended: 1}, At: march}

	apply := func() error {
		return st.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
			_, err := ledger.Apply(ctx, tx, entry)
			return err
		})
	}
	require.NoError(t, apply())
	assert.True(t, domain.IsKind(apply(), domain.KindConflict))
}

func Test_RecordActivity_Failures(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	_, err := svc.RecordActivity(ctx, engagement.RecordRequest{PatronBarcode: "nobody", Year: 2025, Month: 3})
	assert.True(t, domain.IsKind(err, domain.KindNotFound))

	_, err = svc.RecordActivity(ctx, engagement.RecordRequest{PatronBarcode: "P1", Year: 2025, Month: 13})
	assert.True(t, domain.IsKind(err, domain.KindInvalidArgument))

	_, err = svc.RecordActivity(ctx, engagement.RecordRequest{PatronBarcode: "P1", Year: 2025, Month: 3,
		Delta: domain.ActivityDelta{TotalPoints: -5}})
	assert.True(t, domain.IsKind(err, domain.KindPreconditionFailed))
}

func Test_GetMonthlyActivity_ComputesScore(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()
	_, err := svc.RecordActivity(ctx, engagement.RecordRequest{PatronBarcode: "P1", Year: 2025, Month: 3,
		Delta: domain.ActivityDelta{ClassesAttended: 1, TotalPoints: 5}})
	require.NoError(t, err)

	row, err := svc.GetMonthlyActivity(ctx, "P1", 2025, 3)
	require.NoError(t, err)
	assert.Equal(t, 25, row.ActivityScore)

	_, err = svc.GetMonthlyActivity(ctx, "P1", 2025, 4)
	assert.True(t, domain.IsKind(err, domain.KindNotFound))
}

func Test_Replay_MatchesLedger(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		st := memory.New()
		ledger := engagement.NewLedger()
		ctx := context.Background()
		ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}

		n := rapid.IntRange(1, 30).Draw(t, "n")
		for i := 0; i < n; i++ {
			entry := engagement.Entry{
				EventID:       rapid.SampledFrom(append(ids, uuid.Nil)).Draw(t, "id"),
				Type:          domain.EventActivityAdjusted,
				PatronBarcode: rapid.SampledFrom([]string{"P1", "P2"}).Draw(t, "patron"),
				Period:        domain.Period{Year: 2025, Month: rapid.IntRange(1, 2).Draw(t, "month")},
				Delta: domain.ActivityDelta{
					BooksReturned:   rapid.IntRange(0, 2).Draw(t, "returned"),
					ClassesAttended: rapid.IntRange(0, 2).Draw(t, "classes"),
					TotalPoints:     rapid.IntRange(0, 50).Draw(t, "points"),
				},
				At: march,
			}
			err := st.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
				_, _, err := ledger.Record(ctx, tx, entry)
				return err
			})
			// Reusing an id for another increment is rejected and leaves nothing behind.
			if err != nil && !domain.IsKind(err, domain.KindConflict) {
				t.Fatalf("record: %v", err)
			}
		}

		_ = st.ReadOnly(ctx, func(ctx context.Context, tx store.Tx) error {
			events, err := tx.StreamEvents(ctx, 0, 0)
			if err != nil {
				t.Fatalf("stream: %v", err)
			}
			replayed := engagement.Replay(events)
			for _, month := range []int{1, 2} {
				rows, err := tx.ListActivity(ctx, domain.Period{Year: 2025, Month: month})
				if err != nil {
					t.Fatalf("list: %v", err)
				}
				for _, row := range rows {
					want := replayed[engagement.Key{PatronBarcode: row.PatronBarcode, Period: row.Period()}]
					if row.Counters() != want {
						t.Fatalf("row %s/%s = %+v, replay = %+v", row.PatronBarcode, row.Period(), row.Counters(), want)
					}
				}
			}
			return nil
		})
	})
}
