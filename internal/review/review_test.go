package review_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libraengage/internal/config"
	"libraengage/internal/domain"
	"libraengage/internal/engagement"
	"libraengage/internal/review"
	"libraengage/internal/store"
	"libraengage/internal/store/memory"
)

var (
	patron = domain.Actor{ID: "P1", Role: domain.RolePatron}
	staff  = domain.Actor{ID: "librarian", Role: domain.RoleStaff}
	text   = strings.Repeat("A thoughtful summary of the book. ", 3)
)

type fixture struct {
	svc   review.Service
	store *memory.Store
	now   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: memory.New(), now: time.Date(2025, time.March, 3, 12, 0, 0, 0, time.UTC)}
	books := []string{"B1", "B2", "B3", "B4", "B5", "B6", "OUT"}
	require.NoError(t, f.store.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		for _, b := range books {
			if err := tx.InsertItem(ctx, &domain.Item{Barcode: b, Title: b, Available: b != "OUT"}); err != nil {
				return err
			}
		}
		if err := tx.InsertPatron(ctx, &domain.Patron{Barcode: "P1", Name: "Ada", ItemsBorrowed: books}); err != nil {
			return err
		}
		return tx.InsertPatron(ctx, &domain.Patron{Barcode: "P2", Name: "Grace"})
	}))
	f.svc = review.NewService(f.store, engagement.NewLedger(), config.DefaultPolicy(),
		review.WithClock(func() time.Time { return f.now }))
	return f
}

func submit(book string) review.SubmitRequest {
	return review.SubmitRequest{PatronBarcode: "P1", BookBarcode: book, Content: text, Rating: 4}
}

func (f *fixture) activity(t *testing.T, barcode string, p domain.Period) (*domain.MonthlyActivity, error) {
	var row *domain.MonthlyActivity
	err := f.store.ReadOnly(context.Background(), func(ctx context.Context, tx store.Tx) error {
		var err error
		row, err = tx.GetActivity(ctx, barcode, p)
		return err
	})
	return row, err
}

func (f *fixture) points(t *testing.T, barcode string) int {
	var points int
	require.NoError(t, f.store.ReadOnly(context.Background(), func(ctx context.Context, tx store.Tx) error {
		p, err := tx.GetPatron(ctx, barcode)
		if err != nil {
			return err
		}
		points = p.Points
		return nil
	}))
	return points
}

func TestSubmit_MonthlyCap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, b := range []string{"B1", "B2", "B3", "B4"} {
		s, err := f.svc.SubmitSummary(ctx, patron, submit(b))
		require.NoError(t, err, b)
		assert.Equal(t, domain.SummaryPending, s.Status)
	}

	_, err := f.svc.SubmitSummary(ctx, patron, submit("B5"))
	assert.True(t, domain.IsKind(err, domain.KindPreconditionFailed), "got %v", err)

	f.now = time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC)
	_, err = f.svc.SubmitSummary(ctx, patron, submit("B5"))
	assert.NoError(t, err)

	march, err := f.activity(t, "P1", domain.Period{Year: 2025, Month: 3})
	require.NoError(t, err)
	assert.Equal(t, 4, march.SummariesSubmitted)
	assert.Equal(t, 100, march.TotalPoints)
	assert.Equal(t, 125, f.points(t, "P1"))
}

func TestReview_ApproveAddsBonusToThatMonth(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s, err := f.svc.SubmitSummary(ctx, patron, submit("B2"))
	require.NoError(t, err)

	reviewed, err := f.svc.ReviewSummary(ctx, staff, s.ID, review.ReviewRequest{Approve: true, Points: 10})
	require.NoError(t, err)
	assert.Equal(t, domain.SummaryApproved, reviewed.Status)
	assert.Equal(t, 10, reviewed.Points)
	assert.Equal(t, "librarian", reviewed.ReviewedBy)
	assert.NotNil(t, reviewed.ReviewDate)

	row, err := f.activity(t, "P1", domain.Period{Year: 2025, Month: 3})
	require.NoError(t, err)
	assert.Equal(t, 1, row.SummariesSubmitted)
	assert.Equal(t, 1, row.SummariesApproved)
	assert.Equal(t, 35, row.TotalPoints)

	_, err = f.activity(t, "P1", domain.Period{Year: 2025, Month: 4})
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, 35, f.points(t, "P1"))
}

func TestReview_SecondReviewConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s, err := f.svc.SubmitSummary(ctx, patron, submit("B1"))
	require.NoError(t, err)
	_, err = f.svc.ReviewSummary(ctx, staff, s.ID, review.ReviewRequest{Approve: true, Points: 20})
	require.NoError(t, err)

	_, err = f.svc.ReviewSummary(ctx, staff, s.ID, review.ReviewRequest{Approve: false})
	require.True(t, domain.IsKind(err, domain.KindConflict))
	var de *domain.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, domain.SummaryApproved, de.Details["existing_status"])
	assert.Equal(t, 20, de.Details["existing_points"])

	assert.Equal(t, 45, f.points(t, "P1"))
	got, err := f.svc.GetSummary(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SummaryApproved, got.Status)
}

func TestReview_Reject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s, err := f.svc.SubmitSummary(ctx, patron, submit("B1"))
	require.NoError(t, err)

	reviewed, err := f.svc.ReviewSummary(ctx, staff, s.ID, review.ReviewRequest{Approve: false, Points: 30})
	require.NoError(t, err)
	assert.Equal(t, domain.SummaryRejected, reviewed.Status)
	assert.Zero(t, reviewed.Points)

	row, err := f.activity(t, "P1", domain.Period{Year: 2025, Month: 3})
	require.NoError(t, err)
	assert.Zero(t, row.SummariesApproved)
	assert.Equal(t, 25, row.TotalPoints)

	rejected, err := f.svc.ListSummaries(ctx, review.ListFilter{Status: domain.SummaryRejected})
	require.NoError(t, err)
	assert.Len(t, rejected, 1)
}

func TestReview_Failures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s, err := f.svc.SubmitSummary(ctx, patron, submit("B1"))
	require.NoError(t, err)

	_, err = f.svc.ReviewSummary(ctx, patron, s.ID, review.ReviewRequest{Approve: true, Points: 10})
	assert.True(t, domain.IsKind(err, domain.KindForbidden))

	_, err = f.svc.ReviewSummary(ctx, staff, s.ID, review.ReviewRequest{Approve: true, Points: 51})
	assert.True(t, domain.IsKind(err, domain.KindPreconditionFailed))

	_, err = f.svc.ReviewSummary(ctx, staff, uuid.New(), review.ReviewRequest{Approve: true, Points: 10})
	assert.True(t, domain.IsKind(err, domain.KindNotFound))
}

func TestSubmit_Preconditions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.SubmitSummary(ctx, patron, submit("B1"))
	require.NoError(t, err)

	short := submit("B3")
	short.Content = "Too short."
	badRating := submit("B3")
	badRating.Rating = 6
	other := submit("B3")
	other.PatronBarcode = "P2"

	tests := []struct {
		name  string
		actor domain.Actor
		req   review.SubmitRequest
		kind  domain.Kind
	}{
		{"never borrowed", staff, review.SubmitRequest{PatronBarcode: "P2", BookBarcode: "B3", Content: text, Rating: 3}, domain.KindPreconditionFailed},
		{"still checked out", patron, submit("OUT"), domain.KindPreconditionFailed},
		{"content too short", patron, short, domain.KindPreconditionFailed},
		{"rating out of range", patron, badRating, domain.KindPreconditionFailed},
		{"duplicate", patron, submit("B1"), domain.KindConflict},
		{"someone else's summary", patron, other, domain.KindForbidden},
		{"unknown patron", staff, review.SubmitRequest{PatronBarcode: "P9", BookBarcode: "B3", Content: text, Rating: 3}, domain.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.SubmitSummary(ctx, tt.actor, tt.req)
			assert.True(t, domain.IsKind(err, tt.kind), "got %v", err)
		})
	}

	_, err = f.svc.SubmitSummary(ctx, patron, submit("B1"))
	var de *domain.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, domain.SummaryPending, de.Details["existing_status"])
	assert.Equal(t, 0, de.Details["existing_points"])
}

func TestSubmitStaffSummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := review.StaffSubmitRequest{
		SubmitRequest: review.SubmitRequest{PatronBarcode: "P2", BookBarcode: "B1", Content: text, Rating: 5},
		BonusPoints:   15,
	}

	_, err := f.svc.SubmitStaffSummary(ctx, patron, req)
	assert.True(t, domain.IsKind(err, domain.KindForbidden))

	tooMuch := req
	tooMuch.BonusPoints = 21
	_, err = f.svc.SubmitStaffSummary(ctx, staff, tooMuch)
	assert.True(t, domain.IsKind(err, domain.KindPreconditionFailed))

	s, err := f.svc.SubmitStaffSummary(ctx, staff, req)
	require.NoError(t, err)
	assert.Equal(t, domain.SummaryApproved, s.Status)
	assert.True(t, s.StaffCreated)
	assert.Equal(t, 15, s.Points)
	assert.Equal(t, 40, f.points(t, "P2"))

	row, err := f.activity(t, "P2", domain.Period{Year: 2025, Month: 3})
	require.NoError(t, err)
	assert.Equal(t, 1, row.SummariesSubmitted)
	assert.Equal(t, 1, row.SummariesApproved)
	assert.Equal(t, 40, row.TotalPoints)

	_, err = f.svc.ReviewSummary(ctx, staff, s.ID, review.ReviewRequest{Approve: true, Points: 5})
	assert.True(t, domain.IsKind(err, domain.KindConflict))
}
