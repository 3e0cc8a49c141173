package dashboard_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libraengage/internal/circulation"
	"libraengage/internal/config"
	"libraengage/internal/dashboard"
	"libraengage/internal/domain"
	"libraengage/internal/engagement"
	"libraengage/internal/membership"
	"libraengage/internal/store"
	"libraengage/internal/store/memory"
)

func TestGetDashboard(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	now := time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	require.NoError(t, st.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		for _, b := range []string{"B1", "B2", "B3", "B4"} {
			if err := tx.InsertItem(ctx, &domain.Item{Barcode: b, Title: b, Available: true}); err != nil {
				return err
			}
		}
		for _, p := range []domain.Patron{
			{Barcode: "P1", Name: "Ada", PhotoURL: "x"},
			{Barcode: "P2", Name: "Grace", PhotoURL: "x"},
			{Barcode: "P3", Name: "Linus", PhotoURL: "x"},
			{Barcode: "P4", Name: "Barbara", Suspended: true},
		} {
			if err := tx.InsertPatron(ctx, &p); err != nil {
				return err
			}
		}
		return tx.InsertSummary(ctx, &domain.BookSummary{PatronBarcode: "P1", BookBarcode: "B9", Status: domain.SummaryPending, SubmittedAt: now})
	}))

	circ := circulation.NewService(st, engagement.NewLedger(), membership.PhotoOnFile{}, config.DefaultPolicy(), circulation.WithClock(clock))
	_, err := circ.Checkout(ctx, circulation.CheckoutRequest{ItemBarcode: "B1", PatronBarcode: "P1", DueInDays: 3})
	require.NoError(t, err)
	_, err = circ.Checkout(ctx, circulation.CheckoutRequest{ItemBarcode: "B2", PatronBarcode: "P2", DueInDays: 10})
	require.NoError(t, err)
	_, err = circ.Checkout(ctx, circulation.CheckoutRequest{ItemBarcode: "B3", PatronBarcode: "P3", DueInDays: 30})
	require.NoError(t, err)

	now = now.AddDate(0, 0, 12)
	svc := dashboard.NewService(st, dashboard.WithClock(clock))

	d, err := svc.GetDashboard(ctx, 0)
	require.NoError(t, err)

	assert.Equal(t, dashboard.ItemCounts{Total: 4, Available: 1, CheckedOut: 3, Overdue: 2, OverdueBeyond: 1}, d.Items)
	assert.Equal(t, dashboard.DefaultOverdueDays, d.OverdueBeyondDays)
	assert.Equal(t, dashboard.PatronCounts{Total: 4, WithOpenLoan: 3, Suspended: 1}, d.Patrons)
	assert.Equal(t, 1, d.PendingSummaries)
	assert.Equal(t, 3, d.Month.ActivePatrons)
	require.Len(t, d.Overdue, 2)
	assert.Equal(t, "B1", d.Overdue[0].ItemBarcode)
	assert.Equal(t, "Ada", d.Overdue[0].BorrowerName)
	assert.Equal(t, 9, d.Overdue[0].DaysOverdue)

	d, err = svc.GetDashboard(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, d.Items.OverdueBeyond)

	_, err = svc.GetDashboard(ctx, -1)
	assert.True(t, domain.IsKind(err, domain.KindInvalidArgument))
}
