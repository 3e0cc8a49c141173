package catalog_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libraengage/internal/catalog"
	"libraengage/internal/domain"
	"libraengage/internal/store/memory"
)

func TestAddItem(t *testing.T) {
	ctx := context.Background()
	svc := catalog.NewService(memory.New())

	item, err := svc.AddItem(ctx, catalog.AddItemRequest{Barcode: "B1", Title: "Dune"})
	require.NoError(t, err)
	assert.True(t, item.Available)
	assert.Empty(t, item.CheckoutHistory)

	_, err = svc.AddItem(ctx, catalog.AddItemRequest{Barcode: "B1", Title: "Dune"})
	assert.True(t, domain.IsKind(err, domain.KindConflict))

	got, err := svc.GetItem(ctx, "B1")
	require.NoError(t, err)
	assert.Equal(t, "Dune", got.Title)

	_, err = svc.GetItem(ctx, "nope")
	assert.True(t, domain.IsKind(err, domain.KindNotFound))
}

func TestListItems(t *testing.T) {
	ctx := context.Background()
	svc := catalog.NewService(memory.New())

	items, err := svc.ListItems(ctx, catalog.ListFilter{})
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)

	for _, b := range []string{"B1", "B2"} {
		_, err := svc.AddItem(ctx, catalog.AddItemRequest{Barcode: b, Title: b})
		require.NoError(t, err)
	}

	items, err = svc.ListItems(ctx, catalog.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, items, 2)

	items, err = svc.ListItems(ctx, catalog.ListFilter{CheckedOutOnly: true})
	require.NoError(t, err)
	assert.Empty(t, items)
}
