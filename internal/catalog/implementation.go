// internal/catalog/implementation.go
package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"libraengage/internal/domain"
	"libraengage/internal/store"
)

// service implements the Service interface.
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

// NewService creates a new catalog service instance.
func NewService(st store.Store, opts ...Option) Service {
	s := &service{store: st, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddItem creates a new item in the catalog.
func (s *service) AddItem(ctx context.Context, req AddItemRequest) (*domain.Item, error) {
	now := s.now()
	item := &domain.Item{
		Barcode:         req.Barcode,
		Title:           req.Title,
		Available:       true,
		CheckoutHistory: []domain.CheckoutRecord{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		err := tx.InsertItem(ctx, item)
		if errors.Is(err, store.ErrDuplicate) {
			return domain.Conflict("item %s already exists", req.Barcode)
		}
		if err != nil {
			return fmt.Errorf("failed to insert item: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("item", item.Barcode).Str("title", item.Title).Msg("item added")
	return item, nil
}

// GetItem retrieves an item with its full checkout log.
func (s *service) GetItem(ctx context.Context, barcode string) (*domain.Item, error) {
	var item *domain.Item
	err := s.store.ReadOnly(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		item, err = tx.GetItem(ctx, barcode)
		if errors.Is(err, store.ErrNotFound) {
			return domain.NotFound("item %s not found", barcode)
		}
		if err != nil {
			return fmt.Errorf("failed to get item: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (s *service) ListItems(ctx context.Context, filter ListFilter) ([]*domain.Item, error) {
	var items []*domain.Item
	err := s.store.ReadOnly(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		items, err = tx.ListItems(ctx, store.ItemFilter{CheckedOutOnly: filter.CheckedOutOnly})
		if err != nil {
			return fmt.Errorf("failed to list items: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*domain.Item{}
	}
	return items, nil
}
