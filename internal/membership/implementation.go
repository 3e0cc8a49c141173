// internal/membership/implementation.go
package membership

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

// NewService creates a new membership service instance.
func NewService(st store.Store, opts ...Option) Service {
	s := &service{store: st, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterPatron creates a new patron with no loan and zero points.
func (s *service) RegisterPatron(ctx context.Context, req RegisterRequest) (*domain.Patron, error) {
	now := s.now()
	patron := &domain.Patron{
		Barcode:       req.Barcode,
		Name:          req.Name,
		ContactInfo:   req.ContactInfo,
		ItemsBorrowed: []string{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		err := tx.InsertPatron(ctx, patron)
		if errors.Is(err, store.ErrDuplicate) {
			return domain.Conflict("patron %s is already registered", req.Barcode)
		}
		if err != nil {
			return fmt.Errorf("failed to insert patron: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("patron", patron.Barcode).Msg("patron registered")
	return patron, nil
}

// GetPatron retrieves a patron by barcode.
func (s *service) GetPatron(ctx context.Context, barcode string) (*domain.Patron, error) {
	var patron *domain.Patron
	err := s.store.ReadOnly(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		patron, err = getPatron(ctx, tx, barcode)
		return err
	})
	if err != nil {
		return nil, err
	}
	return patron, nil
}

// SetPhoto records the identity photo used by the PhotoOnFile eligibility rule.
func (s *service) SetPhoto(ctx context.Context, barcode string, req PhotoRequest) (*domain.Patron, error) {
	return s.updateProfile(ctx, barcode, func(p *domain.Patron) {
		p.PhotoURL = req.PhotoURL
		p.IdentityVerified = req.Verified
	})
}

// Suspend blocks or unblocks borrowing. Suspended patrons are also left out of the inactive list.
func (s *service) Suspend(ctx context.Context, barcode string, suspended bool) (*domain.Patron, error) {
	patron, err := s.updateProfile(ctx, barcode, func(p *domain.Patron) {
		p.Suspended = suspended
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("patron", barcode).Bool("suspended", suspended).Msg("patron suspension changed")
	return patron, nil
}

func (s *service) updateProfile(ctx context.Context, barcode string, mutate func(*domain.Patron)) (*domain.Patron, error) {
	var patron *domain.Patron
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		p, err := getPatron(ctx, tx, barcode)
		if err != nil {
			return err
		}
		mutate(p)
		p.UpdatedAt = s.now()
		if err := tx.UpdatePatronProfile(ctx, p); err != nil {
			return fmt.Errorf("failed to update patron: %w", err)
		}
		patron = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return patron, nil
}

func getPatron(ctx context.Context, tx store.Tx, barcode string) (*domain.Patron, error) {
	p, err := tx.GetPatron(ctx, barcode)
	if errors.Is(err, store.ErrNotFound) {
		return nil, domain.NotFound("patron %s not found", barcode)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get patron: %w", err)
	}
	return p, nil
}
