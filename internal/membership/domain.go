// internal/membership/domain.go
package membership

import (
	"context"

	"libraengage/internal/domain"
)

// RegisterRequest creates a patron in the directory.
type RegisterRequest struct {
	Barcode     string `json:"barcode" validate:"required,max=64"`
	Name        string `json:"name" validate:"required,max=200"`
	ContactInfo string `json:"contact_info" validate:"max=200"`
}

// PhotoRequest records the identity photo taken at the desk.
type PhotoRequest struct {
	PhotoURL string `json:"photo_url" validate:"required,url"`
	Verified bool   `json:"verified"`
}

// SuspendRequest toggles a patron's suspension.
type SuspendRequest struct {
	Suspended bool `json:"suspended"`
}

// EligibilityChecker decides whether a patron may borrow. It returns a
// PreconditionFailed domain error when the patron is not eligible.
type EligibilityChecker interface {
	CheckEligibility(ctx context.Context, patron *domain.Patron) error
}

// EligibilityFunc adapts a function to EligibilityChecker.
type EligibilityFunc func(ctx context.Context, patron *domain.Patron) error

func (f EligibilityFunc) CheckEligibility(ctx context.Context, patron *domain.Patron) error {
	return f(ctx, patron)
}

// PhotoOnFile is the local eligibility rule: the patron is not suspended and
// has an identity photo recorded or was verified at the desk.
type PhotoOnFile struct{}

func (PhotoOnFile) CheckEligibility(_ context.Context, patron *domain.Patron) error {
	if patron.Suspended {
		return domain.PreconditionFailed("patron %s is suspended", patron.Barcode)
	}
	if patron.PhotoURL == "" && !patron.IdentityVerified {
		return domain.PreconditionFailed("patron %s has no identity photo on file", patron.Barcode).
			WithDetail("requirement", "identity_photo")
	}
	return nil
}
