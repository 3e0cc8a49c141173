// internal/clients/identity_client.go
package clients

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"libraengage/internal/domain"
	"libraengage/internal/membership"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Verification is the identity service's answer for one patron.
type Verification struct {
	Verified bool   `json:"verified"`
	Reason   string `json:"reason,omitempty"`
}

// IdentityClient asks a remote identity service whether a patron may borrow.
// It implements membership.EligibilityChecker.
type IdentityClient struct {
	baseURL  string
	http     *http.Client
	breaker  *gobreaker.CircuitBreaker
	fallback membership.EligibilityChecker
}

var _ membership.EligibilityChecker = (*IdentityClient)(nil)

type IdentityOption func(*IdentityClient)

// WithHTTPClient replaces the default client with a 5s timeout.
func WithHTTPClient(c *http.Client) IdentityOption {
	return func(ic *IdentityClient) { ic.http = c }
}

// WithFallback is consulted when the identity service cannot be reached or the breaker is open.
func WithFallback(checker membership.EligibilityChecker) IdentityOption {
	return func(ic *IdentityClient) { ic.fallback = checker }
}

func NewIdentityClient(baseURL string, opts ...IdentityOption) *IdentityClient {
	c := &IdentityClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 5 * time.Second},
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "identity",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	})
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Verify fetches the verification state. An unknown patron is reported as not verified.
func (c *IdentityClient) Verify(ctx context.Context, barcode string) (*Verification, error) {
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.fetch(ctx, barcode)
	})
	if err != nil {
		return nil, err
	}
	return out.(*Verification), nil
}

func (c *IdentityClient) fetch(ctx context.Context, barcode string) (*Verification, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/v1/verifications/%s", c.baseURL, url.PathEscape(barcode)), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return &Verification{Reason: "unknown to identity service"}, nil
	default:
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var v Verification
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return nil, fmt.Errorf("failed to decode verification: %w", err)
	}
	return &v, nil
}

// CheckEligibility rejects suspended patrons locally, then defers to the identity service.
func (c *IdentityClient) CheckEligibility(ctx context.Context, patron *domain.Patron) error {
	if patron.Suspended {
		return domain.PreconditionFailed("patron %s is suspended", patron.Barcode)
	}

	v, err := c.Verify(ctx, patron.Barcode)
	if err != nil {
		if c.fallback != nil && !errors.Is(err, context.Canceled) {
			log.Warn().Err(err).Str("patron", patron.Barcode).Msg("identity service unavailable, using fallback")
			return c.fallback.CheckEligibility(ctx, patron)
		}
		return fmt.Errorf("failed to verify identity: %w", err)
	}
	if !v.Verified {
		return domain.PreconditionFailed("patron %s is not identity verified", patron.Barcode).
			WithDetail("requirement", "identity_verification").
			WithDetail("reason", v.Reason)
	}
	return nil
}
