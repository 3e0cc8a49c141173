package clients_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libraengage/internal/clients"
	"libraengage/internal/consistency"
	"libraengage/internal/domain"
	"libraengage/internal/membership"
)

func identityServer(t *testing.T, calls *int32) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		switch r.URL.Path {
		case "/v1/verifications/OK":
			_, _ = w.Write([]byte(`{"verified":true}`))
		case "/v1/verifications/NO":
			_, _ = w.Write([]byte(`{"verified":false,"reason":"document expired"}`))
		case "/v1/verifications/DOWN":
			w.WriteHeader(http.StatusBadGateway)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestIdentityClient_CheckEligibility(t *testing.T) {
	var calls int32
	c := clients.NewIdentityClient(identityServer(t, &calls).URL)
	ctx := context.Background()

	assert.NoError(t, c.CheckEligibility(ctx, &domain.Patron{Barcode: "OK"}))

	err := c.CheckEligibility(ctx, &domain.Patron{Barcode: "NO"})
	require.True(t, domain.IsKind(err, domain.KindPreconditionFailed))
	var derr *domain.Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, "document expired", derr.Details["reason"])

	err = c.CheckEligibility(ctx, &domain.Patron{Barcode: "UNKNOWN"})
	assert.True(t, domain.IsKind(err, domain.KindPreconditionFailed))

	before := atomic.LoadInt32(&calls)
	err = c.CheckEligibility(ctx, &domain.Patron{Barcode: "OK", Suspended: true})
	assert.True(t, domain.IsKind(err, domain.KindPreconditionFailed))
	assert.Equal(t, before, atomic.LoadInt32(&calls))
}

func TestIdentityClient_BreakerOpensAndFallsBack(t *testing.T) {
	var calls int32
	ctx := context.Background()
	c := clients.NewIdentityClient(identityServer(t, &calls).URL, clients.WithFallback(membership.PhotoOnFile{}))

	for i := 0; i < 5; i++ {
		assert.NoError(t, c.CheckEligibility(ctx, &domain.Patron{Barcode: "DOWN", PhotoURL: "https://photos/1"}))
	}
	assert.Equal(t, int32(5), atomic.LoadInt32(&calls))

	// Open breaker: no more remote calls, fallback still decides.
	err := c.CheckEligibility(ctx, &domain.Patron{Barcode: "DOWN"})
	assert.True(t, domain.IsKind(err, domain.KindPreconditionFailed))
	assert.Equal(t, int32(5), atomic.LoadInt32(&calls))
}

func TestIdentityClient_NoFallback(t *testing.T) {
	var calls int32
	c := clients.NewIdentityClient(identityServer(t, &calls).URL)

	err := c.CheckEligibility(context.Background(), &domain.Patron{Barcode: "DOWN"})
	require.Error(t, err)
	assert.Equal(t, domain.Kind(""), domain.KindOf(err))
}

func TestAuditClient_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"healthy":false,"results":[{"check":"negative_counters","value":2,"threshold":{"operator":"==","value":0},"passed":false}]}`))
	}))
	defer srv.Close()

	report, err := clients.NewAuditClient(srv.URL, "tok").Fetch(context.Background())
	require.NoError(t, err)
	assert.False(t, report.Healthy)
	assert.Equal(t, []consistency.Result{{
		Check:     "negative_counters",
		Value:     2,
		Threshold: consistency.Threshold{Operator: "==", Value: 0},
	}}, report.Results)

	_, err = clients.NewAuditClient(srv.URL, "").Fetch(context.Background())
	assert.Error(t, err)
}
