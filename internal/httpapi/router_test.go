package httpapi_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libraengage/internal/attendance"
	"libraengage/internal/auth"
	"libraengage/internal/catalog"
	"libraengage/internal/circulation"
	"libraengage/internal/config"
	"libraengage/internal/consistency"
	"libraengage/internal/dashboard"
	"libraengage/internal/domain"
	"libraengage/internal/engagement"
	"libraengage/internal/httpapi"
	"libraengage/internal/membership"
	"libraengage/internal/ranking"
	"libraengage/internal/review"
	"libraengage/internal/store/memory"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type env struct {
	srv    *httptest.Server
	staff  string
	patron string
}

func setup(t *testing.T, ping httpapi.Ping) *env {
	st := memory.New()
	policy := config.DefaultPolicy()
	ledger := engagement.NewLedger()
	svc := httpapi.Services{
		Catalog:     catalog.NewService(st),
		Membership:  membership.NewService(st),
		Circulation: circulation.NewService(st, ledger, membership.PhotoOnFile{}, policy),
		Attendance:  attendance.NewService(st, ledger, policy),
		Engagement:  engagement.NewService(st, ledger, policy),
		Review:      review.NewService(st, ledger, policy),
		Ranking:     ranking.NewService(st, policy),
		Dashboard:   dashboard.NewService(st),
		Auditor:     consistency.NewAuditor(st),
	}
	authn := auth.NewAuthenticator("test-secret", nil)
	staff, err := authn.IssueToken("staff-1", domain.RoleStaff, time.Hour)
	require.NoError(t, err)
	patron, err := authn.IssueToken("P1", domain.RolePatron, time.Hour)
	require.NoError(t, err)

	srv := httptest.NewServer(httpapi.NewRouter(svc, authn, ping))
	t.Cleanup(srv.Close)
	return &env{srv: srv, staff: staff, patron: patron}
}

func (e *env) do(t *testing.T, method, path, token, body string, headers ...string) (int, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rd)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	if buf, _ := io.ReadAll(resp.Body); len(buf) > 0 {
		require.NoError(t, json.Unmarshal(buf, &out), string(buf))
	}
	return resp.StatusCode, out
}

func TestRouter_CirculationFlow(t *testing.T) {
	e := setup(t, nil)

	code, _ := e.do(t, http.MethodPost, "/api/v1/items", e.staff, `{"barcode":"B1","title":"Dune"}`)
	require.Equal(t, http.StatusCreated, code)
	code, _ = e.do(t, http.MethodPost, "/api/v1/patrons", e.staff, `{"barcode":"P1","name":"Ada"}`)
	require.Equal(t, http.StatusCreated, code)

	code, body := e.do(t, http.MethodPost, "/api/v1/circulation/checkout", e.patron, `{"item_barcode":"B1","patron_barcode":"P1"}`)
	require.Equal(t, http.StatusPreconditionFailed, code)
	assert.Equal(t, "precondition_failed", body["error"].(map[string]any)["code"])

	code, _ = e.do(t, http.MethodPut, "/api/v1/patrons/P1/photo", e.staff, `{"photo_url":"https://photos.example/p1.jpg"}`)
	require.Equal(t, http.StatusOK, code)

	key := uuid.NewString()
	code, _ = e.do(t, http.MethodPost, "/api/v1/circulation/checkout", e.patron, `{"item_barcode":"B1","patron_barcode":"P1"}`, "Idempotency-Key", key)
	require.Equal(t, http.StatusCreated, code)

	code, _ = e.do(t, http.MethodPost, "/api/v1/circulation/checkout", e.patron, `{"item_barcode":"B1","patron_barcode":"P2"}`)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = e.do(t, http.MethodPost, "/api/v1/circulation/checkin", e.patron, `{"item_barcode":"B1","patron_barcode":"P1"}`)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = e.do(t, http.MethodPost, "/api/v1/circulation/checkin", e.staff, `{"item_barcode":"B1","patron_barcode":"P1","bonus_points":10}`)
	require.Equal(t, http.StatusOK, code)

	now := time.Now()
	path := "/api/v1/engagement/P1/" + now.Format("2006") + "/" + now.Format("1")
	code, body = e.do(t, http.MethodGet, path, e.patron, "")
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, body["books_checked_out"])
	assert.EqualValues(t, 1, body["books_returned"])

	code, body = e.do(t, http.MethodGet, "/api/v1/admin/audit", e.staff, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["healthy"])

	code, _ = e.do(t, http.MethodGet, "/api/v1/dashboard", e.patron, "")
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = e.do(t, http.MethodGet, "/api/v1/dashboard", e.staff, "")
	assert.Equal(t, http.StatusOK, code)
}

func TestRouter_AuthAndFallbacks(t *testing.T) {
	e := setup(t, nil)

	code, body := e.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])

	code, _ = e.do(t, http.MethodGet, "/api/v1/items", "", "")
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = e.do(t, http.MethodGet, "/api/v1/nope", e.staff, "")
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = e.do(t, http.MethodPost, "/api/v1/items", e.staff, `{"barcode":""}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = e.do(t, http.MethodGet, "/api/v1/leaderboard/2025/13", e.patron, "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestRouter_PatronsReadOnlyTheirOwnRecords(t *testing.T) {
	e := setup(t, nil)
	for _, barcode := range []string{"P1", "P2"} {
		code, _ := e.do(t, http.MethodPost, "/api/v1/patrons", e.staff, `{"barcode":"`+barcode+`","name":"Patron `+barcode+`"}`)
		require.Equal(t, http.StatusCreated, code)
	}

	for _, path := range []string{
		"/api/v1/patrons/%s",
		"/api/v1/attendance/%s",
		"/api/v1/engagement/%s/2025/3",
	} {
		own := fmt.Sprintf(path, "P1")
		other := fmt.Sprintf(path, "P2")

		code, _ := e.do(t, http.MethodGet, other, e.patron, "")
		assert.Equal(t, http.StatusForbidden, code, other)

		code, _ = e.do(t, http.MethodGet, own, e.patron, "")
		assert.NotEqual(t, http.StatusForbidden, code, own)

		code, _ = e.do(t, http.MethodGet, other, e.staff, "")
		assert.NotEqual(t, http.StatusForbidden, code, other)
	}
}

func TestRouter_HealthzReportsStoreFailure(t *testing.T) {
	e := setup(t, func(context.Context) error { return errors.New("down") })

	code, body := e.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unavailable", body["status"])
}
