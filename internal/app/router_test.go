package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/kaskita/kaskita/internal/ledger/ledgertest"
	"github.com/kaskita/kaskita/internal/notify"
	"github.com/kaskita/kaskita/internal/observability"
	"github.com/kaskita/kaskita/internal/shared"
	_ "github.com/kaskita/kaskita/internal/testing/guard"
)

type headerLoader struct {
	principals map[string]*shared.Principal
}

func (l headerLoader) Load(_ context.Context, r *http.Request) (*shared.Principal, error) {
	p, ok := l.principals[shared.BearerToken(r)]
	if !ok {
		return nil, shared.ErrUnauthorized
	}
	return p, nil
}

type env struct {
	api     *API
	metrics *observability.Metrics
	admin   shared.Principal
	member  shared.Principal
}

func newEnv(t *testing.T) *env {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	org := uuid.New()
	e := &env{
		metrics: observability.NewMetrics(),
		admin:   shared.Principal{UserID: uuid.New(), OrganizationID: org, Role: shared.RoleAdmin},
		member:  shared.Principal{UserID: uuid.New(), OrganizationID: org, Role: shared.RoleMember},
	}
	now := time.Date(2024, time.June, 15, 8, 0, 0, 0, time.UTC)
	e.api = BuildAPI(Dependencies{
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Config:  &Config{BulkConcurrency: 2, SummaryCacheTTL: time.Minute, AppRequestTimeout: 5 * time.Second},
		Store:   ledgertest.New(),
		Redis:   client,
		Loader:  headerLoader{principals: map[string]*shared.Principal{"admin": &e.admin, "member": &e.member}},
		Metrics: e.metrics,
		Now:     func() time.Time { return now },
	})
	return e
}

func (e *env) do(t *testing.T, token, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.api.Handler.ServeHTTP(rr, req)
	return rr
}

func decodeID(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var out struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.NotEmpty(t, out.ID)
	return out.ID
}

func waitForEvent(ctx context.Context, t *testing.T, sub *notify.Subscription, typ notify.EventType) notify.Event {
	t.Helper()
	for {
		select {
		case ev, ok := <-sub.Events():
			require.True(t, ok, "subscription closed")
			if ev.Type == typ {
				return ev
			}
		case <-ctx.Done():
			t.Fatalf("%s event not published", typ)
		}
	}
}

func TestHealthAndAuthentication(t *testing.T) {
	e := newEnv(t)

	rr := e.do(t, "", http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"status":"ok"}`, rr.Body.String())

	rr = e.do(t, "", http.MethodGet, "/api/v1/dues/status?year=2024", nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = e.do(t, "member", http.MethodGet, "/api/v1/me/permissions", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"role":"MEMBER"`)

	rr = e.do(t, "member", http.MethodGet, "/api/v1/jobs/health", nil)
	require.Equal(t, http.StatusForbidden, rr.Code)
	rr = e.do(t, "admin", http.MethodGet, "/api/v1/jobs/health", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = e.do(t, "admin", http.MethodGet, "/api/v1/nothing", nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
}

func TestLedgerFlowUpdatesSummaryAndNotifies(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sub, err := e.api.Broker.Subscribe(ctx, e.admin.OrganizationID)
	require.NoError(t, err)
	defer func() { _ = sub.Close() }()

	rr := e.do(t, "admin", http.MethodPost, "/api/v1/members", map[string]any{"fullName": "Ratna"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	memberID := decodeID(t, rr)

	rr = e.do(t, "admin", http.MethodGet, "/api/v1/dashboard/summary", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Contains(t, rr.Body.String(), `"unpaidTotal":0`)

	rr = e.do(t, "admin", http.MethodPost, "/api/v1/dues", map[string]any{"memberId": memberID, "month": 6, "year": 2024, "amount": 50000})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	duesID := decodeID(t, rr)

	rr = e.do(t, "member", http.MethodPost, "/api/v1/payments", map[string]any{"duesId": duesID, "amount": 20000})
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = e.do(t, "admin", http.MethodPost, "/api/v1/payments", map[string]any{"duesId": duesID, "amount": 20000})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	require.Contains(t, rr.Body.String(), `"status":"PARTIAL"`)

	rr = e.do(t, "member", http.MethodGet, "/api/v1/dashboard/summary", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var summary struct {
		DuesIncome  int64 `json:"duesIncome"`
		UnpaidTotal int64 `json:"unpaidTotal"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &summary))
	require.Equal(t, int64(20000), summary.DuesIncome)
	require.Equal(t, int64(30000), summary.UnpaidTotal)

	ev := waitForEvent(ctx, t, sub, notify.EventPaymentRecorded)
	require.Equal(t, e.admin.OrganizationID, ev.OrganizationID)
	require.True(t, strings.HasPrefix(ev.Message, "Pembayaran Rp20.000"))

	metrics := httptest.NewRecorder()
	e.metrics.Handler().ServeHTTP(metrics, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Contains(t, metrics.Body.String(), `kaskita_http_requests_total{code="201",route="/api/v1/payments"}`)
}
