package dues

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/kaskita/kaskita/internal/platform/httpx"
	"github.com/kaskita/kaskita/internal/rbac"
	"github.com/kaskita/kaskita/internal/shared"
)

type staticLoader struct {
	principal *shared.Principal
}

func (l staticLoader) Load(context.Context, *http.Request) (*shared.Principal, error) {
	if l.principal == nil {
		return nil, shared.ErrUnauthorized
	}
	return l.principal, nil
}

func newTestRouter(f *fixture, principal *shared.Principal) http.Handler {
	mw := rbac.Middleware{Loader: staticLoader{principal: principal}}
	handler := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), f.service, mw)
	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(mw.Authenticate)
		handler.MountRoutes(r)
	})
	return r
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHandlerCreateDuesConflict(t *testing.T) {
	f := newFixture(t)
	m := f.member("Agus")
	router := newTestRouter(f, &f.admin)
	body := map[string]any{"memberId": m.ID, "month": 6, "year": 2024}

	rr := doJSON(t, router, http.MethodPost, "/api/v1/dues", body, nil)
	require.Equal(t, http.StatusCreated, rr.Code)

	var created DuesDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	require.Equal(t, 6, created.Month)
	require.Equal(t, int64(50000), created.Amount)

	rr = doJSON(t, router, http.MethodPost, "/api/v1/dues", body, nil)
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
}

func TestHandlerRejectsInvalidBody(t *testing.T) {
	f := newFixture(t)
	router := newTestRouter(f, &f.admin)

	rr := doJSON(t, router, http.MethodPost, "/api/v1/dues/bulk", map[string]any{
		"memberId": uuid.New(), "year": 2024, "selectedMonths": []int{0, 3},
	}, nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	var problem httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &problem))
	require.NotEmpty(t, problem.Errors)

	rr = doJSON(t, router, http.MethodPost, "/api/v1/dues", map[string]any{"unknown": true}, nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandlerBulkPayReturnsBatch(t *testing.T) {
	f := newFixture(t)
	m := f.member("Bayu")
	f.dues(m.ID, 2024, 1, 50000)
	router := newTestRouter(f, &f.admin)

	rr := doJSON(t, router, http.MethodPost, "/api/v1/dues/bulk-pay", map[string]any{
		"memberId": m.ID, "year": 2024, "selectedMonths": []int{1, 2}, "method": "TRANSFER",
	}, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var res BatchResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	require.Equal(t, BatchCounts{Paid: 1, Failed: 1}, res.Counts)
	require.Equal(t, FailureNotFound, res.Failed[0].Kind)
}

func TestHandlerRoleChecks(t *testing.T) {
	f := newFixture(t)
	m := f.member("Cahya")
	member := shared.Principal{UserID: uuid.New(), OrganizationID: f.org, Role: shared.RoleMember}
	router := newTestRouter(f, &member)

	rr := doJSON(t, router, http.MethodPost, "/api/v1/dues", map[string]any{"memberId": m.ID, "month": 1, "year": 2024}, nil)
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = doJSON(t, router, http.MethodGet, "/api/v1/dues/status?year=2024", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	anonymous := newTestRouter(f, nil)
	rr = doJSON(t, anonymous, http.MethodGet, "/api/v1/dues/status", nil, nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestHandlerGridSerialisesNullCells(t *testing.T) {
	f := newFixture(t)
	m := f.member("Dian")
	f.dues(m.ID, 2024, 2, 50000)
	router := newTestRouter(f, &f.admin)

	rr := doJSON(t, router, http.MethodGet, "/api/v1/dues/status?year=2024", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var raw struct {
		Rows []struct {
			Months []json.RawMessage `json:"months"`
		} `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &raw))
	require.Len(t, raw.Rows, 1)
	require.Len(t, raw.Rows[0].Months, 12)
	require.Equal(t, "null", string(raw.Rows[0].Months[0]))
	require.NotEqual(t, "null", string(raw.Rows[0].Months[1]))
}

func TestHandlerPaymentIdempotencyAndDelete(t *testing.T) {
	f := newFixture(t)
	f.service.SetIdempotencyStore(&memoryIdempotency{keys: map[string]struct{}{}})
	m := f.member("Eko")
	d := f.dues(m.ID, 2024, 1, 50000)
	router := newTestRouter(f, &f.admin)
	body := map[string]any{"duesId": d.ID, "amount": 50000}
	headers := map[string]string{IdempotencyHeader: "abc"}

	rr := doJSON(t, router, http.MethodPost, "/api/v1/payments", body, headers)
	require.Equal(t, http.StatusCreated, rr.Code)
	var res PaymentResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))

	rr = doJSON(t, router, http.MethodPost, "/api/v1/payments", body, headers)
	require.Equal(t, http.StatusConflict, rr.Code)

	rr = doJSON(t, router, http.MethodDelete, "/api/v1/dues/"+d.ID.String(), nil, nil)
	require.Equal(t, http.StatusConflict, rr.Code)

	rr = doJSON(t, router, http.MethodDelete, "/api/v1/payments/"+res.Payment.ID.String(), nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doJSON(t, router, http.MethodDelete, "/api/v1/dues/"+d.ID.String()+"?cascade=true", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
}
