package members

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/kaskita/kaskita/internal/ledger"
	"github.com/kaskita/kaskita/internal/ledger/ledgertest"
	"github.com/kaskita/kaskita/internal/notify"
	"github.com/kaskita/kaskita/internal/rbac"
	"github.com/kaskita/kaskita/internal/shared"
)

var fixedNow = time.Date(2024, time.May, 1, 9, 0, 0, 0, time.UTC)

func newTestService() (*Service, *ledgertest.Memory, *[]notify.Event) {
	store := ledgertest.New()
	var events []notify.Event
	n := notify.NotifierFunc(func(_ context.Context, ev notify.Event) error {
		events = append(events, ev)
		return nil
	})
	svc := NewService(store, n, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.SetClock(func() time.Time { return fixedNow })
	return svc, store, &events
}

func admin() shared.Principal {
	return shared.Principal{UserID: uuid.New(), OrganizationID: uuid.New(), Role: shared.RoleAdmin}
}

func TestCreateAndUpdateMember(t *testing.T) {
	svc, _, events := newTestService()
	actor := admin()
	ctx := context.Background()

	m, err := svc.Create(ctx, actor, CreateMemberInput{FullName: "  Ratna  ", Email: "ratna@example.com"})
	require.NoError(t, err)
	require.Equal(t, "Ratna", m.FullName)
	require.True(t, m.IsActive)
	require.Equal(t, fixedNow, m.JoinedAt)
	require.Equal(t, actor.OrganizationID, m.OrganizationID)

	inactive := false
	updated, err := svc.Update(ctx, actor, m.ID, UpdateMemberInput{IsActive: &inactive})
	require.NoError(t, err)
	require.False(t, updated.IsActive)
	require.Equal(t, "Ratna", updated.FullName)

	blank := " "
	_, err = svc.Update(ctx, actor, m.ID, UpdateMemberInput{FullName: &blank})
	require.ErrorIs(t, err, shared.ErrValidation)

	require.Len(t, *events, 2)
	require.Equal(t, notify.EventMemberSaved, (*events)[0].Type)
	require.Equal(t, actor.OrganizationID, (*events)[0].OrganizationID)
}

func TestMembersAreScopedToOrganization(t *testing.T) {
	svc, _, _ := newTestService()
	a, b := admin(), admin()
	ctx := context.Background()

	m, err := svc.Create(ctx, a, CreateMemberInput{FullName: "Sinta"})
	require.NoError(t, err)

	_, err = svc.Get(ctx, b, m.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)

	list, err := svc.List(ctx, b, ListInput{})
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestListFiltersActiveAndSearch(t *testing.T) {
	svc, _, _ := newTestService()
	actor := admin()
	ctx := context.Background()
	inactive := false
	for _, in := range []CreateMemberInput{
		{FullName: "Bambang"},
		{FullName: "Ani"},
		{FullName: "Bayu", IsActive: &inactive},
	} {
		_, err := svc.Create(ctx, actor, in)
		require.NoError(t, err)
	}

	all, err := svc.List(ctx, actor, ListInput{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "Ani", all[0].FullName)

	active, err := svc.List(ctx, actor, ListInput{ActiveOnly: true, Search: "ba"})
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, "Bambang", active[0].FullName)
}

func TestDuesConfigFallbackAndUpsert(t *testing.T) {
	svc, _, _ := newTestService()
	actor := admin()
	ctx := context.Background()

	cfg, err := svc.Config(ctx, actor)
	require.NoError(t, err)
	require.True(t, cfg.IsDefault)
	require.Equal(t, ledger.DefaultDuesAmount, cfg.Amount)

	_, err = svc.UpsertConfig(ctx, actor, UpsertConfigInput{Amount: 0})
	require.ErrorIs(t, err, shared.ErrValidation)

	saved, err := svc.UpsertConfig(ctx, actor, UpsertConfigInput{Amount: 75000})
	require.NoError(t, err)
	require.Equal(t, int64(75000), saved.Amount)

	cfg, err = svc.Config(ctx, actor)
	require.NoError(t, err)
	require.False(t, cfg.IsDefault)
	require.Equal(t, int64(75000), cfg.Amount)
}

func TestHandlerConfigRequiresAdmin(t *testing.T) {
	svc, _, _ := newTestService()
	treasurer := shared.Principal{UserID: uuid.New(), OrganizationID: uuid.New(), Role: shared.RoleTreasurer}

	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc, rbac.Middleware{})
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(shared.ContextWithPrincipal(req.Context(), &treasurer)))
		})
	})
	h.MountRoutes(r)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPut, "/dues-config", bytes.NewBufferString(`{"amount":60000}`)))
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/dues-config", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/members", bytes.NewBufferString(`{"fullName":"Tari","email":"nope"}`)))
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/members", bytes.NewBufferString(`{"fullName":"Tari"}`)))
	require.Equal(t, http.StatusCreated, rr.Code)
	var created ledger.Member
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPatch, "/members/"+created.ID.String(), bytes.NewBufferString(`{"isActive":false}`)))
	require.Equal(t, http.StatusOK, rr.Code)
}
