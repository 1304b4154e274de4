package dues

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/kaskita/kaskita/internal/platform/httpx"
	"github.com/kaskita/kaskita/internal/rbac"
	"github.com/kaskita/kaskita/internal/shared"
)

// IdempotencyHeader carries the client supplied replay key of a payment request.
const IdempotencyHeader = "Idempotency-Key"

// Handler exposes dues and payment endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	rbac     rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, validate: httpx.NewValidator(), rbac: rbac}
}

// MountRoutes registers dues and payment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermLedgerView))
		r.Get("/dues/status", h.grid)
		r.Get("/dues/arrears", h.orgArrears)
		r.Get("/dues/arrears/trend", h.trend)
		r.Get("/dues/members/{id}/arrears", h.memberArrears)
		r.Get("/dues/{id}", h.getDues)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermPersonalView))
		r.Get("/me/arrears", h.myArrears)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermLedgerEdit))
		r.Post("/dues", h.createDues)
		r.Delete("/dues/{id}", h.deleteDues)
		r.Post("/dues/bulk", h.bulkManage)
		r.Post("/dues/bulk-pay", h.bulkPay)
		r.Post("/payments", h.recordPayment)
		r.Delete("/payments/{id}", h.deletePayment)
	})
}

func (h *Handler) createDues(w http.ResponseWriter, r *http.Request) {
	principal, err := httpx.CurrentPrincipal(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in CreateDuesInput
	if err := h.decode(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	detail, err := h.service.CreateDues(r.Context(), principal, in)
	if err != nil {
		h.fail(w, "create dues", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, detail)
}

func (h *Handler) getDues(w http.ResponseWriter, r *http.Request) {
	principal, err := httpx.CurrentPrincipal(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, err := httpx.URLParamUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	detail, err := h.service.GetDues(r.Context(), principal, id)
	if err != nil {
		h.fail(w, "get dues", err)
		return
	}
	httpx.JSON(w, http.StatusOK, detail)
}

func (h *Handler) deleteDues(w http.ResponseWriter, r *http.Request) {
	principal, err := httpx.CurrentPrincipal(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, err := httpx.URLParamUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	cascade, err := httpx.QueryBool(r, "cascade")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.DeleteDues(r.Context(), principal, id, cascade)
	if err != nil {
		h.fail(w, "delete dues", err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) bulkManage(w http.ResponseWriter, r *http.Request) {
	principal, err := httpx.CurrentPrincipal(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in BulkManageInput
	if err := h.decode(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.BulkManage(r.Context(), principal, in)
	if err != nil {
		h.fail(w, "bulk manage dues", err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) bulkPay(w http.ResponseWriter, r *http.Request) {
	principal, err := httpx.CurrentPrincipal(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in BulkPayInput
	if err := h.decode(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.BulkPay(r.Context(), principal, in)
	if err != nil {
		h.fail(w, "bulk pay dues", err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	principal, err := httpx.CurrentPrincipal(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in RecordPaymentInput
	if err := h.decode(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	key := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
	res, err := h.service.RecordPayment(r.Context(), principal, in, key)
	if err != nil {
		h.fail(w, "record payment", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, res)
}

func (h *Handler) deletePayment(w http.ResponseWriter, r *http.Request) {
	principal, err := httpx.CurrentPrincipal(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, err := httpx.URLParamUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	status, err := h.service.DeletePayment(r.Context(), principal, id)
	if err != nil {
		h.fail(w, "delete payment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, status)
}

func (h *Handler) grid(w http.ResponseWriter, r *http.Request) {
	principal, err := httpx.CurrentPrincipal(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	year, err := httpx.QueryInt(r, "year", shared.PeriodOf(h.service.now()).Year)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	grid, err := h.service.Grid(r.Context(), principal, year)
	if err != nil {
		h.fail(w, "dues grid", err)
		return
	}
	httpx.JSON(w, http.StatusOK, grid)
}

func (h *Handler) orgArrears(w http.ResponseWriter, r *http.Request) {
	principal, err := httpx.CurrentPrincipal(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	from, err := httpx.QueryPeriod(r, "from")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	to, err := httpx.QueryPeriod(r, "to")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	total, err := h.service.OrgArrears(r.Context(), principal, from, to)
	if err != nil {
		h.fail(w, "org arrears", err)
		return
	}
	httpx.JSON(w, http.StatusOK, total)
}

func (h *Handler) trend(w http.ResponseWriter, r *http.Request) {
	principal, err := httpx.CurrentPrincipal(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	months, err := httpx.QueryInt(r, "months", DefaultTrendMonths)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	semantic, err := ParseSemantic(r.URL.Query().Get("semantic"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	trend, err := h.service.Trend(r.Context(), principal, months, semantic)
	if err != nil {
		h.fail(w, "arrears trend", err)
		return
	}
	httpx.JSON(w, http.StatusOK, trend)
}

func (h *Handler) memberArrears(w http.ResponseWriter, r *http.Request) {
	principal, err := httpx.CurrentPrincipal(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, err := httpx.URLParamUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	arrears, err := h.service.MemberArrears(r.Context(), principal, id)
	if err != nil {
		h.fail(w, "member arrears", err)
		return
	}
	httpx.JSON(w, http.StatusOK, arrears)
}

func (h *Handler) myArrears(w http.ResponseWriter, r *http.Request) {
	principal, err := httpx.CurrentPrincipal(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	arrears, err := h.service.MyArrears(r.Context(), principal)
	if err != nil {
		h.fail(w, "my arrears", err)
		return
	}
	httpx.JSON(w, http.StatusOK, arrears)
}

func (h *Handler) decode(r *http.Request, target any) error {
	if err := httpx.DecodeJSON(r, target); err != nil {
		return err
	}
	return httpx.Validate(h.validate, target)
}

// fail logs unexpected errors before mapping them to a problem response.
func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if !shared.IsExpected(err) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
