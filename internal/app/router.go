package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/kaskita/kaskita/internal/dues"
	"github.com/kaskita/kaskita/internal/members"
	"github.com/kaskita/kaskita/internal/notify"
	"github.com/kaskita/kaskita/internal/observability"
	"github.com/kaskita/kaskita/internal/platform/httpx"
	"github.com/kaskita/kaskita/internal/rbac"
	"github.com/kaskita/kaskita/internal/shared"
	"github.com/kaskita/kaskita/internal/summary"
	"github.com/kaskita/kaskita/internal/transactions"
	"github.com/kaskita/kaskita/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	RBACMiddleware rbac.Middleware
	Metrics        *observability.Metrics
	// RequestLogging toggles the chi access log.
	RequestLogging bool

	DuesHandler         *dues.Handler
	MembersHandler      *members.Handler
	TransactionsHandler *transactions.Handler
	SummaryHandler      *summary.Handler
	StreamHandler       *notify.StreamHandler
	PermissionsHandler  *rbac.PermissionsHandler
	JobHandler          *jobs.Handler
}

// NewRouter constructs the chi.Router with KasKita defaults.
func NewRouter(params RouterParams) http.Handler {
	if params.Logger == nil {
		params.Logger = slog.Default()
	}
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}
	if params.RequestLogging {
		r.Use(chimw.Logger)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusNotFound, http.StatusText(http.StatusNotFound), "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed), "method not allowed")
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(params.RBACMiddleware.Authenticate)

		if params.StreamHandler != nil {
			params.StreamHandler.MountRoutes(r)
		}

		r.Group(func(r chi.Router) {
			for _, mw := range RequestMiddleware(params.Config) {
				r.Use(mw)
			}
			if params.DuesHandler != nil {
				params.DuesHandler.MountRoutes(r)
			}
			if params.MembersHandler != nil {
				params.MembersHandler.MountRoutes(r)
			}
			if params.TransactionsHandler != nil {
				params.TransactionsHandler.MountRoutes(r)
			}
			if params.SummaryHandler != nil {
				params.SummaryHandler.MountRoutes(r)
			}
			if params.PermissionsHandler != nil {
				params.PermissionsHandler.MountRoutes(r)
			}
			if params.JobHandler != nil {
				r.Route("/jobs", func(r chi.Router) {
					r.Use(params.RBACMiddleware.RequireAll(shared.PermDuesConfigEdit))
					params.JobHandler.MountRoutes(r)
				})
			}
		})
	})

	return r
}
