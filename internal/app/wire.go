package app

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kaskita/kaskita/internal/dues"
	"github.com/kaskita/kaskita/internal/ledger"
	"github.com/kaskita/kaskita/internal/members"
	"github.com/kaskita/kaskita/internal/notify"
	"github.com/kaskita/kaskita/internal/observability"
	"github.com/kaskita/kaskita/internal/rbac"
	"github.com/kaskita/kaskita/internal/summary"
	"github.com/kaskita/kaskita/internal/transactions"
	"github.com/kaskita/kaskita/jobs"
)

// Dependencies are the infrastructure handles the API is assembled from.
type Dependencies struct {
	Logger      *slog.Logger
	Config      *Config
	Store       ledger.Store
	Redis       *redis.Client
	Idempotency dues.IdempotencyStore
	Loader      rbac.PrincipalLoader
	Metrics     *observability.Metrics
	// Queue receives mutation events. Without it events are published to
	// the broker in-process.
	Queue notify.Notifier
	// Audit records every mutation when set.
	Audit notify.Notifier
	// JobInspector backs the queue health endpoint when set.
	JobInspector jobs.QueueInspector
	// Now overrides the clock of every service.
	Now func() time.Time
}

// API bundles the wired services behind the HTTP router.
type API struct {
	Handler      http.Handler
	Dues         *dues.Service
	Members      *members.Service
	Transactions *transactions.Service
	Summary      *summary.Service
	Broker       *notify.Broker
}

// BuildAPI wires services, notification fan-out and handlers.
func BuildAPI(deps Dependencies) *API {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config
	if cfg == nil {
		cfg = &Config{}
	}
	ttl := cfg.SummaryCacheTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}

	cache := summary.NewCache(deps.Redis, ttl)
	broker := notify.NewBroker(deps.Redis, nil, logger)
	delivery := deps.Queue
	if delivery == nil {
		delivery = broker
	}
	notifier := notify.Fanout{cache, delivery}
	if deps.Audit != nil {
		notifier = append(notifier, deps.Audit)
	}

	duesService := dues.NewService(deps.Store, notifier, logger)
	if deps.Idempotency != nil {
		duesService.SetIdempotencyStore(deps.Idempotency)
	}
	if deps.Metrics != nil {
		duesService.SetRecorder(deps.Metrics)
	}
	if cfg.BulkConcurrency > 0 {
		duesService.SetBulkConcurrency(cfg.BulkConcurrency)
	}
	membersService := members.NewService(deps.Store, notifier, logger)
	transactionsService := transactions.NewService(deps.Store, notifier, logger)
	summaryService := summary.NewService(deps.Store, duesService, cache)
	if deps.Now != nil {
		duesService.SetClock(deps.Now)
		membersService.SetClock(deps.Now)
		transactionsService.SetClock(deps.Now)
		summaryService.SetClock(deps.Now)
	}

	mw := rbac.Middleware{Loader: deps.Loader, Logger: logger}
	params := RouterParams{
		Logger:              logger,
		Config:              cfg,
		RBACMiddleware:      mw,
		Metrics:             deps.Metrics,
		RequestLogging:      !InTestMode(),
		DuesHandler:         dues.NewHandler(logger, duesService, mw),
		MembersHandler:      members.NewHandler(logger, membersService, mw),
		TransactionsHandler: transactions.NewHandler(logger, transactionsService, mw),
		SummaryHandler:      summary.NewHandler(logger, summaryService, mw),
		PermissionsHandler:  rbac.NewPermissionsHandler(),
		JobHandler:          jobs.NewHandler(deps.JobInspector, logger),
	}
	if deps.Redis != nil {
		params.StreamHandler = notify.NewStreamHandler(broker, logger, mw)
	}

	return &API{
		Handler:      NewRouter(params),
		Dues:         duesService,
		Members:      membersService,
		Transactions: transactionsService,
		Summary:      summaryService,
		Broker:       broker,
	}
}
