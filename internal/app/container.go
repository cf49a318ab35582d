package app

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/backoffice/internal/accessrights"
	"github.com/odyssey-erp/backoffice/internal/apiclient"
	"github.com/odyssey-erp/backoffice/internal/audit"
	"github.com/odyssey-erp/backoffice/internal/datacache"
	"github.com/odyssey-erp/backoffice/internal/groups"
	"github.com/odyssey-erp/backoffice/internal/i18n"
	"github.com/odyssey-erp/backoffice/internal/observability"
	"github.com/odyssey-erp/backoffice/internal/permissions"
	"github.com/odyssey-erp/backoffice/internal/rbac"
	"github.com/odyssey-erp/backoffice/internal/shared"
	"github.com/odyssey-erp/backoffice/internal/users"
	"github.com/odyssey-erp/backoffice/internal/view"
	"github.com/odyssey-erp/backoffice/jobs"
)

// Dependencies are the external resources the web tier runs against.
type Dependencies struct {
	Redis *redis.Client
	// Tasks receives audit tasks. Nil disables auditing.
	Tasks     audit.TaskEnqueuer
	Inspector *asynq.Inspector
	// Transport overrides the outbound API transport, mainly for tests.
	Transport http.RoundTripper
}

// Build wires every component of the web tier and returns its router.
func Build(cfg *Config, logger *slog.Logger, deps Dependencies) (http.Handler, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app: config required")
	}
	if deps.Redis == nil {
		return nil, fmt.Errorf("app: redis client required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	tr := i18n.New(cfg.DisplayLanguage)
	metrics := observability.NewMetrics()

	templates, err := view.NewEngine(tr)
	if err != nil {
		return nil, fmt.Errorf("app: parse templates: %w", err)
	}

	api := apiclient.New(apiclient.Options{
		BaseURL:   cfg.APIBaseURL,
		Timeout:   cfg.APITimeout,
		Telemetry: cfg.EnableTelemetry,
		Transport: deps.Transport,
	})
	cache := datacache.New(deps.Redis, api, cfg.DataCacheTTL, logger)

	registry := permissions.NewRegistry(
		permissions.NewHTTPChecker(api, cfg.PermissionCheckPath),
		permissions.DefaultCatalog(),
		cfg.SessionStateSize,
		cfg.SessionStateTTL,
		permissions.Options{
			Concurrency: cfg.PermissionCheckConcurrency,
			Logger:      logger,
			Recorder:    metrics,
		},
	)
	rbacMiddleware := rbac.Middleware{Registry: registry, Logger: logger}

	auditQueue := audit.NewQueue(deps.Tasks, cfg.AuditQueue, logger)

	sessionManager := shared.NewSessionManager(deps.Redis, cfg.SessionCookie, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	usersService := users.NewService(users.ServiceConfig{
		API:   api,
		Cache: cache,
		URLs: users.URLs{
			List:          cfg.UsersListPath,
			Create:        cfg.UsersCreatePath,
			ChangeRole:    cfg.UsersChangeRolePath,
			UpdateManager: cfg.UsersUpdateManagerPath,
			UpdateStatus:  cfg.UsersUpdateStatusPath,
			Delete:        cfg.UsersDeletePath,
		},
		Audit:   auditQueue,
		Metrics: metrics,
		Logger:  logger,
	})
	boards := users.NewBoards(cfg.SessionStateSize, cfg.SessionStateTTL, func() *users.Board {
		return users.NewBoard(usersService, tr, logger)
	})
	groupsService := groups.NewService(cache, cfg.GroupsListPath)

	router := NewRouter(RouterParams{
		Logger:              logger,
		Config:              cfg,
		SessionManager:      sessionManager,
		CSRFManager:         csrfManager,
		UsersHandler:        users.NewHandler(logger, usersService, boards, registry, groupsService, templates, csrfManager, tr, rbacMiddleware, cfg.UsersRecordsPerPage),
		GroupsHandler:       groups.NewHandler(logger, groupsService, registry, templates, csrfManager, tr),
		AccessRightsHandler: accessrights.NewHandler(logger, accessrights.NewClient(api, cfg.AccessRightsPath), registry, auditQueue, templates, csrfManager, tr, rbacMiddleware),
		PermissionsHandler:  rbac.NewPermissionsHandler(logger, registry, tr),
		JobHandler:          jobs.NewHandler(deps.Inspector, logger, cfg.AuditQueue),
		Metrics:             metrics,
	})
	return router, nil
}
