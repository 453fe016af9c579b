package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/stockpile-ims/stockpile/internal/app"
	"github.com/stockpile-ims/stockpile/internal/audit"
	"github.com/stockpile-ims/stockpile/internal/auth"
	"github.com/stockpile-ims/stockpile/internal/inventory"
	"github.com/stockpile-ims/stockpile/internal/issues"
	"github.com/stockpile-ims/stockpile/internal/masterdata/companies"
	"github.com/stockpile-ims/stockpile/internal/masterdata/products"
	"github.com/stockpile-ims/stockpile/internal/masterdata/suppliers"
	"github.com/stockpile-ims/stockpile/internal/masterdata/warehouses"
	"github.com/stockpile-ims/stockpile/internal/observability"
	"github.com/stockpile-ims/stockpile/internal/platform/cache"
	"github.com/stockpile-ims/stockpile/internal/platform/db"
	"github.com/stockpile-ims/stockpile/internal/procurement"
	"github.com/stockpile-ims/stockpile/internal/rbac"
	"github.com/stockpile-ims/stockpile/internal/reports"
	"github.com/stockpile-ims/stockpile/internal/shared"
	"github.com/stockpile-ims/stockpile/jobs"
	"github.com/stockpile-ims/stockpile/report"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "stockpile_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	auditLogger := shared.NewAuditLogger(dbpool)
	approvalRecorder := shared.NewApprovalRecorder(dbpool, logger)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)

	rbacService := rbac.NewService(dbpool)
	rbacMiddleware := rbac.Middleware{Service: rbacService, Logger: logger}
	roleHandler := rbac.NewHandler(logger, rbacService, rbacMiddleware)

	// Keep the permission catalog in sync with the scopes the routes check.
	for _, scope := range shared.InventoryScopes() {
		if _, err := rbacService.EnsurePermission(ctx, scope, ""); err != nil {
			logger.Error("sync permission", slog.String("permission", scope), slog.Any("error", err))
			os.Exit(1)
		}
	}

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(authRepo)
	authHandler := auth.NewHandler(logger, authService, sessionManager, csrfManager, rbacService)

	productService := products.NewService(products.NewRepository(dbpool))
	productHandler := products.NewHandler(logger, productService, rbacMiddleware)
	warehouseService := warehouses.NewService(warehouses.NewRepository(dbpool))
	warehouseHandler := warehouses.NewHandler(logger, warehouseService, rbacMiddleware)
	supplierService := suppliers.NewService(suppliers.NewRepository(dbpool))
	supplierHandler := suppliers.NewHandler(logger, supplierService, rbacMiddleware)
	companyService := companies.NewService(companies.NewRepository(dbpool))
	companyHandler := companies.NewHandler(logger, companyService, rbacMiddleware)

	reportsCache := reports.NewCache(redisClient, 10*time.Minute)
	reportsService := reports.NewService(dbpool, reportsCache, cfg.LowStockThreshold, logger)

	inventoryRepo := inventory.NewRepository(dbpool)
	inventoryService := inventory.NewService(dbpool, inventoryRepo, auditLogger, idempotencyStore, reportsService, logger)
	inventoryHandler := inventory.NewHandler(logger, inventoryService, rbacMiddleware)

	reportClient := report.NewClient(cfg.GotenbergURL)
	if err := reportClient.Ping(ctx); err != nil {
		logger.Warn("gotenberg ping", slog.Any("error", err))
	}

	issueRepo := issues.NewRepository(dbpool)
	issueService := issues.NewService(dbpool, issueRepo, inventoryService, approvalRecorder, auditLogger, idempotencyStore, reportsService, logger)
	issueHandler := issues.NewHandler(logger, issueService, issues.NewRenderer(reportClient), rbacMiddleware)

	procurementRepo := procurement.NewRepository(dbpool)
	procurementService := procurement.NewService(dbpool, procurementRepo, inventoryService, approvalRecorder, auditLogger, idempotencyStore, reportsService, logger)
	procurementHandler := procurement.NewHandler(logger, procurementService, procurement.NewRenderer(reportClient), rbacMiddleware)

	reportsHandler := reports.NewHandler(logger, reportsService, reports.NewRenderer(reportClient), rbacMiddleware)

	auditHandler := audit.NewHandler(logger, audit.NewRepository(dbpool), rbacMiddleware)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, jobClient, rbacMiddleware, logger)

	metrics := observability.NewMetrics()

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		SessionManager: sessionManager,
		CSRFManager:    csrfManager,
		Metrics:        metrics,

		AuthHandler:        authHandler,
		RoleHandler:        roleHandler,
		ProductHandler:     productHandler,
		WarehouseHandler:   warehouseHandler,
		SupplierHandler:    supplierHandler,
		CompanyHandler:     companyHandler,
		InventoryHandler:   inventoryHandler,
		IssueHandler:       issueHandler,
		ProcurementHandler: procurementHandler,
		ReportsHandler:     reportsHandler,
		AuditHandler:       auditHandler,
		JobHandler:         jobHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
