package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	_ "go.uber.org/automaxprocs"
	"go.uber.org/zap"

	httptransport "github.com/itsm-core/incident-engine/internal/api/http"
	"github.com/itsm-core/incident-engine/internal/api/http/handlers"
	"github.com/itsm-core/incident-engine/internal/auth"
	"github.com/itsm-core/incident-engine/internal/config"
	"github.com/itsm-core/incident-engine/internal/events"
	"github.com/itsm-core/incident-engine/internal/observability"
	"github.com/itsm-core/incident-engine/internal/persistence"
	"github.com/itsm-core/incident-engine/internal/repository"
	"github.com/itsm-core/incident-engine/internal/service"
	"github.com/itsm-core/incident-engine/internal/templates"
	"github.com/itsm-core/incident-engine/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.App, cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := persistence.OpenPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}

	var (
		store  repository.Store
		seeder service.MemberSeeder
	)
	if pool != nil {
		defer pool.Close()
		if cfg.Postgres.RunMigrations {
			if err := persistence.Migrate(ctx, pool, logger); err != nil {
				logger.Fatal("failed to run migrations", zap.Error(err))
			}
		}
		store = repository.NewPostgresStore(pool, cfg.Postgres.QueryTimeout())
	} else {
		mem, err := persistence.NewMemoryStore()
		if err != nil {
			logger.Fatal("failed to init memory store", zap.Error(err))
		}
		store, seeder = mem, mem
	}

	var (
		ticketNumbers repository.TicketNumberGenerator
		redisProbe    handlers.Pinger
	)
	if redis, err := persistence.OpenRedis(ctx, cfg.Redis, logger); err != nil {
		logger.Warn("redis unavailable; ticket numbers issued in-process", zap.Error(err))
		ticketNumbers = persistence.NewMemoryTicketNumbers()
	} else {
		defer redis.Close()
		ticketNumbers = persistence.NewRedisTicketNumbers(redis)
		redisProbe = redis
	}

	catalog, err := templates.LoadCatalog(cfg.Workflow.TemplatesFile)
	if err != nil {
		logger.Fatal("failed to load workflow templates", zap.Error(err))
	}
	registry := templates.NewRegistry(catalog)
	logger.Info("workflow templates loaded", zap.Int("count", len(registry.List())))

	dispatcher := events.NewInMemoryDispatcher()
	metrics := observability.NewMetrics()
	metrics.ObserveEvents(dispatcher, events.EventTypes...)
	notificationService := service.NewNotificationService(dispatcher, logger, cfg.Notification)
	notifier := worker.NewNotificationWorker(cfg.Notification, logger)
	notificationService.RegisterHandlers(notifier.Wrap)
	notifier.Start()

	workflowService := service.NewWorkflowService(*cfg, service.WorkflowDependencies{
		Store:      store,
		Registry:   registry,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	incidentService := service.NewIncidentService(*cfg, service.IncidentDependencies{
		Store:         store,
		TicketNumbers: ticketNumbers,
		Registry:      registry,
		Workflows:     workflowService,
		Dispatcher:    dispatcher,
		Logger:        logger,
	})
	analyticsService := service.NewAnalyticsService(*cfg, service.AnalyticsDependencies{
		Store:  store,
		Logger: logger,
	})
	authService := service.NewAuthService(*cfg, service.AuthDependencies{
		Directory: store.Directory(),
		Logger:    logger,
	})
	if _, err := authService.EnsureBootstrapAdmin(ctx, seeder); err != nil {
		logger.Fatal("failed to seed bootstrap admin", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(authService.TokenManager(), store.Directory())

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout(), cfg.RateLimit)

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:       handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, store, redisProbe, metrics),
		Auth:         handlers.NewAuthHandler(authService),
		Incidents:    handlers.NewIncidentsHandler(incidentService),
		Workflows:    handlers.NewWorkflowsHandler(workflowService, analyticsService),
		Authenticate: authenticator.Authenticate,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.Shutdown(); err != nil {
		logger.Warn("fiber shutdown", zap.Error(err))
	}
	notifier.Stop()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
