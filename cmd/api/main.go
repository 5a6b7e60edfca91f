package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/restaurant-api/internal/api/http"
	"github.com/spec-kit/restaurant-api/internal/api/http/handlers"
	"github.com/spec-kit/restaurant-api/internal/auth"
	"github.com/spec-kit/restaurant-api/internal/config"
	"github.com/spec-kit/restaurant-api/internal/events"
	"github.com/spec-kit/restaurant-api/internal/observability"
	"github.com/spec-kit/restaurant-api/internal/persistence"
	"github.com/spec-kit/restaurant-api/internal/repository"
	"github.com/spec-kit/restaurant-api/internal/service"
	"github.com/spec-kit/restaurant-api/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	if !cfg.App.IsProduction() && cfg.Auth.UsesPlaceholderSecrets() {
		logger.Warn("using placeholder JWT secrets; set JWT_SECRET and JWT_REFRESH_SECRET")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	pool := pg.PoolHandle()
	if pool == nil {
		logger.Fatal("POSTGRES_DSN is required for the credential store")
	}
	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pool, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	healthDeps := map[string]handlers.Pinger{"postgres": pg}

	var rdb *persistence.Redis
	if cfg.Auth.RevocationEnabled || cfg.Redis.AuditStream != "" {
		rdb = persistence.NewRedis(cfg.Redis, logger)
		defer rdb.Close()
		healthDeps["redis"] = rdb
	}

	metrics := observability.NewMetrics(cfg.App.Name)
	dispatcher := events.NewInMemoryDispatcher(logger)

	audit := service.NewAuditService(dispatcher, logger, nil, "")
	if cfg.Redis.AuditStream != "" {
		audit = service.NewAuditService(dispatcher, logger, rdb.Client, cfg.Redis.AuditStream)
	}
	worker.StartAuditWorker(audit)

	tokens := auth.NewTokenManager(cfg.Auth)
	userRepo := repository.NewUserRepository(pool, cfg.Auth.BcryptCost)

	var denylist auth.Denylist
	gateOpts := []auth.GateOption{auth.WithMetrics(metrics)}
	if cfg.Auth.RevocationEnabled {
		denylist = auth.NewRedisDenylist(rdb.Client)
		gateOpts = append(gateOpts, auth.WithDenylist(denylist))
	}

	sessions := service.NewSessionService(cfg.Auth, service.SessionDependencies{
		Users:    userRepo,
		Tokens:   tokens,
		Denylist: denylist,
		Events:   dispatcher,
		Logger:   logger,
		Metrics:  metrics,
	})
	users := service.NewUserService(userRepo, dispatcher)
	gate := auth.NewGate(tokens, userRepo, logger, gateOpts...)
	cookies := auth.NewCookieManager(cfg.Auth.SecureCookies, cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL)

	app := fiber.New(fiber.Config{
		AppName:                 cfg.App.Name,
		ErrorHandler:            httptransport.ErrorHandler(logger, metrics),
		ProxyHeader:             cfg.App.ProxyHeader,
		EnableTrustedProxyCheck: len(cfg.App.TrustedProxies) > 0,
		TrustedProxies:          cfg.App.TrustedProxies,
	})
	httptransport.RegisterMiddlewares(app, httptransport.MiddlewareConfig{
		Logger:         logger,
		Metrics:        metrics,
		Timeout:        cfg.App.RequestTimeout(),
		AllowedOrigins: cfg.CORS.AllowedOrigins,
	})

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:    handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, healthDeps),
		Users:     handlers.NewUsersHandler(sessions, users, cookies),
		Gate:      gate,
		Metrics:   metrics,
		LoginRate: httptransport.RateLimit(cfg.Auth.LoginRatePerMinute, cfg.Auth.LoginBurst, logger),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
