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

	httptransport "github.com/campus-it/helpdesk-service/internal/api/http"
	"github.com/campus-it/helpdesk-service/internal/api/http/handlers"
	"github.com/campus-it/helpdesk-service/internal/auth"
	"github.com/campus-it/helpdesk-service/internal/config"
	"github.com/campus-it/helpdesk-service/internal/events"
	"github.com/campus-it/helpdesk-service/internal/observability"
	"github.com/campus-it/helpdesk-service/internal/persistence"
	"github.com/campus-it/helpdesk-service/internal/repository"
	"github.com/campus-it/helpdesk-service/internal/service"
	"github.com/campus-it/helpdesk-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := observability.NewMetrics()
	dependencies := map[string]handlers.Pinger{}

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	var (
		ticketRepo  repository.TicketRepository
		commentRepo repository.CommentRepository
		historyRepo repository.TicketHistoryRepository
		userRepo    repository.UserRepository
	)
	if pg.Enabled() {
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
				logger.Fatal("failed to run migrations", zap.Error(err))
			}
		}
		pool := pg.PoolHandle()
		ticketRepo = repository.NewTicketRepository(pool)
		commentRepo = repository.NewCommentRepository(pool)
		historyRepo = repository.NewTicketHistoryRepository(pool)
		userRepo = repository.NewUserRepository(pool)
		dependencies["postgres"] = pg
	} else {
		memTickets := repository.NewMemoryTicketRepository()
		ticketRepo = memTickets
		historyRepo = memTickets
		commentRepo = repository.NewMemoryCommentRepository()
		userRepo = repository.NewMemoryUserRepository()
	}

	if cfg.Redis.Addr != "" {
		redis := persistence.NewRedis(ctx, cfg.Redis, cfg.App.Name, logger)
		defer redis.Close()
		userRepo = repository.NewCachedUserRepository(userRepo, redis.Client, cfg.Redis.UserCacheTTL(), logger)
		dependencies["redis"] = redis
	}

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.AccessTokenTTL())
	identity := service.NewIdentityService(service.IdentityDependencies{
		UserRepo:     userRepo,
		TokenManager: tokens,
		BcryptCost:   cfg.Auth.BcryptCost,
		Logger:       logger,
	})
	if cfg.Auth.BootstrapAdminEmail != "" && cfg.Auth.BootstrapAdminPassword != "" {
		if err := identity.EnsureAdmin(ctx, cfg.Auth.BootstrapAdminEmail, cfg.Auth.BootstrapAdminPassword); err != nil {
			logger.Fatal("failed to bootstrap admin", zap.Error(err))
		}
	}

	dispatcher := events.NewInMemoryDispatcher()
	var forwarder *events.AMQPPublisher
	if cfg.Events.AMQPURL != "" {
		forwarder, err = events.NewAMQPPublisher(cfg.Events.AMQPURL, cfg.Events.Exchange, logger)
		if err != nil {
			logger.Fatal("failed to connect rabbitmq", zap.Error(err))
		}
		defer forwarder.Close()
	}
	worker.StartEventWorkers(dispatcher, service.NewActivityLogger(dispatcher, logger), forwarder)

	store := service.NewTicketStore(service.TicketStoreDependencies{
		TicketRepo:  ticketRepo,
		CommentRepo: commentRepo,
		HistoryRepo: historyRepo,
		Users:       identity,
		Dispatcher:  dispatcher,
		Metrics:     metrics,
		Logger:      logger,
	})

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: true,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, dependencies, metrics, logger),
		Users:          handlers.NewUsersHandler(identity),
		Tickets:        handlers.NewTicketsHandler(store),
		AuthMiddleware: auth.NewAuthMiddleware(tokens, userRepo),
		Metrics:        metrics,
	})

	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.App.Addr()), zap.String("env", cfg.App.Env))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
