package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/firmdesk/firmdesk/cmd/firmdesk/cli"
	"github.com/firmdesk/firmdesk/internal/app"
	"github.com/firmdesk/firmdesk/internal/audit"
	audithttp "github.com/firmdesk/firmdesk/internal/audit/http"
	"github.com/firmdesk/firmdesk/internal/auth"
	"github.com/firmdesk/firmdesk/internal/authz"
	"github.com/firmdesk/firmdesk/internal/clients"
	"github.com/firmdesk/firmdesk/internal/identity"
	"github.com/firmdesk/firmdesk/internal/observability"
	"github.com/firmdesk/firmdesk/internal/platform/cache"
	"github.com/firmdesk/firmdesk/internal/platform/db"
	"github.com/firmdesk/firmdesk/internal/shared"
	"github.com/firmdesk/firmdesk/internal/tenant"
	"github.com/firmdesk/firmdesk/internal/users"
	"github.com/firmdesk/firmdesk/jobs"
)

const sessionCookie = "firmdesk_session"

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Default().Warn("load .env", slog.Any("error", err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)
	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}

	if len(os.Args) > 1 && os.Args[1] == "jobs" {
		os.Exit(cli.RunJobs(ctx, redisOpts, cfg.AuditRetention, os.Args[2:], os.Stdout))
	}

	tenant.Configure(tenant.Scoping{Enabled: cfg.MultiTenancyEnabled})

	dbpool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, sessionCookie, cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	directory := identity.NewDirectory(identity.NewPGStore(dbpool), redisClient, cfg.IdentityCacheTTL, logger)
	issuer := identity.NewIssuer(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	resolver := identity.Chain(
		identity.NewJWTResolver(cfg.JWTSecret, cfg.JWTIssuer).WithDirectory(directory),
		identity.NewSessionResolver(sessionManager, directory),
	)

	metrics := observability.NewMetrics()

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
	publisher := jobs.NewAuditPublisher(jobClient, logger)
	defer publisher.Wait()

	authzMiddleware := authz.Middleware{Logger: logger, Metrics: metrics, Denials: publisher}

	authService := auth.NewService(auth.NewRepository(dbpool), issuer)
	authHandler := auth.NewHandler(logger, authService, sessionManager, publisher)

	usersService := users.NewService(users.NewRepository(dbpool), directory, publisher, logger)
	usersHandler := users.NewHandler(logger, usersService, authzMiddleware)

	clientsService := clients.NewService(clients.NewRepository(dbpool), shared.NewIdempotencyStore(dbpool), publisher, logger)
	clientsHandler := clients.NewHandler(logger, clientsService, authzMiddleware)

	auditHandler := audithttp.NewHandler(logger, audit.NewService(audit.NewRepository(dbpool)), authzMiddleware)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		Resolver:       resolver,
		Authz:          authzMiddleware,
		AuthHandler:    authHandler,
		AuthzHandler:   authz.NewHandler(logger, authzMiddleware),
		UsersHandler:   usersHandler,
		ClientsHandler: clientsHandler,
		AuditHandler:   auditHandler,
		JobHandler:     jobHandler,
		Metrics:        metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server",
			slog.String("addr", cfg.AppAddr),
			slog.Bool("multi_tenancy", tenant.IsMultiTenancyEnabled()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("http server", slog.Any("error", err))
		os.Exit(1)
	}
}
