package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/scriptassist/masterapp/internal/app"
	"github.com/scriptassist/masterapp/internal/auth"
	"github.com/scriptassist/masterapp/internal/observability"
	"github.com/scriptassist/masterapp/internal/permissions"
	"github.com/scriptassist/masterapp/internal/platform/cache"
	"github.com/scriptassist/masterapp/internal/platform/db"
	"github.com/scriptassist/masterapp/internal/rbac"
	"github.com/scriptassist/masterapp/internal/roles"
	"github.com/scriptassist/masterapp/internal/shared"
	"github.com/scriptassist/masterapp/internal/users"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, permission cache disabled", slog.Any("error", err))
		redisClient = nil
	}
	if redisClient != nil {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	metrics := observability.NewMetrics()
	permCache := rbac.NewPermissionCache(redisClient, cfg.PermCacheTTL)

	permissionsRepo := permissions.NewRepository(pool)
	permissionsService := permissions.NewService(permissionsRepo, permCache, logger)

	rolesRepo := roles.NewRepository(pool)
	rolesService := roles.NewService(rolesRepo, permissionsService, permCache, logger)

	usersRepo := users.NewRepository(pool)
	usersService := users.NewService(usersRepo, rolesService, permCache, logger)

	authRepo := auth.NewRepository(pool)
	authService := auth.NewService(authRepo, usersService, permCache, cfg.JWTSecret, cfg.TokenTTL, logger)

	guard := rbac.Guard{
		Tokens:   authService,
		Registry: shared.NewAuthzRegistry(),
		Logger:   logger,
		Observer: metrics,
	}

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		AuthHandler:        auth.NewHandler(logger, authService, guard),
		PermissionsHandler: permissions.NewHandler(logger, permissionsService, guard),
		RolesHandler:       roles.NewHandler(logger, rolesService, permissionsService, guard),
		UsersHandler:       users.NewHandler(logger, usersService, guard),
		Metrics:            metrics,
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
