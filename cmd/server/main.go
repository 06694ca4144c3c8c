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

	"aquasense/internal/auth"
	"aquasense/internal/cache"
	"aquasense/internal/config"
	"aquasense/internal/devices"
	"aquasense/internal/http_server/router"
	sl "aquasense/internal/lib/logger"
	"aquasense/internal/lib/validation"
	"aquasense/internal/rabbitmq"
	"aquasense/internal/reaper"
	"aquasense/internal/storage/postgres"
	"aquasense/internal/tokens"
	"aquasense/internal/users"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	cfg := config.MustLoad(configPath())

	log := setupLogger(cfg.Env)

	log.Info("starting aquasense", slog.String("env", cfg.Env))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	storage, err := postgres.New(ctx, cfg)
	if err != nil {
		log.Error("failed to connect to postgres", sl.Err(err))
		os.Exit(1)
	}
	defer storage.Close()

	cacheStore, err := setupCache(ctx, cfg)
	if err != nil {
		log.Error("failed to set up cache", sl.Err(err))
		os.Exit(1)
	}
	defer cacheStore.Close()

	broker, err := rabbitmq.New(cfg.RabbitMQ.URL, cfg.RabbitMQ.QueueName)
	if err != nil {
		log.Error("failed to connect to rabbitmq", sl.Err(err))
		os.Exit(1)
	}
	defer broker.Close()

	tokenService, err := tokens.New(cfg.Auth.Secret, cfg.Auth.ExpiresIn, cfg.Auth.ActivationTTL)
	if err != nil {
		log.Error("failed to set up token service", sl.Err(err))
		os.Exit(1)
	}

	authService := auth.New(log, storage, storage, storage, cacheStore, tokenService,
		broker, cfg.HTTPServer.PublicURL, cfg.Auth.ActivationTTL)
	userService := users.New(log, storage, cacheStore, cfg.Cache.IdentityTTL)
	deviceService := devices.New(log, storage, cacheStore, tokenService, cfg.Cache.IdentityTTL)

	go reaper.New(log, storage, cfg.Reaper.Interval, cfg.Reaper.Grace).Run(ctx)

	handler := router.New(log, validation.New(), authService, userService, deviceService)

	srv := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", sl.Err(err))
			stop()
		}
	}()

	log.Info("server started", slog.String("address", cfg.HTTPServer.Address))

	<-ctx.Done()

	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to shut down gracefully", sl.Err(err))
	}

	log.Info("server stopped")
}

func setupCache(ctx context.Context, cfg *config.Config) (cache.Cache, error) {
	if cfg.Cache.Backend == "memory" {
		return cache.NewMemory(), nil
	}

	return cache.NewRedis(ctx, cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
}

func setupLogger(env string) *slog.Logger {
	switch env {
	case envDev:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envProd:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	default:
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
}

func configPath() string {
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		return path
	}

	return "config/config.yaml"
}
