package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"

	"budgetbee/internal/amqp"
	"budgetbee/internal/cache"
	"budgetbee/internal/cli"
	apphttp "budgetbee/internal/http"
	applog "budgetbee/internal/log"
	"budgetbee/internal/services"
)

const memorySpentEntries = 1000

func main() {
	cli.LoadEnvFile()

	bootstrap := cli.SetupLogger(os.Getenv("LOG_LEVEL"), nil)
	cfg := cli.LoadAndValidateConfig(bootstrap)
	logger := cli.SetupLogger(cfg.LogLevel, nil)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()
	logger.Info("SQLite ledger ready", "path", cfg.SQLiteDBPath)

	// Spent cache: Redis when configured, in-process otherwise.
	var spent cache.SpentCache
	cacheManager := cache.NewManager(logger.Slog())
	if cfg.RedisURL != "" {
		rc, err := cache.NewRedisSpentCache(context.Background(), cfg.RedisURL, cfg.SpentCacheTTL, logger.Slog())
		if err != nil {
			logger.Error("Failed to connect to Redis", applog.FieldError, err)
			os.Exit(1)
		}
		spent = rc
		logger.Info("Redis spent cache enabled", "ttl", cfg.SpentCacheTTL.String())
	} else {
		mc := cache.NewMemorySpentCache(memorySpentEntries, cfg.SpentCacheTTL)
		cacheManager.Register(mc)
		cacheManager.StartCleanup(cfg.SpentCacheTTL)
		spent = mc
		logger.Info("In-process spent cache enabled", "ttl", cfg.SpentCacheTTL.String())
	}
	defer spent.Close()
	defer cacheManager.Stop()

	// Transaction events for watchers, optional.
	var publisher services.EventPublisher
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, "", logger.Slog())
		if err != nil {
			logger.Error("Failed to initialize AMQP client", applog.FieldError, err)
			os.Exit(1)
		}
		defer amqpClient.Close()
		publisher = amqpClient
		logger.Info("AMQP publisher ready", "exchange", cfg.AMQPExchange)
	} else {
		logger.Info("AMQP disabled - no AMQP_URL provided, watchers will not see live changes")
	}

	txs := services.NewTransactionService(repo, spent, publisher, logger.Slog())
	svc := apphttp.Services{
		Transactions: txs,
		Budgets:      services.NewBudgetService(repo, spent, logger.Slog()),
		Categories:   services.NewCategoryService(repo),
		Accounts:     services.NewAccountService(repo, txs),
	}

	srv, err := apphttp.NewServer(net.JoinHostPort("", cfg.Port), svc, apphttp.Options{
		RequestsPerMinute: cfg.RateLimit,
		TrustedProxies:    cfg.TrustedProxies,
		Logger:            logger,
		Ready:             repo.Ping,
	})
	if err != nil {
		logger.Error("Failed to configure HTTP server", applog.FieldError, err)
		os.Exit(1)
	}

	ctx, done := cli.GracefulShutdown(logger, cfg.ShutdownTimeout, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
	})

	logger.Info("Starting budgetbee server", "port", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
