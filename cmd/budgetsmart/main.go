package main

import (
	"context"
	"os"
	"time"

	"budgetsmart/internal/aggregate"
	"budgetsmart/internal/amqp"
	"budgetsmart/internal/backend"
	"budgetsmart/internal/cli"
	apphttp "budgetsmart/internal/http"
	"budgetsmart/internal/log"
	"budgetsmart/internal/sequence"
	"budgetsmart/internal/services"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, log.ComponentApp)
	ctx := context.Background()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err.Error())
		os.Exit(1)
	}
	result, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to initialize data backend", log.FieldError, err.Error(), "backend", cfg.DataBackend)
		os.Exit(1)
	}
	store := result.Store

	redisClient, err := cli.ConnectRedis(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error("Failed to connect to Redis", log.FieldError, err.Error())
		os.Exit(1)
	}
	locker, sequencer := cli.Coordination(redisClient, cfg.LockTTL)

	// Category cleanup is published to the worker when a broker is
	// configured and runs inline otherwise.
	var (
		events     services.EventPublisher
		amqpClient *amqp.Client
	)
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", log.FieldError, err.Error())
			os.Exit(1)
		}
		events = amqpClient
	} else {
		logger.Info("AMQP disabled, category cleanup runs inline")
	}

	budgets := services.NewBudgetService(store, store, locker, logger)
	engine := aggregate.NewEngine(store, store, store,
		aggregate.WithLogger(logger),
		aggregate.WithLocation(cfg.Location()))

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Engine:       engine,
		Budgets:      budgets,
		Categories:   services.NewCategoryService(store, store, budgets, events, logger),
		Transactions: services.NewTransactionService(store, store, logger),
		Users:        services.NewUserService(store, logger),
		Guard:        sequence.NewGuard(sequencer, logger),
		Ready:        result.Ping,
		Logger:       logger,
	}, apphttp.Options{
		RequestTimeout:     cfg.RequestTimeout,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	})

	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = cfg.RequestTimeout + 5*time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	shutdownCtx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err.Error())
		}
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.Warn("Failed to close AMQP client", log.FieldError, err.Error())
			}
		}
		if redisClient != nil {
			_ = redisClient.Close()
		}
		if err := result.Close(); err != nil {
			logger.Warn("Failed to close data backend", log.FieldError, err.Error())
		}
	})

	logger.Info("Starting budgetsmart server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"timezone", cfg.Timezone,
		"redis", redisClient != nil,
		"amqp", amqpClient != nil)
	if err := srv.ListenAndServe(); err != nil {
		logger.Error("Server error", log.FieldError, err.Error(), "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(shutdownCtx, done)
	logger.Info("Server stopped gracefully")
}
