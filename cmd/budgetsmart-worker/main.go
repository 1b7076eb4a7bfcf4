package main

import (
	"context"
	"os"
	"time"

	"budgetsmart/internal/amqp"
	"budgetsmart/internal/backend"
	"budgetsmart/internal/cli"
	"budgetsmart/internal/config"
	"budgetsmart/internal/log"
	"budgetsmart/internal/services"
)

func main() {
	os.Exit(run())
}

// run returns the process exit code so deferred cleanup runs before exit.
func run() int {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, log.ComponentWorker)
	ctx := context.Background()

	logger.Info("Starting budgetsmart-worker")

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the worker")
		return 1
	}
	if cfg.DataBackend == config.BackendMemory {
		logger.Warn("Worker is using the memory backend, budgets removed here are not visible to the server")
	}

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err.Error())
		return 1
	}
	result, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to initialize data backend", log.FieldError, err.Error(), "backend", cfg.DataBackend)
		return 1
	}
	defer result.Close()

	redisClient, err := cli.ConnectRedis(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error("Failed to connect to Redis", log.FieldError, err.Error())
		return 1
	}
	if redisClient != nil {
		defer redisClient.Close()
	}
	locker, _ := cli.Coordination(redisClient, cfg.LockTTL)

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err.Error())
		return 1
	}
	defer amqpClient.Close()

	budgets := services.NewBudgetService(result.Store, result.Store, locker, logger)
	processor := services.NewCleanupProcessor(amqpClient, budgets, logger)

	shutdownCtx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := processor.Stop(ctx); err != nil {
			logger.Warn("Cleanup processor did not stop in time", log.FieldError, err.Error())
		}
	})

	if err := processor.Start(shutdownCtx); err != nil {
		logger.Error("Failed to start cleanup processor", log.FieldError, err.Error())
		return 1
	}

	select {
	case <-processor.Done():
		if err := processor.Err(); err != nil {
			logger.Error("Cleanup processor exited, shutting down", log.FieldError, err.Error())
			return 1
		}
	case <-shutdownCtx.Done():
	}

	cli.WaitForShutdown(shutdownCtx, done)
	logger.Info("Worker stopped")
	return 0
}
