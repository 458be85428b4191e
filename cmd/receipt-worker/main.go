package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/noah-isme/checkout-lane/internal/app"
	"github.com/noah-isme/checkout-lane/internal/config"
	"github.com/noah-isme/checkout-lane/internal/obs"
	"github.com/noah-isme/checkout-lane/internal/receipt"
)

func main() {
	cfg := config.MustLoad()
	logger := obs.NewLoggerTo(os.Stderr, cfg.LogFormat, cfg.LogLevel).With().Str("component", "receipt-worker").Logger()
	if !cfg.UseRedis() {
		logger.Fatal().Msg("REDIS_URL is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient, err := app.NewRedisClient(ctx, cfg.RedisURL, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect redis")
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	srv := asynq.NewServer(app.TaskRedisOpt(redisClient.Options()), asynq.Config{
		Concurrency: 4,
		Queues:      map[string]int{cfg.ReceiptQueueName: 1},
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
			logger.Error().Err(err).Str("task_type", task.Type()).Msg("receipt delivery failed")
		}),
	})
	mux := asynq.NewServeMux()
	mux.Handle(receipt.TypeDeliver, receipt.DeliveryHandler{Sink: receipt.MultiSink{
		receipt.NewWriterSink(os.Stdout),
		receipt.LogSink{Logger: logger},
	}})

	logger.Info().Str("queue", cfg.ReceiptQueueName).Msg("worker starting")
	if err := srv.Start(mux); err != nil {
		logger.Fatal().Err(err).Msg("start worker")
	}
	<-ctx.Done()
	srv.Shutdown()
	logger.Info().Msg("worker shutdown complete")
}
