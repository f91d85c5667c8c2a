package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"transcriber/worker/cache"
	"transcriber/worker/config"
	"transcriber/worker/kafka"
	"transcriber/worker/pool"
	"transcriber/worker/progress"
	"transcriber/worker/repository"
	"transcriber/worker/service"
	"transcriber/worker/transcribe"
)

func main() {
	godotenv.Load()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("postgres connect failed", zap.Error(err))
	}
	defer db.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()

	consumer, err := kafka.NewConsumer(strings.Split(cfg.KafkaBrokers, ","), cfg.KafkaGroupID)
	if err != nil {
		logger.Fatal("kafka consumer init failed", zap.Error(err))
	}
	defer consumer.Close()

	repo := repository.NewPostgresRepo(db)
	publisher := progress.NewPublisher(redisClient)
	statusCache := cache.NewStatusCache(redisClient)
	engine := &transcribe.StubEngine{StepDelay: 500 * time.Millisecond}
	processor := service.NewProcessor(repo, engine, publisher, statusCache, logger)

	workers := pool.NewWorkerPool(cfg.WorkerCount)

	logger.Info("Transcription runtime started",
		zap.String("topic", cfg.KafkaTopic),
		zap.Int("workers", cfg.WorkerCount),
	)

	for ctx.Err() == nil {
		err := consumer.Consume(ctx, cfg.KafkaTopic, func(ctx context.Context, msg *kafka.RunMessage) error {
			workers.Submit(ctx, msg, processor.Process)
			return nil
		})
		if err != nil && ctx.Err() == nil {
			logger.Error("consume loop error", zap.Error(err))
			time.Sleep(time.Second)
		}
	}

	workers.Wait()
	logger.Info("Transcription runtime stopped")
}
