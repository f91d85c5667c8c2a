package main

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"transcriber/api/cache"
	"transcriber/api/config"
	"transcriber/api/database"
	"transcriber/api/handlers"
	"transcriber/api/kafka"
	"transcriber/api/middleware"
	"transcriber/api/push"
	"transcriber/api/repository"
	"transcriber/api/service"
	"transcriber/api/storage"
	"transcriber/api/validation"
)

func main() {
	godotenv.Load()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg := config.Load()
	ctx := context.Background()

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("postgres connect failed", zap.Error(err))
	}
	defer db.Close()

	redisCache, err := database.ConnectCache(cfg.RedisAddr)
	if err != nil {
		logger.Fatal("redis connect failed", zap.Error(err))
	}
	defer redisCache.Close()

	store, err := storage.NewS3Store(ctx, cfg.S3Bucket, cfg.S3Region, cfg.S3Endpoint)
	if err != nil {
		logger.Fatal("object store init failed", zap.Error(err))
	}

	producer, err := kafka.NewProducer(strings.Split(cfg.KafkaBrokers, ","))
	if err != nil {
		logger.Fatal("kafka producer init failed", zap.Error(err))
	}
	defer producer.Close()

	repo := repository.NewPostgresRepo(db)
	statusCache := cache.NewStatusCache(redisCache)
	rules := validation.DefaultRules(cfg.MaxFileSize, cfg.MaxBatchSize)

	uploads := service.NewUploadService(repo, statusCache, store, producer, rules,
		cfg.KafkaTopic, cfg.UploadPrefix, cfg.UploadURLTTL, logger)
	jobs := service.NewJobService(repo, statusCache, store, producer, cfg.KafkaTopic, logger)
	sweeper := service.NewSweeper(repo, store, cfg.UploadPrefix, cfg.SweepGrace, logger)

	hub := push.NewHub(redisCache, func(runID, token string) bool { return token != "" }, logger)
	handler := handlers.NewJobHandler(uploads, jobs, cfg.CompletedLimit, logger)

	go sweeper.Run(ctx, cfg.SweepInterval)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	mux.HandleFunc("/uploads/check", handler.CheckBatch)
	mux.HandleFunc("/uploads/initiate", handler.InitiateBatch)
	mux.HandleFunc("/uploads/complete", handler.CompleteUpload)
	mux.HandleFunc("/jobs/active", handler.ListActive)
	mux.HandleFunc("/jobs/completed", handler.ListCompleted)
	mux.HandleFunc("/jobs/", handler.Action)
	mux.HandleFunc("/runs/", hub.Subscribe)

	chain := middleware.TraceID(
		middleware.Logging(logger)(
			middleware.Recovery(logger)(mux),
		),
	)

	logger.Info("Registry service started", zap.String("port", cfg.Port))
	log.Fatal(http.ListenAndServe(":"+cfg.Port, chain))
}
