package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/fraud-scoring/internal/api/handlers"
	"github.com/dvloznov/fraud-scoring/internal/cache"
	"github.com/dvloznov/fraud-scoring/internal/config"
	"github.com/dvloznov/fraud-scoring/internal/gcs"
	"github.com/dvloznov/fraud-scoring/internal/inference"
	"github.com/dvloznov/fraud-scoring/internal/infra/postgres"
	"github.com/dvloznov/fraud-scoring/internal/logger"
	"github.com/dvloznov/fraud-scoring/internal/metrics"
	"github.com/dvloznov/fraud-scoring/internal/prediction"
	"github.com/dvloznov/fraud-scoring/internal/validation"
	"github.com/dvloznov/fraud-scoring/internal/workers"
	"github.com/gin-gonic/gin"
)

func main() {
	// Parse command-line flags
	var (
		configPath = flag.String("config", "", "Path to config.yaml (default: ./config.yaml when present)")
		envFile    = flag.String("env-file", ".env", "Path to .env file with secrets")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath, *envFile)
	if err != nil {
		bootLog := logger.New()
		bootLog.Fatal().Err(err).Msg("Failed to load config")
	}

	log, err := logger.NewFromConfig(os.Stdout, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		bootLog := logger.New()
		bootLog.Fatal().Err(err).Msg("Invalid log settings")
	}

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid config")
	}

	ctx := context.Background()

	// Load the model once. Without it the server still starts but reports
	// not ready and answers 503 on /api/predict.
	var scorer prediction.Scorer
	var vocabulary []string
	engine, err := inference.Load(ctx, cfg.Model.WeightPath, inference.LoadOptions{
		FeatureCols: cfg.Model.FeatureCols,
		Fetcher:     gcs.NewGCSStorageService(cfg.GCP.ClientOptions()...),
	})
	if err != nil {
		log.Error().Err(err).Str("weight_path", cfg.Model.WeightPath).Msg("Failed to load model artifact")
	} else {
		scorer = engine
		vocabulary = engine.Categories()
		log.Info().
			Str("model_version", engine.Version()).
			Strs("categories", vocabulary).
			Msg("Model artifact loaded")
	}

	validator := validation.New(validation.Options{
		AllowNegativeBalances: cfg.Validation.AllowNegativeBalances,
		Vocabulary:            vocabulary,
	})

	// Initialize repository
	pool, err := postgres.Connect(ctx, cfg.DatabaseURL(), postgres.PoolOptions{
		MaxConns:       cfg.Database.MaxConns,
		ConnectTimeout: 5 * time.Second,
	})
	if err != nil {
		log.Fatal().Err(err).Str("host", cfg.Database.Host).Msg("Failed to connect to database")
	}
	defer pool.Close()
	repo := postgres.NewFraudRecordRepository(pool)

	collector := metrics.NewCollector()

	// Scoring runs on a bounded pool so overload is reported, not queued forever.
	scoringPool := workers.NewPool(cfg.Scoring.Workers, cfg.Scoring.QueueSize)
	collector.RegisterQueue(scoringPool.QueueDepth, scoringPool.Capacity())
	log.Info().
		Int("workers", cfg.Scoring.Workers).
		Int("queue_capacity", scoringPool.Capacity()).
		Msg("Scoring pool started")

	opts := []prediction.Option{
		prediction.WithExecutor(scoringPool),
		prediction.WithMetrics(collector),
		prediction.WithRetryPolicy(prediction.RetryPolicy{
			MaxAttempts:    cfg.Persistence.MaxAttempts,
			InitialBackoff: cfg.Persistence.InitialBackoff,
			MaxBackoff:     cfg.Persistence.MaxBackoff,
		}),
	}

	rdb, err := cache.Connect(ctx, cache.Options{
		Addr:     cfg.Cache.RedisAddr,
		Password: cfg.Cache.RedisPassword,
		DB:       cfg.Cache.RedisDB,
	})
	switch {
	case err != nil:
		log.Warn().Err(err).Msg("Verdict cache unavailable, continuing without it")
	case rdb == nil:
		log.Info().Msg("No Redis address configured - verdict cache disabled")
	default:
		defer rdb.Close()
		opts = append(opts, prediction.WithCache(cache.NewRedisCache(rdb, cfg.Cache.TTL)))
	}

	svcLog := logger.WithFields(log, map[string]interface{}{"component": "prediction"})
	svc, err := prediction.NewService(scorer, validator, repo, cfg.Model.Threshold, svcLog, opts...)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create prediction service")
	}

	if cfg.Auth.JWTSecret == "" {
		log.Warn().Msg("No JWT_SECRET configured - review endpoint is disabled")
	}

	gin.SetMode(gin.ReleaseMode)
	router := handlers.NewRouter(handlers.RouterConfig{
		Prediction:     handlers.NewPredictionHandler(svc, log),
		Frauds:         handlers.NewFraudsHandler(repo, log),
		Health:         handlers.NewHealthHandler(svc),
		Metrics:        collector.Handler(),
		AllowedOrigins: cfg.Server.CORSAllowedOrigins,
		RequestTimeout: cfg.Server.RequestTimeout,
		JWTSecret:      cfg.Auth.JWTSecret,
	}, log)

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().
			Str("addr", cfg.Server.Addr).
			Float64("threshold", cfg.Model.Threshold).
			Int("workers", cfg.Scoring.Workers).
			Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop scoring pool and wait for in-flight jobs
	if err := scoringPool.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping scoring pool")
	}

	log.Info().Msg("Server exited")
}
