package handlers

import (
	"net/http"
	"time"

	"github.com/dvloznov/fraud-scoring/internal/api/middleware"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterConfig wires handlers and middleware settings into a router.
type RouterConfig struct {
	Prediction *PredictionHandler
	Frauds     *FraudsHandler
	Health     *HealthHandler

	// Metrics serves GET /metrics when set.
	Metrics http.Handler

	AllowedOrigins []string
	RequestTimeout time.Duration
	JWTSecret      string
}

// NewRouter builds the gin engine for the API server.
func NewRouter(cfg RouterConfig, log zerolog.Logger) *gin.Engine {
	r := gin.New()

	r.Use(
		middleware.RequestID(log),
		middleware.Logger(log),
		middleware.Recovery(log),
		middleware.CORS(cfg.AllowedOrigins),
	)

	r.GET("/health", cfg.Health.Health)
	r.GET("/ready", cfg.Health.Ready)
	r.GET("/openapi.json", OpenAPI)
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics))
	}

	api := r.Group("/api", middleware.Timeout(cfg.RequestTimeout))
	api.POST("/predict", cfg.Prediction.Predict)
	api.GET("/frauds", cfg.Frauds.ListFrauds)
	api.GET("/frauds/:transaction_id", cfg.Frauds.GetFraud)
	api.PATCH("/frauds/:transaction_id", middleware.RequireReviewer(cfg.JWTSecret), cfg.Frauds.ReviewFraud)

	return r
}
