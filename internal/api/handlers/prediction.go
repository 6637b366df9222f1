// Package handlers exposes the scoring and audit endpoints over HTTP.
package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/dvloznov/fraud-scoring/internal/api/middleware"
	"github.com/dvloznov/fraud-scoring/internal/domain"
	"github.com/dvloznov/fraud-scoring/internal/logger"
	"github.com/dvloznov/fraud-scoring/internal/prediction"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// MaxBodyBytes bounds a scoring request body.
const MaxBodyBytes = 1 << 20

// RetryAfterSeconds is advertised when the scoring pool is saturated.
const RetryAfterSeconds = 1

// Predictor scores a raw request body. *prediction.Service satisfies it.
type Predictor interface {
	Predict(ctx context.Context, raw []byte) (*prediction.Response, error)
}

// PredictionHandler handles POST /api/predict.
type PredictionHandler struct {
	predictor Predictor
	log       zerolog.Logger
}

// NewPredictionHandler creates a new prediction handler.
func NewPredictionHandler(predictor Predictor, log zerolog.Logger) *PredictionHandler {
	return &PredictionHandler{
		predictor: predictor,
		log:       log,
	}
}

// Predict handles POST /api/predict
func (h *PredictionHandler) Predict(c *gin.Context) {
	ctx := c.Request.Context()

	raw, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.WriteError(c, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		middleware.WriteError(c, http.StatusBadRequest, "Failed to read request body")
		return
	}

	resp, err := h.predictor.Predict(ctx, raw)
	if err == nil {
		c.JSON(http.StatusOK, resp)
		return
	}

	h.writePredictError(c, resp, err)
}

// writePredictError is the single place scoring errors become HTTP statuses.
func (h *PredictionHandler) writePredictError(c *gin.Context, resp *prediction.Response, err error) {
	log := logger.FromContext(c.Request.Context())

	var vErr *domain.ValidationError
	switch {
	case errors.Is(err, domain.ErrPersistenceFailure) && resp != nil:
		// The verdict is still valid; the caller resubmits to get it saved.
		c.JSON(http.StatusInternalServerError, resp)
	case errors.As(err, &vErr):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error": vErr.Reason,
			"field": vErr.Field,
		})
	case errors.Is(err, domain.ErrInvalidRequest):
		middleware.WriteError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrEngineUnavailable):
		middleware.WriteError(c, http.StatusServiceUnavailable, "Model not loaded")
	case errors.Is(err, domain.ErrBusy):
		c.Header("Retry-After", strconv.Itoa(RetryAfterSeconds))
		middleware.WriteError(c, http.StatusServiceUnavailable, "Scoring capacity exhausted")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		log.Warn().Err(err).Msg("Prediction did not complete in time")
		middleware.WriteError(c, http.StatusServiceUnavailable, "Prediction timed out")
	default:
		log.Error().Err(err).Msg("Prediction failed")
		middleware.WriteError(c, http.StatusInternalServerError, "Prediction failed")
	}
}
