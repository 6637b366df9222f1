package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/dvloznov/fraud-scoring/internal/api/middleware"
	"github.com/dvloznov/fraud-scoring/internal/domain"
	"github.com/dvloznov/fraud-scoring/internal/frauds"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Paging limits for GET /api/frauds.
const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// FraudsHandler handles the audit endpoints over flagged transactions.
type FraudsHandler struct {
	repo frauds.Repository
	log  zerolog.Logger
	now  func() time.Time
}

// NewFraudsHandler creates a new frauds handler.
func NewFraudsHandler(repo frauds.Repository, log zerolog.Logger) *FraudsHandler {
	return &FraudsHandler{
		repo: repo,
		log:  log,
		now:  time.Now,
	}
}

// ListFrauds handles GET /api/frauds
func (h *FraudsHandler) ListFrauds(c *gin.Context) {
	filter, vErr := parseFilter(c)
	if vErr != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": vErr.Reason, "field": vErr.Field})
		return
	}

	records, err := h.repo.List(c.Request.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list fraud records")
		middleware.WriteError(c, http.StatusInternalServerError, "Failed to list fraud records")
		return
	}

	if records == nil {
		records = []*domain.FraudRecord{}
	}
	c.JSON(http.StatusOK, gin.H{
		"frauds": records,
		"count":  len(records),
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

// GetFraud handles GET /api/frauds/:transaction_id
func (h *FraudsHandler) GetFraud(c *gin.Context) {
	transactionID := c.Param("transaction_id")

	rec, err := h.repo.Get(c.Request.Context(), transactionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			middleware.WriteError(c, http.StatusNotFound, "Fraud record not found")
			return
		}
		h.log.Error().Err(err).Str("transaction_id", transactionID).Msg("Failed to get fraud record")
		middleware.WriteError(c, http.StatusInternalServerError, "Failed to get fraud record")
		return
	}

	c.JSON(http.StatusOK, rec)
}

type reviewRequest struct {
	Status domain.Status `json:"status"`
}

// ReviewFraud handles PATCH /api/frauds/:transaction_id. It must run behind
// middleware.RequireReviewer.
func (h *FraudsHandler) ReviewFraud(c *gin.Context) {
	transactionID := c.Param("transaction_id")

	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.WriteError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	review := frauds.Review{
		TransactionID: transactionID,
		Status:        req.Status,
		ReviewedBy:    c.GetString(middleware.ReviewerKey),
		ReviewedAt:    h.now().UTC(),
	}

	rec, err := h.repo.UpdateStatus(c.Request.Context(), review)
	if err != nil {
		var vErr *domain.ValidationError
		switch {
		case errors.As(err, &vErr):
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": vErr.Reason, "field": vErr.Field})
		case errors.Is(err, domain.ErrNotFound):
			middleware.WriteError(c, http.StatusNotFound, "Fraud record not found")
		default:
			h.log.Error().Err(err).Str("transaction_id", transactionID).Msg("Failed to review fraud record")
			middleware.WriteError(c, http.StatusInternalServerError, "Failed to review fraud record")
		}
		return
	}

	h.log.Info().
		Str("transaction_id", transactionID).
		Str("status", string(rec.Status)).
		Str("reviewed_by", review.ReviewedBy).
		Msg("Fraud record reviewed")

	c.JSON(http.StatusOK, rec)
}

func parseFilter(c *gin.Context) (frauds.Filter, *domain.ValidationError) {
	filter := frauds.Filter{Limit: DefaultListLimit}

	if s := c.Query("status"); s != "" {
		status := domain.Status(s)
		if !status.Valid() {
			return filter, domain.NewValidationError("status", "must be pending_review, confirmed or dismissed")
		}
		filter.Status = status
	}

	var vErr *domain.ValidationError
	if filter.From, vErr = parseTime(c.Query("from"), "from"); vErr != nil {
		return filter, vErr
	}
	if filter.To, vErr = parseTime(c.Query("to"), "to"); vErr != nil {
		return filter, vErr
	}

	if s := c.Query("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil || limit < 1 || limit > MaxListLimit {
			return filter, domain.NewValidationError("limit", "must be between 1 and "+strconv.Itoa(MaxListLimit))
		}
		filter.Limit = limit
	}

	if s := c.Query("offset"); s != "" {
		offset, err := strconv.Atoi(s)
		if err != nil || offset < 0 {
			return filter, domain.NewValidationError("offset", "must be a non-negative integer")
		}
		filter.Offset = offset
	}

	return filter, nil
}

func parseTime(s, field string) (time.Time, *domain.ValidationError) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, domain.NewValidationError(field, "must be an RFC3339 timestamp")
	}
	return t, nil
}
