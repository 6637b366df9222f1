package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ReadinessChecker reports whether scoring can be served.
// *prediction.Service satisfies it.
type ReadinessChecker interface {
	Ready() bool
	ModelVersion() string
	Threshold() float64
}

// HealthHandler handles liveness and readiness probes.
type HealthHandler struct {
	checker ReadinessChecker
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(checker ReadinessChecker) *HealthHandler {
	return &HealthHandler{checker: checker}
}

// Health handles GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(c *gin.Context) {
	if !h.checker.Ready() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unavailable",
			"reason": "model not loaded",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":        "ready",
		"model_version": h.checker.ModelVersion(),
		"threshold":     h.checker.Threshold(),
	})
}
