package handlers

import (
	"net/http"
	"time"

	"learnlynk/internal/metrics"
	"learnlynk/internal/services"

	"github.com/gin-gonic/gin"
)

// MetricsHandler exposes in-process engine counters for monitoring,
// separate from the per-owner aggregates served by the automation API.
type MetricsHandler struct {
	hub *services.ActivityHub
}

func NewMetricsHandler(hub *services.ActivityHub) *MetricsHandler {
	return &MetricsHandler{hub: hub}
}

// GetMetrics reports executions since startup, by terminal status, plus
// connected activity feed clients.
func (h *MetricsHandler) GetMetrics(c *gin.Context) {
	total, byStatus := metrics.ExecutionSnapshot()

	payload := gin.H{
		"timestamp":           time.Now().UTC(),
		"executions_total":    total,
		"executions_by_state": byStatus,
	}
	if h.hub != nil {
		payload["activity_clients"] = h.hub.ClientCount()
	}
	c.JSON(http.StatusOK, payload)
}
