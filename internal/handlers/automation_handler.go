package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"learnlynk/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// AutomationHandler exposes the workflow rule engine: rule CRUD, the
// execution log and aggregate metrics.
type AutomationHandler struct {
	service *services.AutomationService
	logger  *logrus.Logger
}

func NewAutomationHandler(service *services.AutomationService, logger *logrus.Logger) *AutomationHandler {
	if logger == nil {
		logger = logrus.New()
	}
	return &AutomationHandler{service: service, logger: logger}
}

// ListRules returns the caller's rules, highest priority first.
func (h *AutomationHandler) ListRules(c *gin.Context) {
	ownerID, ok := currentUserID(c)
	if !ok {
		return
	}

	rules, err := h.service.ListRules(c.Request.Context(), ownerID)
	if err != nil {
		h.logger.Errorf("Failed to list rules for user %d: %v", ownerID, err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to list rules", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, rules)
}

// CreateRule validates and stores a new rule.
func (h *AutomationHandler) CreateRule(c *gin.Context) {
	ownerID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req services.AutomationRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body", Message: err.Error()})
		return
	}

	rule, err := h.service.CreateRule(c.Request.Context(), ownerID, &req)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Failed to create rule", Message: err.Error()})
		return
	}
	c.JSON(http.StatusCreated, rule)
}

// GetRule returns a single rule.
func (h *AutomationHandler) GetRule(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	rule, err := h.service.GetRule(c.Request.Context(), id)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, services.ErrRuleNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, ErrorResponse{Error: "Failed to get rule", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, rule)
}

// UpdateRule applies a partial update to a rule.
func (h *AutomationHandler) UpdateRule(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var req services.AutomationRuleUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body", Message: err.Error()})
		return
	}

	rule, err := h.service.UpdateRule(c.Request.Context(), id, &req)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, services.ErrRuleNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, ErrorResponse{Error: "Failed to update rule", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, rule)
}

// ToggleRule activates or deactivates a rule.
func (h *AutomationHandler) ToggleRule(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var req struct {
		IsActive *bool `json:"is_active" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body", Message: err.Error()})
		return
	}

	rule, err := h.service.ToggleRule(c.Request.Context(), id, *req.IsActive)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, services.ErrRuleNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, ErrorResponse{Error: "Failed to toggle rule", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, rule)
}

// DeleteRule removes a rule. Its execution history is kept.
func (h *AutomationHandler) DeleteRule(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	if err := h.service.DeleteRule(c.Request.Context(), id); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, services.ErrRuleNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, ErrorResponse{Error: "Failed to delete rule", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "Rule deleted successfully"})
}

// ListExecutions pages through the caller's execution log.
func (h *AutomationHandler) ListExecutions(c *gin.Context) {
	ownerID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req services.ExecutionListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid query parameters", Message: err.Error()})
		return
	}

	execs, total, err := h.service.ListExecutions(c.Request.Context(), ownerID, &req)
	if err != nil {
		h.logger.Errorf("Failed to list executions for user %d: %v", ownerID, err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to list executions", Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, PaginatedResponse{
		Data:     execs,
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
		Pages:    totalPages(total, req.PageSize),
	})
}

// GetMetrics aggregates execution statistics, optionally bounded by
// ?from=RFC3339&to=RFC3339.
func (h *AutomationHandler) GetMetrics(c *gin.Context) {
	ownerID, ok := currentUserID(c)
	if !ok {
		return
	}

	var from, to *time.Time
	if raw := c.Query("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid from parameter", Message: "Expected RFC3339 timestamp"})
			return
		}
		from = &t
	}
	if raw := c.Query("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid to parameter", Message: "Expected RFC3339 timestamp"})
			return
		}
		to = &t
	}

	metrics, err := h.service.GetMetrics(c.Request.Context(), ownerID, from, to)
	if err != nil {
		h.logger.Errorf("Failed to aggregate metrics for user %d: %v", ownerID, err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to get metrics", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, metrics)
}

func parseIDParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid id",
			Message: "ID must be a valid number",
		})
		return 0, false
	}
	return uint(id), true
}

// RegisterAutomationRoutes mounts the rule engine API.
func RegisterAutomationRoutes(r *gin.RouterGroup, handler *AutomationHandler) {
	rules := r.Group("/automation/rules")
	{
		rules.GET("", handler.ListRules)
		rules.POST("", handler.CreateRule)
		rules.GET(":id", handler.GetRule)
		rules.PUT(":id", handler.UpdateRule)
		rules.PATCH(":id/toggle", handler.ToggleRule)
		rules.DELETE(":id", handler.DeleteRule)
	}
	r.GET("/automation/executions", handler.ListExecutions)
	r.GET("/automation/metrics", handler.GetMetrics)
}
