package handlers

import (
	"errors"
	"net/http"

	"learnlynk/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// LeadHandler exposes lead CRUD. Creating or updating a lead is what feeds
// events into the automation engine.
type LeadHandler struct {
	service *services.LeadService
	logger  *logrus.Logger
}

func NewLeadHandler(service *services.LeadService, logger *logrus.Logger) *LeadHandler {
	if logger == nil {
		logger = logrus.New()
	}
	return &LeadHandler{service: service, logger: logger}
}

// ListLeads returns the caller's leads, newest first.
func (h *LeadHandler) ListLeads(c *gin.Context) {
	ownerID, ok := currentUserID(c)
	if !ok {
		return
	}

	leads, err := h.service.ListLeads(c.Request.Context(), ownerID)
	if err != nil {
		h.logger.Errorf("Failed to list leads for user %d: %v", ownerID, err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to list leads", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, leads)
}

// CreateLead stores a lead and runs any lead_created automation rules
// before responding.
func (h *LeadHandler) CreateLead(c *gin.Context) {
	ownerID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req services.LeadCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body", Message: err.Error()})
		return
	}

	lead, err := h.service.CreateLead(c.Request.Context(), ownerID, &req)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Failed to create lead", Message: err.Error()})
		return
	}
	c.JSON(http.StatusCreated, lead)
}

// GetLead returns a single lead with its recruiter preloaded.
func (h *LeadHandler) GetLead(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	lead, err := h.service.GetLead(c.Request.Context(), id)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, services.ErrLeadNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, ErrorResponse{Error: "Failed to get lead", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, lead)
}

// UpdateLead patches a lead and runs the update-shaped automation rules.
func (h *LeadHandler) UpdateLead(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var req services.LeadUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body", Message: err.Error()})
		return
	}

	lead, err := h.service.UpdateLead(c.Request.Context(), id, &req)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, services.ErrLeadNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, ErrorResponse{Error: "Failed to update lead", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, lead)
}

// RegisterLeadRoutes mounts the lead API.
func RegisterLeadRoutes(r *gin.RouterGroup, handler *LeadHandler) {
	leads := r.Group("/leads")
	{
		leads.GET("", handler.ListLeads)
		leads.POST("", handler.CreateLead)
		leads.GET(":id", handler.GetLead)
		leads.PUT(":id", handler.UpdateLead)
	}
}
