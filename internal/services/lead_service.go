package services

import (
	"context"
	"fmt"
	"time"

	"learnlynk/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// LeadService manages leads and feeds their lifecycle events into the
// automation engine.
type LeadService struct {
	db         *gorm.DB
	logger     *logrus.Logger
	automation *AutomationService
}

func NewLeadService(db *gorm.DB, logger *logrus.Logger, automation *AutomationService) *LeadService {
	if logger == nil {
		logger = logrus.New()
	}
	return &LeadService{db: db, logger: logger, automation: automation}
}

// LeadCreateRequest creates a lead.
type LeadCreateRequest struct {
	Email       string `json:"email" binding:"required"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Phone       string `json:"phone"`
	Source      string `json:"source"`
	Program     string `json:"program"`
	LeadScore   int    `json:"lead_score"`
	RecruiterID *uint  `json:"recruiter_id"`
}

// LeadUpdateRequest patches a lead; nil fields are left alone.
type LeadUpdateRequest struct {
	Email      *string `json:"email"`
	FirstName  *string `json:"first_name"`
	LastName   *string `json:"last_name"`
	Phone      *string `json:"phone"`
	Status     *string `json:"status"`
	Program    *string `json:"program"`
	LeadScore  *int    `json:"lead_score"`
	AssignedTo *uint   `json:"assigned_to"`
}

// CreateLead persists a new lead for the owner and dispatches creation
// events to the automation engine.
func (s *LeadService) CreateLead(ctx context.Context, ownerID uint, req *LeadCreateRequest) (*models.Lead, error) {
	if req == nil {
		return nil, fmt.Errorf("request required")
	}
	lead := &models.Lead{
		OwnerID:     ownerID,
		Email:       req.Email,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Phone:       req.Phone,
		Status:      "new",
		Source:      req.Source,
		Program:     req.Program,
		LeadScore:   clampScore(req.LeadScore),
		RecruiterID: req.RecruiterID,
	}
	if err := s.db.WithContext(ctx).Create(lead).Error; err != nil {
		return nil, fmt.Errorf("create lead: %w", err)
	}

	if s.automation != nil {
		now := time.Now()
		for _, triggerType := range []string{models.TriggerLeadCreated, models.TriggerEngagementLevel} {
			s.automation.HandleLeadEvent(ctx, LeadEvent{
				Type:       triggerType,
				Lead:       lead,
				OccurredAt: now,
			})
		}
	}
	return lead, nil
}

// UpdateLead applies a partial update, then dispatches the update-shaped
// events with the pre-change snapshot so edge-triggered rules (score
// crossings, status transitions) see both sides of the change.
func (s *LeadService) UpdateLead(ctx context.Context, id uint, req *LeadUpdateRequest) (*models.Lead, error) {
	if req == nil {
		return nil, fmt.Errorf("request required")
	}
	lead, err := s.GetLead(ctx, id)
	if err != nil {
		return nil, err
	}
	previous := *lead

	updates := map[string]interface{}{}
	if req.Email != nil {
		updates["email"] = *req.Email
	}
	if req.FirstName != nil {
		updates["first_name"] = *req.FirstName
	}
	if req.LastName != nil {
		updates["last_name"] = *req.LastName
	}
	if req.Phone != nil {
		updates["phone"] = *req.Phone
	}
	if req.Status != nil {
		updates["status"] = *req.Status
	}
	if req.Program != nil {
		updates["program"] = *req.Program
	}
	if req.LeadScore != nil {
		updates["lead_score"] = clampScore(*req.LeadScore)
	}
	if req.AssignedTo != nil {
		updates["assigned_to"] = *req.AssignedTo
		updates["assigned_at"] = time.Now()
		updates["assignment_method"] = "manual"
	}

	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(lead).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("update lead: %w", err)
		}
	}
	lead, err = s.GetLead(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.automation != nil {
		now := time.Now()
		for _, triggerType := range []string{
			models.TriggerLeadUpdated,
			models.TriggerStatusChange,
			models.TriggerScoreThreshold,
			models.TriggerEngagementLevel,
		} {
			s.automation.HandleLeadEvent(ctx, LeadEvent{
				Type:       triggerType,
				Lead:       lead,
				Previous:   &previous,
				OccurredAt: now,
			})
		}
	}
	return lead, nil
}

func (s *LeadService) GetLead(ctx context.Context, id uint) (*models.Lead, error) {
	var lead models.Lead
	if err := s.db.WithContext(ctx).Preload("Recruiter").Preload("Recruiter.Company").
		First(&lead, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrLeadNotFound
		}
		return nil, fmt.Errorf("load lead: %w", err)
	}
	return &lead, nil
}

// ListLeads returns the owner's leads, newest first.
func (s *LeadService) ListLeads(ctx context.Context, ownerID uint) ([]models.Lead, error) {
	var leads []models.Lead
	if err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&leads).Error; err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	return leads, nil
}
