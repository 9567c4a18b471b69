package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"learnlynk/internal/models"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

// Action types executed by the dispatcher.
const (
	ActionSendEmail        = "send_email"
	ActionAssignLead       = "assign_lead"
	ActionUpdateStatus     = "update_status"
	ActionAddTag           = "add_tag"
	ActionCreateTask       = "create_task"
	ActionUpdateScore      = "update_score"
	ActionConvertToStudent = "convert_to_student"
)

// defaultActionTimeout bounds a single action so a stuck external call
// (e.g. the email API) cannot block an execution indefinitely.
const defaultActionTimeout = 30 * time.Second

// Notifier delivers templated email on behalf of the send_email action.
type Notifier interface {
	Send(ctx context.Context, templateID, recipient string, data map[string]interface{}) error
}

// StudentConverter is the external collaborator behind convert_to_student.
type StudentConverter interface {
	CreateStudentFromLead(ctx context.Context, leadID uint) (*models.Student, error)
}

// ExecutionPublisher receives execution outcomes for live activity feeds.
type ExecutionPublisher interface {
	PublishExecution(exec *models.AutomationExecution, rule *models.AutomationRule)
}

// AutomationService owns workflow automation rules and their executions:
// trigger matching, condition evaluation, ordered action dispatch and the
// per-execution audit trail.
type AutomationService struct {
	db            *gorm.DB
	logger        *logrus.Logger
	tracer        trace.Tracer
	notifier      Notifier
	converter     StudentConverter
	publisher     ExecutionPublisher
	actionTimeout time.Duration
}

func NewAutomationService(db *gorm.DB, logger *logrus.Logger) *AutomationService {
	if logger == nil {
		logger = logrus.New()
	}
	return &AutomationService{
		db:            db,
		logger:        logger,
		tracer:        otel.Tracer("learnlynk.automation"),
		actionTimeout: defaultActionTimeout,
	}
}

// SetNotifier injects the email delivery client (optional; send_email
// actions fail without one).
func (s *AutomationService) SetNotifier(n Notifier) { s.notifier = n }

// SetStudentConverter injects the lead conversion collaborator (optional;
// convert_to_student actions fail without one).
func (s *AutomationService) SetStudentConverter(c StudentConverter) { s.converter = c }

// SetExecutionPublisher injects the live activity feed (optional).
func (s *AutomationService) SetExecutionPublisher(p ExecutionPublisher) { s.publisher = p }

// SetActionTimeout overrides the per-action timeout.
func (s *AutomationService) SetActionTimeout(d time.Duration) {
	if d > 0 {
		s.actionTimeout = d
	}
}

// RuleAction is one ordered side effect of a rule. Actions execute in
// ascending OrderIndex, not declaration order.
type RuleAction struct {
	ActionType   string                 `json:"action_type"`
	ActionConfig map[string]interface{} `json:"action_config"`
	OrderIndex   int                    `json:"order_index"`
}

func parseRuleActions(rule *models.AutomationRule) ([]RuleAction, error) {
	if rule.Actions == "" {
		return nil, nil
	}
	var actions []RuleAction
	if err := json.Unmarshal([]byte(rule.Actions), &actions); err != nil {
		return nil, err
	}
	sort.SliceStable(actions, func(i, j int) bool {
		return actions[i].OrderIndex < actions[j].OrderIndex
	})
	return actions, nil
}

// AutomationRuleRequest creates a rule. Counters always start at zero.
type AutomationRuleRequest struct {
	Name          string                 `json:"name" binding:"required"`
	Description   string                 `json:"description"`
	TriggerType   string                 `json:"trigger_type" binding:"required"`
	TriggerConfig map[string]interface{} `json:"trigger_config"`
	Conditions    []RuleCondition        `json:"conditions"`
	Actions       []RuleAction           `json:"actions"`
	Priority      int                    `json:"priority"`
	IsActive      *bool                  `json:"is_active"`
}

// AutomationRuleUpdateRequest patches a rule; nil fields are left alone.
type AutomationRuleUpdateRequest struct {
	Name          *string                 `json:"name"`
	Description   *string                 `json:"description"`
	TriggerType   *string                 `json:"trigger_type"`
	TriggerConfig *map[string]interface{} `json:"trigger_config"`
	Conditions    *[]RuleCondition        `json:"conditions"`
	Actions       *[]RuleAction           `json:"actions"`
	Priority      *int                    `json:"priority"`
}

func isSupportedTrigger(triggerType string) bool {
	switch triggerType {
	case models.TriggerLeadCreated, models.TriggerLeadUpdated, models.TriggerScoreThreshold,
		models.TriggerTimeBased, models.TriggerStatusChange, models.TriggerEngagementLevel:
		return true
	default:
		return false
	}
}

// validateActions rejects unknown action types and missing required config
// at rule creation time, so execution-time failures are limited to
// collaborator errors.
func validateActions(actions []RuleAction) error {
	for _, act := range actions {
		cfg := act.ActionConfig
		switch act.ActionType {
		case ActionSendEmail:
			if configString(cfg, "template_id") == "" {
				return fmt.Errorf("send_email action requires template_id")
			}
		case ActionAssignLead:
			if _, ok := configUint(cfg, "advisor_id"); !ok {
				return fmt.Errorf("assign_lead action requires advisor_id")
			}
		case ActionUpdateStatus:
			if configString(cfg, "status") == "" {
				return fmt.Errorf("update_status action requires status")
			}
		case ActionAddTag:
			if len(configStrings(cfg, "tags")) == 0 {
				return fmt.Errorf("add_tag action requires tags")
			}
		case ActionCreateTask:
			if configString(cfg, "title") == "" {
				return fmt.Errorf("create_task action requires title")
			}
		case ActionUpdateScore:
			op := configString(cfg, "operation")
			if op != "add" && op != "subtract" && op != "set" {
				return fmt.Errorf("update_score action requires operation add, subtract or set")
			}
			if _, ok := configNumber(cfg, "value"); !ok {
				return fmt.Errorf("update_score action requires numeric value")
			}
		case ActionConvertToStudent:
			// no config
		default:
			return fmt.Errorf("%w: %s", ErrUnknownActionType, act.ActionType)
		}
	}
	return nil
}

// CreateRule validates and persists a new automation rule for the owner.
func (s *AutomationService) CreateRule(ctx context.Context, ownerID uint, req *AutomationRuleRequest) (*models.AutomationRule, error) {
	if req == nil {
		return nil, fmt.Errorf("request required")
	}
	if !isSupportedTrigger(req.TriggerType) {
		return nil, fmt.Errorf("unsupported trigger type: %s", req.TriggerType)
	}
	if err := validateActions(req.Actions); err != nil {
		return nil, err
	}

	condJSON, err := json.Marshal(req.Conditions)
	if err != nil {
		return nil, fmt.Errorf("invalid conditions: %w", err)
	}
	actJSON, err := json.Marshal(req.Actions)
	if err != nil {
		return nil, fmt.Errorf("invalid actions: %w", err)
	}
	cfgJSON, err := json.Marshal(req.TriggerConfig)
	if err != nil {
		return nil, fmt.Errorf("invalid trigger config: %w", err)
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	rule := &models.AutomationRule{
		OwnerID:       ownerID,
		Name:          req.Name,
		Description:   req.Description,
		TriggerType:   req.TriggerType,
		TriggerConfig: string(cfgJSON),
		Conditions:    string(condJSON),
		Actions:       string(actJSON),
		IsActive:      active,
		Priority:      req.Priority,
	}
	if err := s.db.WithContext(ctx).Create(rule).Error; err != nil {
		return nil, fmt.Errorf("create rule: %w", err)
	}
	return rule, nil
}

// UpdateRule applies a partial update. Counters and last_executed are owned
// by the orchestrator and cannot be patched here.
func (s *AutomationService) UpdateRule(ctx context.Context, id uint, req *AutomationRuleUpdateRequest) (*models.AutomationRule, error) {
	if req == nil {
		return nil, fmt.Errorf("request required")
	}
	rule, err := s.GetRule(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.TriggerType != nil {
		if !isSupportedTrigger(*req.TriggerType) {
			return nil, fmt.Errorf("unsupported trigger type: %s", *req.TriggerType)
		}
		updates["trigger_type"] = *req.TriggerType
	}
	if req.TriggerConfig != nil {
		raw, err := json.Marshal(*req.TriggerConfig)
		if err != nil {
			return nil, fmt.Errorf("invalid trigger config: %w", err)
		}
		updates["trigger_config"] = string(raw)
	}
	if req.Conditions != nil {
		raw, err := json.Marshal(*req.Conditions)
		if err != nil {
			return nil, fmt.Errorf("invalid conditions: %w", err)
		}
		updates["conditions"] = string(raw)
	}
	if req.Actions != nil {
		if err := validateActions(*req.Actions); err != nil {
			return nil, err
		}
		raw, err := json.Marshal(*req.Actions)
		if err != nil {
			return nil, fmt.Errorf("invalid actions: %w", err)
		}
		updates["actions"] = string(raw)
	}
	if req.Priority != nil {
		updates["priority"] = *req.Priority
	}

	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(rule).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("update rule: %w", err)
		}
	}
	return s.GetRule(ctx, id)
}

// ToggleRule flips is_active. Inactive rules are never matched.
func (s *AutomationService) ToggleRule(ctx context.Context, id uint, active bool) (*models.AutomationRule, error) {
	rule, err := s.GetRule(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(rule).Update("is_active", active).Error; err != nil {
		return nil, fmt.Errorf("toggle rule: %w", err)
	}
	rule.IsActive = active
	return rule, nil
}

// DeleteRule removes a rule. Past executions are kept for audit.
func (s *AutomationService) DeleteRule(ctx context.Context, id uint) error {
	result := s.db.WithContext(ctx).Delete(&models.AutomationRule{}, id)
	if result.Error != nil {
		return fmt.Errorf("delete rule: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRuleNotFound
	}
	return nil
}

func (s *AutomationService) GetRule(ctx context.Context, id uint) (*models.AutomationRule, error) {
	var rule models.AutomationRule
	if err := s.db.WithContext(ctx).First(&rule, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrRuleNotFound
		}
		return nil, fmt.Errorf("load rule: %w", err)
	}
	return &rule, nil
}

// ListRules returns the owner's rules, highest priority first.
func (s *AutomationService) ListRules(ctx context.Context, ownerID uint) ([]models.AutomationRule, error) {
	var rules []models.AutomationRule
	if err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("priority DESC, id ASC").
		Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	return rules, nil
}

// ExecutionListRequest filters the execution log.
type ExecutionListRequest struct {
	Page     int    `form:"page,default=1"`
	PageSize int    `form:"page_size,default=20"`
	RuleID   uint   `form:"rule_id"`
	LeadID   uint   `form:"lead_id"`
	Status   string `form:"status"`
}

// ListExecutions returns a page of execution records for the owner's rules,
// newest first.
func (s *AutomationService) ListExecutions(ctx context.Context, ownerID uint, req *ExecutionListRequest) ([]models.AutomationExecution, int64, error) {
	if req == nil {
		req = &ExecutionListRequest{Page: 1, PageSize: 20}
	}
	if req.Page < 1 {
		req.Page = 1
	}
	if req.PageSize < 1 || req.PageSize > 100 {
		req.PageSize = 20
	}

	query := s.db.WithContext(ctx).Model(&models.AutomationExecution{}).
		Where("rule_id IN (?)", s.db.Model(&models.AutomationRule{}).
			Select("id").Where("owner_id = ?", ownerID))
	if req.RuleID != 0 {
		query = query.Where("rule_id = ?", req.RuleID)
	}
	if req.LeadID != 0 {
		query = query.Where("lead_id = ?", req.LeadID)
	}
	if req.Status != "" {
		query = query.Where("status = ?", req.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count executions: %w", err)
	}

	var execs []models.AutomationExecution
	if err := query.
		Order("created_at DESC").
		Offset((req.Page - 1) * req.PageSize).
		Limit(req.PageSize).
		Find(&execs).Error; err != nil {
		return nil, 0, fmt.Errorf("list executions: %w", err)
	}
	return execs, total, nil
}

// LeadEvent is a lifecycle event the matcher reacts to. Previous must be
// nil for creation events and the pre-change snapshot for updates.
type LeadEvent struct {
	Type       string
	Lead       *models.Lead
	Previous   *models.Lead
	OccurredAt time.Time
}

// HandleLeadEvent matches the owner's active rules against the event and
// executes each eligible rule in priority order. A failing rule is logged
// and does not prevent the remaining matches from running.
func (s *AutomationService) HandleLeadEvent(ctx context.Context, evt LeadEvent) {
	if evt.Lead == nil {
		return
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now()
	}

	var rules []models.AutomationRule
	if err := s.db.WithContext(ctx).
		Where("owner_id = ? AND trigger_type = ? AND is_active = ?", evt.Lead.OwnerID, evt.Type, true).
		Order("priority DESC, id ASC").
		Find(&rules).Error; err != nil {
		s.logger.Warnf("automation: load rules for %s failed: %v", evt.Type, err)
		return
	}
	if len(rules) == 0 {
		return
	}

	matched := MatchRules(rules, evt.Lead, evt.Previous, evt.Type, evt.OccurredAt)
	for _, rule := range matched {
		triggerData := buildTriggerData(evt)
		if _, err := s.ExecuteRule(ctx, rule.ID, evt.Lead, triggerData); err != nil {
			s.logger.Warnf("automation: rule %q (%d) failed for lead %d: %v",
				rule.Name, rule.ID, evt.Lead.ID, err)
		}
	}
}

func buildTriggerData(evt LeadEvent) map[string]interface{} {
	data := map[string]interface{}{
		"trigger_type": evt.Type,
		"timestamp":    evt.OccurredAt.UTC().Format(time.RFC3339),
	}
	if evt.Previous != nil {
		data["previous_status"] = evt.Previous.Status
		data["previous_score"] = evt.Previous.LeadScore
	}
	return data
}

// RunTimeBasedSweep evaluates every active time_based rule against its
// owner's leads and stamps last_checked afterwards. The engine has no
// internal scheduler: cron (the sweep CLI command) or the server ticker is
// expected to call this periodically.
func (s *AutomationService) RunTimeBasedSweep(ctx context.Context) (int, error) {
	now := time.Now()

	var rules []models.AutomationRule
	if err := s.db.WithContext(ctx).
		Where("trigger_type = ? AND is_active = ?", models.TriggerTimeBased, true).
		Order("priority DESC, id ASC").
		Find(&rules).Error; err != nil {
		return 0, fmt.Errorf("load time_based rules: %w", err)
	}

	executed := 0
	for i := range rules {
		rule := rules[i]

		var leads []models.Lead
		if err := s.db.WithContext(ctx).
			Where("owner_id = ?", rule.OwnerID).
			Find(&leads).Error; err != nil {
			s.logger.Warnf("automation: sweep load leads for rule %d failed: %v", rule.ID, err)
			continue
		}

		for j := range leads {
			lead := leads[j]
			if len(MatchRules([]models.AutomationRule{rule}, &lead, nil, models.TriggerTimeBased, now)) == 0 {
				continue
			}
			triggerData := map[string]interface{}{
				"trigger_type": models.TriggerTimeBased,
				"timestamp":    now.UTC().Format(time.RFC3339),
			}
			if _, err := s.ExecuteRule(ctx, rule.ID, &lead, triggerData); err != nil {
				s.logger.Warnf("automation: sweep rule %d lead %d: %v", rule.ID, lead.ID, err)
				continue
			}
			executed++
		}

		// Stamp last_checked so the interval gate measures from this sweep.
		cfg := parseTriggerConfig(&rule)
		cfg.LastChecked = &now
		raw, err := json.Marshal(cfg)
		if err != nil {
			continue
		}
		if err := s.db.WithContext(ctx).Model(&models.AutomationRule{}).
			Where("id = ?", rule.ID).
			Update("trigger_config", string(raw)).Error; err != nil {
			s.logger.Warnf("automation: stamp last_checked for rule %d failed: %v", rule.ID, err)
		}
	}
	return executed, nil
}
