package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"learnlynk/internal/metrics"
	"learnlynk/internal/models"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

// ExecuteRule runs one rule against one lead and returns the execution
// record. Conditions are re-evaluated here even though the matcher already
// filtered; direct invocation implies the caller expects execution, so
// unmet conditions raise ErrConditionsNotMet instead of silently no-oping.
//
// Actions run strictly in order_index order. The loop is not transactional:
// a failure partway leaves earlier side effects applied, the execution
// marked failed with actions_executed reflecting completed actions, and the
// error re-raised after state is persisted. Already-applied actions are
// never rolled back.
func (s *AutomationService) ExecuteRule(ctx context.Context, ruleID uint, lead *models.Lead, triggerData map[string]interface{}) (*models.AutomationExecution, error) {
	ctx, span := s.tracer.Start(ctx, "automation.execute_rule")
	defer span.End()
	span.SetAttributes(attribute.Int("automation.rule_id", int(ruleID)))

	rule, err := s.GetRule(ctx, ruleID)
	if err != nil {
		return nil, err
	}
	if !rule.IsActive {
		return nil, fmt.Errorf("%w: rule %d", ErrRuleInactive, rule.ID)
	}
	if lead == nil {
		return nil, ErrLeadNotFound
	}

	conds, err := parseRuleConditions(rule)
	if err != nil {
		return nil, fmt.Errorf("invalid conditions on rule %d: %w", rule.ID, err)
	}
	if !EvaluateConditions(conds, leadAttributes(lead)) {
		return nil, fmt.Errorf("%w: rule %d, lead %d", ErrConditionsNotMet, rule.ID, lead.ID)
	}

	actions, err := parseRuleActions(rule)
	if err != nil {
		return nil, fmt.Errorf("invalid actions on rule %d: %w", rule.ID, err)
	}

	trigJSON, err := json.Marshal(triggerData)
	if err != nil {
		trigJSON = []byte("{}")
	}

	exec := &models.AutomationExecution{
		ID:           uuid.NewString(),
		RuleID:       rule.ID,
		LeadID:       lead.ID,
		TriggerData:  string(trigJSON),
		Status:       models.ExecutionRunning,
		TotalActions: len(actions),
	}
	if err := s.db.WithContext(ctx).Create(exec).Error; err != nil {
		return nil, fmt.Errorf("create execution: %w", err)
	}

	start := time.Now()
	for _, act := range actions {
		actErr := s.runAction(ctx, act, lead, exec.ID)
		s.logAction(ctx, exec.ID, act, actErr)
		if actErr != nil {
			s.finalizeExecution(ctx, exec, rule, start, actErr)
			return exec, fmt.Errorf("action %s: %w", act.ActionType, actErr)
		}
		exec.ActionsExecuted++
		s.db.WithContext(ctx).Model(exec).Update("actions_executed", exec.ActionsExecuted)
	}

	s.finalizeExecution(ctx, exec, rule, start, nil)
	return exec, nil
}

// runAction dispatches a single action under the per-action timeout.
func (s *AutomationService) runAction(ctx context.Context, act RuleAction, lead *models.Lead, executionID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.actionTimeout)
	defer cancel()
	return s.executeAction(ctx, act, lead, executionID)
}

// executeAction performs one side effect. It mutates both the lead row and
// the in-memory lead so later actions in the same execution observe earlier
// results.
func (s *AutomationService) executeAction(ctx context.Context, act RuleAction, lead *models.Lead, executionID string) error {
	cfg := act.ActionConfig

	switch act.ActionType {
	case ActionSendEmail:
		templateID := configString(cfg, "template_id")
		if templateID == "" {
			return fmt.Errorf("template_id required")
		}
		if s.notifier == nil {
			return fmt.Errorf("notifier not configured")
		}
		return s.notifier.Send(ctx, templateID, lead.Email, map[string]interface{}{
			"lead_id":      lead.ID,
			"first_name":   lead.FirstName,
			"last_name":    lead.LastName,
			"execution_id": executionID,
		})

	case ActionAssignLead:
		advisorID, ok := configUint(cfg, "advisor_id")
		if !ok {
			return fmt.Errorf("advisor_id required")
		}
		now := time.Now()
		if err := s.db.WithContext(ctx).Model(&models.Lead{}).
			Where("id = ?", lead.ID).
			Updates(map[string]interface{}{
				"assigned_to":       advisorID,
				"assigned_at":       now,
				"assignment_method": "automation",
			}).Error; err != nil {
			return fmt.Errorf("assign lead: %w", err)
		}
		lead.AssignedTo = &advisorID
		lead.AssignedAt = &now
		lead.AssignmentMethod = "automation"
		return nil

	case ActionUpdateStatus:
		status := configString(cfg, "status")
		if status == "" {
			return fmt.Errorf("status required")
		}
		if err := s.db.WithContext(ctx).Model(&models.Lead{}).
			Where("id = ?", lead.ID).
			Update("status", status).Error; err != nil {
			return fmt.Errorf("update status: %w", err)
		}
		lead.Status = status
		return nil

	case ActionAddTag:
		newTags := configStrings(cfg, "tags")
		if len(newTags) == 0 {
			return fmt.Errorf("tags required")
		}
		merged := unionTags(lead.TagList(), newTags)
		if err := s.db.WithContext(ctx).Model(&models.Lead{}).
			Where("id = ?", lead.ID).
			Update("tags", merged).Error; err != nil {
			return fmt.Errorf("add tag: %w", err)
		}
		lead.Tags = merged
		return nil

	case ActionCreateTask:
		title := configString(cfg, "title")
		if title == "" {
			return fmt.Errorf("title required")
		}
		task := &models.LeadTask{
			LeadID:      lead.ID,
			Title:       title,
			Description: configString(cfg, "description"),
			TaskType:    "follow_up",
			Priority:    "medium",
			AssignedTo:  lead.OwnerID,
		}
		if t := configString(cfg, "task_type"); t != "" {
			task.TaskType = t
		}
		if p := configString(cfg, "priority"); p != "" {
			task.Priority = p
		}
		if assignee, ok := configUint(cfg, "assigned_to"); ok {
			task.AssignedTo = assignee
		} else if lead.AssignedTo != nil {
			task.AssignedTo = *lead.AssignedTo
		}
		if err := s.db.WithContext(ctx).Create(task).Error; err != nil {
			return fmt.Errorf("create task: %w", err)
		}
		return nil

	case ActionUpdateScore:
		value, ok := configNumber(cfg, "value")
		if !ok {
			return fmt.Errorf("numeric value required")
		}
		score := float64(lead.LeadScore)
		switch configString(cfg, "operation") {
		case "add":
			score += value
		case "subtract":
			score -= value
		case "set":
			score = value
		default:
			return fmt.Errorf("operation must be add, subtract or set")
		}
		clamped := clampScore(int(score))
		if err := s.db.WithContext(ctx).Model(&models.Lead{}).
			Where("id = ?", lead.ID).
			Update("lead_score", clamped).Error; err != nil {
			return fmt.Errorf("update score: %w", err)
		}
		lead.LeadScore = clamped
		return nil

	case ActionConvertToStudent:
		if s.converter == nil {
			return fmt.Errorf("student conversion not configured")
		}
		if _, err := s.converter.CreateStudentFromLead(ctx, lead.ID); err != nil {
			return fmt.Errorf("convert to student: %w", err)
		}
		return nil

	default:
		return fmt.Errorf("%w: %s", ErrUnknownActionType, act.ActionType)
	}
}

// finalizeExecution persists the terminal execution state and bumps the
// rule's aggregate counters with atomic increments so concurrent executions
// of the same rule cannot lose updates.
func (s *AutomationService) finalizeExecution(ctx context.Context, exec *models.AutomationExecution, rule *models.AutomationRule, start time.Time, actErr error) {
	now := time.Now()
	elapsed := now.Sub(start).Milliseconds()

	exec.Status = models.ExecutionCompleted
	outcomeColumn := "success_count"
	if actErr != nil {
		exec.Status = models.ExecutionFailed
		exec.ErrorMessage = actErr.Error()
		outcomeColumn = "failure_count"
	}
	exec.CompletedAt = &now
	exec.ExecutionTimeMs = elapsed

	if err := s.db.WithContext(ctx).Model(exec).Updates(map[string]interface{}{
		"status":            exec.Status,
		"error_message":     exec.ErrorMessage,
		"completed_at":      now,
		"execution_time_ms": elapsed,
		"actions_executed":  exec.ActionsExecuted,
	}).Error; err != nil {
		s.logger.Warnf("automation: persist execution %s failed: %v", exec.ID, err)
	}

	if err := s.db.WithContext(ctx).Model(&models.AutomationRule{}).
		Where("id = ?", rule.ID).
		Updates(map[string]interface{}{
			"execution_count": gorm.Expr("execution_count + 1"),
			outcomeColumn:     gorm.Expr(outcomeColumn + " + 1"),
			"last_executed":   now,
		}).Error; err != nil {
		s.logger.Warnf("automation: update counters for rule %d failed: %v", rule.ID, err)
	}

	metrics.IncExecution(exec.Status)
	if s.publisher != nil {
		s.publisher.PublishExecution(exec, rule)
	}
}

// logAction appends the per-action audit row. Failures here are logged and
// swallowed; the audit trail must not fail an otherwise healthy execution.
func (s *AutomationService) logAction(ctx context.Context, executionID string, act RuleAction, actErr error) {
	entry := &models.AutomationActionLog{
		ID:          uuid.NewString(),
		ExecutionID: executionID,
		ActionType:  act.ActionType,
		OrderIndex:  act.OrderIndex,
		Status:      "success",
	}
	if actErr != nil {
		entry.Status = "failed"
		entry.Message = actErr.Error()
	}
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		s.logger.Warnf("automation: record action log failed: %v", err)
	}
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// unionTags merges tag sets preserving existing order, de-duplicated
// case-sensitively, and returns the comma separated column value.
func unionTags(existing, incoming []string) string {
	seen := make(map[string]bool, len(existing)+len(incoming))
	merged := make([]string, 0, len(existing)+len(incoming))
	for _, t := range existing {
		if t != "" && !seen[t] {
			seen[t] = true
			merged = append(merged, t)
		}
	}
	for _, t := range incoming {
		t = strings.TrimSpace(t)
		if t != "" && !seen[t] {
			seen[t] = true
			merged = append(merged, t)
		}
	}
	return strings.Join(merged, ",")
}

// Config bag accessors. Action configs arrive as JSON-decoded maps, so
// numbers are float64 and lists are []interface{}.

func configString(cfg map[string]interface{}, key string) string {
	if cfg == nil {
		return ""
	}
	if s, ok := cfg[key].(string); ok {
		return s
	}
	return ""
}

func configNumber(cfg map[string]interface{}, key string) (float64, bool) {
	if cfg == nil {
		return 0, false
	}
	switch v := cfg[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func configUint(cfg map[string]interface{}, key string) (uint, bool) {
	n, ok := configNumber(cfg, key)
	if !ok || n < 0 {
		return 0, false
	}
	return uint(n), true
}

func configStrings(cfg map[string]interface{}, key string) []string {
	if cfg == nil {
		return nil
	}
	switch v := cfg[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	default:
		return nil
	}
}
