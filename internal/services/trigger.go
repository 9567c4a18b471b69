package services

import (
	"encoding/json"
	"sort"
	"time"

	"learnlynk/internal/models"
)

// TriggerConfig carries the trigger-specific parameters of a rule. Only the
// fields relevant to the rule's trigger type are consulted.
type TriggerConfig struct {
	Threshold    float64    `json:"threshold,omitempty"`     // score_threshold, engagement_level
	TargetStatus string     `json:"target_status,omitempty"` // status_change
	Interval     string     `json:"interval,omitempty"`      // time_based: daily, weekly
	LastChecked  *time.Time `json:"last_checked,omitempty"`  // time_based sweep bookkeeping
}

func parseTriggerConfig(rule *models.AutomationRule) TriggerConfig {
	var cfg TriggerConfig
	if rule.TriggerConfig != "" {
		_ = json.Unmarshal([]byte(rule.TriggerConfig), &cfg)
	}
	return cfg
}

func parseRuleConditions(rule *models.AutomationRule) ([]RuleCondition, error) {
	if rule.Conditions == "" {
		return nil, nil
	}
	var conds []RuleCondition
	if err := json.Unmarshal([]byte(rule.Conditions), &conds); err != nil {
		return nil, err
	}
	return conds, nil
}

// intervalDuration maps a time_based interval name to a duration. Unknown
// or empty intervals fall back to daily.
func intervalDuration(interval string) time.Duration {
	switch interval {
	case "weekly":
		return 7 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// MatchRules returns the subset of rules eligible to execute for the given
// event, ordered by descending priority (stable, so store order breaks
// ties). Callers are expected to pre-filter rules to the owner; this
// function additionally filters on is_active and trigger type, applies the
// per-trigger gate, and evaluates each rule's conditions against the lead.
//
// previous is the lead state before the triggering change; it must be nil
// for creation events. Rules with an unknown trigger type or unparseable
// conditions never match.
func MatchRules(rules []models.AutomationRule, lead *models.Lead, previous *models.Lead, triggerType string, now time.Time) []models.AutomationRule {
	if lead == nil {
		return nil
	}
	attrs := leadAttributes(lead)

	var matched []models.AutomationRule
	for i := range rules {
		rule := rules[i]
		if !rule.IsActive || rule.TriggerType != triggerType {
			continue
		}
		if !triggerEligible(&rule, lead, previous, now) {
			continue
		}
		conds, err := parseRuleConditions(&rule)
		if err != nil {
			continue
		}
		if !EvaluateConditions(conds, attrs) {
			continue
		}
		matched = append(matched, rule)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Priority > matched[j].Priority
	})
	return matched
}

// triggerEligible applies the declarative per-trigger gate, before
// conditions are considered.
func triggerEligible(rule *models.AutomationRule, lead *models.Lead, previous *models.Lead, now time.Time) bool {
	cfg := parseTriggerConfig(rule)

	switch rule.TriggerType {
	case models.TriggerLeadCreated:
		return true

	case models.TriggerLeadUpdated:
		// Only genuine updates qualify; creation events carry no previous
		// state.
		return previous != nil

	case models.TriggerScoreThreshold:
		// Edge-triggered: fires on the crossing only, so a lead already
		// above the threshold never re-fires without first dropping below.
		if previous == nil {
			return false
		}
		return float64(lead.LeadScore) >= cfg.Threshold &&
			float64(previous.LeadScore) < cfg.Threshold

	case models.TriggerStatusChange:
		if previous == nil {
			return false
		}
		return lead.Status == cfg.TargetStatus && previous.Status != cfg.TargetStatus

	case models.TriggerTimeBased:
		// Wall-clock comparison at call time; an external sweep is expected
		// to invoke the matcher periodically.
		since := lead.CreatedAt
		if cfg.LastChecked != nil {
			since = *cfg.LastChecked
		}
		return now.Sub(since) > intervalDuration(cfg.Interval)

	case models.TriggerEngagementLevel:
		// Score stands in for an engagement metric; level-triggered.
		return float64(lead.LeadScore) >= cfg.Threshold

	default:
		return false
	}
}
