package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"learnlynk/internal/models"
)

// AutomationMetrics summarizes an owner's automation activity over an
// optional time window.
type AutomationMetrics struct {
	TotalRules             int64                        `json:"total_rules"`
	ActiveRules            int64                        `json:"active_rules"`
	TotalExecutions        int64                        `json:"total_executions"`
	CompletedExecutions    int64                        `json:"completed_executions"`
	FailedExecutions       int64                        `json:"failed_executions"`
	SuccessRate            float64                      `json:"success_rate"` // percent
	AverageExecutionTimeMs float64                      `json:"average_execution_time_ms"`
	TopRules               []RulePerformance            `json:"top_rules"`
	RecentActivity         []models.AutomationExecution `json:"recent_activity"`
}

// RulePerformance ranks one rule inside the metrics window.
type RulePerformance struct {
	RuleID      uint    `json:"rule_id"`
	RuleName    string  `json:"rule_name"`
	Executions  int64   `json:"executions"`
	SuccessRate float64 `json:"success_rate"`
}

const recentActivityLimit = 10

// GetMetrics aggregates execution statistics for the owner's rules,
// optionally restricted to executions created in [from, to].
func (s *AutomationService) GetMetrics(ctx context.Context, ownerID uint, from, to *time.Time) (*AutomationMetrics, error) {
	rules, err := s.ListRules(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	m := &AutomationMetrics{TotalRules: int64(len(rules))}
	ruleNames := make(map[uint]string, len(rules))
	ruleIDs := make([]uint, 0, len(rules))
	for _, r := range rules {
		ruleIDs = append(ruleIDs, r.ID)
		ruleNames[r.ID] = r.Name
		if r.IsActive {
			m.ActiveRules++
		}
	}
	if len(ruleIDs) == 0 {
		return m, nil
	}

	query := s.db.WithContext(ctx).
		Where("rule_id IN ?", ruleIDs)
	if from != nil {
		query = query.Where("created_at >= ?", *from)
	}
	if to != nil {
		query = query.Where("created_at <= ?", *to)
	}

	var execs []models.AutomationExecution
	if err := query.Order("created_at DESC").Find(&execs).Error; err != nil {
		return nil, fmt.Errorf("load executions: %w", err)
	}

	type ruleTally struct {
		executions int64
		completed  int64
	}

	m.TotalExecutions = int64(len(execs))
	perRule := map[uint]*ruleTally{}
	var totalTime int64
	for _, e := range execs {
		switch e.Status {
		case models.ExecutionCompleted:
			m.CompletedExecutions++
		case models.ExecutionFailed:
			m.FailedExecutions++
		}
		totalTime += e.ExecutionTimeMs

		tally, ok := perRule[e.RuleID]
		if !ok {
			tally = &ruleTally{}
			perRule[e.RuleID] = tally
		}
		tally.executions++
		if e.Status == models.ExecutionCompleted {
			tally.completed++
		}
	}

	if m.TotalExecutions > 0 {
		m.SuccessRate = float64(m.CompletedExecutions) / float64(m.TotalExecutions) * 100
		m.AverageExecutionTimeMs = float64(totalTime) / float64(m.TotalExecutions)
	}

	for ruleID, tally := range perRule {
		m.TopRules = append(m.TopRules, RulePerformance{
			RuleID:      ruleID,
			RuleName:    ruleNames[ruleID],
			Executions:  tally.executions,
			SuccessRate: float64(tally.completed) / float64(tally.executions) * 100,
		})
	}
	sort.SliceStable(m.TopRules, func(i, j int) bool {
		if m.TopRules[i].SuccessRate != m.TopRules[j].SuccessRate {
			return m.TopRules[i].SuccessRate > m.TopRules[j].SuccessRate
		}
		if m.TopRules[i].Executions != m.TopRules[j].Executions {
			return m.TopRules[i].Executions > m.TopRules[j].Executions
		}
		return m.TopRules[i].RuleID < m.TopRules[j].RuleID
	})
	if len(m.TopRules) > 5 {
		m.TopRules = m.TopRules[:5]
	}

	if len(execs) > recentActivityLimit {
		m.RecentActivity = execs[:recentActivityLimit]
	} else {
		m.RecentActivity = execs
	}
	return m, nil
}
