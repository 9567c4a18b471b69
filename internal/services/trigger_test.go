package services

import (
	"testing"
	"time"

	"learnlynk/internal/models"
)

func TestTriggerEligible_ScoreThreshold(t *testing.T) {
	rule := &models.AutomationRule{
		TriggerType:   models.TriggerScoreThreshold,
		TriggerConfig: `{"threshold": 70}`,
	}
	now := time.Now()

	tests := []struct {
		name     string
		lead     *models.Lead
		previous *models.Lead
		expected bool
	}{
		{
			name:     "crossing fires",
			lead:     &models.Lead{LeadScore: 75},
			previous: &models.Lead{LeadScore: 60},
			expected: true,
		},
		{
			name:     "landing exactly on threshold fires",
			lead:     &models.Lead{LeadScore: 70},
			previous: &models.Lead{LeadScore: 69},
			expected: true,
		},
		{
			name:     "already above does not re-fire",
			lead:     &models.Lead{LeadScore: 90},
			previous: &models.Lead{LeadScore: 75},
			expected: false,
		},
		{
			name:     "still below",
			lead:     &models.Lead{LeadScore: 60},
			previous: &models.Lead{LeadScore: 50},
			expected: false,
		},
		{
			name:     "dropping below does not fire",
			lead:     &models.Lead{LeadScore: 60},
			previous: &models.Lead{LeadScore: 80},
			expected: false,
		},
		{
			name:     "no previous state",
			lead:     &models.Lead{LeadScore: 90},
			previous: nil,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := triggerEligible(rule, tt.lead, tt.previous, now); got != tt.expected {
				t.Errorf("triggerEligible() = %v, expected %v", got, tt.expected)
			}
		})
	}
}

func TestTriggerEligible_StatusChange(t *testing.T) {
	rule := &models.AutomationRule{
		TriggerType:   models.TriggerStatusChange,
		TriggerConfig: `{"target_status": "qualified"}`,
	}
	now := time.Now()

	tests := []struct {
		name     string
		lead     *models.Lead
		previous *models.Lead
		expected bool
	}{
		{
			name:     "transition into target",
			lead:     &models.Lead{Status: "qualified"},
			previous: &models.Lead{Status: "contacted"},
			expected: true,
		},
		{
			name:     "already at target",
			lead:     &models.Lead{Status: "qualified"},
			previous: &models.Lead{Status: "qualified"},
			expected: false,
		},
		{
			name:     "different status",
			lead:     &models.Lead{Status: "lost"},
			previous: &models.Lead{Status: "contacted"},
			expected: false,
		},
		{
			name:     "no previous state",
			lead:     &models.Lead{Status: "qualified"},
			previous: nil,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := triggerEligible(rule, tt.lead, tt.previous, now); got != tt.expected {
				t.Errorf("triggerEligible() = %v, expected %v", got, tt.expected)
			}
		})
	}
}

func TestTriggerEligible_TimeBased(t *testing.T) {
	now := time.Now()
	dayAndHour := now.Add(-25 * time.Hour)
	hourAgo := now.Add(-1 * time.Hour)

	tests := []struct {
		name     string
		config   string
		lead     *models.Lead
		expected bool
	}{
		{
			name:     "daily interval elapsed since creation",
			config:   `{"interval": "daily"}`,
			lead:     &models.Lead{CreatedAt: dayAndHour},
			expected: true,
		},
		{
			name:     "daily interval not yet elapsed",
			config:   `{"interval": "daily"}`,
			lead:     &models.Lead{CreatedAt: hourAgo},
			expected: false,
		},
		{
			name:     "weekly interval not elapsed after one day",
			config:   `{"interval": "weekly"}`,
			lead:     &models.Lead{CreatedAt: dayAndHour},
			expected: false,
		},
		{
			name:     "unknown interval falls back to daily",
			config:   `{"interval": "hourly"}`,
			lead:     &models.Lead{CreatedAt: dayAndHour},
			expected: true,
		},
		{
			name:     "last_checked overrides creation time",
			config:   `{"interval": "daily", "last_checked": "` + hourAgo.Format(time.RFC3339Nano) + `"}`,
			lead:     &models.Lead{CreatedAt: dayAndHour},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := &models.AutomationRule{
				TriggerType:   models.TriggerTimeBased,
				TriggerConfig: tt.config,
			}
			if got := triggerEligible(rule, tt.lead, nil, now); got != tt.expected {
				t.Errorf("triggerEligible() = %v, expected %v", got, tt.expected)
			}
		})
	}
}

func TestTriggerEligible_SimpleGates(t *testing.T) {
	now := time.Now()
	lead := &models.Lead{Status: "new", LeadScore: 80}
	previous := &models.Lead{Status: "new", LeadScore: 80}

	created := &models.AutomationRule{TriggerType: models.TriggerLeadCreated}
	if !triggerEligible(created, lead, nil, now) {
		t.Error("lead_created must always be eligible")
	}

	updated := &models.AutomationRule{TriggerType: models.TriggerLeadUpdated}
	if triggerEligible(updated, lead, nil, now) {
		t.Error("lead_updated must not fire without previous state")
	}
	if !triggerEligible(updated, lead, previous, now) {
		t.Error("lead_updated must fire with previous state")
	}

	engagement := &models.AutomationRule{
		TriggerType:   models.TriggerEngagementLevel,
		TriggerConfig: `{"threshold": 75}`,
	}
	// Level-triggered: no crossing required.
	if !triggerEligible(engagement, lead, nil, now) {
		t.Error("engagement_level must fire at or above threshold")
	}
	if triggerEligible(engagement, &models.Lead{LeadScore: 50}, nil, now) {
		t.Error("engagement_level must not fire below threshold")
	}

	unknown := &models.AutomationRule{TriggerType: "lead_deleted"}
	if triggerEligible(unknown, lead, previous, now) {
		t.Error("unknown trigger types must never be eligible")
	}
}

func TestMatchRules_PriorityAndFiltering(t *testing.T) {
	now := time.Now()
	lead := &models.Lead{ID: 1, Status: "new", LeadScore: 10}

	rules := []models.AutomationRule{
		{ID: 1, TriggerType: models.TriggerLeadCreated, IsActive: true, Priority: 1, Name: "low"},
		{ID: 2, TriggerType: models.TriggerLeadCreated, IsActive: true, Priority: 10, Name: "high"},
		{ID: 3, TriggerType: models.TriggerLeadCreated, IsActive: false, Priority: 99, Name: "inactive"},
		{ID: 4, TriggerType: models.TriggerLeadUpdated, IsActive: true, Priority: 50, Name: "wrong type"},
		{
			ID: 5, TriggerType: models.TriggerLeadCreated, IsActive: true, Priority: 5,
			Name:       "conditions not met",
			Conditions: `[{"field":"status","operator":"equals","value":"qualified"}]`,
		},
		{
			ID: 6, TriggerType: models.TriggerLeadCreated, IsActive: true, Priority: 5,
			Name:       "broken conditions",
			Conditions: `{not json`,
		},
	}

	matched := MatchRules(rules, lead, nil, models.TriggerLeadCreated, now)
	if len(matched) != 2 {
		t.Fatalf("expected 2 matched rules, got %d", len(matched))
	}
	if matched[0].ID != 2 || matched[1].ID != 1 {
		t.Errorf("expected priority order [2 1], got [%d %d]", matched[0].ID, matched[1].ID)
	}

	if got := MatchRules(rules, nil, nil, models.TriggerLeadCreated, now); got != nil {
		t.Error("nil lead must match nothing")
	}
}

func TestMatchRules_StablePriorityTies(t *testing.T) {
	now := time.Now()
	lead := &models.Lead{ID: 1, Status: "new"}
	rules := []models.AutomationRule{
		{ID: 11, TriggerType: models.TriggerLeadCreated, IsActive: true, Priority: 5},
		{ID: 12, TriggerType: models.TriggerLeadCreated, IsActive: true, Priority: 5},
		{ID: 13, TriggerType: models.TriggerLeadCreated, IsActive: true, Priority: 5},
	}

	matched := MatchRules(rules, lead, nil, models.TriggerLeadCreated, now)
	if len(matched) != 3 {
		t.Fatalf("expected 3 matches, got %d", len(matched))
	}
	for i, want := range []uint{11, 12, 13} {
		if matched[i].ID != want {
			t.Errorf("position %d: expected rule %d, got %d", i, want, matched[i].ID)
		}
	}
}
