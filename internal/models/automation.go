package models

import "time"

// Automation rule trigger types.
const (
	TriggerLeadCreated     = "lead_created"
	TriggerLeadUpdated     = "lead_updated"
	TriggerScoreThreshold  = "score_threshold"
	TriggerTimeBased       = "time_based"
	TriggerStatusChange    = "status_change"
	TriggerEngagementLevel = "engagement_level"
)

// Execution statuses.
const (
	ExecutionRunning   = "running"
	ExecutionCompleted = "completed"
	ExecutionFailed    = "failed"
)

// AutomationRule bundles a trigger, a condition list and an ordered action
// list. Conditions, actions and the trigger config are stored as JSON text
// columns; the services package owns their shapes.
type AutomationRule struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	OwnerID        uint       `gorm:"index" json:"owner_id"`
	Name           string     `gorm:"not null" json:"name"`
	Description    string     `gorm:"type:text" json:"description"`
	TriggerType    string     `gorm:"not null;index" json:"trigger_type"`
	TriggerConfig  string     `gorm:"type:text" json:"trigger_config"` // JSON: {threshold, target_status, interval, last_checked}
	Conditions     string     `gorm:"type:text" json:"conditions"`     // JSON: [{field,operator,value,logical_operator}]
	Actions        string     `gorm:"type:text" json:"actions"`        // JSON: [{action_type,action_config,order_index}]
	IsActive       bool       `gorm:"default:true" json:"is_active"`
	Priority       int        `gorm:"default:0" json:"priority"`
	ExecutionCount int64      `gorm:"default:0" json:"execution_count"`
	SuccessCount   int64      `gorm:"default:0" json:"success_count"`
	FailureCount   int64      `gorm:"default:0" json:"failure_count"`
	LastExecuted   *time.Time `json:"last_executed"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// AutomationExecution is one run of a rule against one lead.
//
// Status moves running -> completed|failed. ActionsExecuted counts actions
// that finished successfully and never exceeds TotalActions, which is a
// snapshot of the rule's action count at execution start.
type AutomationExecution struct {
	ID              string     `gorm:"primaryKey" json:"id"`
	RuleID          uint       `gorm:"index" json:"rule_id"`
	LeadID          uint       `gorm:"index" json:"lead_id"`
	TriggerData     string     `gorm:"type:text" json:"trigger_data"` // JSON snapshot of the triggering event
	Status          string     `gorm:"index" json:"status"`
	ActionsExecuted int        `gorm:"default:0" json:"actions_executed"`
	TotalActions    int        `gorm:"default:0" json:"total_actions"`
	ErrorMessage    string     `gorm:"type:text" json:"error_message"`
	ExecutionTimeMs int64      `json:"execution_time_ms"`
	CreatedAt       time.Time  `json:"created_at"`
	CompletedAt     *time.Time `json:"completed_at"`

	Rule AutomationRule `gorm:"foreignKey:RuleID" json:"rule,omitempty"`
}

// AutomationActionLog records the outcome of a single action within an
// execution, independent of the execution's own status.
type AutomationActionLog struct {
	ID          string    `gorm:"primaryKey" json:"id"`
	ExecutionID string    `gorm:"index" json:"execution_id"`
	ActionType  string    `json:"action_type"`
	OrderIndex  int       `json:"order_index"`
	Status      string    `json:"status"` // success, failed
	Message     string    `gorm:"type:text" json:"message"`
	CreatedAt   time.Time `json:"created_at"`
}
