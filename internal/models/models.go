package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// User is an advisor or recruiter account. Leads and automation rules are
// owned by a user.
type User struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Email     string         `gorm:"unique;not null" json:"email"`
	Name      string         `json:"name"`
	Role      string         `gorm:"default:'advisor'" json:"role"` // advisor, recruiter, admin
	Status    string         `gorm:"default:'active'" json:"status"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// Company a lead is associated with (usually via its recruiter).
type Company struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"not null" json:"name"`
	Industry  string    `json:"industry"`
	Country   string    `json:"country"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Recruiter is an external partner that sources leads.
type Recruiter struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Status    string    `gorm:"default:'active'" json:"status"` // active, suspended
	CompanyID *uint     `gorm:"index" json:"company_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Company *Company `gorm:"foreignKey:CompanyID" json:"company,omitempty"`
}

// Lead is a prospective student tracked through the admissions pipeline.
// Condition fields of automation rules resolve against the JSON shape of
// this struct, including nested relations (e.g. "recruiter.status").
type Lead struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	OwnerID          uint           `gorm:"index" json:"owner_id"`
	Email            string         `gorm:"index" json:"email"`
	FirstName        string         `json:"first_name"`
	LastName         string         `json:"last_name"`
	Phone            string         `json:"phone"`
	Status           string         `gorm:"default:'new'" json:"status"` // new, contacted, qualified, converted, lost
	Source           string         `json:"source"`                      // web, referral, agency, event
	Program          string         `json:"program"`
	LeadScore        int            `gorm:"default:0" json:"lead_score"`
	Tags             string         `json:"tags"` // comma separated
	AssignedTo       *uint          `gorm:"index" json:"assigned_to"`
	AssignedAt       *time.Time     `json:"assigned_at"`
	AssignmentMethod string         `json:"assignment_method"` // manual, automation
	RecruiterID      *uint          `gorm:"index" json:"recruiter_id"`
	ConvertedAt      *time.Time     `json:"converted_at"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"-"`

	Recruiter *Recruiter `gorm:"foreignKey:RecruiterID" json:"recruiter,omitempty"`
}

// TagList splits the comma separated tag column into a slice, dropping
// empty entries.
func (l *Lead) TagList() []string {
	if l.Tags == "" {
		return nil
	}
	parts := strings.Split(l.Tags, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// LeadTask is a follow-up task created against a lead, either manually or by
// the create_task automation action.
type LeadTask struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	LeadID      uint       `gorm:"index" json:"lead_id"`
	Title       string     `gorm:"not null" json:"title"`
	Description string     `gorm:"type:text" json:"description"`
	TaskType    string     `gorm:"default:'follow_up'" json:"task_type"` // follow_up, call, email, review
	Priority    string     `gorm:"default:'medium'" json:"priority"`     // low, medium, high
	AssignedTo  uint       `gorm:"index" json:"assigned_to"`
	Status      string     `gorm:"default:'open'" json:"status"` // open, done, cancelled
	DueDate     *time.Time `json:"due_date"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	Lead Lead `gorm:"foreignKey:LeadID" json:"lead,omitempty"`
}

// Student is the record produced when a lead is converted.
type Student struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	LeadID    uint      `gorm:"uniqueIndex" json:"lead_id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Program   string    `json:"program"`
	Status    string    `gorm:"default:'enrolled'" json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Lead Lead `gorm:"foreignKey:LeadID" json:"lead,omitempty"`
}
