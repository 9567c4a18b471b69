package services

import (
	"context"
	"errors"
	"testing"

	"learnlynk/internal/models"

	"github.com/sirupsen/logrus"
)

func TestLeadService_CreateLead(t *testing.T) {
	db := newEngineTestDB(t)
	automation := NewAutomationService(db, logrus.New())
	svc := NewLeadService(db, logrus.New(), automation)

	// lead_created rule fires on creation.
	_, err := automation.CreateRule(context.Background(), 1, &AutomationRuleRequest{
		Name:        "tag new leads",
		TriggerType: models.TriggerLeadCreated,
		Actions: []RuleAction{
			{ActionType: ActionAddTag, ActionConfig: map[string]interface{}{"tags": []interface{}{"fresh"}}},
		},
	})
	if err != nil {
		t.Fatalf("CreateRule failed: %v", err)
	}

	lead, err := svc.CreateLead(context.Background(), 1, &LeadCreateRequest{
		Email:     "flora@example.com",
		FirstName: "Flora",
		Source:    "web",
		LeadScore: 150, // clamped on the way in
	})
	if err != nil {
		t.Fatalf("CreateLead failed: %v", err)
	}
	if lead.Status != "new" {
		t.Errorf("expected status new, got %s", lead.Status)
	}
	if lead.LeadScore != 100 {
		t.Errorf("expected clamped score 100, got %d", lead.LeadScore)
	}

	var execs []models.AutomationExecution
	db.Find(&execs)
	if len(execs) != 1 {
		t.Fatalf("expected 1 execution from creation event, got %d", len(execs))
	}
	var updated models.Lead
	db.First(&updated, lead.ID)
	if updated.Tags != "fresh" {
		t.Errorf("expected tag fresh, got %q", updated.Tags)
	}
}

func TestLeadService_UpdateLead_StatusChangeTrigger(t *testing.T) {
	db := newEngineTestDB(t)
	automation := NewAutomationService(db, logrus.New())
	svc := NewLeadService(db, logrus.New(), automation)

	lead, err := svc.CreateLead(context.Background(), 1, &LeadCreateRequest{Email: "gus@example.com"})
	if err != nil {
		t.Fatalf("CreateLead failed: %v", err)
	}

	_, err = automation.CreateRule(context.Background(), 1, &AutomationRuleRequest{
		Name:          "qualified handoff",
		TriggerType:   models.TriggerStatusChange,
		TriggerConfig: map[string]interface{}{"target_status": "qualified"},
		Actions: []RuleAction{
			{ActionType: ActionCreateTask, ActionConfig: map[string]interface{}{"title": "Schedule interview"}},
		},
	})
	if err != nil {
		t.Fatalf("CreateRule failed: %v", err)
	}

	status := "qualified"
	if _, err := svc.UpdateLead(context.Background(), lead.ID, &LeadUpdateRequest{Status: &status}); err != nil {
		t.Fatalf("UpdateLead failed: %v", err)
	}

	var tasks []models.LeadTask
	db.Where("lead_id = ?", lead.ID).Find(&tasks)
	if len(tasks) != 1 {
		t.Fatalf("expected 1 task from status_change rule, got %d", len(tasks))
	}

	// Updating to the same status must not re-fire the rule.
	if _, err := svc.UpdateLead(context.Background(), lead.ID, &LeadUpdateRequest{Status: &status}); err != nil {
		t.Fatalf("second UpdateLead failed: %v", err)
	}
	db.Where("lead_id = ?", lead.ID).Find(&tasks)
	if len(tasks) != 1 {
		t.Errorf("status_change re-fired on no-op update, tasks = %d", len(tasks))
	}
}

func TestLeadService_UpdateLead_ScoreThresholdEdge(t *testing.T) {
	db := newEngineTestDB(t)
	automation := NewAutomationService(db, logrus.New())
	svc := NewLeadService(db, logrus.New(), automation)

	lead, _ := svc.CreateLead(context.Background(), 1, &LeadCreateRequest{
		Email:     "hana@example.com",
		LeadScore: 50,
	})

	_, err := automation.CreateRule(context.Background(), 1, &AutomationRuleRequest{
		Name:          "hot lead",
		TriggerType:   models.TriggerScoreThreshold,
		TriggerConfig: map[string]interface{}{"threshold": 70},
		Actions: []RuleAction{
			{ActionType: ActionAddTag, ActionConfig: map[string]interface{}{"tags": []interface{}{"hot"}}},
		},
	})
	if err != nil {
		t.Fatalf("CreateRule failed: %v", err)
	}

	// Crossing 50 -> 80 fires once.
	score := 80
	if _, err := svc.UpdateLead(context.Background(), lead.ID, &LeadUpdateRequest{LeadScore: &score}); err != nil {
		t.Fatalf("UpdateLead failed: %v", err)
	}
	var execs []models.AutomationExecution
	db.Find(&execs)
	if len(execs) != 1 {
		t.Fatalf("expected 1 execution after crossing, got %d", len(execs))
	}

	// Staying above (80 -> 90) must not re-fire.
	score = 90
	if _, err := svc.UpdateLead(context.Background(), lead.ID, &LeadUpdateRequest{LeadScore: &score}); err != nil {
		t.Fatalf("UpdateLead failed: %v", err)
	}
	db.Find(&execs)
	if len(execs) != 1 {
		t.Errorf("score_threshold re-fired above threshold, executions = %d", len(execs))
	}

	// Dropping below and crossing again fires again.
	score = 60
	_, _ = svc.UpdateLead(context.Background(), lead.ID, &LeadUpdateRequest{LeadScore: &score})
	score = 75
	_, _ = svc.UpdateLead(context.Background(), lead.ID, &LeadUpdateRequest{LeadScore: &score})
	db.Find(&execs)
	if len(execs) != 2 {
		t.Errorf("expected 2 executions after second crossing, got %d", len(execs))
	}
}

func TestLeadService_GetAndList(t *testing.T) {
	db := newEngineTestDB(t)
	svc := NewLeadService(db, logrus.New(), nil)

	company := &models.Company{Name: "Acme Recruiting"}
	db.Create(company)
	recruiter := &models.Recruiter{Name: "Rita", CompanyID: &company.ID}
	db.Create(recruiter)

	created, err := svc.CreateLead(context.Background(), 1, &LeadCreateRequest{
		Email:       "ivy@example.com",
		RecruiterID: &recruiter.ID,
	})
	if err != nil {
		t.Fatalf("CreateLead failed: %v", err)
	}

	lead, err := svc.GetLead(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("GetLead failed: %v", err)
	}
	if lead.Recruiter == nil || lead.Recruiter.Name != "Rita" {
		t.Error("expected recruiter preloaded")
	}
	if lead.Recruiter.Company == nil || lead.Recruiter.Company.Name != "Acme Recruiting" {
		t.Error("expected recruiter company preloaded")
	}

	if _, err := svc.GetLead(context.Background(), 9999); !errors.Is(err, ErrLeadNotFound) {
		t.Errorf("expected ErrLeadNotFound, got %v", err)
	}

	_, _ = svc.CreateLead(context.Background(), 2, &LeadCreateRequest{Email: "other@example.com"})
	leads, err := svc.ListLeads(context.Background(), 1)
	if err != nil {
		t.Fatalf("ListLeads failed: %v", err)
	}
	if len(leads) != 1 {
		t.Errorf("expected 1 lead for owner 1, got %d", len(leads))
	}
}

func TestStudentService_CreateStudentFromLead(t *testing.T) {
	db := newEngineTestDB(t)
	svc := NewStudentService(db, logrus.New())

	lead := seedLead(t, db, &models.Lead{
		OwnerID: 1, Email: "jon@example.com", FirstName: "Jon", Program: "Data Science", Status: "qualified",
	})

	student, err := svc.CreateStudentFromLead(context.Background(), lead.ID)
	if err != nil {
		t.Fatalf("CreateStudentFromLead failed: %v", err)
	}
	if student.LeadID != lead.ID || student.Email != "jon@example.com" {
		t.Errorf("student fields wrong: %+v", student)
	}

	// Converting again returns the same student instead of erroring.
	again, err := svc.CreateStudentFromLead(context.Background(), lead.ID)
	if err != nil {
		t.Fatalf("repeat conversion failed: %v", err)
	}
	if again.ID != student.ID {
		t.Errorf("expected existing student %d, got %d", student.ID, again.ID)
	}

	var count int64
	db.Model(&models.Student{}).Count(&count)
	if count != 1 {
		t.Errorf("expected 1 student row, got %d", count)
	}

	if _, err := svc.CreateStudentFromLead(context.Background(), 9999); !errors.Is(err, ErrLeadNotFound) {
		t.Errorf("expected ErrLeadNotFound, got %v", err)
	}
}
