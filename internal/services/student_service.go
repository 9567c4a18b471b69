package services

import (
	"context"
	"fmt"
	"time"

	"learnlynk/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// StudentService converts qualified leads into student records. It backs
// the convert_to_student automation action.
type StudentService struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewStudentService(db *gorm.DB, logger *logrus.Logger) *StudentService {
	if logger == nil {
		logger = logrus.New()
	}
	return &StudentService{db: db, logger: logger}
}

// CreateStudentFromLead creates the student record for a lead and stamps
// the lead converted. Converting an already-converted lead returns the
// existing student rather than erroring, so re-fired rules stay idempotent.
func (s *StudentService) CreateStudentFromLead(ctx context.Context, leadID uint) (*models.Student, error) {
	var lead models.Lead
	if err := s.db.WithContext(ctx).First(&lead, leadID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrLeadNotFound
		}
		return nil, fmt.Errorf("load lead: %w", err)
	}

	var existing models.Student
	if err := s.db.WithContext(ctx).Where("lead_id = ?", leadID).First(&existing).Error; err == nil {
		return &existing, nil
	} else if err != gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("check existing student: %w", err)
	}

	student := &models.Student{
		LeadID:    lead.ID,
		Email:     lead.Email,
		FirstName: lead.FirstName,
		LastName:  lead.LastName,
		Program:   lead.Program,
	}
	if err := s.db.WithContext(ctx).Create(student).Error; err != nil {
		return nil, fmt.Errorf("create student: %w", err)
	}

	now := time.Now()
	if err := s.db.WithContext(ctx).Model(&models.Lead{}).
		Where("id = ?", lead.ID).
		Updates(map[string]interface{}{
			"status":       "converted",
			"converted_at": now,
		}).Error; err != nil {
		s.logger.Warnf("student: mark lead %d converted failed: %v", lead.ID, err)
	}

	s.logger.Infof("student: converted lead %d to student %d", lead.ID, student.ID)
	return student, nil
}
