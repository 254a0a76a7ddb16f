package skill

import (
	"github.com/google/uuid"

	"skill-sync-engine/internal/domain"
)

// Validate checks one requirement tuple against the job_skills check constraints.
func (s JobSkill) Validate() error {
	if s.JobID == uuid.Nil {
		return &domain.ConstraintViolation{Field: "job_id", Value: s.JobID, Rule: "required"}
	}
	if s.SkillID == uuid.Nil {
		return &domain.ConstraintViolation{Field: "skill_id", Value: s.SkillID, Rule: "required"}
	}
	if w := s.ImportanceWeight; w != nil && (*w < MinImportance || *w > MaxImportance) {
		return &domain.ConstraintViolation{Field: "importance_weight", Value: *w, Rule: "range [1,5]"}
	}
	if l := s.RequiredLevel; l != nil && (*l < MinLevel || *l > MaxLevel) {
		return &domain.ConstraintViolation{Field: "required_level", Value: *l, Rule: "range [1,5]"}
	}
	if y := s.RequiredYears; y != nil && *y < 0 {
		return &domain.ConstraintViolation{Field: "required_years", Value: *y, Rule: ">= 0"}
	}
	return nil
}
