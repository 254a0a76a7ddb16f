package dto

import (
	"github.com/google/uuid"

	"skill-sync-engine/internal/domain/skill"
	"skill-sync-engine/internal/usecase"
)

type JobSkillTuple struct {
	SkillID          *uuid.UUID `json:"skill_id"`
	SkillName        string     `json:"skill_name"`
	ImportanceWeight *int16     `json:"importance_weight"`
	RequiredLevel    *int16     `json:"required_level"`
	IsMandatory      bool       `json:"is_mandatory"`
	RequiredYears    *int16     `json:"required_years"`
}

type PutJobSkillsRequest struct {
	SourceVersion int16           `json:"source_version"`
	Skills        []JobSkillTuple `json:"skills"`
}

func (r PutJobSkillsRequest) Inputs() []usecase.JobSkillInput {
	out := make([]usecase.JobSkillInput, 0, len(r.Skills))
	for _, s := range r.Skills {
		in := usecase.JobSkillInput{
			SkillName:        s.SkillName,
			ImportanceWeight: s.ImportanceWeight,
			RequiredLevel:    s.RequiredLevel,
			IsMandatory:      s.IsMandatory,
			RequiredYears:    s.RequiredYears,
			SourceVersion:    r.SourceVersion,
		}
		if s.SkillID != nil {
			in.SkillID = *s.SkillID
		}
		out = append(out, in)
	}
	return out
}

type PutJobSkillsResponse struct {
	JobID    uuid.UUID               `json:"job_id"`
	Accepted int                     `json:"accepted"`
	Rejected []usecase.RejectedSkill `json:"rejected"`
}

type PutUserSkillRequest struct {
	ProficiencyLevel *int16 `json:"proficiency_level"`
	YearsExperience  *int16 `json:"years_experience"`
}

type UserSkillResponse struct {
	ID               uuid.UUID `json:"id"`
	UserID           uuid.UUID `json:"user_id"`
	SkillID          uuid.UUID `json:"skill_id"`
	ProficiencyLevel *int16    `json:"proficiency_level"`
	YearsExperience  *int16    `json:"years_experience"`
}

func NewUserSkillResponse(us skill.UserSkill) UserSkillResponse {
	return UserSkillResponse(us)
}
