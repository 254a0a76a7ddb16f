package skill

import (
	"time"

	"github.com/google/uuid"
)

const (
	MinImportance = 1
	MaxImportance = 5
	MinLevel      = 1
	MaxLevel      = 5
)

type Skill struct {
	ID        uuid.UUID
	Name      string
	Category  string
	CreatedAt time.Time
}

type UserSkill struct {
	ID               uuid.UUID
	UserID           uuid.UUID
	SkillID          uuid.UUID
	ProficiencyLevel *int16
	YearsExperience  *int16
}

// JobSkill is a job's requirement for one skill. Nil fields are "unspecified".
type JobSkill struct {
	ID               uuid.UUID
	JobID            uuid.UUID
	SkillID          uuid.UUID
	SkillName        string
	ImportanceWeight *int16
	RequiredLevel    *int16
	IsMandatory      bool
	RequiredYears    *int16
	SourceVersion    int16
}
