package skill

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"skill-sync-engine/internal/domain"
)

func i16(v int16) *int16 { return &v }

func TestJobSkillValidate(t *testing.T) {
	base := JobSkill{JobID: uuid.New(), SkillID: uuid.New()}

	cases := []struct {
		name  string
		mut   func(s *JobSkill)
		field string
	}{
		{name: "all unset", mut: func(s *JobSkill) {}},
		{name: "bounds", mut: func(s *JobSkill) { s.ImportanceWeight = i16(5); s.RequiredLevel = i16(1); s.RequiredYears = i16(0) }},
		{name: "weight low", mut: func(s *JobSkill) { s.ImportanceWeight = i16(0) }, field: "importance_weight"},
		{name: "weight high", mut: func(s *JobSkill) { s.ImportanceWeight = i16(6) }, field: "importance_weight"},
		{name: "level high", mut: func(s *JobSkill) { s.RequiredLevel = i16(9) }, field: "required_level"},
		{name: "negative years", mut: func(s *JobSkill) { s.RequiredYears = i16(-1) }, field: "required_years"},
		{name: "no skill", mut: func(s *JobSkill) { s.SkillID = uuid.Nil }, field: "skill_id"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := base
			tc.mut(&s)
			err := s.Validate()
			if tc.field == "" {
				assert.NoError(t, err)
				return
			}
			var cv *domain.ConstraintViolation
			if assert.ErrorAs(t, err, &cv) {
				assert.Equal(t, tc.field, cv.Field)
			}
		})
	}
}
