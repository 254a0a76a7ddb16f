package usecase

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"skill-sync-engine/internal/domain"
	"skill-sync-engine/internal/domain/job"
	"skill-sync-engine/internal/events"
)

func i16(v int16) *int16 { return &v }

func newSkillFixture() (*world, *recordingPublisher, *Skill) {
	w := newWorld()
	pub := &recordingPublisher{}
	uc := NewSkillUsecase(fakeSkills{w}, fakeJobSkills{w}, fakeJobQuery{w}, pub, zap.NewNop())
	return w, pub, uc
}

func TestSkill_ListSkills(t *testing.T) {
	w, _, uc := newSkillFixture()
	w.addSkill("Python")
	w.addSkill("Go")

	items, err := uc.ListSkills(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Go", items[0].Name)
}

func TestSkill_ApplyJobSkillsRejectsInvalidTuplesIndividually(t *testing.T) {
	w, pub, uc := newSkillFixture()
	sqlID := w.addSkill("SQL")
	pythonID := w.addSkill("Python")
	goID := w.addSkill("Go")
	jobID := w.addJob(true)

	res, err := uc.ApplyJobSkills(context.Background(), jobID, []JobSkillInput{
		{SkillName: "sql", IsMandatory: true, RequiredLevel: i16(3)},
		{SkillID: pythonID, ImportanceWeight: i16(9)},
		{SkillName: "Cobol"},
		{SkillID: goID, RequiredYears: i16(2)},
		{SkillName: "SQL", ImportanceWeight: i16(2)},
		{SkillID: uuid.New()},
	})
	require.NoError(t, err)

	require.Len(t, res.Accepted, 2)
	assert.Equal(t, sqlID, res.Accepted[0].SkillID)
	assert.Equal(t, goID, res.Accepted[1].SkillID)

	require.Len(t, res.Rejected, 4)
	assert.Equal(t, 1, res.Rejected[0].Index)
	assert.Equal(t, "importance_weight", res.Rejected[0].Field)
	assert.Equal(t, 2, res.Rejected[1].Index)
	assert.Contains(t, res.Rejected[1].Reason, domain.ErrSkillNotFound.Error())
	assert.Equal(t, 4, res.Rejected[2].Index)
	assert.Equal(t, "skill_id", res.Rejected[2].Field)
	assert.Equal(t, 5, res.Rejected[3].Index)

	stored, _ := fakeJobSkills{w}.FindByJobID(context.Background(), jobID)
	assert.Len(t, stored, 2)

	evs := pub.all()
	require.Len(t, evs, 1)
	assert.Equal(t, events.TypeJobChanged, evs[0].Type)
	assert.Equal(t, job.ChangeSkillsChanged, evs[0].Change)
	assert.Equal(t, jobID, evs[0].JobID)
}

func TestSkill_ApplyJobSkillsRejectedTupleKeepsStoredRequirement(t *testing.T) {
	w, _, uc := newSkillFixture()
	sqlID := w.addSkill("SQL")
	pythonID := w.addSkill("Python")
	jobID := w.addJob(true)
	ctx := context.Background()

	_, err := uc.ApplyJobSkills(ctx, jobID, []JobSkillInput{
		{SkillID: sqlID, IsMandatory: true, RequiredLevel: i16(3)},
		{SkillID: pythonID, ImportanceWeight: i16(4)},
	})
	require.NoError(t, err)

	res, err := uc.ApplyJobSkills(ctx, jobID, []JobSkillInput{
		{SkillID: sqlID, IsMandatory: true, RequiredLevel: i16(9)},
	})
	require.NoError(t, err)
	require.Len(t, res.Rejected, 1)
	assert.Equal(t, "required_level", res.Rejected[0].Field)

	stored, _ := fakeJobSkills{w}.FindByJobID(ctx, jobID)
	require.Len(t, stored, 1)
	assert.Equal(t, sqlID, stored[0].SkillID)
	assert.True(t, stored[0].IsMandatory)
	require.NotNil(t, stored[0].RequiredLevel)
	assert.Equal(t, int16(3), *stored[0].RequiredLevel)
}

func TestSkill_ApplyJobSkillsUnknownJob(t *testing.T) {
	_, pub, uc := newSkillFixture()

	_, err := uc.ApplyJobSkills(context.Background(), uuid.New(), nil)
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
	_, err = uc.ApplyJobSkills(context.Background(), uuid.Nil, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Empty(t, pub.all())
}

func TestSkill_ApplyEmptySetClearsRequirements(t *testing.T) {
	w, _, uc := newSkillFixture()
	goID := w.addSkill("Go")
	jobID := w.addJob(true)

	_, err := uc.ApplyJobSkills(context.Background(), jobID, []JobSkillInput{{SkillID: goID}})
	require.NoError(t, err)

	res, err := uc.ApplyJobSkills(context.Background(), jobID, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Accepted)
	stored, _ := fakeJobSkills{w}.FindByJobID(context.Background(), jobID)
	assert.Empty(t, stored)
}
