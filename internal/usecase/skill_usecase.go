package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"skill-sync-engine/internal/domain"
	"skill-sync-engine/internal/domain/job"
	"skill-sync-engine/internal/domain/skill"
	"skill-sync-engine/internal/events"
	"skill-sync-engine/internal/repository"
)

type SkillItem struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Category string    `json:"category"`
}

// JobSkillInput is one extracted requirement. A tuple names its skill either
// by id or by taxonomy name.
type JobSkillInput struct {
	SkillID          uuid.UUID
	SkillName        string
	ImportanceWeight *int16
	RequiredLevel    *int16
	IsMandatory      bool
	RequiredYears    *int16
	SourceVersion    int16
}

type RejectedSkill struct {
	Index     int    `json:"index"`
	SkillName string `json:"skill_name,omitempty"`
	Field     string `json:"field,omitempty"`
	Reason    string `json:"reason"`
}

type ApplyJobSkillsResult struct {
	Accepted []skill.JobSkill
	Rejected []RejectedSkill
}

type SkillUsecase interface {
	ListSkills(ctx context.Context) ([]SkillItem, error)
	ApplyJobSkills(ctx context.Context, jobID uuid.UUID, tuples []JobSkillInput) (ApplyJobSkillsResult, error)
}

type Skill struct {
	skills    repository.SkillRepository
	jobSkills repository.JobSkillRepository
	jobs      repository.JobQueryRepository
	publisher events.Publisher
	logger    *zap.Logger
}

func NewSkillUsecase(skills repository.SkillRepository, jobSkills repository.JobSkillRepository, jobs repository.JobQueryRepository, publisher events.Publisher, logger *zap.Logger) *Skill {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Skill{skills: skills, jobSkills: jobSkills, jobs: jobs, publisher: publisher, logger: logger.Named("skills")}
}

func (u *Skill) ListSkills(ctx context.Context) ([]SkillItem, error) {
	items, err := u.skills.GetAllSkills(ctx)
	if err != nil {
		return nil, fmt.Errorf("list skills: %w", err)
	}

	out := make([]SkillItem, 0, len(items))
	for _, it := range items {
		out = append(out, SkillItem{ID: it.ID, Name: it.Name, Category: it.Category})
	}
	return out, nil
}

// ApplyJobSkills replaces the job's requirement set with the valid tuples.
// Each invalid tuple is rejected on its own and reported back; the rest of the
// batch is still written. A rejected tuple for a known skill keeps whatever the
// job already stores for that skill.
func (u *Skill) ApplyJobSkills(ctx context.Context, jobID uuid.UUID, tuples []JobSkillInput) (ApplyJobSkillsResult, error) {
	if jobID == uuid.Nil {
		return ApplyJobSkillsResult{}, ErrInvalidInput
	}
	if _, err := u.jobs.IsActive(ctx, jobID); err != nil {
		return ApplyJobSkillsResult{}, err
	}

	names := make([]string, 0, len(tuples))
	for _, t := range tuples {
		if t.SkillID == uuid.Nil && strings.TrimSpace(t.SkillName) != "" {
			names = append(names, t.SkillName)
		}
	}
	byName, err := u.skills.ResolveNames(ctx, names)
	if err != nil {
		return ApplyJobSkillsResult{}, fmt.Errorf("resolve skill names: %w", err)
	}

	res := ApplyJobSkillsResult{
		Accepted: make([]skill.JobSkill, 0, len(tuples)),
		Rejected: make([]RejectedSkill, 0),
	}
	seen := make(map[uuid.UUID]int, len(tuples))
	var retain []uuid.UUID
	reject := func(i int, t JobSkillInput, err error) {
		r := RejectedSkill{Index: i, SkillName: t.SkillName, Reason: err.Error()}
		var cv *domain.ConstraintViolation
		if errors.As(err, &cv) {
			r.Field = cv.Field
		}
		res.Rejected = append(res.Rejected, r)
	}

	for i, t := range tuples {
		skillID := t.SkillID
		if skillID == uuid.Nil {
			name := strings.ToLower(strings.TrimSpace(t.SkillName))
			id, ok := byName[name]
			if name == "" || !ok {
				reject(i, t, fmt.Errorf("%w: %q", domain.ErrSkillNotFound, t.SkillName))
				continue
			}
			skillID = id
		} else {
			ok, err := u.skills.Exists(ctx, skillID)
			if err != nil {
				return ApplyJobSkillsResult{}, fmt.Errorf("check skill: %w", err)
			}
			if !ok {
				reject(i, t, fmt.Errorf("%w: %s", domain.ErrSkillNotFound, skillID))
				continue
			}
		}

		js := skill.JobSkill{
			JobID:            jobID,
			SkillID:          skillID,
			SkillName:        t.SkillName,
			ImportanceWeight: t.ImportanceWeight,
			RequiredLevel:    t.RequiredLevel,
			IsMandatory:      t.IsMandatory,
			RequiredYears:    t.RequiredYears,
			SourceVersion:    t.SourceVersion,
		}
		if err := js.Validate(); err != nil {
			reject(i, t, err)
			retain = append(retain, skillID)
			continue
		}
		if prev, dup := seen[skillID]; dup {
			reject(i, t, &domain.ConstraintViolation{Field: "skill_id", Value: skillID, Rule: fmt.Sprintf("unique per job (first at %d)", prev)})
			continue
		}
		seen[skillID] = i
		res.Accepted = append(res.Accepted, js)
	}

	if err := u.jobSkills.ReplaceForJob(ctx, jobID, res.Accepted, retain); err != nil {
		return ApplyJobSkillsResult{}, fmt.Errorf("replace job skills: %w", err)
	}

	if err := u.publisher.Publish(context.WithoutCancel(ctx), events.JobChanged(jobID, job.ChangeSkillsChanged)); err != nil {
		u.logger.Warn("publish skills change failed", zap.String("job_id", jobID.String()), zap.Error(err))
	}

	if len(res.Rejected) > 0 {
		u.logger.Info("job skills applied with rejections",
			zap.String("step", "skill_intake"),
			zap.String("job_id", jobID.String()),
			zap.Int("accepted", len(res.Accepted)),
			zap.Int("rejected", len(res.Rejected)),
		)
	}
	return res, nil
}
