package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"skill-sync-engine/internal/domain"
	"skill-sync-engine/internal/domain/skill"
	"skill-sync-engine/internal/events"
	"skill-sync-engine/internal/repository"
)

type SetUserSkillInput struct {
	ProficiencyLevel *int16
	YearsExperience  *int16
}

type UserSkillUsecase interface {
	SetUserSkill(ctx context.Context, userID, skillID uuid.UUID, in SetUserSkillInput) (skill.UserSkill, error)
	RemoveUserSkill(ctx context.Context, userID, skillID uuid.UUID) error
}

// UserSkill edits a user's skill profile. Every successful change publishes
// ProfileChanged so the user's scores are rebuilt.
type UserSkill struct {
	repo      repository.UserSkillRepository
	publisher events.Publisher
	logger    *zap.Logger
}

func NewUserSkillUsecase(repo repository.UserSkillRepository, publisher events.Publisher, logger *zap.Logger) *UserSkill {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserSkill{repo: repo, publisher: publisher, logger: logger.Named("user_skills")}
}

func (u *UserSkill) SetUserSkill(ctx context.Context, userID, skillID uuid.UUID, in SetUserSkillInput) (skill.UserSkill, error) {
	if userID == uuid.Nil || skillID == uuid.Nil {
		return skill.UserSkill{}, ErrInvalidInput
	}
	if l := in.ProficiencyLevel; l != nil && !isValidProficiency(*l) {
		return skill.UserSkill{}, ErrInvalidProficiencyLevel
	}
	if y := in.YearsExperience; y != nil && *y < 0 {
		return skill.UserSkill{}, ErrInvalidYears
	}

	saved, err := u.repo.Upsert(ctx, skill.UserSkill{
		UserID:           userID,
		SkillID:          skillID,
		ProficiencyLevel: in.ProficiencyLevel,
		YearsExperience:  in.YearsExperience,
	})
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) || errors.Is(err, domain.ErrSkillNotFound) {
			return skill.UserSkill{}, err
		}
		return skill.UserSkill{}, fmt.Errorf("save user skill: %w", err)
	}

	u.profileChanged(ctx, userID)
	return saved, nil
}

func (u *UserSkill) RemoveUserSkill(ctx context.Context, userID, skillID uuid.UUID) error {
	if userID == uuid.Nil || skillID == uuid.Nil {
		return ErrInvalidInput
	}
	if err := u.repo.DeleteUserSkill(ctx, userID, skillID); err != nil {
		if errors.Is(err, repository.ErrUserSkillNotFound) {
			return err
		}
		return fmt.Errorf("delete user skill: %w", err)
	}

	u.profileChanged(ctx, userID)
	return nil
}

func (u *UserSkill) profileChanged(ctx context.Context, userID uuid.UUID) {
	if err := u.publisher.Publish(context.WithoutCancel(ctx), events.ProfileChanged(userID)); err != nil {
		u.logger.Warn("publish profile change failed", zap.String("user_id", userID.String()), zap.Error(err))
	}
}

func isValidProficiency(v int16) bool {
	return v >= skill.MinLevel && v <= skill.MaxLevel
}
