package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"skill-sync-engine/internal/database"
	"skill-sync-engine/internal/domain"
	"skill-sync-engine/internal/domain/matching"
	"skill-sync-engine/internal/domain/skill"
)

var ErrUserSkillNotFound = errors.New("user skill not found")

type UserSkillRepository interface {
	FindByUserID(ctx context.Context, userID uuid.UUID) ([]matching.UserSkill, error)
	Upsert(ctx context.Context, us skill.UserSkill) (skill.UserSkill, error)
	DeleteUserSkill(ctx context.Context, userID uuid.UUID, skillID uuid.UUID) error
}

type PostgresUserSkillRepository struct {
	db database.DB
}

func NewPostgresUserSkillRepository(db database.DB) *PostgresUserSkillRepository {
	return &PostgresUserSkillRepository{db: db}
}

func (r *PostgresUserSkillRepository) FindByUserID(ctx context.Context, userID uuid.UUID) ([]matching.UserSkill, error) {
	rows, err := r.db.Query(ctx,
		`SELECT us.skill_id, s.name, us.proficiency_level, us.years_experience
		 FROM user_skills us
		 JOIN skills s ON s.id = us.skill_id
		 WHERE us.user_id = $1
		 ORDER BY s.name ASC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]matching.UserSkill, 0)
	for rows.Next() {
		var (
			us           matching.UserSkill
			level, years sql.NullInt16
		)
		if err := rows.Scan(&us.SkillID, &us.SkillName, &level, &years); err != nil {
			return nil, err
		}
		us.ProficiencyLevel = widen(nullInt16(level))
		us.YearsExperience = widen(nullInt16(years))
		out = append(out, us)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PostgresUserSkillRepository) Upsert(ctx context.Context, us skill.UserSkill) (skill.UserSkill, error) {
	if us.ID == uuid.Nil {
		us.ID = uuid.New()
	}
	row := r.db.QueryRow(ctx,
		`INSERT INTO user_skills (id, user_id, skill_id, proficiency_level, years_experience)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (user_id, skill_id) DO UPDATE SET
			proficiency_level = EXCLUDED.proficiency_level,
			years_experience = EXCLUDED.years_experience
		 RETURNING id`,
		us.ID, us.UserID, us.SkillID, us.ProficiencyLevel, us.YearsExperience,
	)
	if err := row.Scan(&us.ID); err != nil {
		if database.IsForeignKeyViolation(err) {
			if database.ConstraintName(err) == "user_skills_user_id_fkey" {
				return skill.UserSkill{}, fmt.Errorf("%w: %s", domain.ErrUserNotFound, us.UserID)
			}
			return skill.UserSkill{}, fmt.Errorf("%w: %s", domain.ErrSkillNotFound, us.SkillID)
		}
		return skill.UserSkill{}, err
	}
	return us, nil
}

func (r *PostgresUserSkillRepository) DeleteUserSkill(ctx context.Context, userID uuid.UUID, skillID uuid.UUID) error {
	rowsAffected, err := r.db.Exec(ctx,
		`DELETE FROM user_skills WHERE user_id = $1 AND skill_id = $2`,
		userID, skillID,
	)
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrUserSkillNotFound
	}
	return nil
}
