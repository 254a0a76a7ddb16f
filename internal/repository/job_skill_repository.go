package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"skill-sync-engine/internal/database"
	"skill-sync-engine/internal/domain"
	"skill-sync-engine/internal/domain/matching"
	"skill-sync-engine/internal/domain/skill"
)

type JobSkillRepository interface {
	FindByJobID(ctx context.Context, jobID uuid.UUID) ([]skill.JobSkill, error)
	// Requirements loads the job's skills in the shape the scoring engine reads.
	Requirements(ctx context.Context, jobID uuid.UUID) ([]matching.JobRequirement, error)
	// ReplaceForJob makes reqs the job's complete requirement set. Stored rows
	// for skills in retain are left untouched.
	ReplaceForJob(ctx context.Context, jobID uuid.UUID, reqs []skill.JobSkill, retain []uuid.UUID) error
}

type PostgresJobSkillRepository struct {
	db database.DB
}

func NewPostgresJobSkillRepository(db database.DB) *PostgresJobSkillRepository {
	return &PostgresJobSkillRepository{db: db}
}

func (r *PostgresJobSkillRepository) FindByJobID(ctx context.Context, jobID uuid.UUID) ([]skill.JobSkill, error) {
	rows, err := r.db.Query(ctx,
		`SELECT js.id, js.job_id, js.skill_id, s.name,
		        js.importance_weight, js.required_level, js.is_mandatory, js.required_years, js.source_version
		 FROM job_skills js
		 JOIN skills s ON s.id = js.skill_id
		 WHERE js.job_id = $1
		 ORDER BY s.name ASC`,
		jobID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]skill.JobSkill, 0)
	for rows.Next() {
		var (
			it                   skill.JobSkill
			weight, level, years sql.NullInt16
		)
		if err := rows.Scan(&it.ID, &it.JobID, &it.SkillID, &it.SkillName,
			&weight, &level, &it.IsMandatory, &years, &it.SourceVersion); err != nil {
			return nil, err
		}
		it.ImportanceWeight = nullInt16(weight)
		it.RequiredLevel = nullInt16(level)
		it.RequiredYears = nullInt16(years)
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PostgresJobSkillRepository) Requirements(ctx context.Context, jobID uuid.UUID) ([]matching.JobRequirement, error) {
	rows, err := r.FindByJobID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	out := make([]matching.JobRequirement, 0, len(rows))
	for _, js := range rows {
		out = append(out, matching.JobRequirement{
			SkillID:          js.SkillID,
			SkillName:        js.SkillName,
			ImportanceWeight: widen(js.ImportanceWeight),
			RequiredLevel:    widen(js.RequiredLevel),
			IsMandatory:      js.IsMandatory,
			RequiredYears:    widen(js.RequiredYears),
		})
	}
	return out, nil
}

func (r *PostgresJobSkillRepository) ReplaceForJob(ctx context.Context, jobID uuid.UUID, reqs []skill.JobSkill, retain []uuid.UUID) error {
	keep := make([]uuid.UUID, 0, len(reqs)+len(retain))
	keep = append(keep, retain...)
	return database.WithTx(ctx, r.db, func(tx database.Tx) error {
		for _, it := range reqs {
			if err := upsertJobSkill(ctx, tx, jobID, it); err != nil {
				return mapJobSkillError(err, jobID, it.SkillID)
			}
			keep = append(keep, it.SkillID)
		}

		if _, err := tx.Exec(ctx,
			`DELETE FROM job_skills WHERE job_id = $1 AND NOT (skill_id = ANY($2::uuid[]))`,
			jobID, keep,
		); err != nil {
			return fmt.Errorf("prune job skills: %w", err)
		}
		return nil
	})
}

func upsertJobSkill(ctx context.Context, q database.Querier, jobID uuid.UUID, it skill.JobSkill) error {
	version := it.SourceVersion
	if version <= 0 {
		version = 1
	}
	_, err := q.Exec(ctx,
		`INSERT INTO job_skills (
			id, job_id, skill_id, importance_weight, required_level, is_mandatory, required_years, source_version
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (job_id, skill_id) DO UPDATE SET
			importance_weight = EXCLUDED.importance_weight,
			required_level = EXCLUDED.required_level,
			is_mandatory = EXCLUDED.is_mandatory,
			required_years = EXCLUDED.required_years,
			source_version = EXCLUDED.source_version`,
		uuid.New(), jobID, it.SkillID,
		it.ImportanceWeight, it.RequiredLevel, it.IsMandatory, it.RequiredYears, version,
	)
	return err
}

func mapJobSkillError(err error, jobID, skillID uuid.UUID) error {
	switch {
	case database.IsForeignKeyViolation(err) && database.ConstraintName(err) == "job_skills_job_id_fkey":
		return fmt.Errorf("%w: %s", domain.ErrJobNotFound, jobID)
	case database.IsForeignKeyViolation(err):
		return fmt.Errorf("%w: %s", domain.ErrSkillNotFound, skillID)
	case database.IsCheckViolation(err):
		return &domain.ConstraintViolation{Field: database.ConstraintName(err), Value: skillID, Rule: "check"}
	}
	return err
}

func widen(v *int16) *int {
	if v == nil {
		return nil
	}
	n := int(*v)
	return &n
}
