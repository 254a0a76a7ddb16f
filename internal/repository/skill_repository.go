package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"

	"skill-sync-engine/internal/database"
	"skill-sync-engine/internal/domain/skill"
)

type SkillRepository interface {
	GetAllSkills(ctx context.Context) ([]skill.Skill, error)
	// ResolveNames maps lower-cased skill names to ids. Unknown names are absent.
	ResolveNames(ctx context.Context, names []string) (map[string]uuid.UUID, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

type PostgresSkillRepository struct {
	db database.DB
}

func NewPostgresSkillRepository(db database.DB) *PostgresSkillRepository {
	return &PostgresSkillRepository{db: db}
}

func (r *PostgresSkillRepository) GetAllSkills(ctx context.Context) ([]skill.Skill, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, category, created_at FROM skills ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]skill.Skill, 0)
	for rows.Next() {
		var (
			s        skill.Skill
			category sql.NullString
		)
		if err := rows.Scan(&s.ID, &s.Name, &category, &s.CreatedAt); err != nil {
			return nil, err
		}
		s.Category = category.String
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PostgresSkillRepository) ResolveNames(ctx context.Context, names []string) (map[string]uuid.UUID, error) {
	lowered := make([]string, 0, len(names))
	for _, n := range names {
		if n = strings.ToLower(strings.TrimSpace(n)); n != "" {
			lowered = append(lowered, n)
		}
	}
	out := make(map[string]uuid.UUID, len(lowered))
	if len(lowered) == 0 {
		return out, nil
	}

	rows, err := r.db.Query(ctx, `SELECT id, lower(name) FROM skills WHERE lower(name) = ANY($1::text[])`, lowered)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id   uuid.UUID
			name string
		)
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		out[name] = id
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PostgresSkillRepository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	row := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM skills WHERE id = $1)`, id)
	if err := row.Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}
