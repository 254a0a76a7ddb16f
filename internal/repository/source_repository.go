package repository

import (
	"context"
	"database/sql"
	"strings"

	"skill-sync-engine/internal/database"
	"skill-sync-engine/internal/domain"
	"skill-sync-engine/internal/domain/job"
)

type SourceRepository interface {
	FindByName(ctx context.Context, name string) (job.Source, error)
	List(ctx context.Context) ([]job.Source, error)
}

type PostgresSourceRepository struct {
	db database.DB
}

func NewPostgresSourceRepository(db database.DB) *PostgresSourceRepository {
	return &PostgresSourceRepository{db: db}
}

// FindByName matches case-insensitively; source names arrive from URLs and
// collaborator payloads in whatever case they like.
func (r *PostgresSourceRepository) FindByName(ctx context.Context, name string) (job.Source, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return job.Source{}, domain.ErrSourceNotFound
	}
	row := r.db.QueryRow(ctx,
		`SELECT id, name, base_url, created_at FROM job_sources WHERE lower(name) = lower($1) LIMIT 1`,
		name,
	)
	s, err := scanSource(row)
	if err != nil {
		if database.IsNoRows(err) {
			return job.Source{}, domain.ErrSourceNotFound
		}
		return job.Source{}, err
	}
	return s, nil
}

func (r *PostgresSourceRepository) List(ctx context.Context) ([]job.Source, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, base_url, created_at FROM job_sources ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]job.Source, 0)
	for rows.Next() {
		s, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func scanSource(row database.Row) (job.Source, error) {
	var (
		s       job.Source
		baseURL sql.NullString
	)
	if err := row.Scan(&s.ID, &s.Name, &baseURL, &s.CreatedAt); err != nil {
		return job.Source{}, err
	}
	s.BaseURL = nullString(baseURL)
	return s, nil
}
