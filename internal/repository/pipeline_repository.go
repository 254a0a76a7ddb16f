package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"skill-sync-engine/internal/database"
	"skill-sync-engine/internal/domain"
)

type PipelineRepository interface {
	GetActiveJobs(ctx context.Context) (int, error)
	GetJobsToday(ctx context.Context) (int, error)
	GetMatchCount(ctx context.Context) (int, error)
	GetSourceHealth(ctx context.Context) ([]domain.SourceHealth, error)
}

type PostgresPipelineRepository struct {
	db database.DB
}

func NewPostgresPipelineRepository(db database.DB) *PostgresPipelineRepository {
	return &PostgresPipelineRepository{db: db}
}

func (r *PostgresPipelineRepository) GetActiveJobs(ctx context.Context) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM jobs WHERE is_active = true`)
}

func (r *PostgresPipelineRepository) GetJobsToday(ctx context.Context) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM jobs WHERE created_at >= CURRENT_DATE`)
}

func (r *PostgresPipelineRepository) GetMatchCount(ctx context.Context) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM job_matches`)
}

func (r *PostgresPipelineRepository) count(ctx context.Context, q string) (int, error) {
	row := r.db.QueryRow(ctx, q)
	var c int
	if err := row.Scan(&c); err != nil {
		return 0, err
	}
	return c, nil
}

// GetSourceHealth reports every source with its latest run, if any.
func (r *PostgresPipelineRepository) GetSourceHealth(ctx context.Context) ([]domain.SourceHealth, error) {
	rows, err := r.db.Query(ctx,
		`SELECT s.name,
		        (SELECT COUNT(*) FROM jobs j WHERE j.source_id = s.id AND j.is_active = true),
		        lr.id, lr.status, lr.started_at, lr.finished_at,
		        COALESCE((SELECT COUNT(*) FROM scrape_logs sl
		                  WHERE sl.scrape_run_id = lr.id AND sl.level = 'error'), 0)
		 FROM job_sources s
		 LEFT JOIN LATERAL (
			SELECT sr.id, sr.status, sr.started_at, sr.finished_at
			FROM scrape_runs sr
			WHERE sr.source_id = s.id
			ORDER BY sr.started_at DESC NULLS LAST
			LIMIT 1
		 ) lr ON true
		 ORDER BY s.name ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.SourceHealth, 0)
	for rows.Next() {
		var (
			st                domain.SourceHealth
			runID             uuid.NullUUID
			status            sql.NullString
			started, finished sql.NullTime
		)
		if err := rows.Scan(&st.Source, &st.ActiveJobs, &runID, &status, &started, &finished, &st.LastRunErrors); err != nil {
			return nil, err
		}
		if runID.Valid {
			id := runID.UUID
			st.LastRunID = &id
		}
		st.LastRunStatus = nullString(status)
		st.LastStartedAt = nullTime(started)
		st.LastFinishedAt = nullTime(finished)
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
