package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"skill-sync-engine/internal/database"
	"skill-sync-engine/internal/domain/match"
)

type JobMatchRepository interface {
	// Upsert replaces the stored score for (user_id, job_id). matched_at is
	// rewritten on every call, even when the score did not change.
	Upsert(ctx context.Context, m match.JobMatch) error
	Get(ctx context.Context, userID, jobID uuid.UUID) (match.JobMatch, bool, error)
	// Ranked lists the user's scores against active jobs, best first.
	Ranked(ctx context.Context, userID uuid.UUID, limit int) ([]match.RankedJob, error)
}

type PostgresJobMatchRepository struct {
	db database.DB
}

func NewPostgresJobMatchRepository(db database.DB) *PostgresJobMatchRepository {
	return &PostgresJobMatchRepository{db: db}
}

func (r *PostgresJobMatchRepository) Upsert(ctx context.Context, m match.JobMatch) error {
	if m.UserID == uuid.Nil || m.JobID == uuid.Nil {
		return nil
	}
	if m.MatchedAt.IsZero() {
		m.MatchedAt = time.Now().UTC()
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO job_matches (id, user_id, job_id, match_score, matched_at)
		 VALUES ($1,$2,$3,$4,$5)
		 ON CONFLICT (user_id, job_id) DO UPDATE SET
			match_score = EXCLUDED.match_score,
			matched_at = EXCLUDED.matched_at`,
		uuid.New(),
		m.UserID,
		m.JobID,
		m.MatchScore.Round(2),
		m.MatchedAt,
	)
	return err
}

func (r *PostgresJobMatchRepository) Get(ctx context.Context, userID, jobID uuid.UUID) (match.JobMatch, bool, error) {
	var m match.JobMatch
	row := r.db.QueryRow(ctx,
		`SELECT id, user_id, job_id, match_score, matched_at FROM job_matches WHERE user_id = $1 AND job_id = $2`,
		userID, jobID,
	)
	if err := row.Scan(&m.ID, &m.UserID, &m.JobID, &m.MatchScore, &m.MatchedAt); err != nil {
		if database.IsNoRows(err) {
			return match.JobMatch{}, false, nil
		}
		return match.JobMatch{}, false, err
	}
	return m, true, nil
}

func (r *PostgresJobMatchRepository) Ranked(ctx context.Context, userID uuid.UUID, limit int) ([]match.RankedJob, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	rows, err := r.db.Query(ctx,
		`SELECT j.id, j.title, j.company, j.location, j.url, j.posted_at, jm.match_score, jm.matched_at
		 FROM job_matches jm
		 JOIN jobs j ON j.id = jm.job_id
		 WHERE jm.user_id = $1 AND j.is_active = true
		 ORDER BY jm.match_score DESC, j.posted_at DESC NULLS LAST, j.id::text ASC
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]match.RankedJob, 0)
	for rows.Next() {
		var (
			it                             match.RankedJob
			title, company, location, link sql.NullString
			postedAt                       sql.NullTime
		)
		if err := rows.Scan(&it.JobID, &title, &company, &location, &link, &postedAt, &it.MatchScore, &it.MatchedAt); err != nil {
			return nil, err
		}
		it.Title = nullString(title)
		it.Company = nullString(company)
		it.Location = nullString(location)
		it.URL = nullString(link)
		it.PostedAt = nullTime(postedAt)
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// SQL and Go collations can disagree on text order; Rank is the reference.
	match.Rank(out)
	return out, nil
}
