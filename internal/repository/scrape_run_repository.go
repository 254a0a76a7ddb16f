package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"skill-sync-engine/internal/database"
	"skill-sync-engine/internal/domain"
	"skill-sync-engine/internal/domain/job"
	"skill-sync-engine/internal/domain/run"
)

// PostgresScrapeRunRepository persists scrape runs, their append-only log
// lines and scrape tasks. Status changes are compare-and-set on the current
// status; the table CHECKs keep finished_at and error_message honest.
type PostgresScrapeRunRepository struct {
	db database.DB
}

func NewPostgresScrapeRunRepository(db database.DB) *PostgresScrapeRunRepository {
	return &PostgresScrapeRunRepository{db: db}
}

func (r *PostgresScrapeRunRepository) CreateRun(ctx context.Context, sr job.ScrapeRun) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO scrape_runs (id, source_id, started_at, finished_at, status) VALUES ($1,$2,$3,$4,$5)`,
		sr.ID, sr.SourceID, sr.StartedAt, sr.FinishedAt, sr.Status,
	)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return fmt.Errorf("%w: %s", domain.ErrSourceNotFound, sr.SourceID)
		}
		return err
	}
	return nil
}

func (r *PostgresScrapeRunRepository) GetRun(ctx context.Context, id uuid.UUID) (job.ScrapeRun, error) {
	sr, err := scanRun(r.db.QueryRow(ctx,
		`SELECT id, source_id, started_at, finished_at, status FROM scrape_runs WHERE id = $1`, id,
	))
	if err != nil {
		if database.IsNoRows(err) {
			return job.ScrapeRun{}, domain.ErrRunNotFound
		}
		return job.ScrapeRun{}, err
	}
	return sr, nil
}

func (r *PostgresScrapeRunRepository) TransitionRun(ctx context.Context, id uuid.UUID, from, to run.Status, startedAt, finishedAt *time.Time) (bool, error) {
	n, err := r.db.Exec(ctx,
		`UPDATE scrape_runs
		 SET status = $3,
		     started_at = COALESCE(started_at, $4),
		     finished_at = COALESCE($5, finished_at)
		 WHERE id = $1 AND status = $2`,
		id, string(from), string(to), startedAt, finishedAt,
	)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *PostgresScrapeRunRepository) ListRunsBySource(ctx context.Context, sourceID uuid.UUID, limit int) ([]job.ScrapeRun, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, source_id, started_at, finished_at, status
		 FROM scrape_runs
		 WHERE source_id = $1
		 ORDER BY started_at DESC NULLS FIRST
		 LIMIT $2`,
		sourceID, limit,
	)
	if err != nil {
		return nil, err
	}
	return collectRuns(rows)
}

func (r *PostgresScrapeRunRepository) ListRunningStartedBefore(ctx context.Context, before time.Time) ([]job.ScrapeRun, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, source_id, started_at, finished_at, status
		 FROM scrape_runs
		 WHERE status = 'running' AND started_at < $1
		 ORDER BY started_at ASC`,
		before,
	)
	if err != nil {
		return nil, err
	}
	return collectRuns(rows)
}

// AppendLog is the only write path for scrape_logs; lines are never updated.
func (r *PostgresScrapeRunRepository) AppendLog(ctx context.Context, l job.ScrapeLog) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO scrape_logs (id, scrape_run_id, level, message, created_at) VALUES ($1,$2,$3,$4,$5)`,
		l.ID, l.ScrapeRunID, l.Level, l.Message, l.CreatedAt,
	)
	if err != nil && database.IsForeignKeyViolation(err) {
		return domain.ErrRunNotFound
	}
	return err
}

func (r *PostgresScrapeRunRepository) ListLogs(ctx context.Context, runID uuid.UUID) ([]job.ScrapeLog, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, scrape_run_id, level, message, created_at
		 FROM scrape_logs
		 WHERE scrape_run_id = $1
		 ORDER BY created_at ASC, id ASC`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]job.ScrapeLog, 0)
	for rows.Next() {
		var l job.ScrapeLog
		if err := rows.Scan(&l.ID, &l.ScrapeRunID, &l.Level, &l.Message, &l.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PostgresScrapeRunRepository) CreateTask(ctx context.Context, t job.ScrapeTask) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO scrape_tasks (id, query, location, status, total_found, created_at, updated_at, error_message)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		t.ID, t.Query, t.Location, t.Status, t.TotalFound, t.CreatedAt, t.UpdatedAt, t.ErrorMessage,
	)
	return err
}

func (r *PostgresScrapeRunRepository) GetTask(ctx context.Context, id uuid.UUID) (job.ScrapeTask, error) {
	var (
		t          job.ScrapeTask
		location   sql.NullString
		totalFound sql.NullInt32
		errMsg     sql.NullString
	)
	row := r.db.QueryRow(ctx,
		`SELECT id, query, location, status, total_found, created_at, updated_at, error_message
		 FROM scrape_tasks WHERE id = $1`,
		id,
	)
	if err := row.Scan(&t.ID, &t.Query, &location, &t.Status, &totalFound, &t.CreatedAt, &t.UpdatedAt, &errMsg); err != nil {
		if database.IsNoRows(err) {
			return job.ScrapeTask{}, domain.ErrTaskNotFound
		}
		return job.ScrapeTask{}, err
	}
	t.Location = nullString(location)
	t.ErrorMessage = nullString(errMsg)
	if totalFound.Valid {
		n := int(totalFound.Int32)
		t.TotalFound = &n
	}
	return t, nil
}

func (r *PostgresScrapeRunRepository) TransitionTask(ctx context.Context, id uuid.UUID, from, to run.Status, totalFound *int, errorMessage *string, at time.Time) (bool, error) {
	n, err := r.db.Exec(ctx,
		`UPDATE scrape_tasks
		 SET status = $3,
		     total_found = COALESCE($4, total_found),
		     error_message = COALESCE($5, error_message),
		     updated_at = $6
		 WHERE id = $1 AND status = $2`,
		id, string(from), string(to), totalFound, errorMessage, at,
	)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *PostgresScrapeRunRepository) DeleteTask(ctx context.Context, id uuid.UUID) error {
	n, err := r.db.Exec(ctx, `DELETE FROM scrape_tasks WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrTaskNotFound
	}
	return nil
}

func scanRun(row database.Row) (job.ScrapeRun, error) {
	var (
		sr                  job.ScrapeRun
		startedAt, finished sql.NullTime
	)
	if err := row.Scan(&sr.ID, &sr.SourceID, &startedAt, &finished, &sr.Status); err != nil {
		return job.ScrapeRun{}, err
	}
	sr.StartedAt = nullTime(startedAt)
	sr.FinishedAt = nullTime(finished)
	return sr, nil
}

func collectRuns(rows database.Rows) ([]job.ScrapeRun, error) {
	defer rows.Close()
	out := make([]job.ScrapeRun, 0)
	for rows.Next() {
		sr, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sr)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
