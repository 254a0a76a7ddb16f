package repository

import (
	"context"

	"github.com/google/uuid"

	"skill-sync-engine/internal/database"
	"skill-sync-engine/internal/domain"
)

// JobQueryRepository serves the read paths of the matching engine.
type JobQueryRepository interface {
	// ListActiveJobIDs pages through active jobs in id order, after the given id.
	ListActiveJobIDs(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error)
	// IsActive reports domain.ErrJobNotFound for a deleted job.
	IsActive(ctx context.Context, jobID uuid.UUID) (bool, error)
}

type PostgresJobQueryRepository struct {
	db database.DB
}

func NewPostgresJobQueryRepository(db database.DB) *PostgresJobQueryRepository {
	return &PostgresJobQueryRepository{db: db}
}

func (r *PostgresJobQueryRepository) ListActiveJobIDs(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	if limit <= 0 {
		limit = 200
	}
	if limit > 5000 {
		limit = 5000
	}

	rows, err := r.db.Query(ctx,
		`SELECT id
		 FROM jobs
		 WHERE is_active = true AND id > $1
		 ORDER BY id ASC
		 LIMIT $2`,
		after, limit,
	)
	if err != nil {
		return nil, err
	}
	return collectUUIDs(rows)
}

func (r *PostgresJobQueryRepository) IsActive(ctx context.Context, jobID uuid.UUID) (bool, error) {
	var active bool
	row := r.db.QueryRow(ctx, `SELECT is_active FROM jobs WHERE id = $1`, jobID)
	if err := row.Scan(&active); err != nil {
		if database.IsNoRows(err) {
			return false, domain.ErrJobNotFound
		}
		return false, err
	}
	return active, nil
}
