package repository

import (
	"context"

	"github.com/google/uuid"

	"skill-sync-engine/internal/database"
)

type UserQueryRepository interface {
	// ListUserIDs pages through users in id order, after the given id.
	ListUserIDs(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error)
	Exists(ctx context.Context, userID uuid.UUID) (bool, error)
}

type PostgresUserQueryRepository struct {
	db database.DB
}

func NewPostgresUserQueryRepository(db database.DB) *PostgresUserQueryRepository {
	return &PostgresUserQueryRepository{db: db}
}

func (r *PostgresUserQueryRepository) ListUserIDs(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}

	rows, err := r.db.Query(ctx,
		`SELECT id
		 FROM users
		 WHERE id > $1
		 ORDER BY id ASC
		 LIMIT $2`,
		after, limit,
	)
	if err != nil {
		return nil, err
	}
	return collectUUIDs(rows)
}

func (r *PostgresUserQueryRepository) Exists(ctx context.Context, userID uuid.UUID) (bool, error) {
	var exists bool
	row := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, userID)
	if err := row.Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}
