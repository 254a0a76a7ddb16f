package seeder

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"skill-sync-engine/internal/database"
)

type Seeder interface {
	Name() string
	Run(ctx context.Context, db database.DB) (int64, error)
}

type Runner struct {
	Seeders []Seeder
	Logger  *zap.Logger
}

func (r Runner) Run(ctx context.Context, db database.DB) error {
	if db == nil {
		return database.ErrNilDB
	}
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	for _, s := range r.Seeders {
		if s == nil {
			continue
		}
		start := time.Now()
		inserted, err := s.Run(ctx, db)
		if err != nil {
			return fmt.Errorf("seed %s: %w", s.Name(), err)
		}
		logger.Info("seeded",
			zap.String("seeder", s.Name()),
			zap.Int64("inserted", inserted),
			zap.Duration("took", time.Since(start)),
		)
	}
	return nil
}
