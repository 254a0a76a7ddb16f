package usecase

import (
	"context"
	"fmt"
	"time"

	"skill-sync-engine/internal/domain"
	"skill-sync-engine/internal/pipeline"
	"skill-sync-engine/internal/repository"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type PipelineUsecase interface {
	GetStatus(ctx context.Context) (*domain.PipelineStatus, error)
}

type Pipeline struct {
	repo  repository.PipelineRepository
	db    Pinger
	redis Pinger
	queue interface{ Stats() pipeline.QueueStats }
	now   func() time.Time
}

// NewPipelineUsecase accepts nil pingers and a nil queue; the matching health
// fields then report unhealthy or zero.
func NewPipelineUsecase(repo repository.PipelineRepository, db, redis Pinger, queue interface{ Stats() pipeline.QueueStats }) *Pipeline {
	return &Pipeline{repo: repo, db: db, redis: redis, queue: queue, now: time.Now}
}

func (u *Pipeline) GetStatus(ctx context.Context) (*domain.PipelineStatus, error) {
	active, err := u.repo.GetActiveJobs(ctx)
	if err != nil {
		return nil, fmt.Errorf("count active jobs: %w", err)
	}
	today, err := u.repo.GetJobsToday(ctx)
	if err != nil {
		return nil, fmt.Errorf("count jobs today: %w", err)
	}
	matches, err := u.repo.GetMatchCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("count matches: %w", err)
	}
	sources, err := u.repo.GetSourceHealth(ctx)
	if err != nil {
		return nil, fmt.Errorf("source health: %w", err)
	}

	status := &domain.PipelineStatus{
		ActiveJobs:      active,
		JobsToday:       today,
		Matches:         matches,
		Sources:         sources,
		DatabaseHealthy: ping(ctx, u.db),
		RedisHealthy:    ping(ctx, u.redis),
		ServerTime:      u.now().UTC(),
	}
	if u.queue != nil {
		status.RecomputePending = u.queue.Stats().Pending
	}
	return status, nil
}

func ping(ctx context.Context, p Pinger) bool {
	if p == nil {
		return false
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.Ping(pingCtx) == nil
}
