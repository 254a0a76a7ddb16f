package tracker

import (
	"context"
	"time"

	"github.com/google/uuid"

	"skill-sync-engine/internal/domain/job"
	"skill-sync-engine/internal/domain/run"
)

// Store persists runs, their log lines and tasks. Transition methods are
// compare-and-set on the current status and report whether they applied.
type Store interface {
	CreateRun(ctx context.Context, r job.ScrapeRun) error
	GetRun(ctx context.Context, id uuid.UUID) (job.ScrapeRun, error)
	TransitionRun(ctx context.Context, id uuid.UUID, from, to run.Status, startedAt, finishedAt *time.Time) (bool, error)
	ListRunsBySource(ctx context.Context, sourceID uuid.UUID, limit int) ([]job.ScrapeRun, error)
	ListRunningStartedBefore(ctx context.Context, before time.Time) ([]job.ScrapeRun, error)

	AppendLog(ctx context.Context, l job.ScrapeLog) error
	ListLogs(ctx context.Context, runID uuid.UUID) ([]job.ScrapeLog, error)

	CreateTask(ctx context.Context, t job.ScrapeTask) error
	GetTask(ctx context.Context, id uuid.UUID) (job.ScrapeTask, error)
	TransitionTask(ctx context.Context, id uuid.UUID, from, to run.Status, totalFound *int, errorMessage *string, at time.Time) (bool, error)
	DeleteTask(ctx context.Context, id uuid.UUID) error
}

// Notifier is told about every persisted run status change.
type Notifier interface {
	RunChanged(r job.ScrapeRun)
}
