package tracker

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"skill-sync-engine/internal/domain"
	"skill-sync-engine/internal/domain/job"
	"skill-sync-engine/internal/domain/run"
)

// maxErrorMessage bounds scrape_tasks.error_message.
const maxErrorMessage = 2000

// OpenTask records a pending search request.
func (t *Tracker) OpenTask(ctx context.Context, query, location string) (job.ScrapeTask, error) {
	now := t.now()
	task := job.ScrapeTask{
		ID:        uuid.New(),
		Query:     strings.TrimSpace(query),
		Status:    string(run.StatusPending),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if loc := strings.TrimSpace(location); loc != "" {
		task.Location = &loc
	}
	if err := t.store.CreateTask(ctx, task); err != nil {
		return job.ScrapeTask{}, fmt.Errorf("create scrape task: %w", err)
	}
	return task, nil
}

func (t *Tracker) StartTask(ctx context.Context, id uuid.UUID) error {
	ok, err := t.store.TransitionTask(ctx, id, run.StatusPending, run.StatusRunning, nil, nil, t.now())
	if err != nil {
		return fmt.Errorf("start scrape task: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: task %s is not pending", domain.ErrInvalidTransition, id)
	}
	return nil
}

// FinishTask resolves a running task from the summaries of its runs.
// error_message is only written for failed and partial outcomes.
func (t *Tracker) FinishTask(ctx context.Context, id uuid.UUID, totalFound int, statuses []run.Status, problems []string) (job.ScrapeTask, error) {
	final := run.Aggregate(statuses)

	var msg *string
	if final.CarriesError() {
		joined := strings.Join(problems, "; ")
		if joined == "" {
			joined = "one or more sources did not complete"
		}
		joined = truncateMessage(joined)
		msg = &joined
	}

	ctx, cancel := detached(ctx)
	defer cancel()

	ok, err := t.store.TransitionTask(ctx, id, run.StatusRunning, final, &totalFound, msg, t.now())
	if err != nil {
		return job.ScrapeTask{}, fmt.Errorf("finish scrape task: %w", err)
	}
	if !ok {
		return job.ScrapeTask{}, fmt.Errorf("%w: task %s is not running", domain.ErrInvalidTransition, id)
	}

	t.logger.Info("task finished",
		zap.String("task_id", id.String()),
		zap.String("status", string(final)),
		zap.Int("total_found", totalFound),
	)
	return t.store.GetTask(ctx, id)
}

// FailTask moves a pending or running task straight to failed.
func (t *Tracker) FailTask(ctx context.Context, id uuid.UUID, cause error) error {
	ctx, cancel := detached(ctx)
	defer cancel()

	msg := truncateMessage(errString(cause))
	for _, from := range []run.Status{run.StatusRunning, run.StatusPending} {
		ok, err := t.store.TransitionTask(ctx, id, from, run.StatusFailed, nil, &msg, t.now())
		if err != nil {
			return fmt.Errorf("fail scrape task: %w", err)
		}
		if ok {
			return nil
		}
	}
	return fmt.Errorf("%w: task %s already finished", domain.ErrInvalidTransition, id)
}

func (t *Tracker) Task(ctx context.Context, id uuid.UUID) (job.ScrapeTask, error) {
	return t.store.GetTask(ctx, id)
}

// DeleteTask removes a task. A running task is only removed when forced.
func (t *Tracker) DeleteTask(ctx context.Context, id uuid.UUID, force bool) error {
	task, err := t.store.GetTask(ctx, id)
	if err != nil {
		return err
	}
	if task.Status == string(run.StatusRunning) && !force {
		return domain.ErrTaskRunning
	}
	return t.store.DeleteTask(ctx, id)
}

// truncateMessage cuts s to maxErrorMessage bytes on a rune boundary so the
// stored text stays valid UTF-8.
func truncateMessage(s string) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	if len(s) <= maxErrorMessage {
		return s
	}
	n := maxErrorMessage
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
