package tracker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"skill-sync-engine/internal/domain"
	"skill-sync-engine/internal/domain/job"
	"skill-sync-engine/internal/domain/run"
)

// Tracker owns the lifecycle of in-flight scrape runs. Live runs are held in
// memory with their deadline timer; every transition is persisted through
// the Store before it becomes visible.
type Tracker struct {
	store    Store
	timeout  time.Duration
	slow     time.Duration
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time

	mu   sync.Mutex
	runs map[uuid.UUID]*liveRun
}

type liveRun struct {
	mu       sync.Mutex
	run      job.ScrapeRun
	status   run.Status
	tally    run.Tally
	deadline time.Time
	ctx      context.Context
	cancel   context.CancelFunc
	timer    *time.Timer
}

type Option func(*Tracker)

func WithNotifier(n Notifier) Option { return func(t *Tracker) { t.notifier = n } }

func WithClock(now func() time.Time) Option { return func(t *Tracker) { t.now = now } }

// WithSlowThreshold logs a warning for runs that take longer than d.
func WithSlowThreshold(d time.Duration) Option { return func(t *Tracker) { t.slow = d } }

func New(store Store, timeout time.Duration, logger *zap.Logger, opts ...Option) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Tracker{
		store:   store,
		timeout: timeout,
		logger:  logger.Named("tracker"),
		now:     func() time.Time { return time.Now().UTC() },
		runs:    make(map[uuid.UUID]*liveRun),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Summary describes a run that reached a terminal status.
type Summary struct {
	Run      job.ScrapeRun
	Tally    run.Tally
	Duration time.Duration
}

// Register creates a pending run for the source and arms its deadline.
func (t *Tracker) Register(ctx context.Context, sourceID uuid.UUID) (job.ScrapeRun, error) {
	r := job.ScrapeRun{
		ID:       uuid.New(),
		SourceID: sourceID,
		Status:   string(run.StatusPending),
	}
	if err := t.store.CreateRun(ctx, r); err != nil {
		return job.ScrapeRun{}, fmt.Errorf("create scrape run: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	lr := &liveRun{
		run:      r,
		status:   run.StatusPending,
		deadline: t.now().Add(t.timeout),
		ctx:      runCtx,
		cancel:   cancel,
	}
	t.mu.Lock()
	t.runs[r.ID] = lr
	t.mu.Unlock()

	if t.timeout > 0 {
		lr.timer = time.AfterFunc(t.timeout, func() { t.expire(r.ID) })
	}

	t.appendLog(ctx, r.ID, job.LogLevelInfo, "run registered")
	t.notify(r)
	t.logger.Info("run registered", zap.String("run_id", r.ID.String()), zap.String("source_id", sourceID.String()))
	return r, nil
}

// RunContext derives a context from parent that is cancelled when the run
// reaches its deadline or any terminal status.
func (t *Tracker) RunContext(parent context.Context, runID uuid.UUID) (context.Context, context.CancelFunc) {
	lr := t.live(runID)
	if lr == nil {
		ctx, cancel := context.WithCancelCause(parent)
		cancel(domain.ErrRunClosed)
		return ctx, func() {}
	}
	ctx, cancel := context.WithDeadline(parent, lr.deadline)
	stop := context.AfterFunc(lr.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// Guard returns ErrRunClosed once the run is no longer accepting writes.
func (t *Tracker) Guard(runID uuid.UUID) error {
	lr := t.live(runID)
	if lr == nil {
		return domain.ErrRunClosed
	}
	lr.mu.Lock()
	defer lr.mu.Unlock()
	if lr.status.IsTerminal() {
		return domain.ErrRunClosed
	}
	return nil
}

// Observe records the outcome of one posting. The first observation moves
// the run to running.
func (t *Tracker) Observe(ctx context.Context, runID uuid.UUID, outcome job.Outcome, cause error) error {
	lr := t.live(runID)
	if lr == nil {
		return domain.ErrRunClosed
	}

	lr.mu.Lock()
	if lr.status.IsTerminal() {
		lr.mu.Unlock()
		return domain.ErrRunClosed
	}
	if lr.status == run.StatusPending {
		if err := t.transition(ctx, lr, run.StatusRunning); err != nil {
			lr.mu.Unlock()
			return err
		}
	}

	level, msg := "", ""
	switch {
	case outcome == job.OutcomeCreated:
		lr.tally.Created++
	case outcome == job.OutcomeUpdated:
		lr.tally.Updated++
	case outcome == job.OutcomeUnchanged:
		lr.tally.Unchanged++
	case domain.IsMissingIdentity(cause):
		lr.tally.Rejected++
		level, msg = job.LogLevelWarn, "posting rejected: "+cause.Error()
	default:
		lr.tally.Errored++
		level, msg = job.LogLevelError, "posting failed: "+errString(cause)
	}
	lr.mu.Unlock()

	if msg != "" {
		t.appendLog(ctx, runID, level, msg)
	}
	return nil
}

// Log appends a diagnostic line to a live run.
func (t *Tracker) Log(ctx context.Context, runID uuid.UUID, level, message string) error {
	if err := t.Guard(runID); err != nil {
		return err
	}
	return t.store.AppendLog(ctx, job.ScrapeLog{
		ID:          uuid.New(),
		ScrapeRunID: runID,
		Level:       level,
		Message:     message,
		CreatedAt:   t.now(),
	})
}

// Complete resolves the terminal status from the observed outcomes.
func (t *Tracker) Complete(ctx context.Context, runID uuid.UUID, totalFound int) (Summary, error) {
	lr := t.live(runID)
	if lr == nil {
		return Summary{}, domain.ErrRunClosed
	}

	lr.mu.Lock()
	defer lr.mu.Unlock()
	if lr.status.IsTerminal() {
		return Summary{}, domain.ErrRunClosed
	}
	if lr.status == run.StatusPending {
		if err := t.transition(ctx, lr, run.StatusRunning); err != nil {
			return Summary{}, err
		}
	}

	final := lr.tally.Resolve()
	t.appendLog(ctx, runID, job.LogLevelInfo, fmt.Sprintf(
		"total_found=%d created=%d updated=%d unchanged=%d rejected=%d errored=%d",
		totalFound, lr.tally.Created, lr.tally.Updated, lr.tally.Unchanged, lr.tally.Rejected, lr.tally.Errored,
	))
	if err := t.transition(ctx, lr, final); err != nil {
		return Summary{}, err
	}
	t.release(lr)

	sum := t.summary(lr)
	if t.slow > 0 && sum.Duration > t.slow {
		t.logger.Warn("slow scrape run",
			zap.String("run_id", runID.String()),
			zap.Duration("took", sum.Duration),
			zap.Duration("threshold", t.slow),
		)
		t.appendLog(ctx, runID, job.LogLevelWarn, "slow run: took "+sum.Duration.Round(time.Millisecond).String())
	}
	return sum, nil
}

// Fail aborts a live run.
func (t *Tracker) Fail(ctx context.Context, runID uuid.UUID, cause error) (Summary, error) {
	lr := t.live(runID)
	if lr == nil {
		return Summary{}, domain.ErrRunClosed
	}

	lr.mu.Lock()
	defer lr.mu.Unlock()
	if lr.status.IsTerminal() {
		return Summary{}, domain.ErrRunClosed
	}
	t.appendLog(ctx, runID, job.LogLevelError, "run failed: "+errString(cause))
	if err := t.transition(ctx, lr, run.StatusFailed); err != nil {
		return Summary{}, err
	}
	t.release(lr)
	return t.summary(lr), nil
}

// Status reports the live status of a run, falling back to the store.
func (t *Tracker) Status(ctx context.Context, runID uuid.UUID) (run.Status, error) {
	if lr := t.live(runID); lr != nil {
		lr.mu.Lock()
		defer lr.mu.Unlock()
		return lr.status, nil
	}
	r, err := t.store.GetRun(ctx, runID)
	if err != nil {
		return "", err
	}
	return run.ParseStatus(r.Status)
}

// ExpireOverdue fails runs persisted as running past the timeout that no
// live tracker owns, such as those left behind by a crashed process.
func (t *Tracker) ExpireOverdue(ctx context.Context) (int, error) {
	if t.timeout <= 0 {
		return 0, nil
	}
	now := t.now()
	stale, err := t.store.ListRunningStartedBefore(ctx, now.Add(-t.timeout))
	if err != nil {
		return 0, fmt.Errorf("list overdue runs: %w", err)
	}

	expired := 0
	for _, r := range stale {
		if t.live(r.ID) != nil {
			continue
		}
		ok, err := t.store.TransitionRun(ctx, r.ID, run.StatusRunning, run.StatusFailed, nil, &now)
		if err != nil {
			return expired, fmt.Errorf("expire run %s: %w", r.ID, err)
		}
		if !ok {
			continue
		}
		expired++
		deadline := now
		if r.StartedAt != nil {
			deadline = r.StartedAt.Add(t.timeout)
		}
		t.appendLog(ctx, r.ID, job.LogLevelError, (&domain.RunTimeoutError{Deadline: deadline}).Error())
		r.Status = string(run.StatusFailed)
		r.FinishedAt = &now
		t.notify(r)
	}
	if expired > 0 {
		t.logger.Warn("expired orphaned runs", zap.Int("count", expired))
	}
	return expired, nil
}

func (t *Tracker) Run(ctx context.Context, id uuid.UUID) (job.ScrapeRun, error) {
	return t.store.GetRun(ctx, id)
}

func (t *Tracker) Logs(ctx context.Context, runID uuid.UUID) ([]job.ScrapeLog, error) {
	if _, err := t.store.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	return t.store.ListLogs(ctx, runID)
}

func (t *Tracker) SourceRuns(ctx context.Context, sourceID uuid.UUID, limit int) ([]job.ScrapeRun, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return t.store.ListRunsBySource(ctx, sourceID, limit)
}

func (t *Tracker) expire(runID uuid.UUID) {
	lr := t.live(runID)
	if lr == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	lr.mu.Lock()
	defer lr.mu.Unlock()
	if lr.status.IsTerminal() {
		return
	}
	// Stop in-flight ingestion before the status flips.
	lr.cancel()

	timeoutErr := &domain.RunTimeoutError{Deadline: lr.deadline}
	t.appendLog(ctx, runID, job.LogLevelError, timeoutErr.Error())
	if err := t.transition(ctx, lr, run.StatusFailed); err != nil {
		t.logger.Error("expire run", zap.String("run_id", runID.String()), zap.Error(err))
		// The run must stop accepting writes even if the store is unreachable;
		// the reaper persists the status later.
		lr.status = run.StatusFailed
	}
	t.release(lr)
	t.logger.Warn("run timed out", zap.String("run_id", runID.String()), zap.Time("deadline", lr.deadline))
}

// transition persists from → to. Callers hold lr.mu.
func (t *Tracker) transition(ctx context.Context, lr *liveRun, to run.Status) error {
	from := lr.status
	if err := run.Transition(from, to); err != nil {
		return err
	}

	ctx, cancel := detached(ctx)
	defer cancel()

	now := t.now()
	var startedAt, finishedAt *time.Time
	if to == run.StatusRunning {
		startedAt = &now
	}
	if to.IsTerminal() {
		finishedAt = &now
	}

	ok, err := t.store.TransitionRun(ctx, lr.run.ID, from, to, startedAt, finishedAt)
	if err != nil {
		return fmt.Errorf("persist run %s %s -> %s: %w", lr.run.ID, from, to, err)
	}
	if !ok {
		return fmt.Errorf("%w: run %s is no longer %s", domain.ErrInvalidTransition, lr.run.ID, from)
	}

	lr.status = to
	lr.run.Status = string(to)
	if startedAt != nil {
		lr.run.StartedAt = startedAt
	}
	if finishedAt != nil {
		lr.run.FinishedAt = finishedAt
	}

	t.appendLog(ctx, lr.run.ID, job.LogLevelInfo, fmt.Sprintf("status %s -> %s", from, to))
	t.notify(lr.run)
	return nil
}

// release drops a terminal run from the live set. Callers hold lr.mu.
func (t *Tracker) release(lr *liveRun) {
	if lr.timer != nil {
		lr.timer.Stop()
	}
	lr.cancel()
	t.mu.Lock()
	delete(t.runs, lr.run.ID)
	t.mu.Unlock()
}

func (t *Tracker) summary(lr *liveRun) Summary {
	s := Summary{Run: lr.run, Tally: lr.tally}
	if lr.run.StartedAt != nil && lr.run.FinishedAt != nil {
		s.Duration = lr.run.FinishedAt.Sub(*lr.run.StartedAt)
	}
	return s
}

func (t *Tracker) live(id uuid.UUID) *liveRun {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.runs[id]
}

// appendLog never fails the caller; a lost diagnostic line is logged instead.
func (t *Tracker) appendLog(ctx context.Context, runID uuid.UUID, level, message string) {
	ctx, cancel := detached(ctx)
	defer cancel()
	err := t.store.AppendLog(ctx, job.ScrapeLog{
		ID:          uuid.New(),
		ScrapeRunID: runID,
		Level:       level,
		Message:     message,
		CreatedAt:   t.now(),
	})
	if err != nil {
		t.logger.Warn("append scrape log", zap.String("run_id", runID.String()), zap.Error(err))
	}
}

func (t *Tracker) notify(r job.ScrapeRun) {
	if t.notifier != nil {
		t.notifier.RunChanged(r)
	}
}

func errString(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}

// detached keeps persistence working after the caller's context ended, which
// is exactly when failure and timeout transitions happen.
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx.Err() == nil {
		return ctx, func() {}
	}
	return context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
}
