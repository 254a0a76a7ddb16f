package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"skill-sync-engine/internal/domain"
	"skill-sync-engine/internal/domain/job"
	"skill-sync-engine/internal/domain/run"
	"skill-sync-engine/internal/pipeline"
	"skill-sync-engine/internal/tracker"
)

// Fetcher pulls postings for one source from the scraper collaborator.
type Fetcher interface {
	Fetch(ctx context.Context, source string, q Query) ([]job.RawPosting, error)
}

type Query struct {
	Keyword  string
	Location string
	Limit    int
}

type SourceFinder interface {
	FindByName(ctx context.Context, name string) (job.Source, error)
}

type BatchConfig struct {
	WorkersPerSource    int
	MaxResultsPerSource int
	// RatePerSource throttles posting writes per second within a run.
	RatePerSource int
}

// Batch drives ingestion runs: one ScrapeRun per source, postings ingested
// on a bounded pool, reconciliation at the end.
type Batch struct {
	ingestor *Ingestor
	tracker  *tracker.Tracker
	sources  SourceFinder
	fetcher  Fetcher
	cfg      BatchConfig
	logger   *zap.Logger
}

func NewBatch(ing *Ingestor, tr *tracker.Tracker, sources SourceFinder, fetcher Fetcher, cfg BatchConfig, logger *zap.Logger) *Batch {
	if cfg.WorkersPerSource <= 0 {
		cfg.WorkersPerSource = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Batch{
		ingestor: ing,
		tracker:  tr,
		sources:  sources,
		fetcher:  fetcher,
		cfg:      cfg,
		logger:   logger.Named("batch"),
	}
}

type RunSummary struct {
	Source      string     `json:"source"`
	RunID       uuid.UUID  `json:"run_id"`
	Status      run.Status `json:"status"`
	TotalFound  int        `json:"total_found"`
	Tally       run.Tally  `json:"tally"`
	Deactivated int        `json:"deactivated"`
	Err         error      `json:"-"`
}

type TaskSummary struct {
	Task job.ScrapeTask
	Runs []RunSummary
}

// IngestPostings runs a push-mode batch for the named source.
func (b *Batch) IngestPostings(ctx context.Context, sourceName string, postings []job.RawPosting) (RunSummary, error) {
	source, err := b.sources.FindByName(ctx, sourceName)
	if err != nil {
		return RunSummary{Source: sourceName}, err
	}
	return b.execute(ctx, source, func(context.Context) ([]job.RawPosting, error) {
		return postings, nil
	})
}

// RunSource runs a pull-mode batch against the scraper collaborator.
func (b *Batch) RunSource(ctx context.Context, source job.Source, q Query) (RunSummary, error) {
	if b.fetcher == nil {
		return RunSummary{Source: source.Name}, errors.New("no scraper configured")
	}
	if q.Limit <= 0 || (b.cfg.MaxResultsPerSource > 0 && q.Limit > b.cfg.MaxResultsPerSource) {
		q.Limit = b.cfg.MaxResultsPerSource
	}
	return b.execute(ctx, source, func(ctx context.Context) ([]job.RawPosting, error) {
		return b.fetcher.Fetch(ctx, source.Name, q)
	})
}

// OpenTask records a pending task so callers can hand out its id before
// the work starts.
func (b *Batch) OpenTask(ctx context.Context, query, location string) (job.ScrapeTask, error) {
	return b.tracker.OpenTask(ctx, query, location)
}

// RunTask opens a task and executes it.
func (b *Batch) RunTask(ctx context.Context, query, location string, sourceNames []string) (TaskSummary, error) {
	task, err := b.OpenTask(ctx, query, location)
	if err != nil {
		return TaskSummary{}, err
	}
	return b.ExecuteTask(ctx, task, sourceNames)
}

// ExecuteTask runs every known source of the task in parallel, each as its
// own ScrapeRun, and resolves the task status from theirs.
func (b *Batch) ExecuteTask(ctx context.Context, task job.ScrapeTask, sourceNames []string) (TaskSummary, error) {
	sources := b.resolveSources(ctx, sourceNames)
	if len(sources) == 0 {
		cause := errors.New("no known sources to scrape")
		if err := b.tracker.FailTask(ctx, task.ID, cause); err != nil {
			return TaskSummary{}, err
		}
		t, err := b.tracker.Task(context.WithoutCancel(ctx), task.ID)
		return TaskSummary{Task: t}, err
	}

	if err := b.tracker.StartTask(ctx, task.ID); err != nil {
		return TaskSummary{}, err
	}

	q := Query{Keyword: task.Query, Limit: b.cfg.MaxResultsPerSource}
	if task.Location != nil {
		q.Location = *task.Location
	}

	runs := make([]RunSummary, len(sources))
	var g errgroup.Group
	for i, src := range sources {
		g.Go(func() error {
			sum, err := b.RunSource(ctx, src, q)
			if err != nil {
				sum.Status = run.StatusFailed
				sum.Err = err
			}
			runs[i] = sum
			return nil
		})
	}
	_ = g.Wait()

	total := 0
	statuses := make([]run.Status, 0, len(runs))
	var problems []string
	for _, r := range runs {
		total += r.TotalFound
		statuses = append(statuses, r.Status)
		if r.Err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", r.Source, r.Err))
		} else if r.Status != run.StatusSucceeded {
			problems = append(problems, fmt.Sprintf("%s: run %s ended %s", r.Source, r.RunID, r.Status))
		}
	}

	t, err := b.tracker.FinishTask(ctx, task.ID, total, statuses, problems)
	if err != nil {
		return TaskSummary{Runs: runs}, err
	}
	return TaskSummary{Task: t, Runs: runs}, nil
}

func (b *Batch) resolveSources(ctx context.Context, names []string) []job.Source {
	out := make([]job.Source, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		src, err := b.sources.FindByName(ctx, name)
		if err != nil {
			if errors.Is(err, domain.ErrSourceNotFound) {
				b.logger.Warn("skipping unknown source", zap.String("source", name))
			} else {
				b.logger.Error("resolve source", zap.String("source", name), zap.Error(err))
			}
			continue
		}
		out = append(out, src)
	}
	return out
}

type fetchFunc func(ctx context.Context) ([]job.RawPosting, error)

func (b *Batch) execute(ctx context.Context, source job.Source, fetch fetchFunc) (RunSummary, error) {
	sum := RunSummary{Source: source.Name}
	started := b.ingestor.clock()

	r, err := b.tracker.Register(ctx, source.ID)
	if err != nil {
		return sum, err
	}
	sum.RunID = r.ID
	log := b.logger.With(zap.String("source", source.Name), zap.String("run_id", r.ID.String()))

	runCtx, cancel := b.tracker.RunContext(ctx, r.ID)
	defer cancel()

	postings, err := fetch(runCtx)
	if err != nil {
		log.Warn("fetch postings", zap.String("step", "fetch"), zap.Error(err))
		return b.fail(ctx, sum, fmt.Errorf("fetch postings: %w", err))
	}
	sum.TotalFound = len(postings)

	truncated := false
	if limit := b.cfg.MaxResultsPerSource; limit > 0 && len(postings) > limit {
		_ = b.tracker.Log(runCtx, r.ID, job.LogLevelWarn, fmt.Sprintf("truncated %d postings to %d", len(postings), limit))
		postings = postings[:limit]
		truncated = true
	}

	tally, persistErrs := b.ingestAll(runCtx, r.ID, source, postings)
	sum.Tally = tally

	if runCtx.Err() != nil {
		if ctx.Err() != nil {
			return b.fail(ctx, sum, context.Cause(ctx))
		}
		// Deadline reached. The tracker may already have failed the run.
		deadline, _ := runCtx.Deadline()
		return b.fail(ctx, sum, &domain.RunTimeoutError{Deadline: deadline})
	}

	switch {
	case tally.Resolve() == run.StatusFailed:
	case persistErrs > 0:
		_ = b.tracker.Log(runCtx, r.ID, job.LogLevelWarn, "reconciliation skipped: postings failed to persist")
	case truncated:
		_ = b.tracker.Log(runCtx, r.ID, job.LogLevelWarn, "reconciliation skipped: result set truncated")
	case sum.TotalFound == 0:
		log.Warn("no postings returned, catalog left as is", zap.String("step", "reconcile"))
		_ = b.tracker.Log(runCtx, r.ID, job.LogLevelWarn, "reconciliation skipped: no postings returned")
	default:
		ids, err := b.ingestor.Reconcile(runCtx, source.ID, started)
		if err != nil {
			log.Error("reconcile", zap.String("step", "reconcile"), zap.Error(err))
			_ = b.tracker.Log(runCtx, r.ID, job.LogLevelError, err.Error())
			break
		}
		sum.Deactivated = len(ids)
		if len(ids) > 0 {
			_ = b.tracker.Log(runCtx, r.ID, job.LogLevelInfo, fmt.Sprintf("deactivated %d unseen jobs", len(ids)))
		}
	}

	done, err := b.tracker.Complete(ctx, r.ID, sum.TotalFound)
	if err != nil {
		if errors.Is(err, domain.ErrRunClosed) {
			sum.Status = run.StatusFailed
			sum.Err = err
			return sum, nil
		}
		return sum, err
	}
	sum.Status = run.Status(done.Run.Status)
	log.Info("run finished",
		zap.String("step", "complete"),
		zap.String("status", done.Run.Status),
		zap.Int("total_found", sum.TotalFound),
		zap.Int("created", tally.Created),
		zap.Int("updated", tally.Updated),
		zap.Int("unchanged", tally.Unchanged),
		zap.Int("rejected", tally.Rejected),
		zap.Int("errored", tally.Errored),
		zap.Int("deactivated", sum.Deactivated),
		zap.Duration("took", done.Duration),
	)
	return sum, nil
}

func (b *Batch) fail(ctx context.Context, sum RunSummary, cause error) (RunSummary, error) {
	sum.Status = run.StatusFailed
	sum.Err = cause
	if _, err := b.tracker.Fail(ctx, sum.RunID, cause); err != nil && !errors.Is(err, domain.ErrRunClosed) {
		return sum, err
	}
	return sum, nil
}

// ingestAll feeds postings through a worker pool. It returns the local tally
// and the number of postings that hit a persistence error.
func (b *Batch) ingestAll(ctx context.Context, runID uuid.UUID, source job.Source, postings []job.RawPosting) (run.Tally, int) {
	var (
		mu    sync.Mutex
		tally run.Tally
	)
	record := func(outcome job.Outcome, err error) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case err == nil && outcome == job.OutcomeCreated:
			tally.Created++
		case err == nil && outcome == job.OutcomeUpdated:
			tally.Updated++
		case err == nil && outcome == job.OutcomeUnchanged:
			tally.Unchanged++
		case domain.IsMissingIdentity(err):
			tally.Rejected++
		default:
			tally.Errored++
		}
	}

	pool := pipeline.NewWorkerPool(b.cfg.WorkersPerSource, len(postings))
	pool.SetRateLimit(b.cfg.RatePerSource)
	results := pool.Run(ctx)
	for _, p := range postings {
		ok := pool.Submit(ctx, func(ctx context.Context) pipeline.Result {
			if err := b.tracker.Guard(runID); err != nil {
				return pipeline.Result{Err: err}
			}
			res, err := b.ingestor.Ingest(ctx, source, p)
			if oerr := b.tracker.Observe(ctx, runID, res.Outcome, err); oerr != nil {
				return pipeline.Result{Err: oerr}
			}
			record(res.Outcome, err)
			if err != nil && !domain.IsMissingIdentity(err) {
				return pipeline.Result{Err: err}
			}
			return pipeline.Result{}
		})
		if !ok {
			break
		}
	}
	pool.Close()

	persistErrs := 0
	for res := range results {
		if res.Err != nil {
			persistErrs++
		}
	}
	return tally, persistErrs
}
