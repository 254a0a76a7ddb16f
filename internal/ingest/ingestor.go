package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"skill-sync-engine/internal/domain"
	"skill-sync-engine/internal/domain/job"
	"skill-sync-engine/internal/events"
)

// Catalog is the job store seen by the ingestor. Conditional writes compare
// scraped_at against the value read by FindByKey and report false when
// another writer got there first.
type Catalog interface {
	// FindByKey resolves by external id first, then by url within the source.
	FindByKey(ctx context.Context, key job.DedupKey) (job.Job, bool, error)
	// Create returns domain.ErrDuplicateKey when a unique constraint fires.
	Create(ctx context.Context, j job.Job) (uuid.UUID, error)
	// UpdateContent rewrites the posting fields and marks it active.
	UpdateContent(ctx context.Context, j job.Job, prevScrapedAt *time.Time) (bool, error)
	// Touch refreshes scraped_at and marks the job active.
	Touch(ctx context.Context, id uuid.UUID, prevScrapedAt *time.Time, scrapedAt time.Time) (bool, error)
	// DeactivateUnseen flips active jobs of the source with scraped_at before
	// since and returns their ids.
	DeactivateUnseen(ctx context.Context, sourceID uuid.UUID, since time.Time) ([]uuid.UUID, error)
}

type Result struct {
	Outcome  job.Outcome
	JobID    uuid.UUID
	Change   job.ChangeKind
	Attempts int
}

type Ingestor struct {
	catalog    Catalog
	publisher  events.Publisher
	logger     *zap.Logger
	locks      *keyedMutex
	now        func() time.Time
	maxRetries uint64
	newBackOff func() backoff.BackOff
}

type Option func(*Ingestor)

func WithClock(now func() time.Time) Option { return func(i *Ingestor) { i.now = now } }

// WithMaxConflictRetries bounds how often a dedup conflict is retried.
func WithMaxConflictRetries(n uint64) Option { return func(i *Ingestor) { i.maxRetries = n } }

func WithBackOff(f func() backoff.BackOff) Option { return func(i *Ingestor) { i.newBackOff = f } }

func NewIngestor(catalog Catalog, publisher events.Publisher, logger *zap.Logger, opts ...Option) *Ingestor {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	i := &Ingestor{
		catalog:    catalog,
		publisher:  publisher,
		logger:     logger.Named("ingest"),
		locks:      newKeyedMutex(),
		now:        time.Now,
		maxRetries: 3,
		newBackOff: defaultBackOff,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 25 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond
	b.MaxElapsedTime = 0
	return b
}

// clock is microsecond precision to survive a round trip through timestamptz.
func (i *Ingestor) clock() time.Time {
	return i.now().UTC().Truncate(time.Microsecond)
}

// Ingest upserts one raw posting into the catalog.
func (i *Ingestor) Ingest(ctx context.Context, source job.Source, raw job.RawPosting) (Result, error) {
	p := raw.Normalize()
	if p.ExternalJobID == "" && p.URL == "" {
		return Result{Outcome: job.OutcomeRejected}, &domain.MissingIdentityError{Title: p.Title}
	}

	key := job.DedupKey{SourceID: source.ID, ExternalID: p.ExternalJobID, URL: p.URL}
	unlock := i.locks.Lock(key.String())
	defer unlock()

	var res Result
	op := func() error {
		res.Attempts++
		r, err := i.upsert(ctx, source, key, p)
		if err != nil {
			if domain.IsDedupConflict(err) {
				i.logger.Debug("dedup conflict, retrying",
					zap.String("key", key.String()),
					zap.Int("attempt", res.Attempts),
				)
				return err
			}
			return backoff.Permanent(err)
		}
		res.Outcome, res.JobID, res.Change = r.Outcome, r.JobID, r.Change
		return nil
	}

	b := backoff.WithContext(backoff.WithMaxRetries(i.newBackOff(), i.maxRetries), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return Result{Outcome: job.OutcomeRejected, Attempts: res.Attempts}, err
	}

	if res.Change != "" {
		i.publish(ctx, events.JobChanged(res.JobID, res.Change))
	}
	return res, nil
}

func (i *Ingestor) upsert(ctx context.Context, source job.Source, key job.DedupKey, p job.RawPosting) (Result, error) {
	existing, found, err := i.catalog.FindByKey(ctx, key)
	if err != nil {
		return Result{}, fmt.Errorf("find job %s: %w", key, err)
	}
	now := i.clock()

	if !found {
		j := fromPosting(source, p, now)
		id, err := i.catalog.Create(ctx, j)
		if err != nil {
			if errors.Is(err, domain.ErrDuplicateKey) {
				return Result{}, &domain.DedupConflictError{Key: key.String(), Err: err}
			}
			return Result{}, fmt.Errorf("create job %s: %w", key, err)
		}
		return Result{Outcome: job.OutcomeCreated, JobID: id, Change: job.ChangeCreated}, nil
	}

	if existing.IsActive && ContentHash(existing.Content()) == ContentHash(p.Content()) {
		ok, err := i.catalog.Touch(ctx, existing.ID, existing.ScrapedAt, now)
		if err != nil {
			return Result{}, fmt.Errorf("touch job %s: %w", existing.ID, err)
		}
		if !ok {
			return Result{}, &domain.DedupConflictError{Key: key.String()}
		}
		return Result{Outcome: job.OutcomeUnchanged, JobID: existing.ID}, nil
	}

	j := fromPosting(source, p, now)
	j.ID = existing.ID
	j.CreatedAt = existing.CreatedAt
	if j.ExternalJobID == nil {
		j.ExternalJobID = existing.ExternalJobID
	}
	if j.URL == nil {
		j.URL = existing.URL
	}
	if j.PostedAt == nil {
		j.PostedAt = existing.PostedAt
	}
	ok, err := i.catalog.UpdateContent(ctx, j, existing.ScrapedAt)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateKey) {
			return Result{}, &domain.DedupConflictError{Key: key.String(), Err: err}
		}
		return Result{}, fmt.Errorf("update job %s: %w", existing.ID, err)
	}
	if !ok {
		return Result{}, &domain.DedupConflictError{Key: key.String()}
	}

	change := job.ChangeUpdated
	if !existing.IsActive {
		change = job.ChangeReactivated
	}
	return Result{Outcome: job.OutcomeUpdated, JobID: existing.ID, Change: change}, nil
}

// Reconcile deactivates the source's active jobs that were not observed
// since the run started.
func (i *Ingestor) Reconcile(ctx context.Context, sourceID uuid.UUID, since time.Time) ([]uuid.UUID, error) {
	ids, err := i.catalog.DeactivateUnseen(ctx, sourceID, since)
	if err != nil {
		return nil, fmt.Errorf("deactivate unseen jobs: %w", err)
	}
	for _, id := range ids {
		i.publish(ctx, events.JobChanged(id, job.ChangeDeactivated))
	}
	return ids, nil
}

// publish failures are logged only; the periodic full recompute repairs
// any score left stale by a lost event.
func (i *Ingestor) publish(ctx context.Context, e events.Event) {
	if err := i.publisher.Publish(context.WithoutCancel(ctx), e); err != nil {
		i.logger.Warn("publish job change",
			zap.String("job_id", e.JobID.String()),
			zap.String("change", string(e.Change)),
			zap.Error(err),
		)
	}
}

func fromPosting(source job.Source, p job.RawPosting, now time.Time) job.Job {
	return job.Job{
		ID:             uuid.Nil,
		SourceID:       source.ID,
		ExternalJobID:  nullable(p.ExternalJobID),
		URL:            nullable(p.URL),
		SourceURL:      nullable(p.SourceURL),
		Source:         nullable(source.Name),
		Title:          nullable(p.Title),
		Company:        nullable(p.Company),
		Location:       nullable(p.Location),
		EmploymentType: nullable(p.EmploymentType),
		Description:    nullable(p.Description),
		RawDescription: nullable(p.RawDescription),
		IsActive:       true,
		PostedAt:       p.PostedAt,
		ScrapedAt:      &now,
		CreatedAt:      now,
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
