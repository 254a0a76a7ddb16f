package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"skill-sync-engine/internal/domain"
	"skill-sync-engine/internal/domain/match"
	"skill-sync-engine/internal/domain/matching"
	"skill-sync-engine/internal/events"
	"skill-sync-engine/internal/pipeline"
	"skill-sync-engine/internal/repository"
)

type MatchingUsecase interface {
	Score(ctx context.Context, userID, jobID uuid.UUID) (matching.Result, error)
	RecomputeForJob(ctx context.Context, jobID uuid.UUID) error
	RecomputeForUser(ctx context.Context, userID uuid.UUID) error
	RecomputeAll(ctx context.Context) error
	Ranked(ctx context.Context, userID uuid.UUID, limit int) ([]match.RankedJob, error)
	HandleEvent(ctx context.Context, e events.Event) error
}

// Enqueuer schedules a pair on the recompute queue.
type Enqueuer interface {
	Enqueue(p pipeline.Pair) *pipeline.Ticket
}

type MatchingDeps struct {
	Jobs       repository.JobQueryRepository
	Users      repository.UserQueryRepository
	JobSkills  repository.JobSkillRepository
	UserSkills repository.UserSkillRepository
	Matches    repository.JobMatchRepository
	Cache      RankedCache
}

type MatchingOptions struct {
	Weights   matching.Weights
	PageSize  int
	RankedTTL time.Duration
}

type Matching struct {
	jobs       repository.JobQueryRepository
	users      repository.UserQueryRepository
	jobSkills  repository.JobSkillRepository
	userSkills repository.UserSkillRepository
	matches    repository.JobMatchRepository
	cache      RankedCache
	queue      Enqueuer

	weights   matching.Weights
	pageSize  int
	rankedTTL time.Duration
	now       func() time.Time
	logger    *zap.Logger
}

func NewMatchingUsecase(deps MatchingDeps, opts MatchingOptions, logger *zap.Logger) *Matching {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 500
	}
	if opts.RankedTTL <= 0 {
		opts.RankedTTL = 5 * time.Minute
	}
	return &Matching{
		jobs:       deps.Jobs,
		users:      deps.Users,
		jobSkills:  deps.JobSkills,
		userSkills: deps.UserSkills,
		matches:    deps.Matches,
		cache:      deps.Cache,
		weights:    opts.Weights,
		pageSize:   opts.PageSize,
		rankedTTL:  opts.RankedTTL,
		now:        time.Now,
		logger:     logger.Named("matching"),
	}
}

// AttachQueue wires the queue that executes fan-out pairs. The queue is
// built with HandlePair, so it cannot exist before the usecase does.
func (u *Matching) AttachQueue(q Enqueuer) {
	u.queue = q
}

func (u *Matching) Score(ctx context.Context, userID, jobID uuid.UUID) (matching.Result, error) {
	if userID == uuid.Nil || jobID == uuid.Nil {
		return matching.Result{}, ErrInvalidInput
	}

	ok, err := u.users.Exists(ctx, userID)
	if err != nil {
		return matching.Result{}, fmt.Errorf("check user: %w", err)
	}
	if !ok {
		return matching.Result{}, domain.ErrUserNotFound
	}
	if _, err := u.jobs.IsActive(ctx, jobID); err != nil {
		return matching.Result{}, err
	}

	return u.score(ctx, userID, jobID)
}

func (u *Matching) score(ctx context.Context, userID, jobID uuid.UUID) (matching.Result, error) {
	reqs, err := u.jobSkills.Requirements(ctx, jobID)
	if err != nil {
		return matching.Result{}, fmt.Errorf("load requirements: %w", err)
	}
	skills, err := u.userSkills.FindByUserID(ctx, userID)
	if err != nil {
		return matching.Result{}, fmt.Errorf("load user skills: %w", err)
	}
	return matching.Calculate(skills, reqs, u.weights), nil
}

// RecomputePair rescores one pair from the current catalog and profile and
// replaces the stored score. It returns domain.ErrRecomputeNoOp when the user
// or job is gone or the job is no longer active.
func (u *Matching) RecomputePair(ctx context.Context, p pipeline.Pair) error {
	ok, err := u.users.Exists(ctx, p.UserID)
	if err != nil {
		return fmt.Errorf("check user: %w", err)
	}
	if !ok {
		return domain.ErrRecomputeNoOp
	}

	active, err := u.jobs.IsActive(ctx, p.JobID)
	if errors.Is(err, domain.ErrJobNotFound) {
		return domain.ErrRecomputeNoOp
	}
	if err != nil {
		return fmt.Errorf("check job: %w", err)
	}
	if !active {
		// The stored score stays but the job leaves the ranked list.
		u.invalidate(ctx, p.UserID)
		return domain.ErrRecomputeNoOp
	}

	res, err := u.score(ctx, p.UserID, p.JobID)
	if err != nil {
		return err
	}

	err = u.matches.Upsert(ctx, match.JobMatch{
		UserID:     p.UserID,
		JobID:      p.JobID,
		MatchScore: res.MatchScore,
		MatchedAt:  u.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("store score: %w", err)
	}
	u.invalidate(ctx, p.UserID)
	return nil
}

// HandlePair is the recompute queue handler. No-op pairs are dropped.
func (u *Matching) HandlePair(ctx context.Context, p pipeline.Pair) error {
	err := u.RecomputePair(ctx, p)
	if errors.Is(err, domain.ErrRecomputeNoOp) {
		u.logger.Debug("recompute skipped",
			zap.String("user_id", p.UserID.String()),
			zap.String("job_id", p.JobID.String()),
		)
		return nil
	}
	return err
}

func (u *Matching) RecomputeForJob(ctx context.Context, jobID uuid.UUID) error {
	if _, err := u.jobs.IsActive(ctx, jobID); err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			return domain.ErrRecomputeNoOp
		}
		return fmt.Errorf("check job: %w", err)
	}
	return u.fanOut(ctx, u.users.ListUserIDs, func(userID uuid.UUID) pipeline.Pair {
		return pipeline.Pair{UserID: userID, JobID: jobID}
	})
}

func (u *Matching) RecomputeForUser(ctx context.Context, userID uuid.UUID) error {
	ok, err := u.users.Exists(ctx, userID)
	if err != nil {
		return fmt.Errorf("check user: %w", err)
	}
	if !ok {
		return domain.ErrRecomputeNoOp
	}
	return u.fanOut(ctx, u.jobs.ListActiveJobIDs, func(jobID uuid.UUID) pipeline.Pair {
		return pipeline.Pair{UserID: userID, JobID: jobID}
	})
}

// RecomputeAll rescores every user against every active job, one user at a
// time so the number of outstanding tickets stays bounded by the job count.
func (u *Matching) RecomputeAll(ctx context.Context) error {
	start := u.now()
	var (
		after  uuid.UUID
		users  int
		failed []error
	)
	for {
		ids, err := u.users.ListUserIDs(ctx, after, u.pageSize)
		if err != nil {
			return fmt.Errorf("list users: %w", err)
		}
		for _, id := range ids {
			err := u.RecomputeForUser(ctx, id)
			if err != nil && !errors.Is(err, domain.ErrRecomputeNoOp) {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				failed = append(failed, fmt.Errorf("user %s: %w", id, err))
			}
			users++
		}
		if len(ids) < u.pageSize {
			break
		}
		after = ids[len(ids)-1]
	}

	u.logger.Info("recompute all finished",
		zap.String("step", "recompute_all"),
		zap.Int("users", users),
		zap.Int("failed_users", len(failed)),
		zap.Duration("duration", u.now().Sub(start)),
	)
	return errors.Join(failed...)
}

type pageFunc func(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error)

// fanOut walks one side of the cross product in keyset pages, enqueues a pair
// per id and waits for all of them.
func (u *Matching) fanOut(ctx context.Context, page pageFunc, pair func(uuid.UUID) pipeline.Pair) error {
	if u.queue == nil {
		return ErrQueueNotAttached
	}

	var (
		after   uuid.UUID
		tickets []*pipeline.Ticket
	)
	for {
		ids, err := page(ctx, after, u.pageSize)
		if err != nil {
			return err
		}
		for _, id := range ids {
			tickets = append(tickets, u.queue.Enqueue(pair(id)))
		}
		if len(ids) < u.pageSize {
			break
		}
		after = ids[len(ids)-1]
	}
	return pipeline.Wait(ctx, tickets)
}

func (u *Matching) Ranked(ctx context.Context, userID uuid.UUID, limit int) ([]match.RankedJob, error) {
	if userID == uuid.Nil {
		return nil, ErrInvalidInput
	}
	limit = normalizeRankedLimit(limit)

	key := RankedCacheKey(userID)
	if u.cache != nil {
		var cached []match.RankedJob
		hit, err := u.cache.GetJSON(ctx, key, &cached)
		if err != nil {
			u.logger.Warn("ranked cache read failed", zap.String("key", key), zap.Error(err))
		}
		if hit {
			return head(cached, limit), nil
		}
	}

	ok, err := u.users.Exists(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("check user: %w", err)
	}
	if !ok {
		return nil, domain.ErrUserNotFound
	}

	rows, err := u.matches.Ranked(ctx, userID, maxRankedLimit)
	if err != nil {
		return nil, fmt.Errorf("load ranked matches: %w", err)
	}
	if rows == nil {
		rows = []match.RankedJob{}
	}

	if u.cache != nil {
		if err := u.cache.SetJSON(ctx, key, rows, u.rankedTTL); err != nil {
			u.logger.Warn("ranked cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return head(rows, limit), nil
}

// HandleEvent is the stream consumer handler. It returns only once every pair
// the event fanned out to has been executed, so the entry is acked after the
// work is done.
func (u *Matching) HandleEvent(ctx context.Context, e events.Event) error {
	var err error
	switch e.Type {
	case events.TypeJobChanged:
		err = u.RecomputeForJob(ctx, e.JobID)
	case events.TypeProfileChanged:
		err = u.RecomputeForUser(ctx, e.UserID)
	default:
		u.logger.Warn("ignoring event", zap.String("id", e.ID), zap.String("type", string(e.Type)))
		return nil
	}
	if errors.Is(err, domain.ErrRecomputeNoOp) {
		return nil
	}
	return err
}

func (u *Matching) invalidate(ctx context.Context, userID uuid.UUID) {
	if u.cache == nil {
		return
	}
	if err := u.cache.Delete(ctx, RankedCacheKey(userID)); err != nil {
		u.logger.Warn("ranked cache invalidation failed", zap.String("user_id", userID.String()), zap.Error(err))
	}
}

func head(rows []match.RankedJob, limit int) []match.RankedJob {
	if len(rows) > limit {
		return rows[:limit]
	}
	return rows
}
