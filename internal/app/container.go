package app

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"skill-sync-engine/internal/config"
	"skill-sync-engine/internal/database"
	"skill-sync-engine/internal/database/migration"
	dbpostgres "skill-sync-engine/internal/database/postgres"
	"skill-sync-engine/internal/database/seeder"
	"skill-sync-engine/internal/domain/matching"
	"skill-sync-engine/internal/events"
	"skill-sync-engine/internal/infrastructure/cache"
	"skill-sync-engine/internal/infrastructure/scraper"
	"skill-sync-engine/internal/ingest"
	"skill-sync-engine/internal/pipeline"
	"skill-sync-engine/internal/repository"
	"skill-sync-engine/internal/tracker"
	"skill-sync-engine/internal/usecase"
	"skill-sync-engine/internal/ws"
)

// Container owns every long-lived dependency of the process.
type Container struct {
	Config config.Config
	Logger *zap.Logger

	DB     database.DB
	Redis  *redis.Client
	Cache  *cache.Redis
	Stream *events.Stream
	Hub    *ws.Hub

	Sources *repository.PostgresSourceRepository
	Tracker *tracker.Tracker
	Batch   *ingest.Batch
	Queue   *pipeline.RecomputeQueue

	Matching  *usecase.Matching
	Skills    *usecase.Skill
	UserSkill *usecase.UserSkill
	Pipeline  *usecase.Pipeline
}

// NewContainer migrates and seeds the database, then wires repositories,
// the ingestion pipeline and the matching engine. Redis being down is not
// fatal: the cache bypasses itself and event publishing only logs.
func NewContainer(cfg config.Config, logger *zap.Logger) (*Container, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := migrate(cfg.Database, logger); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := dbpostgres.Connect(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	if cfg.App.SeedDefaults {
		r := seeder.Runner{Seeders: seeder.Defaults(cfg.Ingest.DefaultSources()), Logger: logger}
		if err := r.Run(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	rdb, err := cache.NewClient(ctx, cfg.Redis)
	if err != nil {
		logger.Warn("redis ping failed, continuing degraded", zap.String("addr", cfg.Redis.Addr()), zap.Error(err))
	}

	c := &Container{
		Config: cfg,
		Logger: logger,
		DB:     db,
		Redis:  rdb,
		Cache:  cache.NewRedis(rdb, logger),
		Stream: events.NewStream(rdb, events.StreamConfig{
			Stream:    cfg.Events.Stream,
			Group:     cfg.Events.Group,
			Consumer:  cfg.Events.Consumer,
			MaxLen:    cfg.Events.MaxLen,
			Block:     cfg.Events.Block,
			ClaimIdle: cfg.Events.ClaimIdle,
		}, logger),
		Hub:     ws.NewHub(logger),
		Sources: repository.NewPostgresSourceRepository(db),
	}

	c.Tracker = tracker.New(
		repository.NewPostgresScrapeRunRepository(db),
		cfg.Run.Timeout,
		logger,
		tracker.WithNotifier(c.Hub),
		tracker.WithSlowThreshold(cfg.Run.SlowThreshold),
	)

	ingestor := ingest.NewIngestor(
		repository.NewPostgresJobRepository(db),
		c.Stream,
		logger,
		ingest.WithMaxConflictRetries(cfg.Ingest.MaxConflictRetries),
	)
	c.Batch = ingest.NewBatch(ingestor, c.Tracker, c.Sources, scraper.NewClient(cfg.Scraper, logger), ingest.BatchConfig{
		WorkersPerSource:    cfg.Ingest.WorkersPerSource,
		MaxResultsPerSource: cfg.Ingest.MaxResultsPerSource,
		RatePerSource:       cfg.Ingest.RatePerSource,
	}, logger)

	jobs := repository.NewPostgresJobQueryRepository(db)
	jobSkills := repository.NewPostgresJobSkillRepository(db)
	userSkills := repository.NewPostgresUserSkillRepository(db)

	c.Matching = usecase.NewMatchingUsecase(usecase.MatchingDeps{
		Jobs:       jobs,
		Users:      repository.NewPostgresUserQueryRepository(db),
		JobSkills:  jobSkills,
		UserSkills: userSkills,
		Matches:    repository.NewPostgresJobMatchRepository(db),
		Cache:      c.Cache,
	}, usecase.MatchingOptions{
		Weights: matching.Weights{
			DefaultWeight: cfg.Matching.DefaultWeight,
			LevelShare:    cfg.Matching.LevelShare,
			YearsShare:    cfg.Matching.YearsShare,
		},
		PageSize:  cfg.Matching.FanOutPageSize,
		RankedTTL: cfg.Cache.RankedTTL,
	}, logger)
	c.Queue = pipeline.NewRecomputeQueue(cfg.Matching.Workers, c.Matching.HandlePair, logger)
	c.Matching.AttachQueue(c.Queue)

	c.Skills = usecase.NewSkillUsecase(repository.NewPostgresSkillRepository(db), jobSkills, jobs, c.Stream, logger)
	c.UserSkill = usecase.NewUserSkillUsecase(userSkills, c.Stream, logger)
	c.Pipeline = usecase.NewPipelineUsecase(repository.NewPostgresPipelineRepository(db), db, c.Cache, c.Queue)

	return c, nil
}

func migrate(cfg config.DatabaseConfig, logger *zap.Logger) error {
	sqlDB, err := dbpostgres.OpenSQL(cfg)
	if err != nil {
		return err
	}
	return migration.Runner{Logger: logger}.Run(sqlDB)
}

func (c *Container) Close() error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.Redis != nil {
		errs = append(errs, c.Redis.Close())
	}
	if c.DB != nil {
		errs = append(errs, c.DB.Close())
	}
	return errors.Join(errs...)
}
