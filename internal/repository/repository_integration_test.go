package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"skill-sync-engine/internal/config"
	"skill-sync-engine/internal/database"
	"skill-sync-engine/internal/database/migration"
	"skill-sync-engine/internal/database/postgres"
	"skill-sync-engine/internal/database/seeder"
	"skill-sync-engine/internal/domain"
	"skill-sync-engine/internal/domain/job"
	"skill-sync-engine/internal/domain/match"
	"skill-sync-engine/internal/domain/run"
	"skill-sync-engine/internal/domain/skill"
)

func startPostgres(t *testing.T) database.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "test",
				"POSTGRES_PASSWORD": "test",
				"POSTGRES_DB":       "skill_sync_test",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	cfg := config.DatabaseConfig{
		DBHost: host, DBPort: port.Port(), DBName: "skill_sync_test",
		DBUser: "test", DBPassword: "test", DBSSLMode: "disable",
	}

	sqlDB, err := postgres.OpenSQL(cfg)
	require.NoError(t, err)
	require.NoError(t, migration.Runner{Logger: zap.NewNop()}.Run(sqlDB))

	db, err := postgres.Connect(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, seeder.Runner{Seeders: seeder.Defaults([]string{"indeed", "linkedin"})}.Run(ctx, db))
	return db
}

func strp(s string) *string { return &s }

func i16p(v int16) *int16 { return &v }

func newJob(source job.Source, ext, url, title string, at time.Time) job.Job {
	j := job.Job{
		SourceID:  source.ID,
		Source:    strp(source.Name),
		Title:     strp(title),
		IsActive:  true,
		ScrapedAt: &at,
		CreatedAt: at,
	}
	if ext != "" {
		j.ExternalJobID = strp(ext)
	}
	if url != "" {
		j.URL = strp(url)
	}
	return j
}

func createUser(t *testing.T, db database.DB, email string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := db.Exec(context.Background(),
		`INSERT INTO users (id, email, password_hash) VALUES ($1, $2, 'x')`, id, email)
	require.NoError(t, err)
	return id
}

func TestRepositories(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()

	sources := NewPostgresSourceRepository(db)
	jobs := NewPostgresJobRepository(db)
	jobQuery := NewPostgresJobQueryRepository(db)
	skills := NewPostgresSkillRepository(db)
	jobSkills := NewPostgresJobSkillRepository(db)
	userSkills := NewPostgresUserSkillRepository(db)
	users := NewPostgresUserQueryRepository(db)
	matches := NewPostgresJobMatchRepository(db)
	runs := NewPostgresScrapeRunRepository(db)
	pipelineRepo := NewPostgresPipelineRepository(db)

	indeed, err := sources.FindByName(ctx, "Indeed")
	require.NoError(t, err)
	linkedin, err := sources.FindByName(ctx, "linkedin")
	require.NoError(t, err)
	_, err = sources.FindByName(ctx, "monster")
	assert.ErrorIs(t, err, domain.ErrSourceNotFound)

	at := time.Now().UTC().Truncate(time.Microsecond)

	t.Run("catalog dedup keys", func(t *testing.T) {
		id, err := jobs.Create(ctx, newJob(indeed, "E1", "https://indeed.example/E1", "Data Engineer", at))
		require.NoError(t, err)

		_, err = jobs.Create(ctx, newJob(indeed, "E1", "", "Other", at))
		assert.ErrorIs(t, err, domain.ErrDuplicateKey)

		other, err := jobs.Create(ctx, newJob(linkedin, "E1", "https://indeed.example/E1", "Data Engineer", at))
		require.NoError(t, err)
		assert.NotEqual(t, id, other)

		found, ok, err := jobs.FindByKey(ctx, job.DedupKey{SourceID: indeed.ID, ExternalID: "E1"})
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, id, found.ID)
		assert.Equal(t, "Data Engineer", *found.Title)
		assert.Nil(t, found.Company)

		byURL, ok, err := jobs.FindByKey(ctx, job.DedupKey{SourceID: indeed.ID, URL: "https://indeed.example/E1"})
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, id, byURL.ID)

		_, ok, err = jobs.FindByKey(ctx, job.DedupKey{SourceID: indeed.ID, ExternalID: "missing"})
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("conditional writes", func(t *testing.T) {
		id, err := jobs.Create(ctx, newJob(indeed, "E2", "", "Backend", at))
		require.NoError(t, err)

		stale := at.Add(-time.Hour)
		ok, err := jobs.Touch(ctx, id, &stale, at.Add(time.Second))
		require.NoError(t, err)
		assert.False(t, ok)

		later := at.Add(time.Second)
		ok, err = jobs.Touch(ctx, id, &at, later)
		require.NoError(t, err)
		assert.True(t, ok)

		updated := newJob(indeed, "E2", "", "Senior Backend", later.Add(time.Second))
		updated.ID = id
		ok, err = jobs.UpdateContent(ctx, updated, &at)
		require.NoError(t, err)
		assert.False(t, ok, "stale scraped_at must lose")

		ok, err = jobs.UpdateContent(ctx, updated, &later)
		require.NoError(t, err)
		assert.True(t, ok)

		got, err := jobs.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "Senior Backend", *got.Title)
	})

	t.Run("deactivate unseen", func(t *testing.T) {
		src := linkedin
		old, err := jobs.Create(ctx, newJob(src, "OLD", "", "Old", at.Add(-time.Hour)))
		require.NoError(t, err)
		fresh, err := jobs.Create(ctx, newJob(src, "NEW", "", "New", at.Add(time.Hour)))
		require.NoError(t, err)

		ids, err := jobs.DeactivateUnseen(ctx, src.ID, at)
		require.NoError(t, err)
		assert.Contains(t, ids, old)
		assert.NotContains(t, ids, fresh)

		active, err := jobQuery.IsActive(ctx, old)
		require.NoError(t, err)
		assert.False(t, active)
		_, err = jobQuery.IsActive(ctx, uuid.New())
		assert.ErrorIs(t, err, domain.ErrJobNotFound)
	})

	t.Run("skills and matches", func(t *testing.T) {
		ids, err := skills.ResolveNames(ctx, []string{"SQL", "python", "cobol"})
		require.NoError(t, err)
		require.Len(t, ids, 2)
		sqlID, pyID := ids["sql"], ids["python"]

		jobID, err := jobs.Create(ctx, newJob(indeed, "E3", "", "Analyst", at))
		require.NoError(t, err)
		require.NoError(t, jobSkills.ReplaceForJob(ctx, jobID, []skill.JobSkill{
			{SkillID: sqlID, IsMandatory: true, RequiredLevel: i16p(3)},
			{SkillID: pyID, ImportanceWeight: i16p(4), RequiredLevel: i16p(2)},
		}, nil))
		require.NoError(t, jobSkills.ReplaceForJob(ctx, jobID, []skill.JobSkill{
			{SkillID: pyID, ImportanceWeight: i16p(5)},
		}, []uuid.UUID{sqlID}))
		reqs, err := jobSkills.Requirements(ctx, jobID)
		require.NoError(t, err)
		require.Len(t, reqs, 2)

		require.NoError(t, jobSkills.ReplaceForJob(ctx, jobID, []skill.JobSkill{
			{SkillID: sqlID, IsMandatory: true, RequiredLevel: i16p(3)},
		}, nil))
		reqs, err = jobSkills.Requirements(ctx, jobID)
		require.NoError(t, err)
		require.Len(t, reqs, 1)
		assert.True(t, reqs[0].IsMandatory)
		assert.Nil(t, reqs[0].ImportanceWeight)

		err = jobSkills.ReplaceForJob(ctx, jobID, []skill.JobSkill{{SkillID: sqlID, ImportanceWeight: i16p(9)}}, nil)
		assert.True(t, domain.IsConstraintViolation(err))

		err = jobSkills.ReplaceForJob(ctx, jobID, []skill.JobSkill{{SkillID: uuid.New()}}, nil)
		assert.ErrorIs(t, err, domain.ErrSkillNotFound)

		userID := createUser(t, db, "ana@example.com")
		exists, err := users.Exists(ctx, userID)
		require.NoError(t, err)
		assert.True(t, exists)

		_, err = userSkills.Upsert(ctx, skill.UserSkill{UserID: userID, SkillID: sqlID, ProficiencyLevel: i16p(4)})
		require.NoError(t, err)
		_, err = userSkills.Upsert(ctx, skill.UserSkill{UserID: userID, SkillID: sqlID, ProficiencyLevel: i16p(5)})
		require.NoError(t, err)
		have, err := userSkills.FindByUserID(ctx, userID)
		require.NoError(t, err)
		require.Len(t, have, 1)
		assert.Equal(t, 5, *have[0].ProficiencyLevel)
		assert.ErrorIs(t, userSkills.DeleteUserSkill(ctx, userID, pyID), ErrUserSkillNotFound)

		first := at
		require.NoError(t, matches.Upsert(ctx, match.JobMatch{UserID: userID, JobID: jobID, MatchScore: decimal.RequireFromString("71.43"), MatchedAt: first}))
		second := at.Add(time.Minute)
		require.NoError(t, matches.Upsert(ctx, match.JobMatch{UserID: userID, JobID: jobID, MatchScore: decimal.RequireFromString("71.43"), MatchedAt: second}))
		m, ok, err := matches.Get(ctx, userID, jobID)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "71.43", m.MatchScore.StringFixed(2))
		assert.True(t, m.MatchedAt.Equal(second))

		ranked, err := matches.Ranked(ctx, userID, 10)
		require.NoError(t, err)
		require.Len(t, ranked, 1)
		assert.Equal(t, jobID, ranked[0].JobID)

		_, err = jobs.DeactivateUnseen(ctx, indeed.ID, at.Add(time.Hour))
		require.NoError(t, err)
		ranked, err = matches.Ranked(ctx, userID, 10)
		require.NoError(t, err)
		assert.Empty(t, ranked)
	})

	t.Run("scrape runs and tasks", func(t *testing.T) {
		r := job.ScrapeRun{ID: uuid.New(), SourceID: indeed.ID, Status: string(run.StatusPending)}
		require.NoError(t, runs.CreateRun(ctx, r))

		ok, err := runs.TransitionRun(ctx, r.ID, run.StatusPending, run.StatusRunning, &at, nil)
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = runs.TransitionRun(ctx, r.ID, run.StatusPending, run.StatusRunning, &at, nil)
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = runs.TransitionRun(ctx, r.ID, run.StatusRunning, run.StatusRunning, nil, &at)
		assert.True(t, database.IsCheckViolation(err), "finished_at requires a terminal status")

		stale, err := runs.ListRunningStartedBefore(ctx, at.Add(time.Minute))
		require.NoError(t, err)
		require.NotEmpty(t, stale)

		require.NoError(t, runs.AppendLog(ctx, job.ScrapeLog{ID: uuid.New(), ScrapeRunID: r.ID, Level: job.LogLevelError, Message: "boom", CreatedAt: at}))
		assert.ErrorIs(t, runs.AppendLog(ctx, job.ScrapeLog{ID: uuid.New(), ScrapeRunID: uuid.New(), Level: "info", Message: "x", CreatedAt: at}), domain.ErrRunNotFound)

		finished := at.Add(time.Second)
		ok, err = runs.TransitionRun(ctx, r.ID, run.StatusRunning, run.StatusPartial, nil, &finished)
		require.NoError(t, err)
		assert.True(t, ok)
		got, err := runs.GetRun(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, "partial", got.Status)
		require.NotNil(t, got.StartedAt)
		require.NotNil(t, got.FinishedAt)

		logs, err := runs.ListLogs(ctx, r.ID)
		require.NoError(t, err)
		require.Len(t, logs, 1)

		health, err := pipelineRepo.GetSourceHealth(ctx)
		require.NoError(t, err)
		var indeedHealth domain.SourceHealth
		for _, h := range health {
			if h.Source == indeed.Name {
				indeedHealth = h
			}
		}
		require.NotNil(t, indeedHealth.LastRunStatus)
		assert.Equal(t, "partial", *indeedHealth.LastRunStatus)
		assert.Equal(t, 1, indeedHealth.LastRunErrors)

		task := job.ScrapeTask{ID: uuid.New(), Query: "go", Status: "pending", CreatedAt: at, UpdatedAt: at}
		require.NoError(t, runs.CreateTask(ctx, task))
		msg := "linkedin: unavailable"
		_, err = runs.TransitionTask(ctx, task.ID, run.StatusPending, run.StatusRunning, nil, &msg, at)
		assert.True(t, database.IsCheckViolation(err), "error_message only on failed or partial")

		ok, err = runs.TransitionTask(ctx, task.ID, run.StatusPending, run.StatusFailed, nil, &msg, at)
		require.NoError(t, err)
		assert.True(t, ok)
		gotTask, err := runs.GetTask(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, msg, *gotTask.ErrorMessage)

		require.NoError(t, runs.DeleteTask(ctx, task.ID))
		assert.ErrorIs(t, runs.DeleteTask(ctx, task.ID), domain.ErrTaskNotFound)
	})
}
