package routes_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"skill-sync-engine/internal/delivery/http/handler"
	"skill-sync-engine/internal/delivery/http/middleware"
	"skill-sync-engine/internal/delivery/http/routes"
	"skill-sync-engine/internal/domain"
	"skill-sync-engine/internal/domain/job"
	"skill-sync-engine/internal/domain/match"
	"skill-sync-engine/internal/domain/matching"
	"skill-sync-engine/internal/domain/skill"
	"skill-sync-engine/internal/events"
	"skill-sync-engine/internal/ingest"
	"skill-sync-engine/internal/usecase"
)

const token = "s3cret"

type semanticResponse struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type fakeMatching struct {
	users map[uuid.UUID]bool
	score matching.Result
}

func (f *fakeMatching) Score(_ context.Context, userID, _ uuid.UUID) (matching.Result, error) {
	if !f.users[userID] {
		return matching.Result{}, domain.ErrUserNotFound
	}
	return f.score, nil
}
func (f *fakeMatching) RecomputeForJob(context.Context, uuid.UUID) error {
	return domain.ErrRecomputeNoOp
}
func (f *fakeMatching) RecomputeForUser(context.Context, uuid.UUID) error { return nil }
func (f *fakeMatching) RecomputeAll(context.Context) error                { return nil }
func (f *fakeMatching) Ranked(_ context.Context, userID uuid.UUID, _ int) ([]match.RankedJob, error) {
	if !f.users[userID] {
		return nil, domain.ErrUserNotFound
	}
	return []match.RankedJob{{JobID: uuid.New(), MatchScore: decimal.RequireFromString("88.50")}}, nil
}
func (f *fakeMatching) HandleEvent(context.Context, events.Event) error { return nil }

type fakeSkills struct{}

func (fakeSkills) ListSkills(context.Context) ([]usecase.SkillItem, error) {
	return []usecase.SkillItem{{ID: uuid.New(), Name: "SQL", Category: "data"}}, nil
}

func (fakeSkills) ApplyJobSkills(_ context.Context, _ uuid.UUID, tuples []usecase.JobSkillInput) (usecase.ApplyJobSkillsResult, error) {
	res := usecase.ApplyJobSkillsResult{}
	for i, t := range tuples {
		if t.RequiredLevel != nil && *t.RequiredLevel > 5 {
			res.Rejected = append(res.Rejected, usecase.RejectedSkill{Index: i, SkillName: t.SkillName, Field: "required_level", Reason: "out of range"})
			continue
		}
		res.Accepted = append(res.Accepted, skill.JobSkill{SkillName: t.SkillName})
	}
	return res, nil
}

type fakeUserSkills struct{}

func (fakeUserSkills) SetUserSkill(_ context.Context, userID, skillID uuid.UUID, in usecase.SetUserSkillInput) (skill.UserSkill, error) {
	if in.ProficiencyLevel != nil && (*in.ProficiencyLevel < 1 || *in.ProficiencyLevel > 5) {
		return skill.UserSkill{}, usecase.ErrInvalidProficiencyLevel
	}
	return skill.UserSkill{ID: uuid.New(), UserID: userID, SkillID: skillID, ProficiencyLevel: in.ProficiencyLevel}, nil
}

func (fakeUserSkills) RemoveUserSkill(context.Context, uuid.UUID, uuid.UUID) error {
	return nil
}

type fakePipeline struct{}

func (fakePipeline) GetStatus(context.Context) (*domain.PipelineStatus, error) {
	return &domain.PipelineStatus{ActiveJobs: 3, DatabaseHealthy: true}, nil
}

type fakeIngest struct {
	mu       sync.Mutex
	executed []uuid.UUID
}

func (f *fakeIngest) IngestPostings(_ context.Context, name string, postings []job.RawPosting) (ingest.RunSummary, error) {
	if name != "indeed" {
		return ingest.RunSummary{}, domain.ErrSourceNotFound
	}
	return ingest.RunSummary{Source: name, RunID: uuid.New()}, nil
}

func (f *fakeIngest) OpenTask(_ context.Context, query, _ string) (job.ScrapeTask, error) {
	return job.ScrapeTask{ID: uuid.New(), Query: query, Status: "pending", CreatedAt: time.Now()}, nil
}

func (f *fakeIngest) ExecuteTask(_ context.Context, task job.ScrapeTask, names []string) (ingest.TaskSummary, error) {
	f.mu.Lock()
	f.executed = append(f.executed, task.ID)
	f.mu.Unlock()
	task.Status = "completed"
	runs := make([]ingest.RunSummary, 0, len(names))
	for _, n := range names {
		runs = append(runs, ingest.RunSummary{Source: n, RunID: uuid.New()})
	}
	return ingest.TaskSummary{Task: task, Runs: runs}, nil
}

func (f *fakeIngest) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.executed)
}

type fakeRuns struct {
	running uuid.UUID
}

func (f fakeRuns) Run(_ context.Context, id uuid.UUID) (job.ScrapeRun, error) {
	return job.ScrapeRun{}, domain.ErrRunNotFound
}
func (f fakeRuns) Logs(context.Context, uuid.UUID) ([]job.ScrapeLog, error) { return nil, nil }
func (f fakeRuns) SourceRuns(context.Context, uuid.UUID, int) ([]job.ScrapeRun, error) {
	return nil, nil
}
func (f fakeRuns) Task(_ context.Context, id uuid.UUID) (job.ScrapeTask, error) {
	return job.ScrapeTask{ID: id, Status: "running"}, nil
}
func (f fakeRuns) DeleteTask(_ context.Context, id uuid.UUID, force bool) error {
	if id == f.running && !force {
		return domain.ErrTaskRunning
	}
	return nil
}

type fakeSources struct{}

func (fakeSources) FindByName(context.Context, string) (job.Source, error) {
	return job.Source{}, domain.ErrSourceNotFound
}

type testServer struct {
	app     *fiber.App
	ingest  *fakeIngest
	ih      *handler.IngestHandler
	userID  uuid.UUID
	running uuid.UUID
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	s := &testServer{ingest: &fakeIngest{}, userID: uuid.New(), running: uuid.New()}

	mu := &fakeMatching{
		users: map[uuid.UUID]bool{s.userID: true},
		score: matching.Result{MatchScore: decimal.RequireFromString("71.43")},
	}
	s.ih = handler.NewIngestHandler(context.Background(), s.ingest, fakeRuns{running: s.running}, fakeSources{}, []string{"indeed", "glints"}, zap.NewNop())

	s.app = fiber.New(fiber.Config{})
	s.app.Use(middleware.NewErrorMiddleware(zap.NewNop()).Middleware())
	routes.NewRegistry(routes.Handlers{
		Health:    handler.NewHealthHandler(nil),
		Ingest:    s.ih,
		Match:     handler.NewMatchHandler(context.Background(), mu, zap.NewNop()),
		Skill:     handler.NewSkillHandler(fakeSkills{}),
		UserSkill: handler.NewUserSkillHandler(fakeUserSkills{}),
		Pipeline:  handler.NewPipelineHandler(fakePipeline{}),
	}, token).Register(s.app)
	return s
}

func (s *testServer) do(t *testing.T, method, path string, body any, internal bool) semanticResponse {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if internal {
		req.Header.Set(middleware.InternalTokenHeader, token)
	}

	resp, err := s.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var sr semanticResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sr))
	require.Equal(t, resp.StatusCode, sr.Status)
	return sr
}

func TestRoutes_InternalRequiresToken(t *testing.T) {
	s := newTestServer(t)

	sr := s.do(t, http.MethodGet, "/internal/pipeline/status", nil, false)
	assert.Equal(t, http.StatusUnauthorized, sr.Status)

	req := httptest.NewRequest(http.MethodGet, "/internal/pipeline/status", nil)
	req.Header.Set(middleware.InternalTokenHeader, "wrong")
	resp, err := s.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	sr = s.do(t, http.MethodGet, "/internal/pipeline/status", nil, true)
	assert.Equal(t, http.StatusOK, sr.Status)
	assert.Contains(t, string(sr.Data), `"active_jobs":3`)
}

func TestRoutes_EmptyTokenRejectsEverything(t *testing.T) {
	app := fiber.New(fiber.Config{})
	app.Use(middleware.NewErrorMiddleware(nil).Middleware())
	routes.NewRegistry(routes.Handlers{Pipeline: handler.NewPipelineHandler(fakePipeline{})}, "").Register(app)

	req := httptest.NewRequest(http.MethodGet, "/internal/pipeline/status", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRoutes_HealthWithoutDatabase(t *testing.T) {
	s := newTestServer(t)
	sr := s.do(t, http.MethodGet, "/health", nil, false)
	assert.Equal(t, http.StatusServiceUnavailable, sr.Status)
}

func TestRoutes_MatchesAndScore(t *testing.T) {
	s := newTestServer(t)

	sr := s.do(t, http.MethodGet, "/api/v1/users/"+s.userID.String()+"/matches?limit=5", nil, false)
	require.Equal(t, http.StatusOK, sr.Status)
	assert.Contains(t, string(sr.Data), `"match_score":"88.5"`)

	sr = s.do(t, http.MethodGet, "/api/v1/users/"+uuid.NewString()+"/matches", nil, false)
	assert.Equal(t, http.StatusNotFound, sr.Status)

	sr = s.do(t, http.MethodGet, "/api/v1/users/not-a-uuid/matches", nil, false)
	assert.Equal(t, http.StatusBadRequest, sr.Status)

	sr = s.do(t, http.MethodGet, "/api/v1/users/"+s.userID.String()+"/matches?limit=-1", nil, false)
	assert.Equal(t, http.StatusBadRequest, sr.Status)

	sr = s.do(t, http.MethodGet, "/api/v1/users/"+s.userID.String()+"/jobs/"+uuid.NewString()+"/score", nil, false)
	require.Equal(t, http.StatusOK, sr.Status)
	assert.Contains(t, string(sr.Data), `"match_score":"71.43"`)
	assert.Contains(t, string(sr.Data), `"matched_skills":[]`)
}

func TestRoutes_RecomputeTargets(t *testing.T) {
	s := newTestServer(t)

	sr := s.do(t, http.MethodPost, "/internal/matches/recompute?job_id="+uuid.NewString(), nil, true)
	assert.Equal(t, http.StatusOK, sr.Status)
	assert.Equal(t, "nothing to recompute", sr.Message)

	sr = s.do(t, http.MethodPost, "/internal/matches/recompute?user_id="+uuid.NewString(), nil, true)
	assert.Equal(t, "recomputed", sr.Message)

	sr = s.do(t, http.MethodPost, "/internal/matches/recompute?job_id=nope", nil, true)
	assert.Equal(t, http.StatusBadRequest, sr.Status)

	sr = s.do(t, http.MethodPost, "/internal/matches/recompute", nil, true)
	assert.Equal(t, http.StatusAccepted, sr.Status)
}

func TestRoutes_JobSkillIntakeReportsRejections(t *testing.T) {
	s := newTestServer(t)
	body := map[string]any{
		"source_version": 2,
		"skills": []map[string]any{
			{"skill_name": "SQL", "required_level": 3, "is_mandatory": true},
			{"skill_name": "Go", "required_level": 9},
		},
	}

	sr := s.do(t, http.MethodPut, "/internal/jobs/"+uuid.NewString()+"/skills", body, true)
	require.Equal(t, http.StatusMultiStatus, sr.Status)

	var out struct {
		Accepted int                     `json:"accepted"`
		Rejected []usecase.RejectedSkill `json:"rejected"`
	}
	require.NoError(t, json.Unmarshal(sr.Data, &out))
	assert.Equal(t, 1, out.Accepted)
	require.Len(t, out.Rejected, 1)
	assert.Equal(t, 1, out.Rejected[0].Index)
	assert.Equal(t, "required_level", out.Rejected[0].Field)
}

func TestRoutes_UserSkillEdits(t *testing.T) {
	s := newTestServer(t)
	path := "/api/v1/users/" + s.userID.String() + "/skills/" + uuid.NewString()

	sr := s.do(t, http.MethodPut, path, map[string]any{"proficiency_level": 4, "years_experience": 2}, false)
	assert.Equal(t, http.StatusOK, sr.Status)

	sr = s.do(t, http.MethodPut, path, map[string]any{"proficiency_level": 7}, false)
	assert.Equal(t, http.StatusBadRequest, sr.Status)

	sr = s.do(t, http.MethodDelete, path, nil, false)
	assert.Equal(t, http.StatusOK, sr.Status)
}

func TestRoutes_TasksAndRuns(t *testing.T) {
	s := newTestServer(t)

	sr := s.do(t, http.MethodPost, "/internal/tasks", map[string]any{"query": "  "}, true)
	assert.Equal(t, http.StatusBadRequest, sr.Status)

	sr = s.do(t, http.MethodPost, "/internal/tasks", map[string]any{"query": "golang"}, true)
	assert.Equal(t, http.StatusAccepted, sr.Status)
	s.ih.Wait()
	assert.Equal(t, 1, s.ingest.count())

	sr = s.do(t, http.MethodPost, "/internal/tasks", map[string]any{"query": "golang", "sources": []string{" Indeed "}, "wait": true}, true)
	require.Equal(t, http.StatusOK, sr.Status)
	var task struct {
		Status string              `json:"status"`
		Runs   []ingest.RunSummary `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(sr.Data, &task))
	assert.Equal(t, "completed", task.Status)
	require.Len(t, task.Runs, 1)
	assert.Equal(t, "indeed", task.Runs[0].Source)

	sr = s.do(t, http.MethodDelete, "/internal/tasks/"+s.running.String(), nil, true)
	assert.Equal(t, http.StatusConflict, sr.Status)
	sr = s.do(t, http.MethodDelete, "/internal/tasks/"+s.running.String()+"?force=true", nil, true)
	assert.Equal(t, http.StatusOK, sr.Status)

	sr = s.do(t, http.MethodGet, "/internal/runs/"+uuid.NewString(), nil, true)
	assert.Equal(t, http.StatusNotFound, sr.Status)

	sr = s.do(t, http.MethodGet, "/internal/sources/unknown/runs", nil, true)
	assert.Equal(t, http.StatusNotFound, sr.Status)

	sr = s.do(t, http.MethodPost, "/internal/sources/indeed/postings", map[string]any{"postings": []any{}}, true)
	assert.Equal(t, http.StatusOK, sr.Status)
}
