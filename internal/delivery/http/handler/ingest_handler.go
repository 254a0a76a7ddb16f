package handler

import (
	"context"
	"strings"
	"sync"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"skill-sync-engine/internal/delivery/http/dto"
	"skill-sync-engine/internal/delivery/http/middleware"
	"skill-sync-engine/internal/domain/job"
	"skill-sync-engine/internal/ingest"
	"skill-sync-engine/internal/pkg/response"
)

type IngestService interface {
	IngestPostings(ctx context.Context, sourceName string, postings []job.RawPosting) (ingest.RunSummary, error)
	OpenTask(ctx context.Context, query, location string) (job.ScrapeTask, error)
	ExecuteTask(ctx context.Context, task job.ScrapeTask, sourceNames []string) (ingest.TaskSummary, error)
}

type RunQueries interface {
	Run(ctx context.Context, id uuid.UUID) (job.ScrapeRun, error)
	Logs(ctx context.Context, runID uuid.UUID) ([]job.ScrapeLog, error)
	SourceRuns(ctx context.Context, sourceID uuid.UUID, limit int) ([]job.ScrapeRun, error)
	Task(ctx context.Context, id uuid.UUID) (job.ScrapeTask, error)
	DeleteTask(ctx context.Context, id uuid.UUID, force bool) error
}

type SourceFinder interface {
	FindByName(ctx context.Context, name string) (job.Source, error)
}

// IngestHandler serves the collaborator-facing ingestion and run endpoints.
// Background tasks run under base and are tracked so shutdown can wait.
type IngestHandler struct {
	ingest         IngestService
	runs           RunQueries
	sources        SourceFinder
	defaultSources []string
	base           context.Context
	wg             sync.WaitGroup
	logger         *zap.Logger
}

func NewIngestHandler(base context.Context, svc IngestService, runs RunQueries, sources SourceFinder, defaultSources []string, logger *zap.Logger) *IngestHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IngestHandler{
		ingest:         svc,
		runs:           runs,
		sources:        sources,
		defaultSources: defaultSources,
		base:           base,
		logger:         logger.Named("ingest_http"),
	}
}

func (h *IngestHandler) RegisterRoutes(r fiber.Router) {
	r.Post("/sources/:name/postings", h.IngestPostings)
	r.Get("/sources/:name/runs", h.SourceRuns)
	r.Post("/tasks", h.CreateTask)
	r.Get("/tasks/:id", h.GetTask)
	r.Delete("/tasks/:id", h.DeleteTask)
	r.Get("/runs/:id", h.GetRun)
	r.Get("/runs/:id/logs", h.GetRunLogs)
}

// Wait blocks until background tasks started by CreateTask have finished.
func (h *IngestHandler) Wait() {
	h.wg.Wait()
}

func (h *IngestHandler) IngestPostings(c fiber.Ctx) error {
	name := strings.ToLower(strings.TrimSpace(c.Params("name")))
	var req dto.IngestPostingsRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}

	sum, err := h.ingest.IngestPostings(c.Context(), name, req.Postings)
	if err != nil {
		return err
	}
	msg := response.MessageOK
	if sum.Err != nil {
		msg = sum.Err.Error()
	}
	return response.Success(c, fiber.StatusOK, msg, sum)
}

func (h *IngestHandler) CreateTask(c fiber.Ctx) error {
	var req dto.CreateTaskRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return middleware.NewAppError(fiber.StatusBadRequest, "query is required", nil, nil)
	}
	names := req.Sources
	if len(names) == 0 {
		names = h.defaultSources
	}
	sources := make([]string, 0, len(names))
	for _, n := range names {
		if n = strings.ToLower(strings.TrimSpace(n)); n != "" {
			sources = append(sources, n)
		}
	}

	task, err := h.ingest.OpenTask(c.Context(), req.Query, req.Location)
	if err != nil {
		return err
	}

	if req.Wait {
		sum, err := h.ingest.ExecuteTask(c.Context(), task, sources)
		if err != nil {
			return err
		}
		out := dto.NewTaskResponse(sum.Task)
		out.Runs = sum.Runs
		return response.Success(c, fiber.StatusOK, response.MessageOK, out)
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		if _, err := h.ingest.ExecuteTask(h.base, task, sources); err != nil {
			h.logger.Error("scrape task failed", zap.String("task_id", task.ID.String()), zap.Error(err))
		}
	}()
	return response.Success(c, fiber.StatusAccepted, "task accepted", dto.NewTaskResponse(task))
}

func (h *IngestHandler) GetTask(c fiber.Ctx) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	task, err := h.runs.Task(c.Context(), id)
	if err != nil {
		return err
	}
	return response.Success(c, fiber.StatusOK, response.MessageOK, dto.NewTaskResponse(task))
}

func (h *IngestHandler) DeleteTask(c fiber.Ctx) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	force := strings.EqualFold(strings.TrimSpace(c.Query("force")), "true")
	if err := h.runs.DeleteTask(c.Context(), id, force); err != nil {
		return err
	}
	return response.Success(c, fiber.StatusOK, "task deleted", nil)
}

func (h *IngestHandler) GetRun(c fiber.Ctx) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	r, err := h.runs.Run(c.Context(), id)
	if err != nil {
		return err
	}
	return response.Success(c, fiber.StatusOK, response.MessageOK, dto.NewRunResponse(r))
}

func (h *IngestHandler) GetRunLogs(c fiber.Ctx) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	if _, err := h.runs.Run(c.Context(), id); err != nil {
		return err
	}
	logs, err := h.runs.Logs(c.Context(), id)
	if err != nil {
		return err
	}
	return response.Success(c, fiber.StatusOK, response.MessageOK, dto.NewLogResponses(logs))
}

func (h *IngestHandler) SourceRuns(c fiber.Ctx) error {
	limit, err := intQuery(c, "limit", 20)
	if err != nil {
		return err
	}
	src, err := h.sources.FindByName(c.Context(), strings.TrimSpace(c.Params("name")))
	if err != nil {
		return err
	}
	runs, err := h.runs.SourceRuns(c.Context(), src.ID, limit)
	if err != nil {
		return err
	}
	return response.Success(c, fiber.StatusOK, response.MessageOK, dto.NewRunResponses(runs))
}
