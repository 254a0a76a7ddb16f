package handler

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"skill-sync-engine/internal/delivery/http/dto"
	"skill-sync-engine/internal/delivery/http/middleware"
	"skill-sync-engine/internal/domain"
	"skill-sync-engine/internal/pkg/response"
	"skill-sync-engine/internal/usecase"
)

type MatchHandler struct {
	uc     usecase.MatchingUsecase
	base   context.Context
	wg     sync.WaitGroup
	logger *zap.Logger
}

func NewMatchHandler(base context.Context, uc usecase.MatchingUsecase, logger *zap.Logger) *MatchHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MatchHandler{uc: uc, base: base, logger: logger.Named("match_http")}
}

func (h *MatchHandler) RegisterRoutes(api fiber.Router) {
	api.Get("/users/:id/matches", h.Ranked)
	api.Get("/users/:id/jobs/:jobID/score", h.Score)
}

func (h *MatchHandler) RegisterInternalRoutes(internal fiber.Router) {
	internal.Post("/matches/recompute", h.Recompute)
}

func (h *MatchHandler) Wait() {
	h.wg.Wait()
}

func (h *MatchHandler) Ranked(c fiber.Ctx) error {
	userID, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	limit, err := intQuery(c, "limit", 0)
	if err != nil {
		return err
	}
	items, err := h.uc.Ranked(c.Context(), userID, limit)
	if err != nil {
		return err
	}
	return response.Success(c, fiber.StatusOK, response.MessageOK, dto.RankedResponse{UserID: userID, Items: items})
}

func (h *MatchHandler) Score(c fiber.Ctx) error {
	userID, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	jobID, err := uuidParam(c, "jobID")
	if err != nil {
		return err
	}
	res, err := h.uc.Score(c.Context(), userID, jobID)
	if err != nil {
		return err
	}
	return response.Success(c, fiber.StatusOK, response.MessageOK, dto.NewScoreResponse(userID, jobID, res))
}

// Recompute rebuilds one job's or one user's scores in the request when
// job_id or user_id is given, and everything in the background otherwise.
func (h *MatchHandler) Recompute(c fiber.Ctx) error {
	jobRaw := strings.TrimSpace(c.Query("job_id"))
	userRaw := strings.TrimSpace(c.Query("user_id"))

	var err error
	switch {
	case jobRaw != "":
		id, perr := uuid.Parse(jobRaw)
		if perr != nil {
			return middleware.NewAppError(fiber.StatusBadRequest, "invalid job_id", nil, perr)
		}
		err = h.uc.RecomputeForJob(c.Context(), id)
	case userRaw != "":
		id, perr := uuid.Parse(userRaw)
		if perr != nil {
			return middleware.NewAppError(fiber.StatusBadRequest, "invalid user_id", nil, perr)
		}
		err = h.uc.RecomputeForUser(c.Context(), id)
	default:
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			if err := h.uc.RecomputeAll(h.base); err != nil {
				h.logger.Error("recompute all failed", zap.Error(err))
			}
		}()
		return response.Success(c, fiber.StatusAccepted, "recompute scheduled", nil)
	}

	if errors.Is(err, domain.ErrRecomputeNoOp) {
		return response.Success(c, fiber.StatusOK, "nothing to recompute", nil)
	}
	if err != nil {
		return err
	}
	return response.Success(c, fiber.StatusOK, "recomputed", nil)
}
