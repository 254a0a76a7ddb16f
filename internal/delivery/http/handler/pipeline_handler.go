package handler

import (
	"github.com/gofiber/fiber/v3"

	"skill-sync-engine/internal/pkg/response"
	"skill-sync-engine/internal/usecase"
)

type PipelineHandler struct {
	uc usecase.PipelineUsecase
}

func NewPipelineHandler(uc usecase.PipelineUsecase) *PipelineHandler {
	return &PipelineHandler{uc: uc}
}

func (h *PipelineHandler) RegisterRoutes(internal fiber.Router) {
	internal.Get("/pipeline/status", h.GetStatus)
}

func (h *PipelineHandler) GetStatus(c fiber.Ctx) error {
	status, err := h.uc.GetStatus(c.Context())
	if err != nil {
		return err
	}
	return response.Success(c, fiber.StatusOK, response.MessageOK, status)
}
