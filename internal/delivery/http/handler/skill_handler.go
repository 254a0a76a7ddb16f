package handler

import (
	"github.com/gofiber/fiber/v3"

	"skill-sync-engine/internal/delivery/http/dto"
	"skill-sync-engine/internal/pkg/response"
	"skill-sync-engine/internal/usecase"
)

type SkillHandler struct {
	uc usecase.SkillUsecase
}

func NewSkillHandler(uc usecase.SkillUsecase) *SkillHandler {
	return &SkillHandler{uc: uc}
}

func (h *SkillHandler) RegisterRoutes(api fiber.Router) {
	api.Get("/skills", h.List)
}

func (h *SkillHandler) RegisterInternalRoutes(internal fiber.Router) {
	internal.Put("/jobs/:id/skills", h.PutJobSkills)
}

func (h *SkillHandler) List(c fiber.Ctx) error {
	items, err := h.uc.ListSkills(c.Context())
	if err != nil {
		return err
	}
	return response.Success(c, fiber.StatusOK, response.MessageOK, items)
}

// PutJobSkills replaces a job's requirement set. Tuples that violate a
// constraint are listed under rejected; the rest are stored.
func (h *SkillHandler) PutJobSkills(c fiber.Ctx) error {
	jobID, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	var req dto.PutJobSkillsRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}

	res, err := h.uc.ApplyJobSkills(c.Context(), jobID, req.Inputs())
	if err != nil {
		return err
	}

	status := fiber.StatusOK
	msg := response.MessageOK
	if len(res.Rejected) > 0 {
		status = fiber.StatusMultiStatus
		msg = response.MessageMultiStatus
	}
	return response.Success(c, status, msg, dto.PutJobSkillsResponse{
		JobID:    jobID,
		Accepted: len(res.Accepted),
		Rejected: res.Rejected,
	})
}
