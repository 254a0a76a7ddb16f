package handler

import (
	"github.com/gofiber/fiber/v3"

	"skill-sync-engine/internal/delivery/http/dto"
	"skill-sync-engine/internal/pkg/response"
	"skill-sync-engine/internal/usecase"
)

type UserSkillHandler struct {
	uc usecase.UserSkillUsecase
}

func NewUserSkillHandler(uc usecase.UserSkillUsecase) *UserSkillHandler {
	return &UserSkillHandler{uc: uc}
}

func (h *UserSkillHandler) RegisterRoutes(api fiber.Router) {
	api.Put("/users/:id/skills/:skillID", h.Put)
	api.Delete("/users/:id/skills/:skillID", h.Delete)
}

func (h *UserSkillHandler) Put(c fiber.Ctx) error {
	userID, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	skillID, err := uuidParam(c, "skillID")
	if err != nil {
		return err
	}
	var req dto.PutUserSkillRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}

	saved, err := h.uc.SetUserSkill(c.Context(), userID, skillID, usecase.SetUserSkillInput{
		ProficiencyLevel: req.ProficiencyLevel,
		YearsExperience:  req.YearsExperience,
	})
	if err != nil {
		return err
	}
	return response.Success(c, fiber.StatusOK, "skill saved", dto.NewUserSkillResponse(saved))
}

func (h *UserSkillHandler) Delete(c fiber.Ctx) error {
	userID, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	skillID, err := uuidParam(c, "skillID")
	if err != nil {
		return err
	}
	if err := h.uc.RemoveUserSkill(c.Context(), userID, skillID); err != nil {
		return err
	}
	return response.Success(c, fiber.StatusOK, "skill removed", nil)
}
