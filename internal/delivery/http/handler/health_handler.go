package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v3"

	"skill-sync-engine/internal/pkg/response"
	"skill-sync-engine/internal/usecase"
)

type HealthHandler struct {
	db usecase.Pinger
}

func NewHealthHandler(db usecase.Pinger) *HealthHandler {
	return &HealthHandler{db: db}
}

func (h *HealthHandler) RegisterRoutes(r fiber.Router) {
	r.Get("/health", h.Health)
}

// Health answers 200 when the database answers a ping, 503 otherwise.
func (h *HealthHandler) Health(c fiber.Ctx) error {
	if h.db == nil {
		return response.Error(c, fiber.StatusServiceUnavailable, "database not configured", nil)
	}
	ctx, cancel := context.WithTimeout(c.Context(), 2*time.Second)
	defer cancel()
	if err := h.db.Ping(ctx); err != nil {
		return response.Error(c, fiber.StatusServiceUnavailable, "database unavailable", nil)
	}
	return response.Success(c, fiber.StatusOK, response.MessageOK, fiber.Map{"database": "up"})
}
