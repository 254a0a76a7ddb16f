package routes

import (
	"github.com/gofiber/fiber/v3"

	"skill-sync-engine/internal/delivery/http/handler"
	"skill-sync-engine/internal/delivery/http/middleware"
	"skill-sync-engine/internal/ws"
)

// Handlers groups everything the router mounts. Nil handlers are skipped.
type Handlers struct {
	Health    *handler.HealthHandler
	Ingest    *handler.IngestHandler
	Match     *handler.MatchHandler
	Skill     *handler.SkillHandler
	UserSkill *handler.UserSkillHandler
	Pipeline  *handler.PipelineHandler
	WS        *ws.Handler
}

type Registry struct {
	h             Handlers
	internalToken string
}

func NewRegistry(h Handlers, internalToken string) *Registry {
	return &Registry{h: h, internalToken: internalToken}
}

func (r *Registry) Register(app *fiber.App) {
	if app == nil {
		return
	}

	r.registerHealth(app)
	r.registerAPI(app)
	r.registerInternal(app)
	if r.h.WS != nil {
		r.h.WS.RegisterRoutes(app)
	}
}

func (r *Registry) registerHealth(app *fiber.App) {
	if r.h.Health != nil {
		r.h.Health.RegisterRoutes(app)
	}
}

func (r *Registry) registerAPI(app *fiber.App) {
	v1 := app.Group("/api").Group("/v1")
	if r.h.Skill != nil {
		r.h.Skill.RegisterRoutes(v1)
	}
	if r.h.UserSkill != nil {
		r.h.UserSkill.RegisterRoutes(v1)
	}
	if r.h.Match != nil {
		r.h.Match.RegisterRoutes(v1)
	}
}

// registerInternal mounts the collaborator endpoints behind the shared token.
func (r *Registry) registerInternal(app *fiber.App) {
	internal := app.Group("/internal", middleware.NewInternalTokenMiddleware(r.internalToken).Middleware())
	if r.h.Ingest != nil {
		r.h.Ingest.RegisterRoutes(internal)
	}
	if r.h.Skill != nil {
		r.h.Skill.RegisterInternalRoutes(internal)
	}
	if r.h.Match != nil {
		r.h.Match.RegisterInternalRoutes(internal)
	}
	if r.h.Pipeline != nil {
		r.h.Pipeline.RegisterRoutes(internal)
	}
}
