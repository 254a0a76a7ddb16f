package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"

	"skill-sync-engine/internal/config"
	"skill-sync-engine/internal/delivery/http/handler"
	"skill-sync-engine/internal/delivery/http/middleware"
	"skill-sync-engine/internal/delivery/http/routes"
	"skill-sync-engine/internal/ws"
)

type App struct {
	Fiber     *fiber.App
	Container *Container
}

// Bootstrap builds the container and the HTTP app and starts the background
// machinery: websocket hub, recompute workers, event consumer and cron jobs.
// The returned cleanup stops all of it; call it after the HTTP server has
// shut down.
func Bootstrap(cfg config.Config, logger *zap.Logger) (*App, func() error, error) {
	c, err := NewContainer(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	logger = c.Logger

	base, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	ingestH := handler.NewIngestHandler(base, c.Batch, c.Tracker, c.Sources, cfg.Ingest.DefaultSources(), logger)
	matchH := handler.NewMatchHandler(base, c.Matching, logger)

	f := fiber.New(fiber.Config{AppName: cfg.App.AppName})
	registerGlobalMiddleware(f, logger)
	routes.NewRegistry(routes.Handlers{
		Health:    handler.NewHealthHandler(c.DB),
		Ingest:    ingestH,
		Match:     matchH,
		Skill:     handler.NewSkillHandler(c.Skills),
		UserSkill: handler.NewUserSkillHandler(c.UserSkill),
		Pipeline:  handler.NewPipelineHandler(c.Pipeline),
		WS:        ws.NewHandler(c.Hub, logger),
	}, cfg.App.InternalToken).Register(f)

	if strings.TrimSpace(cfg.App.InternalToken) == "" {
		logger.Warn("INTERNAL_TOKEN is empty, internal endpoints will reject every request")
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		c.Hub.Run(base)
	}()

	c.Queue.Start(base)

	wg.Add(1)
	go func() {
		defer wg.Done()
		// Consume only returns an error when the group cannot be created,
		// which happens while redis is unreachable.
		b := backoff.WithContext(backoff.NewExponentialBackOff(backoff.WithMaxElapsedTime(0), backoff.WithMaxInterval(time.Minute)), base)
		err := backoff.RetryNotify(func() error {
			return c.Stream.Consume(base, c.Matching.HandleEvent)
		}, b, func(err error, next time.Duration) {
			logger.Warn("event consumer not ready", zap.Duration("retry_in", next), zap.Error(err))
		})
		if err != nil && base.Err() == nil {
			logger.Error("event consumer stopped", zap.Error(err))
		}
	}()

	sched := NewScheduler(logger)
	if err := sched.Add(base, "run_reaper", cfg.Run.ReaperSpec, func(ctx context.Context) error {
		n, err := c.Tracker.ExpireOverdue(ctx)
		if n > 0 {
			logger.Warn("expired overdue runs", zap.Int("count", n))
		}
		return err
	}); err != nil {
		cancel()
		_ = c.Close()
		return nil, nil, err
	}
	if err := sched.Add(base, "recompute_all", cfg.Matching.RecomputeAllSpec, c.Matching.RecomputeAll); err != nil {
		cancel()
		_ = c.Close()
		return nil, nil, err
	}
	sched.Start()

	cleanup := func() error {
		sched.Stop()
		cancel()
		ingestH.Wait()
		matchH.Wait()
		c.Queue.Close()
		c.Queue.Wait()
		wg.Wait()
		return c.Close()
	}
	return &App{Fiber: f, Container: c}, cleanup, nil
}

func registerGlobalMiddleware(app *fiber.App, logger *zap.Logger) {
	if app == nil {
		return
	}

	app.Use(middleware.NewAccessLogMiddleware(logger).Middleware())
	app.Use(middleware.NewErrorMiddleware(logger).Middleware())
}

func ListenAddr(port string) (string, error) {
	p := strings.TrimSpace(port)
	if p == "" {
		return "", errors.New("empty HTTP port")
	}
	if strings.HasPrefix(p, ":") {
		return p, nil
	}
	return ":" + p, nil
}
