package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"skill-sync-engine/internal/app"
	"skill-sync-engine/internal/config"
	"skill-sync-engine/internal/logging"
)

// ingest runs one scrape task against the configured scraper service and
// prints the per-source summaries as JSON.
func main() {
	query := flag.String("query", "", "job search query")
	location := flag.String("location", "", "job location")
	sources := flag.String("sources", "", "comma separated sources (default: INGEST_DEFAULT_SOURCES)")
	flag.Parse()

	q := strings.TrimSpace(*query)
	if q == "" {
		log.Fatalf("provide -query")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger, err := logging.New(cfg.App.Environment, cfg.App.LogLevel)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	c, err := app.NewContainer(cfg, logger)
	if err != nil {
		logger.Fatal("failed to init container", zap.Error(err))
	}
	defer func() { _ = c.Close() }()

	names := cfg.Ingest.DefaultSources()
	if s := strings.TrimSpace(*sources); s != "" {
		names = config.IngestConfig{DefaultSourcesString: s}.DefaultSources()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sum, err := c.Batch.RunTask(ctx, q, strings.TrimSpace(*location), names)
	if err != nil {
		logger.Error("scrape task failed", zap.Error(err))
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(map[string]any{
		"task_id": sum.Task.ID,
		"status":  sum.Task.Status,
		"runs":    sum.Runs,
	})
	if err != nil {
		os.Exit(1)
	}
}
