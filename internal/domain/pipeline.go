package domain

import (
	"time"

	"github.com/google/uuid"
)

// SourceHealth summarises a source by its most recent scrape run.
type SourceHealth struct {
	Source         string     `json:"source"`
	ActiveJobs     int        `json:"active_jobs"`
	LastRunID      *uuid.UUID `json:"last_run_id"`
	LastRunStatus  *string    `json:"last_run_status"`
	LastStartedAt  *time.Time `json:"last_started_at"`
	LastFinishedAt *time.Time `json:"last_finished_at"`
	LastRunErrors  int        `json:"last_run_errors"`
}

type PipelineStatus struct {
	ActiveJobs       int            `json:"active_jobs"`
	JobsToday        int            `json:"jobs_today"`
	Matches          int            `json:"matches"`
	Sources          []SourceHealth `json:"sources"`
	RecomputePending int            `json:"recompute_pending"`
	DatabaseHealthy  bool           `json:"database_healthy"`
	RedisHealthy     bool           `json:"redis_healthy"`
	ServerTime       time.Time      `json:"server_time"`
}
