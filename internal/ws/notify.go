package ws

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"skill-sync-engine/internal/domain/job"
)

const RunStatusEventType = "run_status"

type RunStatusEvent struct {
	Type       string     `json:"type"`
	RunID      uuid.UUID  `json:"run_id"`
	SourceID   uuid.UUID  `json:"source_id"`
	Status     string     `json:"status"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Timestamp  string     `json:"timestamp"`
}

// RunChanged broadcasts a persisted run status change to subscribers.
func (h *Hub) RunChanged(r job.ScrapeRun) {
	if h == nil {
		return
	}
	b, err := json.Marshal(RunStatusEvent{
		Type:       RunStatusEventType,
		RunID:      r.ID,
		SourceID:   r.SourceID,
		Status:     r.Status,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		h.logger.Warn("encode run status failed", zap.Error(err))
		return
	}
	h.Broadcast(b)
}
