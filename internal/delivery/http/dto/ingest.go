package dto

import (
	"time"

	"github.com/google/uuid"

	"skill-sync-engine/internal/domain/job"
	"skill-sync-engine/internal/ingest"
)

type IngestPostingsRequest struct {
	Postings []job.RawPosting `json:"postings"`
}

type CreateTaskRequest struct {
	Query    string   `json:"query"`
	Location string   `json:"location"`
	Sources  []string `json:"sources"`
	// Wait runs the task inside the request instead of in the background.
	Wait bool `json:"wait"`
}

type TaskResponse struct {
	ID           uuid.UUID           `json:"id"`
	Query        string              `json:"query"`
	Location     *string             `json:"location"`
	Status       string              `json:"status"`
	TotalFound   *int                `json:"total_found"`
	ErrorMessage *string             `json:"error_message"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
	Runs         []ingest.RunSummary `json:"runs,omitempty"`
}

func NewTaskResponse(t job.ScrapeTask) TaskResponse {
	return TaskResponse{
		ID:           t.ID,
		Query:        t.Query,
		Location:     t.Location,
		Status:       t.Status,
		TotalFound:   t.TotalFound,
		ErrorMessage: t.ErrorMessage,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
}

type RunResponse struct {
	ID         uuid.UUID  `json:"id"`
	SourceID   uuid.UUID  `json:"source_id"`
	Status     string     `json:"status"`
	StartedAt  *time.Time `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`
}

func NewRunResponse(r job.ScrapeRun) RunResponse {
	return RunResponse{ID: r.ID, SourceID: r.SourceID, Status: r.Status, StartedAt: r.StartedAt, FinishedAt: r.FinishedAt}
}

func NewRunResponses(runs []job.ScrapeRun) []RunResponse {
	out := make([]RunResponse, 0, len(runs))
	for _, r := range runs {
		out = append(out, NewRunResponse(r))
	}
	return out
}

type LogResponse struct {
	ID        uuid.UUID `json:"id"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

func NewLogResponses(logs []job.ScrapeLog) []LogResponse {
	out := make([]LogResponse, 0, len(logs))
	for _, l := range logs {
		out = append(out, LogResponse{ID: l.ID, Level: l.Level, Message: l.Message, CreatedAt: l.CreatedAt})
	}
	return out
}
