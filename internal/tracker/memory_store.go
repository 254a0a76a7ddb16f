package tracker

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"skill-sync-engine/internal/domain"
	"skill-sync-engine/internal/domain/job"
	"skill-sync-engine/internal/domain/run"
)

// MemoryStore is an in-process Store for tests and local dry runs.
type MemoryStore struct {
	mu    sync.Mutex
	runs  map[uuid.UUID]job.ScrapeRun
	logs  map[uuid.UUID][]job.ScrapeLog
	tasks map[uuid.UUID]job.ScrapeTask
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs:  make(map[uuid.UUID]job.ScrapeRun),
		logs:  make(map[uuid.UUID][]job.ScrapeLog),
		tasks: make(map[uuid.UUID]job.ScrapeTask),
	}
}

func (m *MemoryStore) CreateRun(_ context.Context, r job.ScrapeRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[r.ID] = r
	return nil
}

func (m *MemoryStore) GetRun(_ context.Context, id uuid.UUID) (job.ScrapeRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return job.ScrapeRun{}, domain.ErrRunNotFound
	}
	return r, nil
}

func (m *MemoryStore) TransitionRun(_ context.Context, id uuid.UUID, from, to run.Status, startedAt, finishedAt *time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok || r.Status != string(from) {
		return false, nil
	}
	r.Status = string(to)
	if startedAt != nil && r.StartedAt == nil {
		r.StartedAt = startedAt
	}
	if finishedAt != nil {
		r.FinishedAt = finishedAt
	}
	m.runs[id] = r
	return true, nil
}

func (m *MemoryStore) ListRunsBySource(_ context.Context, sourceID uuid.UUID, limit int) ([]job.ScrapeRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []job.ScrapeRun
	for _, r := range m.runs {
		if r.SourceID == sourceID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return timeOrZero(out[i].StartedAt).After(timeOrZero(out[j].StartedAt))
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) ListRunningStartedBefore(_ context.Context, before time.Time) ([]job.ScrapeRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []job.ScrapeRun
	for _, r := range m.runs {
		if r.Status == string(run.StatusRunning) && r.StartedAt != nil && r.StartedAt.Before(before) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *MemoryStore) AppendLog(_ context.Context, l job.ScrapeLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[l.ScrapeRunID]; !ok {
		return domain.ErrRunNotFound
	}
	m.logs[l.ScrapeRunID] = append(m.logs[l.ScrapeRunID], l)
	return nil
}

func (m *MemoryStore) ListLogs(_ context.Context, runID uuid.UUID) ([]job.ScrapeLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]job.ScrapeLog(nil), m.logs[runID]...), nil
}

func (m *MemoryStore) CreateTask(_ context.Context, t job.ScrapeTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[t.ID] = t
	return nil
}

func (m *MemoryStore) GetTask(_ context.Context, id uuid.UUID) (job.ScrapeTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return job.ScrapeTask{}, domain.ErrTaskNotFound
	}
	return t, nil
}

func (m *MemoryStore) TransitionTask(_ context.Context, id uuid.UUID, from, to run.Status, totalFound *int, errorMessage *string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok || t.Status != string(from) {
		return false, nil
	}
	t.Status = string(to)
	if totalFound != nil {
		t.TotalFound = totalFound
	}
	if errorMessage != nil {
		t.ErrorMessage = errorMessage
	}
	t.UpdatedAt = at
	m.tasks[id] = t
	return true, nil
}

func (m *MemoryStore) DeleteTask(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[id]; !ok {
		return domain.ErrTaskNotFound
	}
	delete(m.tasks, id)
	return nil
}

func timeOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
