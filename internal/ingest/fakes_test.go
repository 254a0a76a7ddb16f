package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"skill-sync-engine/internal/domain"
	"skill-sync-engine/internal/domain/job"
	"skill-sync-engine/internal/events"
)

type memCatalog struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]job.Job

	// createConflicts makes the next n Create calls fail as if a concurrent
	// writer inserted the row first. beforeConflict runs ahead of each.
	createConflicts int
	beforeConflict  func(c *memCatalog)
	creates         int
}

func newMemCatalog() *memCatalog {
	return &memCatalog{jobs: make(map[uuid.UUID]job.Job)}
}

func (c *memCatalog) FindByKey(_ context.Context, key job.DedupKey) (job.Job, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if key.ExternalID != "" {
		for _, j := range c.jobs {
			if j.SourceID == key.SourceID && j.ExternalJobID != nil && *j.ExternalJobID == key.ExternalID {
				return j, true, nil
			}
		}
	}
	if key.URL != "" {
		for _, j := range c.jobs {
			if j.SourceID == key.SourceID && j.URL != nil && *j.URL == key.URL {
				return j, true, nil
			}
		}
	}
	return job.Job{}, false, nil
}

func (c *memCatalog) Create(_ context.Context, j job.Job) (uuid.UUID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.creates++
	if c.createConflicts > 0 {
		c.createConflicts--
		if c.beforeConflict != nil {
			c.beforeConflict(c)
		}
		return uuid.Nil, domain.ErrDuplicateKey
	}
	for _, o := range c.jobs {
		if o.SourceID != j.SourceID {
			continue
		}
		if sameText(o.ExternalJobID, j.ExternalJobID) || sameText(o.URL, j.URL) {
			return uuid.Nil, domain.ErrDuplicateKey
		}
	}
	j.ID = uuid.New()
	c.jobs[j.ID] = j
	return j.ID, nil
}

func (c *memCatalog) UpdateContent(_ context.Context, j job.Job, prev *time.Time) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur, ok := c.jobs[j.ID]
	if !ok || !sameTime(cur.ScrapedAt, prev) {
		return false, nil
	}
	j.IsActive = true
	c.jobs[j.ID] = j
	return true, nil
}

func (c *memCatalog) Touch(_ context.Context, id uuid.UUID, prev *time.Time, at time.Time) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur, ok := c.jobs[id]
	if !ok || !sameTime(cur.ScrapedAt, prev) {
		return false, nil
	}
	cur.ScrapedAt = &at
	cur.IsActive = true
	c.jobs[id] = cur
	return true, nil
}

func (c *memCatalog) DeactivateUnseen(_ context.Context, sourceID uuid.UUID, since time.Time) ([]uuid.UUID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var ids []uuid.UUID
	for id, j := range c.jobs {
		if j.SourceID == sourceID && j.IsActive && (j.ScrapedAt == nil || j.ScrapedAt.Before(since)) {
			j.IsActive = false
			c.jobs[id] = j
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (c *memCatalog) byExternalID(sourceID uuid.UUID, ext string) (job.Job, bool) {
	j, ok, _ := c.FindByKey(context.Background(), job.DedupKey{SourceID: sourceID, ExternalID: ext})
	return j, ok
}

func (c *memCatalog) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.jobs)
}

func sameText(a, b *string) bool {
	return a != nil && b != nil && *a == *b
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) changes(kind job.ChangeKind) []uuid.UUID {
	p.mu.Lock()
	defer p.mu.Unlock()
	var ids []uuid.UUID
	for _, e := range p.events {
		if e.Change == kind {
			ids = append(ids, e.JobID)
		}
	}
	return ids
}

// stepClock advances by one millisecond on every reading.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

type staticSources map[string]job.Source

func (s staticSources) FindByName(_ context.Context, name string) (job.Source, error) {
	src, ok := s[name]
	if !ok {
		return job.Source{}, domain.ErrSourceNotFound
	}
	return src, nil
}

type fetchFn func(ctx context.Context, source string, q Query) ([]job.RawPosting, error)

func (f fetchFn) Fetch(ctx context.Context, source string, q Query) ([]job.RawPosting, error) {
	return f(ctx, source, q)
}
