package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"skill-sync-engine/internal/domain"
	"skill-sync-engine/internal/domain/match"
	"skill-sync-engine/internal/domain/matching"
	"skill-sync-engine/internal/domain/skill"
	"skill-sync-engine/internal/events"
	"skill-sync-engine/internal/pipeline"
	"skill-sync-engine/internal/repository"
)

// world is an in-memory catalog, profile and score store shared by the fakes.
type world struct {
	mu         sync.Mutex
	users      map[uuid.UUID]bool
	jobs       map[uuid.UUID]bool // id -> is_active
	postedAt   map[uuid.UUID]*time.Time
	reqs       map[uuid.UUID][]matching.JobRequirement
	userSkills map[uuid.UUID][]matching.UserSkill
	matches    map[pipeline.Pair]match.JobMatch
	skills     map[uuid.UUID]skill.Skill
	jobSkills  map[uuid.UUID][]skill.JobSkill
	upserts    int
}

func newWorld() *world {
	return &world{
		users:      map[uuid.UUID]bool{},
		jobs:       map[uuid.UUID]bool{},
		postedAt:   map[uuid.UUID]*time.Time{},
		reqs:       map[uuid.UUID][]matching.JobRequirement{},
		userSkills: map[uuid.UUID][]matching.UserSkill{},
		matches:    map[pipeline.Pair]match.JobMatch{},
		skills:     map[uuid.UUID]skill.Skill{},
		jobSkills:  map[uuid.UUID][]skill.JobSkill{},
	}
}

func (w *world) addUser() uuid.UUID {
	w.mu.Lock()
	defer w.mu.Unlock()
	id := uuid.New()
	w.users[id] = true
	return id
}

func (w *world) addJob(active bool, reqs ...matching.JobRequirement) uuid.UUID {
	w.mu.Lock()
	defer w.mu.Unlock()
	id := uuid.New()
	w.jobs[id] = active
	w.reqs[id] = reqs
	return id
}

func (w *world) addSkill(name string) uuid.UUID {
	w.mu.Lock()
	defer w.mu.Unlock()
	id := uuid.New()
	w.skills[id] = skill.Skill{ID: id, Name: name}
	return id
}

func (w *world) score(userID, jobID uuid.UUID) (match.JobMatch, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	m, ok := w.matches[pipeline.Pair{UserID: userID, JobID: jobID}]
	return m, ok
}

func (w *world) matchCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.matches)
}

func sortedIDs(set map[uuid.UUID]bool, keep func(bool) bool, after uuid.UUID, limit int) []uuid.UUID {
	out := make([]uuid.UUID, 0)
	for id, v := range set {
		if keep(v) && bytes.Compare(id[:], after[:]) > 0 {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

type fakeJobQuery struct{ w *world }

func (f fakeJobQuery) ListActiveJobIDs(_ context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	return sortedIDs(f.w.jobs, func(active bool) bool { return active }, after, limit), nil
}

func (f fakeJobQuery) IsActive(_ context.Context, id uuid.UUID) (bool, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	active, ok := f.w.jobs[id]
	if !ok {
		return false, domain.ErrJobNotFound
	}
	return active, nil
}

type fakeUserQuery struct{ w *world }

func (f fakeUserQuery) ListUserIDs(_ context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	return sortedIDs(f.w.users, func(bool) bool { return true }, after, limit), nil
}

func (f fakeUserQuery) Exists(_ context.Context, id uuid.UUID) (bool, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	return f.w.users[id], nil
}

type fakeJobSkills struct{ w *world }

func (f fakeJobSkills) FindByJobID(_ context.Context, jobID uuid.UUID) ([]skill.JobSkill, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	return append([]skill.JobSkill(nil), f.w.jobSkills[jobID]...), nil
}

func (f fakeJobSkills) Requirements(_ context.Context, jobID uuid.UUID) ([]matching.JobRequirement, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	return append([]matching.JobRequirement(nil), f.w.reqs[jobID]...), nil
}

func (f fakeJobSkills) ReplaceForJob(_ context.Context, jobID uuid.UUID, reqs []skill.JobSkill, retain []uuid.UUID) error {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	if _, ok := f.w.jobs[jobID]; !ok {
		return domain.ErrJobNotFound
	}
	next := append([]skill.JobSkill(nil), reqs...)
	for _, prev := range f.w.jobSkills[jobID] {
		if slices.Contains(retain, prev.SkillID) && !slices.ContainsFunc(next, func(js skill.JobSkill) bool { return js.SkillID == prev.SkillID }) {
			next = append(next, prev)
		}
	}
	f.w.jobSkills[jobID] = next
	return nil
}

type fakeUserSkills struct {
	w       *world
	stored  map[[2]uuid.UUID]skill.UserSkill
	failErr error
}

func newFakeUserSkills(w *world) *fakeUserSkills {
	return &fakeUserSkills{w: w, stored: map[[2]uuid.UUID]skill.UserSkill{}}
}

func (f *fakeUserSkills) FindByUserID(_ context.Context, userID uuid.UUID) ([]matching.UserSkill, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	return append([]matching.UserSkill(nil), f.w.userSkills[userID]...), nil
}

func (f *fakeUserSkills) Upsert(_ context.Context, us skill.UserSkill) (skill.UserSkill, error) {
	if f.failErr != nil {
		return skill.UserSkill{}, f.failErr
	}
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	if !f.w.users[us.UserID] {
		return skill.UserSkill{}, domain.ErrUserNotFound
	}
	if _, ok := f.w.skills[us.SkillID]; !ok {
		return skill.UserSkill{}, domain.ErrSkillNotFound
	}
	key := [2]uuid.UUID{us.UserID, us.SkillID}
	if prev, ok := f.stored[key]; ok {
		us.ID = prev.ID
	} else {
		us.ID = uuid.New()
	}
	f.stored[key] = us
	return us, nil
}

func (f *fakeUserSkills) DeleteUserSkill(_ context.Context, userID, skillID uuid.UUID) error {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	key := [2]uuid.UUID{userID, skillID}
	if _, ok := f.stored[key]; !ok {
		return repository.ErrUserSkillNotFound
	}
	delete(f.stored, key)
	return nil
}

type fakeMatches struct{ w *world }

func (f fakeMatches) Upsert(_ context.Context, m match.JobMatch) error {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	m.MatchScore = m.MatchScore.Round(2)
	f.w.matches[pipeline.Pair{UserID: m.UserID, JobID: m.JobID}] = m
	f.w.upserts++
	return nil
}

func (f fakeMatches) Get(_ context.Context, userID, jobID uuid.UUID) (match.JobMatch, bool, error) {
	m, ok := f.w.score(userID, jobID)
	return m, ok, nil
}

func (f fakeMatches) Ranked(_ context.Context, userID uuid.UUID, limit int) ([]match.RankedJob, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	var rows []match.RankedJob
	for p, m := range f.w.matches {
		if p.UserID != userID || !f.w.jobs[p.JobID] {
			continue
		}
		rows = append(rows, match.RankedJob{
			JobID:      p.JobID,
			PostedAt:   f.w.postedAt[p.JobID],
			MatchScore: m.MatchScore,
			MatchedAt:  m.MatchedAt,
		})
	}
	match.Rank(rows)
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

type fakeSkills struct{ w *world }

func (f fakeSkills) GetAllSkills(_ context.Context) ([]skill.Skill, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	out := make([]skill.Skill, 0, len(f.w.skills))
	for _, s := range f.w.skills {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f fakeSkills) ResolveNames(_ context.Context, names []string) (map[string]uuid.UUID, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	out := map[string]uuid.UUID{}
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		for id, s := range f.w.skills {
			if strings.ToLower(s.Name) == n {
				out[n] = id
			}
		}
	}
	return out, nil
}

func (f fakeSkills) Exists(_ context.Context, id uuid.UUID) (bool, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	_, ok := f.w.skills[id]
	return ok, nil
}

// memCache stores JSON like the redis cache does.
type memCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	deletes int
}

func newMemCache() *memCache { return &memCache{entries: map[string][]byte{}} }

func (c *memCache) GetJSON(_ context.Context, key string, out any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.entries[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, out)
}

func (c *memCache) SetJSON(_ context.Context, key string, value any, _ time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = b
	return nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	c.deletes++
	return nil
}

func (c *memCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	return ok
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

func (p *recordingPublisher) all() []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.Event(nil), p.events...)
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }
