package events

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"skill-sync-engine/internal/domain/job"
)

type Type string

const (
	TypeJobChanged     Type = "job_changed"
	TypeProfileChanged Type = "profile_changed"
)

// Event is a recompute trigger. JobChanged carries JobID and Change,
// ProfileChanged carries UserID.
type Event struct {
	ID     string
	Type   Type
	JobID  uuid.UUID
	UserID uuid.UUID
	Change job.ChangeKind
	At     time.Time
}

func JobChanged(jobID uuid.UUID, change job.ChangeKind) Event {
	return Event{Type: TypeJobChanged, JobID: jobID, Change: change, At: time.Now().UTC()}
}

func ProfileChanged(userID uuid.UUID) Event {
	return Event{Type: TypeProfileChanged, UserID: userID, At: time.Now().UTC()}
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

type Handler func(ctx context.Context, e Event) error

// Values encodes e as stream entry fields.
func (e Event) Values() map[string]any {
	v := map[string]any{
		"type": string(e.Type),
		"at":   e.At.UTC().Format(time.RFC3339Nano),
	}
	switch e.Type {
	case TypeJobChanged:
		v["job_id"] = e.JobID.String()
		v["change"] = string(e.Change)
	case TypeProfileChanged:
		v["user_id"] = e.UserID.String()
	}
	return v
}

// Decode parses stream entry fields back into an Event.
func Decode(id string, values map[string]any) (Event, error) {
	get := func(k string) string {
		s, _ := values[k].(string)
		return s
	}

	e := Event{ID: id, Type: Type(get("type"))}
	if at := get("at"); at != "" {
		t, err := time.Parse(time.RFC3339Nano, at)
		if err != nil {
			return Event{}, fmt.Errorf("event %s: bad at: %w", id, err)
		}
		e.At = t
	}

	var err error
	switch e.Type {
	case TypeJobChanged:
		if e.JobID, err = uuid.Parse(get("job_id")); err != nil {
			return Event{}, fmt.Errorf("event %s: bad job_id: %w", id, err)
		}
		e.Change = job.ChangeKind(get("change"))
	case TypeProfileChanged:
		if e.UserID, err = uuid.Parse(get("user_id")); err != nil {
			return Event{}, fmt.Errorf("event %s: bad user_id: %w", id, err)
		}
	default:
		return Event{}, fmt.Errorf("event %s: unknown type %q", id, e.Type)
	}
	return e, nil
}

// Nop discards events. Used when no stream is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
