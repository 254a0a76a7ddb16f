package job

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Source struct {
	ID        uuid.UUID
	Name      string
	BaseURL   *string
	CreatedAt time.Time
}

type Job struct {
	ID             uuid.UUID
	SourceID       uuid.UUID
	ExternalJobID  *string
	URL            *string
	SourceURL      *string
	Source         *string
	Title          *string
	Company        *string
	Location       *string
	EmploymentType *string
	Description    *string
	RawDescription *string
	IsActive       bool
	PostedAt       *time.Time
	ScrapedAt      *time.Time
	CreatedAt      time.Time
}

// Content returns the fields covered by the content hash.
func (j Job) Content() Content {
	return Content{
		Title:          deref(j.Title),
		Company:        deref(j.Company),
		Description:    deref(j.Description),
		Location:       deref(j.Location),
		EmploymentType: deref(j.EmploymentType),
	}
}

// Content is the mutable part of a posting. Two observations of the same
// posting are "unchanged" when their Content hashes match.
type Content struct {
	Title          string
	Company        string
	Description    string
	Location       string
	EmploymentType string
}

// RawPosting is one record as delivered by a scraper collaborator.
type RawPosting struct {
	ExternalJobID  string     `json:"external_job_id"`
	URL            string     `json:"url"`
	SourceURL      string     `json:"source_url"`
	Title          string     `json:"title"`
	Company        string     `json:"company"`
	Location       string     `json:"location"`
	EmploymentType string     `json:"employment_type"`
	Description    string     `json:"description"`
	RawDescription string     `json:"raw_description"`
	PostedAt       *time.Time `json:"posted_at"`
}

// Normalize trims every text field.
func (p RawPosting) Normalize() RawPosting {
	p.ExternalJobID = strings.TrimSpace(p.ExternalJobID)
	p.URL = strings.TrimSpace(p.URL)
	p.SourceURL = strings.TrimSpace(p.SourceURL)
	p.Title = strings.TrimSpace(p.Title)
	p.Company = strings.TrimSpace(p.Company)
	p.Location = strings.TrimSpace(p.Location)
	p.EmploymentType = strings.TrimSpace(p.EmploymentType)
	p.Description = strings.TrimSpace(p.Description)
	p.RawDescription = strings.TrimSpace(p.RawDescription)
	return p
}

func (p RawPosting) Content() Content {
	return Content{
		Title:          p.Title,
		Company:        p.Company,
		Description:    p.Description,
		Location:       p.Location,
		EmploymentType: p.EmploymentType,
	}
}

// DedupKey identifies one canonical posting within a source. ExternalID wins
// over URL when both are known.
type DedupKey struct {
	SourceID   uuid.UUID
	ExternalID string
	URL        string
}

func (k DedupKey) String() string {
	if k.ExternalID != "" {
		return k.SourceID.String() + "|ext|" + k.ExternalID
	}
	return k.SourceID.String() + "|url|" + k.URL
}

// ByExternalID reports which unique constraint the key resolves against.
func (k DedupKey) ByExternalID() bool {
	return k.ExternalID != ""
}

// Outcome is the result of ingesting a single posting.
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeUpdated   Outcome = "updated"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeRejected  Outcome = "rejected"
)

// ChangeKind is carried on JobChanged events.
type ChangeKind string

const (
	ChangeCreated       ChangeKind = "created"
	ChangeUpdated       ChangeKind = "updated"
	ChangeReactivated   ChangeKind = "reactivated"
	ChangeDeactivated   ChangeKind = "deactivated"
	ChangeSkillsChanged ChangeKind = "skills_changed"
)

type ScrapeRun struct {
	ID         uuid.UUID
	SourceID   uuid.UUID
	StartedAt  *time.Time
	FinishedAt *time.Time
	Status     string
}

type ScrapeTask struct {
	ID           uuid.UUID
	Query        string
	Location     *string
	Status       string
	TotalFound   *int
	ErrorMessage *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

const (
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

type ScrapeLog struct {
	ID          uuid.UUID
	ScrapeRunID uuid.UUID
	Level       string
	Message     string
	CreatedAt   time.Time
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
