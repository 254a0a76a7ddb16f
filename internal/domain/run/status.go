// Package run defines the lifecycle of a scrape run.
//
//	pending ──► running ──► succeeded
//	   │           ├──────► partial
//	   │           └──────► failed
//	   └──────────────────► failed
//
// succeeded, partial and failed are terminal.
package run

import (
	"fmt"

	"skill-sync-engine/internal/domain"
)

// Status values are stored verbatim in scrape_runs.status and scrape_tasks.status.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusPartial   Status = "partial"
	StatusFailed    Status = "failed"
)

var validTransitions = map[Status][]Status{
	StatusPending: {StatusRunning, StatusFailed},
	StatusRunning: {StatusSucceeded, StatusPartial, StatusFailed},
}

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	switch st {
	case StatusPending, StatusRunning, StatusSucceeded, StatusPartial, StatusFailed:
		return st, nil
	}
	return "", fmt.Errorf("unknown run status %q", s)
}

// CanTransition reports whether from → to is an edge of the lifecycle graph.
func CanTransition(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition validates the edge and returns domain.ErrInvalidTransition otherwise.
func Transition(from, to Status) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, from, to)
	}
	return nil
}

func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusPartial || s == StatusFailed
}

// CarriesError reports whether error_message may be set for the status.
func (s Status) CarriesError() bool {
	return s == StatusFailed || s == StatusPartial
}

// Tally counts per-posting outcomes of a run.
type Tally struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Rejected  int `json:"rejected"`
	Errored   int `json:"errored"`
}

func (t Tally) Succeeded() int { return t.Created + t.Updated + t.Unchanged }
func (t Tally) Failed() int    { return t.Rejected + t.Errored }
func (t Tally) Observed() int  { return t.Succeeded() + t.Failed() }

// Resolve picks the terminal status of a run that finished ingesting.
func (t Tally) Resolve() Status {
	switch {
	case t.Failed() == 0:
		return StatusSucceeded
	case t.Succeeded() > 0:
		return StatusPartial
	default:
		return StatusFailed
	}
}

// Aggregate resolves a task status from the terminal statuses of its runs.
func Aggregate(statuses []Status) Status {
	if len(statuses) == 0 {
		return StatusSucceeded
	}
	failed, succeeded := 0, 0
	for _, s := range statuses {
		switch s {
		case StatusFailed:
			failed++
		case StatusSucceeded:
			succeeded++
		}
	}
	switch {
	case succeeded == len(statuses):
		return StatusSucceeded
	case failed == len(statuses):
		return StatusFailed
	default:
		return StatusPartial
	}
}
