package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrRecomputeNoOp     = errors.New("recompute target no longer exists")
	ErrRunClosed         = errors.New("scrape run is closed")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrRunNotFound       = errors.New("scrape run not found")
	ErrTaskNotFound      = errors.New("scrape task not found")
	ErrTaskRunning       = errors.New("scrape task is running")
	ErrJobNotFound       = errors.New("job not found")
	ErrUserNotFound      = errors.New("user not found")
	ErrSkillNotFound     = errors.New("skill not found")
	ErrSourceNotFound    = errors.New("job source not found")
	ErrDuplicateKey      = errors.New("duplicate key")
)

// MissingIdentityError rejects a posting that has neither an external id nor a url.
type MissingIdentityError struct {
	Title string
}

func (e *MissingIdentityError) Error() string {
	if e.Title == "" {
		return "posting has neither external_job_id nor url"
	}
	return fmt.Sprintf("posting %q has neither external_job_id nor url", e.Title)
}

// DedupConflictError reports a concurrent write against the same dedup key.
type DedupConflictError struct {
	Key string
	Err error
}

func (e *DedupConflictError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("dedup conflict on %s", e.Key)
	}
	return fmt.Sprintf("dedup conflict on %s: %v", e.Key, e.Err)
}

func (e *DedupConflictError) Unwrap() error { return e.Err }

// ConstraintViolation rejects one skill tuple with an out-of-range field.
type ConstraintViolation struct {
	Field string
	Value any
	Rule  string
}

func (e *ConstraintViolation) Error() string {
	return fmt.Sprintf("%s=%v violates %s", e.Field, e.Value, e.Rule)
}

// RunTimeoutError fails a run that outlived its deadline.
type RunTimeoutError struct {
	Deadline time.Time
}

func (e *RunTimeoutError) Error() string {
	return "scrape run exceeded deadline " + e.Deadline.UTC().Format(time.RFC3339)
}

func IsMissingIdentity(err error) bool {
	var target *MissingIdentityError
	return errors.As(err, &target)
}

func IsDedupConflict(err error) bool {
	var target *DedupConflictError
	return errors.As(err, &target)
}

func IsConstraintViolation(err error) bool {
	var target *ConstraintViolation
	return errors.As(err, &target)
}

func IsRunTimeout(err error) bool {
	var target *RunTimeoutError
	return errors.As(err, &target)
}
