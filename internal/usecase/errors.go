package usecase

import "errors"

var (
	ErrInvalidInput            = errors.New("invalid input")
	ErrInvalidProficiencyLevel = errors.New("proficiency level must be within [1,5]")
	ErrInvalidYears            = errors.New("years of experience must not be negative")
	ErrQueueNotAttached        = errors.New("recompute queue not attached")
)
