package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrAlreadyExists       = errors.New("already exists")
	ErrAllocationExpired   = errors.New("capital allocation expired")
	ErrPositionNotOpen     = errors.New("position is not open")
	ErrInvalidOpportunity  = errors.New("invalid opportunity")
	ErrUnknownVenue        = errors.New("unknown venue")
	ErrExecutionInProgress = errors.New("execution already in progress")
	ErrContextDone         = errors.New("context cancelled")
)
