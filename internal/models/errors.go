package models

import "errors"

// Error variables shared across modules for better error handling and
// testability. Dialog and action failures are recoverable and resolved by the
// caller; NotInitialized and DimensionMismatch signal caller bugs and fail
// fast.
var (
	ErrEmptyIntent         = errors.New("intent cannot be empty")
	ErrNoRequiredSlots     = errors.New("template requires at least one required slot")
	ErrInvalidMaxTurns     = errors.New("template max turns must be positive")
	ErrMissingSlotQuestion = errors.New("required slot has no question")

	ErrUnknownIntent  = errors.New("no dialog template registered for intent")
	ErrNoActiveDialog = errors.New("no active dialog for user")

	ErrNotInitialized    = errors.New("service not initialized")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrInvalidImport     = errors.New("invalid import data format")

	ErrInvalidAction = errors.New("invalid action: type and payload are required")

	ErrEmptyMessage  = errors.New("message text cannot be empty")
	ErrRemoteFailure = errors.New("remote backend request failed")
	ErrNotHandled    = errors.New("query not handled by retrieval stage")
)
