package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("version conflict")
	ErrInvalidPatch      = errors.New("field is not patchable")
	ErrValidation        = errors.New("validation failed")
	ErrDeliveryTerminal  = errors.New("delivery terminally failed")
	ErrRetryLimitReached = errors.New("delivery retry limit reached")

	// ErrEntityNotEmpty is a validation error: hard-deleting an entity that
	// still contains children would orphan their edges.
	ErrEntityNotEmpty = fmt.Errorf("entity is not empty: %w", ErrValidation)
)
