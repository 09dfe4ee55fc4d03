package reminder

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidType       = errors.New("reminder: payload type is not TODO_REMINDER")
	ErrUnknownKind       = errors.New("reminder: unknown reminder kind")
	ErrEmptyPayload      = errors.New("reminder: empty payload")
	ErrInvalidTransition = errors.New("reminder: invalid transition")
	ErrConflict          = errors.New("reminder: transition already in flight")
	ErrNotFound          = errors.New("reminder: not tracked")
	ErrInvalidDueAt      = errors.New("reminder: snooze due time must be in the future")
	ErrBackendSync       = errors.New("reminder: backend sync failed")
	ErrPersistence       = errors.New("reminder: persistence failed")
)

// NormalizationError carries the reason a payload could not be decoded
// strictly. The normalizer recovers from it with the legacy wrapper.
type NormalizationError struct {
	Wire   string
	Reason error
}

func (e *NormalizationError) Error() string {
	if e.Wire == "" {
		return fmt.Sprintf("normalize: %v", e.Reason)
	}
	return fmt.Sprintf("normalize %s: %v", e.Wire, e.Reason)
}

func (e *NormalizationError) Unwrap() error { return e.Reason }
