package policy

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredentials covers both unknown usernames and wrong
	// passwords. Callers must not distinguish the two.
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")

	// ErrStoreUnavailable wraps collaborator failures. Never retried here;
	// retry policy belongs to the transport shell.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// InvalidMetricError aborts an entire batch evaluation. Risk decisions must
// be complete, so a malformed metric fails closed instead of being skipped.
type InvalidMetricError struct {
	StudentID string
}

func (e *InvalidMetricError) Error() string {
	return fmt.Sprintf("invalid metrics for student %s", e.StudentID)
}
