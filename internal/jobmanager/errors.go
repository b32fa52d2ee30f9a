package jobmanager

import (
	"errors"
	"fmt"
)

var (
	ErrJobNotFound = errors.New("job not found")

	// ErrAtCapacity is returned when starting a job would exceed the
	// configured concurrency ceiling. No job record is created; the caller
	// should retry later.
	ErrAtCapacity = errors.New("maximum concurrent jobs reached")

	// ErrDuplicateJob guards the invariant that job ids are unique for the
	// life of the registry. The UUID generator makes this unreachable in
	// practice.
	ErrDuplicateJob = errors.New("job id already exists")
)

// InvalidTransitionError is returned when attempting an invalid Job status
// transition, e.g. stopping a job that already finished.
type InvalidTransitionError struct {
	from Status
	to   Status
}

func (e InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot go from %s to %s", e.from, e.to)
}

func NewInvalidTransitionError(from, to Status) InvalidTransitionError {
	return InvalidTransitionError{from, to}
}
