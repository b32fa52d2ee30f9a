package jobmanager

import "sync/atomic"

type Status int32

const (
	// StatusUnknown is the zero value for functions that return a
	// (possibly absent) Status.
	StatusUnknown Status = iota

	// StatusRunning indicates the job's task is executing. Every job
	// starts out running; it is the only non-terminal status.
	StatusRunning

	// StatusCompleted indicates the task finished without error and no
	// stop was requested.
	StatusCompleted

	// StatusFailed indicates the task returned an error (or panicked)
	// without a stop having been requested.
	StatusFailed

	// StatusTerminated indicates the task ended, successfully or not,
	// after a stop was requested. Kept distinct from StatusFailed so a
	// user-requested stop never reads as a failure.
	StatusTerminated
)

// NOTE: This slice needs to be kept in sync with any changes to the Status
// values. The strings are part of the API surface (status fields and
// terminal status events), so only ever add new ones.
var statusNames = []string{
	"unknown",
	"running",
	"completed",
	"failed",
	"terminated",
}

// String implements the Stringer interface for Status and returns the wire
// representation of the status.
func (s Status) String() string {
	if int(s) < 0 || int(s) >= len(statusNames) {
		return statusNames[0]
	}

	return statusNames[s]
}

// Terminal reports whether the status is final. Terminal statuses never
// transition again.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusTerminated:
		return true
	default:
		return false
	}
}

// AtomicStatus is a wrapper around an atomic.Int32 to provide atomic
// operations on a Status, so terminal transitions are check-and-set in a
// single step with CompareAndSwap.
type AtomicStatus struct {
	v atomic.Int32
}

// Load atomically loads the Status value.
func (a *AtomicStatus) Load() Status {
	return Status(a.v.Load())
}

// Store atomically stores the Status value.
func (a *AtomicStatus) Store(s Status) {
	a.v.Store(int32(s))
}

// CompareAndSwap performs an atomic compare-and-swap operation with an old
// and new Status.
func (a *AtomicStatus) CompareAndSwap(o, n Status) bool {
	return a.v.CompareAndSwap(int32(o), int32(n))
}
