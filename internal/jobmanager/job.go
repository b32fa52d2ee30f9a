package jobmanager

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/waqasshaukat/job-applicator/internal/jobmanager/logbuffer"
)

// Job represents one run of an externally supplied task. It owns the job's
// log buffer, its cooperative cancellation, and its status transitions.
type Job struct {
	id          string
	status      AtomicStatus
	interrupted atomic.Bool
	createdAt   time.Time

	buf *logbuffer.Buffer

	taskCtx context.Context
	cancel  context.CancelFunc

	done chan struct{}
}

// NewJob creates a new running Job with the given id, an empty log buffer,
// and a fresh cancellation context for the task.
func NewJob(id string) *Job {
	ctx, cancel := context.WithCancel(context.Background())

	j := &Job{
		id:        id,
		createdAt: time.Now(),
		buf:       logbuffer.New(),
		taskCtx:   ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	j.status.Store(StatusRunning)

	return j
}

// Stop requests cooperative cancellation of the Job's task. It cancels the
// task's context and appends a log line announcing the request; the status
// only changes once the task actually unwinds and the Manager finalizes the
// Job. Trying to stop a Job that is not running returns an
// InvalidTransitionError.
//
// There is no enforced timeout: a task that never observes its context
// stays running until it finishes naturally.
func (j *Job) Stop() error {
	if s := j.status.Load(); s != StatusRunning {
		return NewInvalidTransitionError(s, StatusTerminated)
	}

	if j.interrupted.CompareAndSwap(false, true) {
		j.buf.Append(logbuffer.LevelWarn, "stop requested, waiting for the session to unwind")
	}

	j.cancel()

	return nil
}

// markTerminal transitions the Job from running to the given terminal
// status. Exactly one transition ever succeeds.
func (j *Job) markTerminal(s Status) error {
	if !j.status.CompareAndSwap(StatusRunning, s) {
		return NewInvalidTransitionError(j.status.Load(), s)
	}

	return nil
}

// ID returns the ID of the Job.
func (j *Job) ID() string {
	return j.id
}

// Status returns the status of the Job.
func (j *Job) Status() Status {
	return j.status.Load()
}

// Interrupted returns whether a stop was requested for the Job.
func (j *Job) Interrupted() bool {
	return j.interrupted.Load()
}

// CreatedAt returns when the Job was created.
func (j *Job) CreatedAt() time.Time {
	return j.createdAt
}

// Logs returns the Job's log buffer for subscribing or polling.
func (j *Job) Logs() *logbuffer.Buffer {
	return j.buf
}

// Done returns a channel that is closed when the Job has reached a terminal
// status.
func (j *Job) Done() <-chan struct{} {
	return j.done
}
