package jobmanager

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/waqasshaukat/job-applicator/internal/joblog"
	"github.com/waqasshaukat/job-applicator/internal/jobmanager/logbuffer"
)

// TaskFunc is the externally supplied long-running task a Job executes. The
// context carries both the cooperative cancellation signal and the ambient
// log binding; the task is expected to check ctx at its own safe points and
// unwind (closing any resources it opened) before returning.
type TaskFunc func(ctx context.Context) error

// Manager is responsible for creating and managing Jobs. It is constructed
// once at process start and injected into every transport handler.
type Manager struct {
	// NOTE: Job records (including their full log history) are kept for
	// the process lifetime so stragglers can still poll final state. The
	// map grows unbounded; bounding retention needs a policy decision
	// (TTL? max count?) that hasn't been made yet.
	jobs    map[string]*Job
	running int

	maxConcurrent int
	logger        *zap.Logger

	mu sync.Mutex
	wg sync.WaitGroup
}

// NewManager creates a Manager that allows at most maxConcurrent jobs to be
// running at any instant.
func NewManager(maxConcurrent int, logger *zap.Logger) (*Manager, error) {
	if maxConcurrent < 1 {
		return nil, fmt.Errorf("max concurrent jobs must be >= 1, got %d", maxConcurrent)
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &Manager{
		jobs:          make(map[string]*Job),
		maxConcurrent: maxConcurrent,
		logger:        logger,
	}, nil
}

// StartJob admits, creates, and starts a new Job running task. It returns
// the Job's unique ID.
//
// Admission is check-and-reserve in a single critical section: when the
// concurrency ceiling is reached it returns ErrAtCapacity and creates
// nothing.
func (m *Manager) StartJob(task TaskFunc) (string, error) {
	if task == nil {
		return "", fmt.Errorf("task cannot be nil")
	}

	id := uuid.NewString()

	m.mu.Lock()

	if m.running >= m.maxConcurrent {
		m.mu.Unlock()
		return "", ErrAtCapacity
	}

	if _, exists := m.jobs[id]; exists {
		m.mu.Unlock()
		return "", ErrDuplicateJob
	}

	job := NewJob(id)
	m.jobs[id] = job
	m.running++

	m.mu.Unlock()

	m.logger.Info("job started", zap.String("job_id", id))

	m.wg.Add(1)
	go m.runTask(job, task)

	return id, nil
}

// runTask invokes the task with the job's cancellation context and ambient
// log binding, then drives the terminal transition. Task errors and panics
// are contained here; they never escape to crash the process.
func (m *Manager) runTask(job *Job, task TaskFunc) {
	defer m.wg.Done()

	jobLogger := joblog.New(
		job.Logs(),
		m.logger.With(zap.String("job_id", job.ID())),
	)

	ctx := joblog.WithJob(job.taskCtx, jobLogger)

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("task panicked: %v", r)
			}
		}()

		return task(ctx)
	}()

	m.finalize(job, err)
}

// finalize runs exactly once per job, whatever the task's outcome. It
// appends the final log line, marks the terminal status, delivers the
// terminal event to subscribers, and releases the admission slot.
func (m *Manager) finalize(job *Job, err error) {
	var status Status

	switch {
	case job.Interrupted():
		status = StatusTerminated
	case err != nil:
		status = StatusFailed
	default:
		status = StatusCompleted
	}

	// Failed and terminated jobs always end with an explicit final line so
	// observers can tell "finished quietly" from "something went wrong" by
	// reading the stream alone.
	switch status {
	case StatusFailed:
		job.Logs().Append(logbuffer.LevelError, fmt.Sprintf("session failed: %v", err))
	case StatusTerminated:
		if err != nil {
			job.Logs().Append(logbuffer.LevelWarn, fmt.Sprintf("session terminated by request (unwound with: %v)", err))
		} else {
			job.Logs().Append(logbuffer.LevelWarn, "session terminated by request")
		}
	}

	if terr := job.markTerminal(status); terr != nil {
		m.logger.Error("mark job terminal",
			zap.String("job_id", job.ID()),
			zap.Error(terr))
	}

	job.Logs().Close(status.String())

	m.mu.Lock()
	m.running--
	m.mu.Unlock()

	// Done is closed last so anyone woken by it observes the terminal
	// status, the delivered status event, and the freed slot.
	close(job.done)

	job.cancel()

	m.logger.Info("job finished",
		zap.String("job_id", job.ID()),
		zap.Stringer("status", status))
}

// StopJob requests cancellation of the Job with the given id or returns
// ErrJobNotFound if it doesn't exist. Stopping a job that is no longer
// running returns an InvalidTransitionError.
func (m *Manager) StopJob(id string) error {
	job, err := m.GetJob(id)
	if err != nil {
		return err
	}

	return job.Stop()
}

// GetJob returns the Job with the given id or ErrJobNotFound if it doesn't
// exist.
func (m *Manager) GetJob(id string) (*Job, error) {
	m.mu.Lock()
	job, exists := m.jobs[id]
	m.mu.Unlock()

	if !exists {
		return nil, ErrJobNotFound
	}

	return job, nil
}

// AtCapacity reports whether a StartJob call would currently be rejected.
func (m *Manager) AtCapacity() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.running >= m.maxConcurrent
}

// RunningCount returns the number of jobs currently running.
func (m *Manager) RunningCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.running
}

// MaxConcurrent returns the configured concurrency ceiling.
func (m *Manager) MaxConcurrent() int {
	return m.maxConcurrent
}

// Shutdown makes a 'best effort' attempt to stop running Jobs and waits for
// their tasks to unwind, up to ctx's deadline. Cancellation stays
// cooperative: a task that ignores its context is not force-killed, and
// Shutdown returns ctx.Err() once the deadline passes.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	jobs := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, job)
	}
	m.mu.Unlock()

	for _, job := range jobs {
		if job.Status() == StatusRunning {
			// Already-finished jobs race an InvalidTransitionError here;
			// that's fine during shutdown.
			_ = job.Stop()
		}
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
