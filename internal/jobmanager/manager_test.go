package jobmanager_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/waqasshaukat/job-applicator/internal/joblog"
	"github.com/waqasshaukat/job-applicator/internal/jobmanager"
	"github.com/waqasshaukat/job-applicator/internal/jobmanager/logbuffer"
)

func newTestManager(t *testing.T, maxConcurrent int) *jobmanager.Manager {
	t.Helper()

	m, err := jobmanager.NewManager(maxConcurrent, zap.NewNop())
	if err != nil {
		t.Fatalf("expected not to receive error: got '%v'", err)
	}

	return m
}

// blockingTask runs until release is closed or the job is cancelled.
func blockingTask(release <-chan struct{}) jobmanager.TaskFunc {
	return func(ctx context.Context) error {
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func waitTerminal(t *testing.T, m *jobmanager.Manager, id string) jobmanager.Status {
	t.Helper()

	job, err := m.GetJob(id)
	if err != nil {
		t.Fatalf("expected not to receive error: got '%v'", err)
	}

	select {
	case <-job.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("expected job '%s' to finish", id)
	}

	return job.Status()
}

func jobMessages(t *testing.T, m *jobmanager.Manager, id string) []string {
	t.Helper()

	job, err := m.GetJob(id)
	if err != nil {
		t.Fatalf("expected not to receive error: got '%v'", err)
	}

	lines, _, _ := job.Logs().LinesAfter(0)

	messages := make([]string, len(lines))
	for i, line := range lines {
		messages[i] = line.Message
	}

	return messages
}

func TestNewManager(t *testing.T) {
	t.Parallel()

	if _, err := jobmanager.NewManager(0, nil); err == nil {
		t.Error("expected error for non-positive concurrency ceiling")
	}

	if _, err := jobmanager.NewManager(1, nil); err != nil {
		t.Errorf("expected not to receive error: got '%v'", err)
	}
}

func TestAdmissionBound(t *testing.T) {
	t.Parallel()

	const (
		maxConcurrent = 3
		starts        = 4
	)

	m := newTestManager(t, maxConcurrent)

	release := make(chan struct{})

	results := make(chan error, starts)

	var wg sync.WaitGroup
	for i := 0; i < starts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.StartJob(blockingTask(release))
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var admitted, rejected int
	for err := range results {
		switch {
		case err == nil:
			admitted++
		case errors.Is(err, jobmanager.ErrAtCapacity):
			rejected++
		default:
			t.Errorf("expected nil or ErrAtCapacity: got '%v'", err)
		}
	}

	if admitted != maxConcurrent {
		t.Errorf("expected admitted: got '%d', want '%d'", admitted, maxConcurrent)
	}

	if rejected != starts-maxConcurrent {
		t.Errorf("expected rejected: got '%d', want '%d'", rejected, starts-maxConcurrent)
	}

	if got := m.RunningCount(); got != maxConcurrent {
		t.Errorf("expected running count: got '%d', want '%d'", got, maxConcurrent)
	}

	if !m.AtCapacity() {
		t.Error("expected manager to report at capacity")
	}

	close(release)
}

func TestJobIDUniqueness(t *testing.T) {
	t.Parallel()

	const jobs = 50

	m := newTestManager(t, jobs)

	seen := make(map[string]struct{}, jobs)

	for i := 0; i < jobs; i++ {
		id, err := m.StartJob(func(ctx context.Context) error { return nil })
		if err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		if _, exists := seen[id]; exists {
			t.Errorf("expected unique job id: got duplicate '%s'", id)
		}

		seen[id] = struct{}{}
	}
}

func TestTerminalDistinction(t *testing.T) {
	t.Parallel()

	t.Run("Task returns nil without stop", func(t *testing.T) {
		t.Parallel()

		m := newTestManager(t, 1)

		id, err := m.StartJob(func(ctx context.Context) error { return nil })
		if err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		if got := waitTerminal(t, m, id); got != jobmanager.StatusCompleted {
			t.Errorf("expected status: got '%s', want 'completed'", got)
		}
	})

	t.Run("Task errors without stop", func(t *testing.T) {
		t.Parallel()

		m := newTestManager(t, 1)

		id, err := m.StartJob(func(ctx context.Context) error {
			return errors.New("selector went stale")
		})
		if err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		if got := waitTerminal(t, m, id); got != jobmanager.StatusFailed {
			t.Errorf("expected status: got '%s', want 'failed'", got)
		}

		messages := jobMessages(t, m, id)
		if len(messages) == 0 {
			t.Fatal("expected a final log line for the failed job")
		}

		last := messages[len(messages)-1]
		if !strings.Contains(last, "session failed") ||
			!strings.Contains(last, "selector went stale") {
			t.Errorf("expected failure log line: got '%s'", last)
		}
	})

	t.Run("Task errors after stop was requested", func(t *testing.T) {
		t.Parallel()

		m := newTestManager(t, 1)

		id, err := m.StartJob(blockingTask(nil))
		if err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		if err := m.StopJob(id); err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		if got := waitTerminal(t, m, id); got != jobmanager.StatusTerminated {
			t.Errorf("expected status: got '%s', want 'terminated'", got)
		}

		messages := jobMessages(t, m, id)
		if len(messages) < 2 {
			t.Fatalf("expected stop announcement and final line: got '%v'", messages)
		}

		if !strings.Contains(messages[0], "stop requested") {
			t.Errorf("expected stop announcement: got '%s'", messages[0])
		}

		last := messages[len(messages)-1]
		if !strings.Contains(last, "terminated by request") {
			t.Errorf("expected termination log line: got '%s'", last)
		}
	})

	t.Run("Task returns nil after stop was requested", func(t *testing.T) {
		t.Parallel()

		m := newTestManager(t, 1)

		stopped := make(chan struct{})

		id, err := m.StartJob(func(ctx context.Context) error {
			<-stopped
			return nil
		})
		if err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		if err := m.StopJob(id); err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}
		close(stopped)

		if got := waitTerminal(t, m, id); got != jobmanager.StatusTerminated {
			t.Errorf("expected status: got '%s', want 'terminated'", got)
		}
	})

	t.Run("Task panic is contained as failure", func(t *testing.T) {
		t.Parallel()

		m := newTestManager(t, 1)

		id, err := m.StartJob(func(ctx context.Context) error {
			panic("nil dereference in scraper")
		})
		if err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		if got := waitTerminal(t, m, id); got != jobmanager.StatusFailed {
			t.Errorf("expected status: got '%s', want 'failed'", got)
		}

		messages := jobMessages(t, m, id)
		if len(messages) == 0 ||
			!strings.Contains(messages[len(messages)-1], "task panicked") {
			t.Errorf("expected panic log line: got '%v'", messages)
		}
	})
}

func TestCapacityRelease(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, 1)

	release := make(chan struct{})

	id, err := m.StartJob(blockingTask(release))
	if err != nil {
		t.Fatalf("expected not to receive error: got '%v'", err)
	}

	if _, err := m.StartJob(blockingTask(nil)); !errors.Is(err, jobmanager.ErrAtCapacity) {
		t.Fatalf("expected ErrAtCapacity: got '%v'", err)
	}

	close(release)
	waitTerminal(t, m, id)

	if got := m.RunningCount(); got != 0 {
		t.Errorf("expected running count: got '%d', want '0'", got)
	}

	retry := make(chan struct{})
	defer close(retry)

	if _, err := m.StartJob(blockingTask(retry)); err != nil {
		t.Errorf("expected retry to be admitted: got '%v'", err)
	}
}

func TestStopJob(t *testing.T) {
	t.Parallel()

	t.Run("Stop non-existent job", func(t *testing.T) {
		t.Parallel()

		m := newTestManager(t, 1)

		if err := m.StopJob("13e87299-c344-4e4d-8f0d-3b0e48cbcb3f"); !errors.Is(err, jobmanager.ErrJobNotFound) {
			t.Errorf("expected ErrJobNotFound: got '%v'", err)
		}
	})

	t.Run("Stop a finished job returns conflict", func(t *testing.T) {
		t.Parallel()

		m := newTestManager(t, 1)

		id, err := m.StartJob(func(ctx context.Context) error { return nil })
		if err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		if got := waitTerminal(t, m, id); got != jobmanager.StatusCompleted {
			t.Fatalf("expected status: got '%s', want 'completed'", got)
		}

		err = m.StopJob(id)
		if !errors.As(err, new(jobmanager.InvalidTransitionError)) {
			t.Errorf("expected InvalidTransitionError: got '%v'", err)
		}

		// Terminal statuses are final.
		job, _ := m.GetJob(id)
		if got := job.Status(); got != jobmanager.StatusCompleted {
			t.Errorf("expected status to remain: got '%s', want 'completed'", got)
		}
	})

	t.Run("Second stop while running is idempotent", func(t *testing.T) {
		t.Parallel()

		m := newTestManager(t, 1)

		started := make(chan struct{})
		release := make(chan struct{})

		id, err := m.StartJob(func(ctx context.Context) error {
			close(started)
			<-release
			return ctx.Err()
		})
		if err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}
		<-started

		if err := m.StopJob(id); err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		if err := m.StopJob(id); err != nil {
			t.Errorf("expected second stop to succeed: got '%v'", err)
		}

		var announcements int
		for _, message := range jobMessages(t, m, id) {
			if strings.Contains(message, "stop requested") {
				announcements++
			}
		}

		if announcements != 1 {
			t.Errorf("expected one stop announcement: got '%d'", announcements)
		}

		close(release)
		waitTerminal(t, m, id)
	})
}

func TestGetJob(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, 1)

	if _, err := m.GetJob("unknown"); !errors.Is(err, jobmanager.ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound: got '%v'", err)
	}

	id, err := m.StartJob(func(ctx context.Context) error { return nil })
	if err != nil {
		t.Fatalf("expected not to receive error: got '%v'", err)
	}

	job, err := m.GetJob(id)
	if err != nil {
		t.Fatalf("expected not to receive error: got '%v'", err)
	}

	if job.ID() != id {
		t.Errorf("expected job id: got '%s', want '%s'", job.ID(), id)
	}

	waitTerminal(t, m, id)

	// Records outlive terminal transition so stragglers can still poll.
	if _, err := m.GetJob(id); err != nil {
		t.Errorf("expected finished job to remain retrievable: got '%v'", err)
	}
}

func TestAmbientLogRouting(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, 2)

	tasks := 2
	ids := make([]string, tasks)

	for i := 0; i < tasks; i++ {
		marker := fmt.Sprintf("task %d reporting", i)

		id, err := m.StartJob(func(ctx context.Context) error {
			joblog.FromContext(ctx).Info(marker)
			return nil
		})
		if err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		ids[i] = id
	}

	for i, id := range ids {
		waitTerminal(t, m, id)

		messages := jobMessages(t, m, id)
		want := fmt.Sprintf("task %d reporting", i)

		var found bool
		for _, message := range messages {
			if message == want {
				found = true
			}

			if other := fmt.Sprintf("task %d reporting", 1-i); message == other {
				t.Errorf("expected no cross-job leakage: job '%s' got '%s'", id, message)
			}
		}

		if !found {
			t.Errorf("expected '%s' in job '%s' logs: got '%v'", want, id, messages)
		}
	}
}

func TestStatusEventOrdering(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, 1)

	id, err := m.StartJob(func(ctx context.Context) error {
		joblog.FromContext(ctx).Info("working")
		return errors.New("gave up")
	})
	if err != nil {
		t.Fatalf("expected not to receive error: got '%v'", err)
	}

	job, err := m.GetJob(id)
	if err != nil {
		t.Fatalf("expected not to receive error: got '%v'", err)
	}

	sub := job.Logs().Subscribe()
	defer sub.Close()

	var sawStatus bool
	for {
		event, err := sub.Next()
		if err != nil {
			break
		}

		switch event.Kind {
		case logbuffer.EventLog:
			if sawStatus {
				t.Error("expected no log line after the terminal status event")
			}
		case logbuffer.EventStatus:
			sawStatus = true

			if event.Status != jobmanager.StatusFailed.String() {
				t.Errorf("expected status event: got '%s', want 'failed'", event.Status)
			}
		}
	}

	if !sawStatus {
		t.Error("expected a terminal status event")
	}
}

func TestShutdown(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, 3)

	ids := make([]string, 3)
	for i := range ids {
		id, err := m.StartJob(blockingTask(nil))
		if err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		ids[i] = id
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := m.Shutdown(ctx); err != nil {
		t.Fatalf("expected not to receive error: got '%v'", err)
	}

	for _, id := range ids {
		job, err := m.GetJob(id)
		if err != nil {
			t.Fatalf("expected not to receive error: got '%v'", err)
		}

		if got := job.Status(); got != jobmanager.StatusTerminated {
			t.Errorf("expected status: got '%s', want 'terminated'", got)
		}
	}
}
