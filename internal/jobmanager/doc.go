// Package jobmanager provides functionality for running and managing
// long-lived, cancellable automation tasks as Jobs.
//
// A Job represents one run of an externally supplied task. Its log output
// can be streamed concurrently to multiple observers, and a stop can be
// requested at any time; cancellation is cooperative, the task observes it
// at its own checkpoints.
//
// A Manager creates and manages Jobs, identified by UUID, and gates job
// creation against a configured concurrency ceiling.
package jobmanager
