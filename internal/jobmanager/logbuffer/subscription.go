package logbuffer

import (
	"errors"
	"io"
)

// ErrSubscriptionClosed is returned by Next after Close has detached the
// subscriber.
var ErrSubscriptionClosed = errors.New("subscription closed")

// EventKind discriminates the payloads delivered to a subscriber.
type EventKind int

const (
	// EventLog carries one log line.
	EventLog EventKind = iota

	// EventStatus carries the job's terminal status. It is delivered
	// exactly once, after every log line.
	EventStatus
)

// Event is one delivery to a subscriber.
type Event struct {
	Kind   EventKind
	Line   Line   // set when Kind is EventLog
	Status string // set when Kind is EventStatus
}

// Subscription reads events from a Buffer, internally tracking its position
// so that history is replayed in order before live lines. Safe for
// concurrent use, though events are typically consumed by one goroutine
// while another calls Close on disconnect.
type Subscription struct {
	buf        *Buffer
	cursor     int
	statusSent bool
	closed     bool
}

// Next blocks until an event is available. After the terminal status event
// has been delivered it returns io.EOF; after Close it returns
// ErrSubscriptionClosed.
func (s *Subscription) Next() (Event, error) {
	b := s.buf

	b.mu.Lock()
	defer b.mu.Unlock()

	for {
		if s.closed {
			return Event{}, ErrSubscriptionClosed
		}

		if s.cursor < len(b.lines) {
			line := b.lines[s.cursor]
			s.cursor++

			return Event{Kind: EventLog, Line: line}, nil
		}

		if b.status != "" {
			if s.statusSent {
				return Event{}, io.EOF
			}

			s.statusSent = true

			return Event{Kind: EventStatus, Status: b.status}, nil
		}

		// Broadcast fires on append, buffer close, and subscription close.
		b.cond.Wait()
	}
}

// Close detaches the subscriber and unblocks any waiting Next call. Safe to
// call multiple times and from a different goroutine than the reader.
func (s *Subscription) Close() error {
	s.buf.mu.Lock()
	defer s.buf.mu.Unlock()

	s.closed = true

	s.buf.cond.Broadcast()

	return nil
}
