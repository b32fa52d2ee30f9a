// Package logbuffer provides per-job storage and concurrent fan-out of log
// lines. Lines are append-only; multiple subscribers can attach to a Buffer
// and each receives the complete history followed by live lines and a final
// status event.
package logbuffer

import (
	"strings"
	"sync"
	"time"
)

// Level is the severity of a log line.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Line is one stored log entry.
type Line struct {
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// Buffer stores an ordered, append-only sequence of log lines for one job
// and notifies blocked subscribers when new lines arrive or the buffer is
// closed with a terminal status.
type Buffer struct {
	// NOTE: lines grows without an upper bound for the lifetime of the
	// process. The working assumption is 'everything will fit in memory'.
	// If that stops holding, trimming is only permitted from the oldest
	// end, since poll offsets are absolute indexes into this slice.
	lines  []Line
	status string

	mu   sync.Mutex
	cond *sync.Cond
}

// New creates an empty Buffer.
func New() *Buffer {
	b := &Buffer{}
	b.cond = sync.NewCond(&b.mu)

	return b
}

// Append splits message on line breaks, trims trailing whitespace from each
// line, drops empty lines, and appends the remainder as entries with the
// given level. Subscribers blocked waiting for data are woken synchronously.
//
// Appends after Close are discarded; the terminal status event is always
// the last thing a subscriber observes.
func (b *Buffer) Append(level Level, message string) {
	now := time.Now()

	var lines []Line
	for _, line := range strings.Split(message, "\n") {
		line = strings.TrimRight(line, " \t\r")
		if line == "" {
			continue
		}

		lines = append(lines, Line{Level: level, Message: line, Time: now})
	}

	if len(lines) == 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.status != "" {
		return
	}

	b.lines = append(b.lines, lines...)

	b.cond.Broadcast()
}

// Close records the terminal status and wakes all subscribers. Only the
// first call has any effect.
func (b *Buffer) Close(status string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.status != "" {
		return
	}

	b.status = status

	b.cond.Broadcast()
}

// LinesAfter returns every line from offset onward, the new total line
// count to resume from, and the terminal status ("" while the buffer is
// still open). Out-of-range offsets are clamped.
func (b *Buffer) LinesAfter(offset int) ([]Line, int, string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if offset < 0 {
		offset = 0
	}

	if offset > len(b.lines) {
		offset = len(b.lines)
	}

	lines := make([]Line, len(b.lines)-offset)
	copy(lines, b.lines[offset:])

	return lines, len(b.lines), b.status
}

// Len returns the number of stored lines.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.lines)
}

// Subscribe attaches a new subscriber positioned at the start of the
// buffer. The returned Subscription replays the full history before
// delivering live lines; attach and replay are atomic with respect to
// concurrent appends because the cursor only advances under the buffer
// lock.
func (b *Buffer) Subscribe() *Subscription {
	return &Subscription{buf: b}
}
