package joblog

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap/zapcore"

	"github.com/waqasshaukat/job-applicator/internal/jobmanager/logbuffer"
)

// bufferCore is a zapcore.Core that appends entries to a job's log buffer.
// Fields are rendered inline as key=value pairs because the buffer stores
// plain message lines for human observers.
type bufferCore struct {
	buf    *logbuffer.Buffer
	fields []zapcore.Field
}

func newBufferCore(buf *logbuffer.Buffer) *bufferCore {
	return &bufferCore{buf: buf}
}

func (c *bufferCore) Enabled(zapcore.Level) bool {
	return true
}

func (c *bufferCore) With(fields []zapcore.Field) zapcore.Core {
	clone := &bufferCore{buf: c.buf}
	clone.fields = append(clone.fields, c.fields...)
	clone.fields = append(clone.fields, fields...)

	return clone
}

func (c *bufferCore) Check(
	entry zapcore.Entry,
	checked *zapcore.CheckedEntry,
) *zapcore.CheckedEntry {
	if c.Enabled(entry.Level) {
		return checked.AddCore(entry, c)
	}

	return checked
}

func (c *bufferCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	message := entry.Message

	if suffix := renderFields(c.fields, fields); suffix != "" {
		message = message + " " + suffix
	}

	c.buf.Append(levelFor(entry.Level), message)

	return nil
}

func (c *bufferCore) Sync() error {
	return nil
}

// renderFields flattens accumulated and per-call fields into a stable
// "k=v k=v" string.
func renderFields(accumulated, fields []zapcore.Field) string {
	if len(accumulated)+len(fields) == 0 {
		return ""
	}

	enc := zapcore.NewMapObjectEncoder()
	for _, f := range accumulated {
		f.AddTo(enc)
	}
	for _, f := range fields {
		f.AddTo(enc)
	}

	keys := make([]string, 0, len(enc.Fields))
	for k := range enc.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf("%s=%v", k, enc.Fields[k]))
	}

	return strings.Join(pairs, " ")
}

func levelFor(level zapcore.Level) logbuffer.Level {
	switch {
	case level <= zapcore.DebugLevel:
		return logbuffer.LevelDebug
	case level == zapcore.InfoLevel:
		return logbuffer.LevelInfo
	case level == zapcore.WarnLevel:
		return logbuffer.LevelWarn
	default:
		return logbuffer.LevelError
	}
}
