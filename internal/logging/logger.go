package logging

import (
	"io"
	"maps"
	"slices"
	"strconv"
	"sync"
	"time"
)

const DefaultBufferSize = 1000

// sink is shared by a logger and every logger derived from it.
type sink struct {
	mu     sync.Mutex
	out    io.Writer
	buffer *LogBuffer
	hub    *LogHub
}

func (s *sink) write(entry LogEntry) {
	s.buffer.Add(entry)
	s.hub.Broadcast(entry)
	if s.out == nil {
		return
	}
	line := appendEntry(make([]byte, 0, 128), entry)
	s.mu.Lock()
	_, _ = s.out.Write(line)
	s.mu.Unlock()
}

// Logger writes logfmt lines, keeps recent entries in a LogBuffer and fans
// them out to live subscribers. A nil *Logger discards everything.
type Logger struct {
	sink   *sink
	min    Level
	fields map[string]string
}

func NewLoggerWithOutput(buffer *LogBuffer, minLevel Level, output io.Writer) *Logger {
	if buffer == nil {
		buffer = NewLogBuffer(DefaultBufferSize)
	}
	if !minLevel.known() {
		minLevel = LevelInfo
	}
	return &Logger{
		sink: &sink{
			out:    output,
			buffer: buffer,
			hub:    NewLogHub(),
		},
		min: minLevel,
	}
}

// Discard returns a logger that records nothing anywhere.
func Discard() *Logger {
	return NewLoggerWithOutput(NewLogBuffer(1), LevelError, io.Discard)
}

func (l *Logger) Buffer() *LogBuffer {
	if l == nil {
		return nil
	}
	return l.sink.buffer
}

func (l *Logger) Subscribe() (<-chan LogEntry, func()) {
	if l == nil {
		return nil, func() {}
	}
	return l.sink.hub.Subscribe()
}

func (l *Logger) With(fields map[string]string) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{sink: l.sink, min: l.min, fields: mergeFields(l.fields, fields)}
}

// Category scopes the logger to one backend subsystem.
func (l *Logger) Category(name string) *Logger {
	return l.With(map[string]string{
		FieldCategory: name,
		FieldSource:   "backend",
	})
}

func (l *Logger) Debug(message string, fields map[string]string) {
	l.emit(LevelDebug, message, fields)
}

func (l *Logger) Info(message string, fields map[string]string) {
	l.emit(LevelInfo, message, fields)
}

func (l *Logger) Warn(message string, fields map[string]string) {
	l.emit(LevelWarning, message, fields)
}

func (l *Logger) Error(message string, fields map[string]string) {
	l.emit(LevelError, message, fields)
}

func (l *Logger) Enabled(level Level) bool {
	return l != nil && LevelAtLeast(level, l.min)
}

func (l *Logger) emit(level Level, message string, fields map[string]string) {
	if !l.Enabled(level) {
		return
	}
	l.sink.write(LogEntry{
		Timestamp: time.Now().UTC(),
		Level:     level,
		Message:   message,
		Context:   mergeFields(l.fields, fields),
	})
}

func mergeFields(base, extra map[string]string) map[string]string {
	if len(base) == 0 && len(extra) == 0 {
		return nil
	}
	merged := maps.Clone(base)
	if merged == nil {
		merged = make(map[string]string, len(extra))
	}
	maps.Copy(merged, extra)
	return merged
}

// appendEntry renders time, level and msg first, then context keys sorted.
func appendEntry(dst []byte, entry LogEntry) []byte {
	dst = append(dst, "time="...)
	dst = entry.Timestamp.AppendFormat(dst, time.RFC3339Nano)
	dst = append(dst, " level="...)
	dst = append(dst, string(entry.Level)...)
	dst = append(dst, " msg="...)
	dst = strconv.AppendQuote(dst, entry.Message)
	for _, key := range slices.Sorted(maps.Keys(entry.Context)) {
		dst = append(dst, ' ')
		dst = append(dst, key...)
		dst = append(dst, '=')
		dst = strconv.AppendQuote(dst, entry.Context[key])
	}
	return append(dst, '\n')
}
