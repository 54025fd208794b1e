package logging

import "time"

type Level string

const (
	LevelDebug   Level = "debug"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Field keys attached to every entry so the experimenter streams can filter
// by subsystem.
const (
	FieldCategory = "pairlab.category"
	FieldSource   = "pairlab.source"
)

type LogEntry struct {
	Timestamp time.Time         `json:"timestamp"`
	Level     Level             `json:"level"`
	Message   string            `json:"message"`
	Context   map[string]string `json:"context,omitempty"`
}

// Type labels the entry on the log bus by level.
func (e LogEntry) Type() string {
	return string(e.Level)
}
