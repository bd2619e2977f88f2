// Package logging tees the process log stream into a per-run build log.
package logging

import "time"

// Level is the severity of an Event.
type Level string

const (
	LevelTrace Level = "trace"
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
	LevelFatal Level = "fatal"
	LevelPanic Level = "panic"
)

// Event is one build log record.
type Event struct {
	Timestamp time.Time      `json:"time"`
	Level     Level          `json:"level"`
	Message   string         `json:"message"`
	Component string         `json:"component,omitempty"`
	Package   string         `json:"package,omitempty"`
	RunID     string         `json:"run_id,omitempty"`
	Error     string         `json:"error,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Sink receives parsed events.
type Sink interface {
	Log(event *Event)
}
