package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// BuildLogFileName is the JSON-lines build log written into the output directory.
const BuildLogFileName = "build-log.jsonl"

// BuildLog appends build events to a JSON-lines file. It implements Sink.
type BuildLog struct {
	path    string
	batcher *Batcher

	mu   sync.Mutex
	file *os.File
}

// OpenBuildLog opens (appending) the build log in dir.
func OpenBuildLog(dir string) (*BuildLog, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", dir, err)
	}
	path := filepath.Join(dir, BuildLogFileName)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open build log: %w", err)
	}

	bl := &BuildLog{path: path, file: file}
	bl.batcher = NewBatcher(100, 500*time.Millisecond, 0, bl.write)
	return bl, nil
}

// Path returns the log file path.
func (bl *BuildLog) Path() string {
	return bl.path
}

// Dropped returns the number of events lost because the writer fell behind.
func (bl *BuildLog) Dropped() int64 {
	return bl.batcher.Dropped()
}

// Log implements Sink.
func (bl *BuildLog) Log(event *Event) {
	bl.batcher.Add(event)
}

// Flush writes buffered events to disk.
func (bl *BuildLog) Flush(ctx context.Context) error {
	return bl.batcher.Flush(ctx)
}

// Close flushes and closes the log file.
func (bl *BuildLog) Close(ctx context.Context) error {
	if err := bl.batcher.Close(ctx); err != nil {
		return err
	}
	bl.mu.Lock()
	defer bl.mu.Unlock()
	if bl.file == nil {
		return nil
	}
	err := bl.file.Close()
	bl.file = nil
	return err
}

func (bl *BuildLog) write(ctx context.Context, events []*Event) error {
	bl.mu.Lock()
	defer bl.mu.Unlock()
	if bl.file == nil {
		return os.ErrClosed
	}

	enc := json.NewEncoder(bl.file)
	for _, event := range events {
		if err := enc.Encode(event); err != nil {
			return fmt.Errorf("failed to write build log: %w", err)
		}
	}
	return nil
}

// ReadBuildLog reads every event of the build log in dir.
func ReadBuildLog(dir string) ([]Event, error) {
	data, err := os.ReadFile(filepath.Join(dir, BuildLogFileName))
	if err != nil {
		return nil, err
	}

	var events []Event
	dec := json.NewDecoder(bytes.NewReader(data))
	for dec.More() {
		var event Event
		if err := dec.Decode(&event); err != nil {
			return events, fmt.Errorf("failed to decode build log: %w", err)
		}
		events = append(events, event)
	}
	return events, nil
}

var levelRank = map[Level]int{
	LevelTrace: 0,
	LevelDebug: 1,
	LevelInfo:  2,
	LevelWarn:  3,
	LevelError: 4,
	LevelFatal: 5,
	LevelPanic: 6,
}

// EventFilter selects build log events. Zero fields match everything.
type EventFilter struct {
	Package  string
	RunID    string
	MinLevel Level
}

// Match reports whether event passes the filter.
func (f EventFilter) Match(event Event) bool {
	if f.Package != "" && event.Package != f.Package {
		return false
	}
	if f.RunID != "" && event.RunID != f.RunID {
		return false
	}
	if f.MinLevel != "" && levelRank[event.Level] < levelRank[f.MinLevel] {
		return false
	}
	return true
}

// Filter returns the events matching f, in log order.
func Filter(events []Event, f EventFilter) []Event {
	var matched []Event
	for _, event := range events {
		if f.Match(event) {
			matched = append(matched, event)
		}
	}
	return matched
}

// LastRunID returns the run id of the most recent event carrying one.
func LastRunID(events []Event) string {
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].RunID != "" {
			return events[i].RunID
		}
	}
	return ""
}
