package logging

import (
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Writer is an io.Writer that intercepts zerolog JSON output, writes it to
// the console and hands build events (those carrying a package or run id)
// to a sink.
type Writer struct {
	sink    Sink
	console io.Writer
}

// NewWriter creates a new zerolog writer. A nil out disables console output;
// format "console" pretty-prints, anything else writes the raw JSON.
func NewWriter(sink Sink, out io.Writer, format string) *Writer {
	var console io.Writer
	if out != nil {
		if format == "console" {
			console = zerolog.ConsoleWriter{
				Out:        out,
				TimeFormat: time.Kitchen,
			}
		} else {
			console = out
		}
	}

	return &Writer{
		sink:    sink,
		console: console,
	}
}

// Write implements io.Writer.
func (w *Writer) Write(p []byte) (n int, err error) {
	n = len(p)

	if w.console != nil {
		// console errors never fail logging
		_, _ = w.console.Write(p)
	}

	if w.sink == nil {
		return n, nil
	}

	event, parseErr := parseZerologJSON(p)
	if parseErr != nil || (event.Package == "" && event.RunID == "") {
		return n, nil
	}

	w.sink.Log(event)

	return n, nil
}

// parseZerologJSON parses zerolog JSON output into an Event.
func parseZerologJSON(p []byte) (*Event, error) {
	var raw map[string]any
	if err := json.Unmarshal(p, &raw); err != nil {
		return nil, err
	}

	event := &Event{
		Level:     LevelInfo,
		Timestamp: time.Now(),
		Fields:    make(map[string]any),
	}

	if level, ok := raw["level"].(string); ok {
		event.Level = parseLogLevel(level)
		delete(raw, "level")
	}

	if msg, ok := raw["message"].(string); ok {
		event.Message = msg
		delete(raw, "message")
	} else if msg, ok := raw["msg"].(string); ok {
		event.Message = msg
		delete(raw, "msg")
	}

	if ts, ok := raw["time"].(string); ok {
		if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
			event.Timestamp = parsed
		}
		delete(raw, "time")
	}

	if component, ok := raw["component"].(string); ok {
		event.Component = component
		delete(raw, "component")
	}
	if pkg, ok := raw["package"].(string); ok {
		event.Package = pkg
		delete(raw, "package")
	}
	if runID, ok := raw["run_id"].(string); ok {
		event.RunID = runID
		delete(raw, "run_id")
	}

	if errMsg, ok := raw["error"].(string); ok {
		event.Error = errMsg
		delete(raw, "error")
		if event.Level == LevelInfo {
			event.Level = LevelError
		}
	}

	for k, v := range raw {
		event.Fields[k] = v
	}
	if len(event.Fields) == 0 {
		event.Fields = nil
	}

	return event, nil
}

// parseLogLevel converts a zerolog level string to Level.
func parseLogLevel(level string) Level {
	switch strings.ToLower(level) {
	case "trace":
		return LevelTrace
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	case "fatal":
		return LevelFatal
	case "panic":
		return LevelPanic
	default:
		return LevelInfo
	}
}
