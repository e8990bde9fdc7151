package observability

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// EventType categorizes a structured log event.
type EventType string

const (
	EventTypePlan       EventType = "plan"
	EventTypeDecision   EventType = "decision"
	EventTypeToolCall   EventType = "tool_call"
	EventTypeToolResult EventType = "tool_result"
	EventTypeSource     EventType = "source"
	EventTypeReport     EventType = "report"
	EventTypeRender     EventType = "render"
	EventTypeVerify     EventType = "verify"
	EventTypeStatus     EventType = "status"
	EventTypePolicy     EventType = "policy"
)

// Event is one structured log entry.
type Event struct {
	Type      EventType `json:"type"`
	RunID     string    `json:"run_id,omitempty"`
	Iteration int       `json:"iteration,omitempty"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Logger appends JSONL events to a size-capped file. It is quiet about
// its own failures: observability must never take the run down.
type Logger struct {
	path    string
	maxSize int64
}

func NewLogger() *Logger {
	return &Logger{
		path:    filepath.Join("logs", "agent.jsonl"),
		maxSize: 10 * 1024 * 1024,
	}
}

// NewLoggerAt writes events under the given path instead of the
// default logs directory.
func NewLoggerAt(path string) *Logger {
	return &Logger{path: path, maxSize: 10 * 1024 * 1024}
}

// Log emits one event. A nil Logger drops everything, so callers can
// treat logging as optional.
func (l *Logger) Log(evt Event) {
	if l == nil {
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	l.writeLine(data)
}

func (l *Logger) writeLine(data []byte) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return
	}

	if info, err := os.Stat(l.path); err == nil && info.Size() > l.maxSize {
		l.rotate()
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	defer f.Close()
	f.Write(append(data, '\n'))
}

// rotate keeps a single .old generation.
func (l *Logger) rotate() {
	oldPath := l.path + ".old"
	_ = os.Remove(oldPath)
	_ = os.Rename(l.path, oldPath)
}

// Helpers for the loop's common events.

func (l *Logger) LogDecision(runID string, iteration int, tool, reason string) {
	l.Log(Event{
		Type:      EventTypeDecision,
		RunID:     runID,
		Iteration: iteration,
		Data:      map[string]string{"tool": tool, "reason": reason},
	})
}

func (l *Logger) LogToolCall(runID string, iteration int, tool, input string) {
	l.Log(Event{
		Type:      EventTypeToolCall,
		RunID:     runID,
		Iteration: iteration,
		Data:      map[string]string{"tool": tool, "input": input},
	})
}

func (l *Logger) LogToolResult(runID string, iteration int, tool string, ok bool, observation string) {
	l.Log(Event{
		Type:      EventTypeToolResult,
		RunID:     runID,
		Iteration: iteration,
		Data: map[string]any{
			"tool":        tool,
			"ok":          ok,
			"observation": observation,
		},
	})
}

func (l *Logger) LogVerify(runID string, passed bool, failedRules []string) {
	l.Log(Event{
		Type:  EventTypeVerify,
		RunID: runID,
		Data: map[string]any{
			"passed":       passed,
			"failed_rules": failedRules,
		},
	})
}

func (l *Logger) LogStatus(runID, status string) {
	l.Log(Event{
		Type:  EventTypeStatus,
		RunID: runID,
		Data:  map[string]string{"status": status},
	})
}
