package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"papermill/internal/layout"
)

const eventsFile = "events.jsonl"

// Event is one append-only pipeline event. Events are observability data,
// never recovery state.
type Event struct {
	EventID    string    `json:"event_id"`
	Type       string    `json:"type"`
	Identifier string    `json:"identifier,omitempty"`
	BatchID    string    `json:"batch_id,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// EventLog appends events to _manifests/events.jsonl.
type EventLog struct {
	mu   sync.Mutex
	path string
}

// NewEventLog returns an event log rooted at the layout's manifest dir.
func NewEventLog(l layout.Layout) *EventLog {
	return &EventLog{path: filepath.Join(l.Manifests(), eventsFile)}
}

// Append writes one event line. Failures are returned but callers treat
// them as non-fatal; the event log is derived reporting only.
func (e *EventLog) Append(eventType, identifier, batchID, detail string) error {
	event := Event{
		EventID:    uuid.NewString(),
		Type:       eventType,
		Identifier: identifier,
		BatchID:    batchID,
		Detail:     detail,
		Timestamp:  time.Now().UTC(),
	}
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	line = append(line, '\n')

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(e.path), 0o755); err != nil {
		return fmt.Errorf("ensure manifests dir: %w", err)
	}
	f, err := os.OpenFile(e.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}
