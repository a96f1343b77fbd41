// Package audit records every decision the guardian takes and turns a
// subject's history into signed, archivable evidence packs. Audit records
// are observational; the hash-chained ledger stays the source of truth.
package audit

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType categorizes an audit event.
type EventType string

const (
	EventDecision EventType = "DECISION"
	EventLedger   EventType = "LEDGER"
	EventRollback EventType = "ROLLBACK"
	EventSystem   EventType = "SYSTEM"
)

// Event is one structured audit record.
type Event struct {
	ID        string         `json:"id"`
	SubjectID string         `json:"subject_id,omitempty"`
	Type      EventType      `json:"type"`
	Action    string         `json:"action"`
	Resource  string         `json:"resource"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Logger records audit events. The subject binding rides in metadata under
// "subject_id" so callers with no subject in scope can still record.
type Logger interface {
	Record(ctx context.Context, eventType EventType, action, resource string, metadata map[string]any) error
}

// logger writes one JSON line per event.
type logger struct {
	mu    sync.Mutex
	w     io.Writer
	clock func() time.Time
}

// NewLogger returns a Logger writing JSON lines to os.Stdout.
func NewLogger() Logger {
	return NewLoggerWithWriter(os.Stdout)
}

// NewLoggerWithWriter returns a Logger writing JSON lines to w.
func NewLoggerWithWriter(w io.Writer) Logger {
	if w == nil {
		w = os.Stdout
	}
	return &logger{w: w, clock: time.Now}
}

func (l *logger) Record(ctx context.Context, eventType EventType, action, resource string, metadata map[string]any) error {
	event := newEvent(l.clock(), eventType, action, resource, metadata)

	l.mu.Lock()
	defer l.mu.Unlock()

	line, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = l.w.Write(append(line, '\n'))
	return err
}

// Log is an in-memory event log. It implements Logger and additionally
// serves per-subject slices to the evidence exporter.
type Log struct {
	mu     sync.RWMutex
	events []Event
	clock  func() time.Time
}

// NewLog returns an empty in-memory log.
func NewLog() *Log {
	return &Log{clock: time.Now}
}

// WithClock overrides the time source.
func (l *Log) WithClock(clock func() time.Time) *Log {
	l.clock = clock
	return l
}

func (l *Log) Record(ctx context.Context, eventType EventType, action, resource string, metadata map[string]any) error {
	event := newEvent(l.clock(), eventType, action, resource, metadata)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
	return nil
}

// EventsFor returns every recorded event bound to the subject, in order.
func (l *Log) EventsFor(subjectID string) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Event
	for _, e := range l.events {
		if e.SubjectID == subjectID {
			out = append(out, e)
		}
	}
	return out
}

// Len reports the number of recorded events.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

func newEvent(now time.Time, eventType EventType, action, resource string, metadata map[string]any) Event {
	subject := ""
	if s, ok := metadata["subject_id"].(string); ok {
		subject = s
	}
	return Event{
		ID:        uuid.New().String(),
		SubjectID: subject,
		Type:      eventType,
		Action:    action,
		Resource:  resource,
		Timestamp: now.UTC(),
		Metadata:  metadata,
	}
}
