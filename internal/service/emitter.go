package service

import (
	"context"
	"encoding/json"
	"log"
	"sync"
)

// Event names emitted by the engine and services.
const (
	EventDocumentLoaded     = "document:loaded"
	EventDocumentLoadFailed = "document:load-failed"
	EventPageRendered       = "page:rendered"
	EventPageRenderFailed   = "page:render-failed"
	EventPageChanged        = "page:changed"
	EventZoomChanged        = "zoom:changed"
	EventAnnotationSaved    = "annotation:saved"
	EventAnnotationFailed   = "annotation:save-failed"
	EventDocumentUploaded   = "document:uploaded"
	EventDocumentChanged    = "document:changed"
	EventBookmarksChanged   = "bookmarks:changed"
	EventNotesChanged       = "notes:changed"
)

// ─────────────────────────────────────────────────────────────
// EventEmitter: decouples the engine from its front end
// ─────────────────────────────────────────────────────────────

// EventEmitter delivers user-facing notifications. The websocket hub,
// the log emitter and the mock emitter implement it.
type EventEmitter interface {
	Emit(ctx context.Context, event string, data any)
}

// LogEmitter writes events to the standard logger. Used by headless runs.
type LogEmitter struct{}

func (LogEmitter) Emit(_ context.Context, event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		log.Printf("event %s: %v", event, data)
		return
	}
	log.Printf("event %s: %s", event, payload)
}

// MultiEmitter fans one event out to several emitters.
type MultiEmitter []EventEmitter

func (m MultiEmitter) Emit(ctx context.Context, event string, data any) {
	for _, e := range m {
		if e != nil {
			e.Emit(ctx, event, data)
		}
	}
}

// MockEmitter is a test-friendly EventEmitter that records all calls.
type MockEmitter struct {
	mu     sync.Mutex
	Events []EmittedEvent
}

// EmittedEvent holds a single recorded emission for test assertions.
type EmittedEvent struct {
	Event string
	Data  any
}

func (m *MockEmitter) Emit(_ context.Context, event string, data any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, EmittedEvent{Event: event, Data: data})
}

// Count returns how many times event was emitted.
func (m *MockEmitter) Count(event string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.Events {
		if e.Event == event {
			n++
		}
	}
	return n
}
