package events

import (
	"log/slog"
	"sync"
)

// Event is a structured notification describing a committed state change.
// Events are observational only; nothing in the ledger ever reads one back.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Emitter broadcasts events to downstream subscribers (RPC tails, indexers,
// logs).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter satisfies the Emitter interface while discarding all events. It
// is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Buffer stages events during an instruction so they can be forwarded only
// after every mutation has committed. A failed instruction discards the
// buffer and nothing escapes.
type Buffer struct {
	pending []Event
}

// Emit implements the Emitter interface.
func (b *Buffer) Emit(evt Event) {
	b.pending = append(b.pending, evt)
}

// Drain returns the staged events and empties the buffer.
func (b *Buffer) Drain() []Event {
	out := b.pending
	b.pending = nil
	return out
}

// Discard empties the buffer without returning anything.
func (b *Buffer) Discard() {
	b.pending = nil
}

// Ring retains the most recent events for observability queries. It is safe
// for concurrent use.
type Ring struct {
	mu   sync.RWMutex
	buf  []Event
	next int
	full bool
}

// NewRing creates a recorder holding up to capacity events.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring{buf: make([]Event, capacity)}
}

// Emit implements the Emitter interface.
func (r *Ring) Emit(evt Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.next] = evt
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
}

// Recent returns up to limit events, oldest first. A non-positive limit
// returns everything retained.
func (r *Ring) Recent(limit int) []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ordered []Event
	if r.full {
		ordered = append(ordered, r.buf[r.next:]...)
		ordered = append(ordered, r.buf[:r.next]...)
	} else {
		ordered = append(ordered, r.buf[:r.next]...)
	}
	if limit > 0 && len(ordered) > limit {
		ordered = ordered[len(ordered)-limit:]
	}
	return ordered
}

// LogEmitter mirrors every event onto a structured logger.
type LogEmitter struct {
	Logger *slog.Logger
}

// Emit implements the Emitter interface.
func (l LogEmitter) Emit(evt Event) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attrs := make([]any, 0, 2*len(evt.Attributes)+2)
	attrs = append(attrs, slog.String("event", evt.Type))
	for k, v := range evt.Attributes {
		attrs = append(attrs, slog.String(k, v))
	}
	logger.Info("ledger event", attrs...)
}

// Multi fans an event out to every wrapped emitter in order.
type Multi []Emitter

// Emit implements the Emitter interface.
func (m Multi) Emit(evt Event) {
	for _, emitter := range m {
		if emitter != nil {
			emitter.Emit(evt)
		}
	}
}
