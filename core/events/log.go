package events

import (
	"strings"
	"sync"
)

// Entry is a recorded event with its assigned sequence number.
type Entry struct {
	Sequence   uint64
	Type       string
	Attributes map[string]string
}

// Log is a bounded in-memory event buffer. It retains the most recent
// entries and serves the RPC replay endpoint. Sequence numbers are
// monotonic for the lifetime of the process even after eviction.
type Log struct {
	mu      sync.RWMutex
	entries []Entry
	next    uint64
	limit   int
}

const defaultLogLimit = 4096

// NewLog constructs an event log retaining at most limit entries. A
// non-positive limit falls back to the default.
func NewLog(limit int) *Log {
	if limit <= 0 {
		limit = defaultLogLimit
	}
	return &Log{limit: limit}
}

// Emit implements the Emitter interface.
func (l *Log) Emit(evt Event) {
	if l == nil || evt == nil {
		return
	}
	payload := evt.Event()
	if payload == nil {
		return
	}
	attrs := make(map[string]string, len(payload.Attributes))
	for k, v := range payload.Attributes {
		attrs[k] = v
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, Entry{Sequence: l.next, Type: payload.Type, Attributes: attrs})
	l.next++
	if len(l.entries) > l.limit {
		l.entries = l.entries[len(l.entries)-l.limit:]
	}
}

// List returns up to limit retained entries whose type matches the
// supplied prefix, newest last. An empty prefix matches everything and
// a non-positive limit returns all retained entries.
func (l *Log) List(prefix string, limit int) []Entry {
	if l == nil {
		return nil
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	matched := make([]Entry, 0, len(l.entries))
	for _, entry := range l.entries {
		if prefix != "" && !strings.HasPrefix(entry.Type, prefix) {
			continue
		}
		attrs := make(map[string]string, len(entry.Attributes))
		for k, v := range entry.Attributes {
			attrs[k] = v
		}
		matched = append(matched, Entry{Sequence: entry.Sequence, Type: entry.Type, Attributes: attrs})
	}
	if limit > 0 && len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}
	return matched
}
