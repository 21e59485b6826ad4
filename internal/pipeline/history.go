package pipeline

import (
	"sync"
	"time"
)

// DefaultHistoryLimit is the number of results kept per identity.
const DefaultHistoryLimit = 5

// HistoryEntry records one successfully delivered result.
type HistoryEntry struct {
	Timestamp       time.Time
	ResultReference string
}

// Ledger is a bounded, per-identity log of recent results. The oldest entry
// is evicted once an identity exceeds the limit.
type Ledger struct {
	mu      sync.Mutex
	limit   int
	entries map[string][]HistoryEntry
}

// NewLedger creates a ledger holding up to limit entries per identity.
// A non-positive limit selects DefaultHistoryLimit.
func NewLedger(limit int) *Ledger {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &Ledger{
		limit:   limit,
		entries: make(map[string][]HistoryEntry),
	}
}

// Record appends an entry for identity.
func (l *Ledger) Record(identity string, e HistoryEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	list := append(l.entries[identity], e)
	if len(list) > l.limit {
		trimmed := make([]HistoryEntry, l.limit)
		copy(trimmed, list[len(list)-l.limit:])
		list = trimmed
	}
	l.entries[identity] = list
}

// List returns a copy of the entries for identity, oldest first.
func (l *Ledger) List(identity string) []HistoryEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	list := l.entries[identity]
	out := make([]HistoryEntry, len(list))
	copy(out, list)
	return out
}
