package alerting

import (
	"sync"
	"time"

	"github.com/and161185/biasmeter/model"
)

const (
	DefaultLogSize = 10
	DefaultLowTTL  = 60 * time.Second
)

// Log is the bounded list of recent alerts, newest first.
// Low-severity entries expire LowTTL after their timestamp.
type Log struct {
	mu      sync.Mutex
	entries []model.AlertEvent
	size    int
	lowTTL  time.Duration
	total   int
}

// NewLog creates a log holding at most size entries. Non-positive arguments fall back to defaults.
func NewLog(size int, lowTTL time.Duration) *Log {
	if size <= 0 {
		size = DefaultLogSize
	}
	if lowTTL <= 0 {
		lowTTL = DefaultLowTTL
	}
	return &Log{size: size, lowTTL: lowTTL}
}

// Add records an event, dropping the oldest entry when the log is full.
// Low alerts expired at ev.Timestamp are pruned first so they never take a slot.
func (l *Log) Add(ev model.AlertEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.prune(ev.Timestamp)
	l.entries = append([]model.AlertEvent{ev}, l.entries...)
	if len(l.entries) > l.size {
		l.entries = l.entries[:l.size]
	}
	l.total++
}

// List returns the live entries at now, newest first, pruning expired low alerts.
func (l *Log) List(now time.Time) []model.AlertEvent {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.prune(now)
	out := make([]model.AlertEvent, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of live entries at now.
func (l *Log) Len(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.prune(now)
	return len(l.entries)
}

// Total returns how many alerts were ever added.
func (l *Log) Total() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}

// Reset empties the log and the counter.
func (l *Log) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
	l.total = 0
}

func (l *Log) prune(now time.Time) {
	kept := l.entries[:0]
	for _, ev := range l.entries {
		if ev.Severity == model.SeverityLow && now.Sub(ev.Timestamp) >= l.lowTTL {
			continue
		}
		kept = append(kept, ev)
	}
	clear(l.entries[len(kept):])
	l.entries = kept
}
