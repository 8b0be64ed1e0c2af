package sessions

import (
	"sync"
	"time"

	"github.com/liamcoop/algoshield/rules"
)

// DefaultActivitySize is how many entries an ActivityLog keeps.
const DefaultActivitySize = 100

// ActivityEntry records one action emitted for a session.
type ActivityEntry struct {
	Type      rules.ActionType `json:"type"`
	Narration string           `json:"narration"`
	// Index is the action's position in the evaluation result.
	Index int       `json:"index"`
	At    time.Time `json:"at"`
}

// ActivityLog is a fixed-capacity ring of the most recent entries. Once full,
// each new entry overwrites the oldest one.
type ActivityLog struct {
	entries  []ActivityEntry
	capacity int
	head     int
	size     int
	mu       sync.RWMutex
}

// NewActivityLog creates a log holding at most capacity entries
func NewActivityLog(capacity int) *ActivityLog {
	if capacity <= 0 {
		capacity = DefaultActivitySize
	}
	return &ActivityLog{
		entries:  make([]ActivityEntry, capacity),
		capacity: capacity,
	}
}

// RecordActions appends one entry per action, in order.
func (l *ActivityLog) RecordActions(actions []rules.Action, at time.Time) {
	if len(actions) == 0 {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for i, a := range actions {
		l.entries[l.head] = ActivityEntry{
			Type:      a.Type(),
			Narration: a.Narrate(),
			Index:     i,
			At:        at,
		}
		l.head = (l.head + 1) % l.capacity
		if l.size < l.capacity {
			l.size++
		}
	}
}

// Entries returns the held entries oldest first.
func (l *ActivityLog) Entries() []ActivityEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]ActivityEntry, 0, l.size)
	start := (l.head - l.size + l.capacity) % l.capacity
	for i := range l.size {
		out = append(out, l.entries[(start+i)%l.capacity])
	}
	return out
}

// Len returns the number of entries held
func (l *ActivityLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.size
}

// Cap returns the log capacity
func (l *ActivityLog) Cap() int {
	return l.capacity
}
