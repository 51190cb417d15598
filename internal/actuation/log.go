package actuation

import (
	"sync"
	"time"
)

// LogEntry is one diagnostic record of a dispatched command and its
// terminal outcome.
type LogEntry struct {
	Command    Command   `json:"command"`
	Status     Status    `json:"status"`
	Error      string    `json:"error,omitempty"`
	ResolvedAt time.Time `json:"resolved_at"`
}

// CommandLog is a bounded ring buffer of the most recent command outcomes
// for one controller. Oldest entries are overwritten once the buffer is
// full.
//
// Thread Safety: safe for concurrent use.
type CommandLog struct {
	mu      sync.Mutex
	entries []LogEntry
	next    int
	full    bool
}

// NewCommandLog creates a log holding at most size entries.
func NewCommandLog(size int) *CommandLog {
	if size < 1 {
		size = 1
	}
	return &CommandLog{entries: make([]LogEntry, size)}
}

// Record appends a command outcome, overwriting the oldest entry when the
// buffer is full.
func (l *CommandLog) Record(cmd Command, res Result) {
	entry := LogEntry{
		Command:    cmd,
		Status:     res.Status,
		ResolvedAt: time.Now().UTC(),
	}
	if res.Err != nil {
		entry.Error = res.Err.Error()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[l.next] = entry
	l.next++
	if l.next == len(l.entries) {
		l.next = 0
		l.full = true
	}
}

// Recent returns the logged entries, most recent first.
func (l *CommandLog) Recent() []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	count := l.next
	if l.full {
		count = len(l.entries)
	}

	out := make([]LogEntry, 0, count)
	for i := 0; i < count; i++ {
		idx := (l.next - 1 - i + len(l.entries)) % len(l.entries)
		out = append(out, l.entries[idx])
	}
	return out
}
