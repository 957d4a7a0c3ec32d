package events

import "sync"

// Log is the append-only event log. Restore only ever truncates entries
// appended inside a reverted transaction.
type Log struct {
	mu      sync.RWMutex
	entries []Event
	nextSeq uint64
}

func NewLog() *Log {
	return &Log{nextSeq: 1}
}

// Append stamps the event with the next sequence number and stores it.
func (l *Log) Append(e Event) Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.Seq = l.nextSeq
	l.nextSeq++
	l.entries = append(l.entries, e)
	return e
}

// Len returns the number of stored events.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Since returns a copy of the events stored after the first n.
func (l *Log) Since(n int) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if n >= len(l.entries) {
		return nil
	}
	return append([]Event(nil), l.entries[n:]...)
}

// Recent returns up to limit of the latest events, newest first, optionally
// filtered by kind.
func (l *Log) Recent(limit int, kind Kind) []Event {
	if limit <= 0 {
		return nil
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Event, 0, limit)
	for i := len(l.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if kind != "" && l.entries[i].Kind != kind {
			continue
		}
		out = append(out, l.entries[i])
	}
	return out
}

// Filter returns every event of the given kind in emission order.
func (l *Log) Filter(kind Kind) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Event
	for _, e := range l.entries {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

type logMark struct {
	length  int
	nextSeq uint64
}

func (l *Log) Snapshot() any {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return logMark{length: len(l.entries), nextSeq: l.nextSeq}
}

func (l *Log) Restore(s any) {
	mark := s.(logMark)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = l.entries[:mark.length]
	l.nextSeq = mark.nextSeq
}
