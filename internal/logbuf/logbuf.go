// Package logbuf keeps the most recent log records in memory so the
// daemon's status API can serve them without touching disk.
package logbuf

import (
	"log/slog"
	"sync"
	"time"
)

// Record is a single captured log record.
type Record struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Attrs   map[string]any `json:"attrs,omitempty"`
}

// Buffer retains the last max records, oldest first.
type Buffer struct {
	mu      sync.Mutex
	max     int
	records []Record
}

// New creates a buffer that holds up to max records.
func New(max int) *Buffer {
	return &Buffer{max: max}
}

// Add appends a record, evicting the oldest when the buffer is full.
func (b *Buffer) Add(r Record) {
	b.mu.Lock()
	b.records = append(b.records, r)
	if len(b.records) > b.max {
		b.records = b.records[len(b.records)-b.max:]
	}
	b.mu.Unlock()
}

// Tail returns up to limit records at or above minLevel that are not
// older than since. A zero since means no time filter; limit <= 0
// returns all matches. Records come back oldest first.
func (b *Buffer) Tail(since time.Time, minLevel slog.Level, limit int) []Record {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []Record
	for _, r := range b.records {
		if !since.IsZero() && r.Time.Before(since) {
			continue
		}
		if levelOf(r.Level) < minLevel {
			continue
		}
		out = append(out, r)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// Len reports the number of retained records.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.records)
}

func levelOf(s string) slog.Level {
	switch s {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
