package logging

import (
	"sync"
	"time"
)

// LogEntry is one buffered log line. Seq increases by one per entry written
// to a buffer and lets readers resume without duplicates.
type LogEntry struct {
	Seq        uint64         `json:"seq"`
	Timestamp  time.Time      `json:"timestamp"`
	Level      string         `json:"level"`
	Module     string         `json:"module"`
	Message    string         `json:"message"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// RingBuffer keeps the most recent log entries. It is safe for concurrent
// use.
type RingBuffer struct {
	mu    sync.RWMutex
	buf   []LogEntry
	start int // oldest entry once buf is at capacity
	seq   uint64
}

// NewRingBuffer returns a buffer holding at most size entries.
func NewRingBuffer(size int) *RingBuffer {
	if size < 1 {
		size = 1
	}
	return &RingBuffer{buf: make([]LogEntry, 0, size)}
}

// Write stores entry, dropping the oldest one when full, and returns it
// with its sequence number set.
func (rb *RingBuffer) Write(entry LogEntry) LogEntry {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.seq++
	entry.Seq = rb.seq
	if len(rb.buf) < cap(rb.buf) {
		rb.buf = append(rb.buf, entry)
		return entry
	}
	rb.buf[rb.start] = entry
	rb.start = (rb.start + 1) % len(rb.buf)
	return entry
}

// ReadAll returns every buffered entry, oldest first.
func (rb *RingBuffer) ReadAll() []LogEntry {
	return rb.Since(0)
}

// Since returns the buffered entries with a sequence number above seq,
// oldest first.
func (rb *RingBuffer) Since(seq uint64) []LogEntry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	out := make([]LogEntry, 0, len(rb.buf))
	for i := range rb.buf {
		e := rb.buf[(rb.start+i)%len(rb.buf)]
		if e.Seq > seq {
			out = append(out, e)
		}
	}
	return out
}

// Tail returns up to n of the most recent entries, optionally restricted to
// one module, oldest first. n <= 0 means no limit.
func (rb *RingBuffer) Tail(n int, module string) []LogEntry {
	all := rb.ReadAll()
	if module != "" {
		kept := all[:0]
		for _, e := range all {
			if e.Module == module {
				kept = append(kept, e)
			}
		}
		all = kept
	}
	if n > 0 && len(all) > n {
		all = all[len(all)-n:]
	}
	return all
}
