package logging

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"
)

// LogCallback receives every entry after it is buffered. main hooks the
// event bus in here; logging cannot import events itself.
type LogCallback func(entry LogEntry)

// BufferHandler is a slog.Handler that writes flattened records to a ring
// buffer. Buffer and callback are looked up per record so handlers built
// before Initialize follow the live ones.
type BufferHandler struct {
	buffer   func() *RingBuffer
	callback func() LogCallback
	level    slog.Leveler

	module string
	prefix string         // dotted group path, with trailing dot
	preset map[string]any // attributes added through WithAttrs
}

// NewBufferHandler creates a handler writing to the buffer returned by
// buffer. callback may be nil.
func NewBufferHandler(buffer func() *RingBuffer, level slog.Leveler, callback func() LogCallback) *BufferHandler {
	return &BufferHandler{buffer: buffer, callback: callback, level: level, module: "app"}
}

// Enabled implements slog.Handler.
func (h *BufferHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle implements slog.Handler.
func (h *BufferHandler) Handle(_ context.Context, r slog.Record) error {
	entry := LogEntry{
		Timestamp:  r.Time,
		Level:      levelToString(r.Level),
		Module:     h.module,
		Message:    r.Message,
		Attributes: maps.Clone(h.preset),
	}
	if entry.Attributes == nil {
		entry.Attributes = make(map[string]any, r.NumAttrs())
	}
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "module" && h.prefix == "" {
			entry.Module = a.Value.String()
			return true
		}
		flattenAttr(entry.Attributes, h.prefix, a)
		return true
	})

	buf := h.buffer()
	if buf == nil {
		return nil
	}
	entry = buf.Write(entry)
	if h.callback != nil {
		if cb := h.callback(); cb != nil {
			cb(entry)
		}
	}
	return nil
}

// flattenAttr stores a under prefix+key, descending into groups with
// dotted keys.
func flattenAttr(dst map[string]any, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	key := prefix + a.Key
	switch a.Value.Kind() {
	case slog.KindGroup:
		sub := prefix
		if a.Key != "" {
			sub = key + "."
		}
		for _, ga := range a.Value.Group() {
			flattenAttr(dst, sub, ga)
		}
	case slog.KindTime:
		dst[key] = a.Value.Time().Format(time.RFC3339Nano)
	case slog.KindDuration:
		dst[key] = a.Value.Duration().String()
	default:
		if err, ok := a.Value.Any().(error); ok {
			dst[key] = err.Error()
			return
		}
		dst[key] = a.Value.Any()
	}
}

// WithAttrs implements slog.Handler. The module attribute of a module
// logger is lifted into LogEntry.Module.
func (h *BufferHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	next := *h
	next.preset = maps.Clone(h.preset)
	if next.preset == nil {
		next.preset = make(map[string]any, len(attrs))
	}
	for _, a := range attrs {
		if a.Key == "module" && h.prefix == "" {
			next.module = a.Value.String()
			continue
		}
		flattenAttr(next.preset, h.prefix, a)
	}
	return &next
}

// WithGroup implements slog.Handler.
func (h *BufferHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}

func levelToString(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "error"
	case level >= slog.LevelWarn:
		return "warn"
	case level >= slog.LevelInfo:
		return "info"
	default:
		return "debug"
	}
}

// FormatLogLine renders an entry as one plain-text line with attributes in
// key order.
func FormatLogLine(entry LogEntry) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s [%s] [%s] %s",
		entry.Timestamp.Format(time.RFC3339Nano), strings.ToUpper(entry.Level), entry.Module, entry.Message)
	for _, k := range slices.Sorted(maps.Keys(entry.Attributes)) {
		fmt.Fprintf(&sb, " %s=%v", k, entry.Attributes[k])
	}
	return sb.String()
}
