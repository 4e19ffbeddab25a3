package logging

import (
	"context"
	"log/slog"
	"maps"
	"strconv"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/journal"
)

const journalIdentifier = "castnode"

var journalKeyReplacer = strings.NewReplacer("-", "_", ".", "_", " ", "_")

// JournalHandler sends records to the systemd journal. Attributes become
// upper-case journal fields; the module attribute lands in MODULE, so
// `journalctl -t castnode MODULE=hotswap` filters one component.
type JournalHandler struct {
	level  slog.Leveler
	prefix string            // group path joined with underscores, trailing underscore
	fields map[string]string // fields added through WithAttrs
}

// NewJournalHandler creates a journal handler at level.
func NewJournalHandler(level slog.Leveler) *JournalHandler {
	return &JournalHandler{level: level}
}

// Enabled implements slog.Handler.
func (h *JournalHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle implements slog.Handler.
func (h *JournalHandler) Handle(_ context.Context, r slog.Record) error {
	priority := journalPriority(r.Level)
	fields := make(map[string]string, len(h.fields)+r.NumAttrs()+2)
	maps.Copy(fields, h.fields)
	r.Attrs(func(a slog.Attr) bool {
		journalFields(fields, h.prefix, a)
		return true
	})
	fields["PRIORITY"] = strconv.Itoa(int(priority))
	fields["SYSLOG_IDENTIFIER"] = journalIdentifier
	return journal.Send(r.Message, priority, fields)
}

// WithAttrs implements slog.Handler.
func (h *JournalHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	next := *h
	next.fields = make(map[string]string, len(h.fields)+len(attrs))
	maps.Copy(next.fields, h.fields)
	for _, a := range attrs {
		journalFields(next.fields, h.prefix, a)
	}
	return &next
}

// WithGroup implements slog.Handler.
func (h *JournalHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "_"
	return &next
}

func journalPriority(level slog.Level) journal.Priority {
	switch {
	case level >= slog.LevelError:
		return journal.PriErr
	case level >= slog.LevelWarn:
		return journal.PriWarning
	case level >= slog.LevelInfo:
		return journal.PriInfo
	default:
		return journal.PriDebug
	}
}

// journalFields writes a under its journal field name, expanding groups.
func journalFields(dst map[string]string, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		sub := prefix
		if a.Key != "" {
			sub = prefix + a.Key + "_"
		}
		for _, ga := range a.Value.Group() {
			journalFields(dst, sub, ga)
		}
		return
	}

	key := journalKeyReplacer.Replace(strings.ToUpper(prefix + a.Key))
	switch a.Value.Kind() {
	case slog.KindTime:
		dst[key] = a.Value.Time().Format(time.RFC3339Nano)
	case slog.KindAny:
		if err, ok := a.Value.Any().(error); ok {
			dst[key] = err.Error()
			return
		}
		dst[key] = a.Value.String()
	default:
		dst[key] = a.Value.String()
	}
}

// IsJournalAvailable reports whether the systemd journal socket is present.
func IsJournalAvailable() bool {
	return journal.Enabled()
}
