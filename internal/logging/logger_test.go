package logging

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func resetState() {
	mutex.Lock()
	moduleLoggers = make(map[string]*slog.Logger)
	moduleLevelVars = make(map[string]*slog.LevelVar)
	globalConfig = Config{}
	isInitialized = false
	logCallback = nil
	mutex.Unlock()
}

func TestModuleLevelOverride(t *testing.T) {
	resetState()
	Initialize(Config{
		Level:  "info",
		Format: "text",
		Modules: map[string]string{
			"hotswap": "debug",
			"api":     "warn",
		},
	})

	tests := []struct {
		module    string
		wantDebug bool
		wantInfo  bool
		wantWarn  bool
	}{
		{"hotswap", true, true, true},
		{"api", false, false, true},
		{"graph", false, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.module, func(t *testing.T) {
			handler := GetLogger(tt.module).Handler()
			ctx := context.Background()

			if got := handler.Enabled(ctx, slog.LevelDebug); got != tt.wantDebug {
				t.Errorf("Debug enabled = %v, want %v", got, tt.wantDebug)
			}
			if got := handler.Enabled(ctx, slog.LevelInfo); got != tt.wantInfo {
				t.Errorf("Info enabled = %v, want %v", got, tt.wantInfo)
			}
			if got := handler.Enabled(ctx, slog.LevelWarn); got != tt.wantWarn {
				t.Errorf("Warn enabled = %v, want %v", got, tt.wantWarn)
			}
		})
	}
}

func TestLoggerCreatedBeforeInitializePicksUpLevel(t *testing.T) {
	resetState()
	early := GetLogger("pipeline")
	if early.Handler().Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("expected info default before Initialize")
	}

	Initialize(Config{Level: "debug"})

	if !GetLogger("pipeline").Handler().Enabled(context.Background(), slog.LevelDebug) {
		t.Error("expected debug after Initialize")
	}
}

func TestSetModuleLevel(t *testing.T) {
	resetState()
	Initialize(Config{Level: "info"})
	logger := GetLogger("watch")

	if !SetModuleLevel("watch", "error") {
		t.Fatal("SetModuleLevel rejected a valid level")
	}
	if logger.Handler().Enabled(context.Background(), slog.LevelWarn) {
		t.Error("warn should be disabled after raising to error")
	}
	if SetModuleLevel("watch", "loud") {
		t.Error("SetModuleLevel accepted an invalid level")
	}

	SetModuleLevel("", "debug")
	if logger.Handler().Enabled(context.Background(), slog.LevelDebug) {
		t.Error("global change must not override a module level")
	}
	if !GetLogger("session").Handler().Enabled(context.Background(), slog.LevelDebug) {
		t.Error("module without override should follow the global level")
	}
}

func TestBufferReceivesEntries(t *testing.T) {
	resetState()
	Initialize(Config{Level: "debug"})

	var got []LogEntry
	SetLogCallback(func(e LogEntry) { got = append(got, e) })

	GetLogger("graph").Info("stage added", "stage", "vorbis_encoder", "err", errors.New("boom"))

	entries := GetBuffer().Tail(10, "graph")
	if len(entries) != 1 {
		t.Fatalf("buffer has %d graph entries, want 1", len(entries))
	}
	e := entries[0]
	if e.Module != "graph" || e.Message != "stage added" || e.Level != "info" {
		t.Errorf("unexpected entry %+v", e)
	}
	if e.Attributes["stage"] != "vorbis_encoder" {
		t.Errorf("stage attribute = %v", e.Attributes["stage"])
	}
	if e.Attributes["err"] != "boom" {
		t.Errorf("error attribute = %v", e.Attributes["err"])
	}
	if len(got) != 1 {
		t.Errorf("callback called %d times, want 1", len(got))
	}
}

func TestRingBufferWraps(t *testing.T) {
	rb := NewRingBuffer(3)
	for i := range 5 {
		rb.Write(LogEntry{Message: string(rune('a' + i))})
	}
	all := rb.ReadAll()
	var msgs []string
	for _, e := range all {
		msgs = append(msgs, e.Message)
	}
	if strings.Join(msgs, "") != "cde" {
		t.Errorf("ReadAll = %v, want c d e", msgs)
	}
	if tail := rb.Tail(2, ""); len(tail) != 2 || tail[1].Message != "e" {
		t.Errorf("Tail(2) = %+v", tail)
	}
}

func TestFormatLogLine(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	line := FormatLogLine(LogEntry{
		Timestamp:  ts,
		Level:      "warn",
		Module:     "outputs",
		Message:    "placeholder restored",
		Attributes: map[string]any{"junction": "tee_output_audio", "branches": 0},
	})
	want := "2024-01-02T03:04:05Z [WARN] [outputs] placeholder restored branches=0 junction=tee_output_audio"
	if line != want {
		t.Errorf("got  %q\nwant %q", line, want)
	}
}

func TestMultiHandlerFanOut(t *testing.T) {
	var a, b strings.Builder
	h := NewMultiHandler(
		slog.NewTextHandler(&a, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(&b, &slog.HandlerOptions{Level: slog.LevelWarn}),
	)
	logger := slog.New(h)
	logger.Debug("only a")
	logger.Warn("both")

	if !strings.Contains(a.String(), "only a") || !strings.Contains(a.String(), "both") {
		t.Errorf("handler a output: %s", a.String())
	}
	if strings.Contains(b.String(), "only a") || !strings.Contains(b.String(), "both") {
		t.Errorf("handler b output: %s", b.String())
	}
}

func TestRingBufferSince(t *testing.T) {
	rb := NewRingBuffer(4)
	var last LogEntry
	for i := range 6 {
		last = rb.Write(LogEntry{Message: string(rune('a' + i))})
	}
	if last.Seq != 6 {
		t.Fatalf("last seq = %d, want 6", last.Seq)
	}
	got := rb.Since(4)
	if len(got) != 2 || got[0].Message != "e" || got[1].Seq != 6 {
		t.Errorf("Since(4) = %+v", got)
	}
	if all := rb.Since(0); len(all) != 4 || all[0].Message != "c" {
		t.Errorf("Since(0) = %+v", all)
	}
}

func TestBufferHandlerGroups(t *testing.T) {
	rb := NewRingBuffer(4)
	h := NewBufferHandler(func() *RingBuffer { return rb }, slog.LevelDebug, nil)
	logger := slog.New(h).With("module", "hotswap").WithGroup("swap").With("id", "s1")
	logger.Info("released", slog.Group("timing", "seconds", 0.5))

	e := rb.ReadAll()[0]
	if e.Module != "hotswap" {
		t.Errorf("module = %q", e.Module)
	}
	if e.Attributes["swap.id"] != "s1" || e.Attributes["swap.timing.seconds"] != 0.5 {
		t.Errorf("attributes = %v", e.Attributes)
	}
}

func TestJournalFields(t *testing.T) {
	fields := map[string]string{}
	journalFields(fields, "swap_", slog.String("stage-name", "v4l2src"))
	journalFields(fields, "", slog.Any("error", errors.New("no device")))
	journalFields(fields, "", slog.Group("sink", "mount.point", "/live"))

	want := map[string]string{
		"SWAP_STAGE_NAME":  "v4l2src",
		"ERROR":            "no device",
		"SINK_MOUNT_POINT": "/live",
	}
	for k, v := range want {
		if fields[k] != v {
			t.Errorf("%s = %q, want %q", k, fields[k], v)
		}
	}
}
