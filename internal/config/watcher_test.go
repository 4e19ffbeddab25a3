package config

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"
)

type watchedFile struct {
	Text  string `toml:"text"`
	Muted bool   `toml:"muted"`
}

func loadWatched(path string) (watchedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return watchedFile{}, err
	}
	var v watchedFile
	err = toml.Unmarshal(data, &v)
	return v, err
}

func startWatcher(t *testing.T, w *Watcher[watchedFile]) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Run returned %v", err)
		}
	})
	// give fsnotify time to register the directory
	time.Sleep(100 * time.Millisecond)
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.toml")
	if err := os.WriteFile(path, []byte("text = \"a\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	w := NewConfigWatcher(path, loadWatched, slog.New(slog.NewTextHandler(io.Discard, nil)),
		WithDebounce[watchedFile](30*time.Millisecond))
	got := make(chan watchedFile, 4)
	w.OnReload(func(v watchedFile) { got <- v })
	startWatcher(t, w)

	if err := os.WriteFile(path, []byte("text = \"b\"\nmuted = true\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case v := <-got:
		if v.Text != "b" || !v.Muted {
			t.Errorf("reloaded %+v", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no reload")
	}
}

func TestWatcherFollowsRenameReplace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.toml")
	if err := os.WriteFile(path, []byte("text = \"a\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	w := NewConfigWatcher(path, loadWatched, slog.New(slog.NewTextHandler(io.Discard, nil)),
		WithDebounce[watchedFile](30*time.Millisecond))
	got := make(chan watchedFile, 4)
	w.OnReload(func(v watchedFile) { got <- v })
	startWatcher(t, w)

	tmp := filepath.Join(dir, "session.toml.tmp")
	if err := os.WriteFile(tmp, []byte("text = \"renamed\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}

	select {
	case v := <-got:
		if v.Text != "renamed" {
			t.Errorf("reloaded %+v", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no reload after rename")
	}
}

func TestWatcherDebouncesBursts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.toml")
	if err := os.WriteFile(path, []byte("text = \"0\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var calls atomic.Int32
	w := NewConfigWatcher(path, loadWatched, slog.New(slog.NewTextHandler(io.Discard, nil)),
		WithDebounce[watchedFile](200*time.Millisecond))
	w.OnReload(func(watchedFile) { calls.Add(1) })
	startWatcher(t, w)

	for i := range 5 {
		if err := os.WriteFile(path, []byte("text = \""+string(rune('a'+i))+"\"\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		time.Sleep(20 * time.Millisecond)
	}
	time.Sleep(500 * time.Millisecond)

	if n := calls.Load(); n != 1 {
		t.Errorf("handler called %d times, want 1", n)
	}
}

func TestWatcherErrorHandlerAndUnsubscribe(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.toml")
	if err := os.WriteFile(path, []byte("text = \"a\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	errs := make(chan error, 1)
	var calls atomic.Int32
	w := NewConfigWatcher(path, loadWatched, slog.New(slog.NewTextHandler(io.Discard, nil)),
		WithDebounce[watchedFile](30*time.Millisecond),
		WithErrorHandler[watchedFile](func(err error) { errs <- err }))
	unsubscribe := w.OnReload(func(watchedFile) { calls.Add(1) })
	unsubscribe()
	startWatcher(t, w)

	if err := os.WriteFile(path, []byte("text = \n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-errs:
		var decodeErr *toml.DecodeError
		if !errors.As(err, &decodeErr) {
			t.Errorf("error = %v, want toml decode error", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("error handler not called")
	}
	if calls.Load() != 0 {
		t.Error("unsubscribed handler was called")
	}
}

func TestWatcherSkipsUnchangedContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.toml")
	content := []byte("text = \"same\"\n")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	var calls atomic.Int32
	w := NewConfigWatcher(path, loadWatched, slog.New(slog.NewTextHandler(io.Discard, nil)),
		WithDebounce[watchedFile](30*time.Millisecond))
	w.OnReload(func(watchedFile) { calls.Add(1) })
	startWatcher(t, w)

	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(300 * time.Millisecond)
	if n := calls.Load(); n != 0 {
		t.Errorf("handler called %d times for identical content", n)
	}

	if err := os.WriteFile(path, []byte("text = \"changed\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("handler called %d times after a change, want 1", n)
	}
}
