// Package session saves the configurable units of a pipeline to a TOML file
// and restores them on the next start.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/smazurov/castnode/internal/config"
	"github.com/smazurov/castnode/internal/logging"
	"github.com/smazurov/castnode/internal/pipeline"
)

const (
	DefaultPath = "session.toml"
	version     = 1
)

// File is the on-disk session. Each unit is a flat property map as
// returned by pipeline.Properties.
type File struct {
	Version     int              `toml:"version"`
	VideoSource map[string]any   `toml:"video_source,omitempty"`
	AudioSource map[string]any   `toml:"audio_source,omitempty"`
	Overlay     map[string]any   `toml:"overlay,omitempty"`
	Speaker     map[string]any   `toml:"speaker,omitempty"`
	Outputs     []map[string]any `toml:"outputs,omitempty"`
}

// Pipeline is the part of pipeline.Pipeline a session reads and writes.
type Pipeline interface {
	Units(ctx context.Context) ([]string, error)
	Properties(ctx context.Context, unit string) (map[string]any, error)
	SetProperties(ctx context.Context, unit string, props map[string]any) error
	CreateOutput(ctx context.Context, props map[string]any) (pipeline.OutputInfo, error)
}

// Store reads and writes one session file.
type Store struct {
	path   string
	logger *slog.Logger
}

// NewStore returns a store for path, DefaultPath when empty.
func NewStore(path string) *Store {
	if path == "" {
		path = DefaultPath
	}
	return &Store{path: path, logger: logging.GetLogger("session")}
}

// Path returns the session file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the session file. A missing file yields an empty session.
func (s *Store) Load() (File, error) {
	f, err := LoadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return File{Version: version}, nil
	}
	return f, err
}

// LoadFile parses the session file at path.
func LoadFile(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, err
	}
	var f File
	if err := toml.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("failed to parse session file: %w", err)
	}
	if f.Version == 0 {
		f.Version = version
	}
	return f, nil
}

// Save writes f, replacing the previous file atomically.
func (s *Store) Save(f File) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	f.Version = version
	data, err := toml.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace session: %w", err)
	}
	s.logger.Debug("Session saved", "path", s.path, "outputs", len(f.Outputs))
	return nil
}

// Snapshot collects the properties of every unit of p.
func Snapshot(ctx context.Context, p Pipeline) (File, error) {
	units, err := p.Units(ctx)
	if err != nil {
		return File{}, err
	}
	f := File{Version: version}
	for _, unit := range units {
		props, err := p.Properties(ctx, unit)
		if err != nil {
			return File{}, fmt.Errorf("%s: %w", unit, err)
		}
		switch unit {
		case pipeline.UnitVideoSource:
			f.VideoSource = props
		case pipeline.UnitAudioSource:
			f.AudioSource = props
		case pipeline.UnitOverlay:
			f.Overlay = props
		case pipeline.UnitSpeaker:
			f.Speaker = props
		default:
			if strings.HasPrefix(unit, pipeline.OutputUnit("")) {
				f.Outputs = append(f.Outputs, props)
			}
		}
	}
	return f, nil
}

// Restore applies every unit of f to p and recreates its outputs. A unit
// that fails does not stop the others; all failures are returned joined.
func Restore(ctx context.Context, p Pipeline, f File, logger logging.Logger) error {
	if logger == nil {
		logger = logging.GetLogger("session")
	}
	var errs []error
	apply := func(unit string, props map[string]any) {
		if len(props) == 0 {
			return
		}
		if err := p.SetProperties(ctx, unit, props); err != nil {
			logger.Warn("Restoring unit failed", "unit", unit, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", unit, err))
		}
	}
	apply(pipeline.UnitVideoSource, f.VideoSource)
	apply(pipeline.UnitAudioSource, f.AudioSource)
	apply(pipeline.UnitOverlay, f.Overlay)
	apply(pipeline.UnitSpeaker, f.Speaker)
	for i, props := range f.Outputs {
		if _, err := p.CreateOutput(ctx, props); err != nil {
			logger.Warn("Restoring output failed", "index", i, "name", props["name"], "error", err)
			errs = append(errs, fmt.Errorf("output %d: %w", i, err))
		}
	}
	logger.Info("Session restored", "outputs", len(f.Outputs), "errors", len(errs))
	return errors.Join(errs...)
}

// liveKeys are the properties safe to change on a running pipeline from a
// file edit. Sources and outputs are left to the API.
var liveKeys = map[string][]string{
	pipeline.UnitOverlay:     {"text", "halignment", "valignment", "image", "offset_x", "offset_y", "alpha"},
	pipeline.UnitAudioSource: {"mute"},
	pipeline.UnitSpeaker:     {"mute"},
}

// ApplyLive re-applies the overlay and mute settings of f to p.
func ApplyLive(ctx context.Context, p Pipeline, f File) error {
	units := map[string]map[string]any{
		pipeline.UnitOverlay:     f.Overlay,
		pipeline.UnitAudioSource: f.AudioSource,
		pipeline.UnitSpeaker:     f.Speaker,
	}
	var errs []error
	for _, unit := range []string{pipeline.UnitOverlay, pipeline.UnitAudioSource, pipeline.UnitSpeaker} {
		props := make(map[string]any)
		for _, k := range liveKeys[unit] {
			if v, ok := units[unit][k]; ok {
				props[k] = v
			}
		}
		if len(props) == 0 {
			continue
		}
		if err := p.SetProperties(ctx, unit, props); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", unit, err))
		}
	}
	return errors.Join(errs...)
}

// Watch follows the session file and applies live settings whenever it
// changes, until ctx is done.
func (s *Store) Watch(ctx context.Context, p Pipeline, debounce time.Duration) error {
	opts := []config.WatcherOption[File]{}
	if debounce > 0 {
		opts = append(opts, config.WithDebounce[File](debounce))
	}
	w := config.NewConfigWatcher(s.path, LoadFile, s.logger, opts...)
	w.OnReload(func(f File) {
		if err := ApplyLive(ctx, p, f); err != nil {
			s.logger.Warn("Applying session change failed", "error", err)
			return
		}
		s.logger.Info("Session change applied", "path", s.path)
	})
	return w.Run(ctx)
}
