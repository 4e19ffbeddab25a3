package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/spf13/cobra"
)

type testOptions struct {
	Config string

	Port          int           `toml:"server.port" env:"PORT"`
	Engine        string        `toml:"engine.backend" env:"ENGINE"`
	SwapTimeout   time.Duration `toml:"swap.timeout" env:"SWAP_TIMEOUT"`
	PingTimeout   time.Duration `toml:"watch.ping_timeout" env:"PING_TIMEOUT"`
	Preview       bool          `toml:"pipeline.preview" env:"PREVIEW"`
	AlphaOverlay  float64       `toml:"overlay.alpha" env:"OVERLAY_ALPHA"`
	AllowedHosts  []string      `toml:"watch.hosts" env:"HOSTS"`
	untaggedField string
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const sampleTOML = `
[server]
port = 9090

[engine]
backend = "gstreamer"

[swap]
timeout = "3s"

[watch]
ping_timeout = 0.25
hosts = ["10.0.0.2", "10.0.0.3"]

[pipeline]
preview = true

[overlay]
alpha = 0.5
`

func TestLoadConfigFromTOML(t *testing.T) {
	opts := &testOptions{Config: writeFile(t, sampleTOML)}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if opts.Port != 9090 {
		t.Errorf("Port = %d, want 9090", opts.Port)
	}
	if opts.Engine != "gstreamer" {
		t.Errorf("Engine = %q", opts.Engine)
	}
	if opts.SwapTimeout != 3*time.Second {
		t.Errorf("SwapTimeout = %v, want 3s", opts.SwapTimeout)
	}
	if opts.PingTimeout != 250*time.Millisecond {
		t.Errorf("PingTimeout = %v, want 250ms", opts.PingTimeout)
	}
	if !opts.Preview {
		t.Error("Preview = false, want true")
	}
	if opts.AlphaOverlay != 0.5 {
		t.Errorf("AlphaOverlay = %v", opts.AlphaOverlay)
	}
	if !reflect.DeepEqual(opts.AllowedHosts, []string{"10.0.0.2", "10.0.0.3"}) {
		t.Errorf("AllowedHosts = %v", opts.AllowedHosts)
	}
}

func TestLoadConfigPrecedence(t *testing.T) {
	t.Setenv(EnvPrefix+"PORT", "7070")
	t.Setenv(EnvPrefix+"SWAP_TIMEOUT", "750ms")
	t.Setenv(EnvPrefix+"HOSTS", "a, b")

	opts := &testOptions{Config: writeFile(t, sampleTOML)}

	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().StringVar(&opts.Engine, "engine", "sim", "")
	if err := cmd.Flags().Set("engine", "sim"); err != nil {
		t.Fatal(err)
	}

	if err := LoadConfig(opts, cmd); err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if opts.Port != 7070 {
		t.Errorf("env should override file: Port = %d", opts.Port)
	}
	if opts.SwapTimeout != 750*time.Millisecond {
		t.Errorf("SwapTimeout = %v", opts.SwapTimeout)
	}
	if opts.Engine != "sim" {
		t.Errorf("CLI flag should win: Engine = %q", opts.Engine)
	}
	if !reflect.DeepEqual(opts.AllowedHosts, []string{"a", "b"}) {
		t.Errorf("AllowedHosts = %v", opts.AllowedHosts)
	}
}

func TestLoadConfigMissingFileKeepsDefaults(t *testing.T) {
	opts := &testOptions{Config: filepath.Join(t.TempDir(), "absent.toml"), Port: 8090}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if opts.Port != 8090 {
		t.Errorf("Port = %d, want default 8090", opts.Port)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	if err := LoadConfig(testOptions{}, nil); err == nil {
		t.Error("expected error for non-pointer")
	}

	opts := &testOptions{Config: writeFile(t, "[server\nport=")}
	if err := LoadConfig(opts, nil); err == nil {
		t.Error("expected parse error")
	}

	t.Setenv(EnvPrefix+"SWAP_TIMEOUT", "soon")
	if err := LoadConfig(&testOptions{}, nil); err == nil {
		t.Error("expected duration parse error")
	}
}

func TestFieldNameToFlag(t *testing.T) {
	tests := map[string]string{
		"Port":              "port",
		"SwapTimeout":       "swap-timeout",
		"ReconnectInterval": "reconnect-interval",
	}
	for in, want := range tests {
		if got := fieldNameToFlag(in); got != want {
			t.Errorf("fieldNameToFlag(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLoadLoggingConfig(t *testing.T) {
	path := writeFile(t, `
[logging]
level = "debug"
format = "json"

[logging.modules]
hotswap = "warn"
`)
	cfg := LoadLoggingConfig(path)
	if cfg.Level != "debug" || cfg.Format != "json" {
		t.Errorf("got level=%q format=%q", cfg.Level, cfg.Format)
	}
	if cfg.Modules["hotswap"] != "warn" {
		t.Errorf("Modules = %v", cfg.Modules)
	}

	def := LoadLoggingConfig("")
	if def.Level != "info" || def.Format != "text" {
		t.Errorf("defaults = %+v", def)
	}
}
