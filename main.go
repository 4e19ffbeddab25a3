package main

import (
	"log/slog"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"

	"github.com/smazurov/castnode/cmd"
	"github.com/smazurov/castnode/internal/config"
	_ "github.com/smazurov/castnode/internal/engine/gstreamer"
	_ "github.com/smazurov/castnode/internal/engine/sim"
	"github.com/smazurov/castnode/internal/logging"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port string `help:"Port to listen on" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`

	// Pipeline settings
	Engine            string `help:"Media engine back-end (gstreamer, sim)" default:"gstreamer" toml:"pipeline.engine" env:"PIPELINE_ENGINE"`
	PreviewCategory   string `help:"Category previewed at startup (audio, video, audiovideo)" default:"video" toml:"pipeline.preview_category" env:"PIPELINE_PREVIEW_CATEGORY"`
	SwapTimeout       string `help:"Time allowed for a source hot-swap" default:"10s" toml:"pipeline.swap_timeout" env:"PIPELINE_SWAP_TIMEOUT"`
	ReconnectInterval string `help:"Delay between stream reconnect attempts" default:"5s" toml:"pipeline.reconnect_interval" env:"PIPELINE_RECONNECT_INTERVAL"`
	OverlayImage      string `help:"Initial image overlay file" default:"" toml:"pipeline.overlay_image" env:"PIPELINE_OVERLAY_IMAGE"`
	SpeakerDevice     string `help:"Local monitor audio device" default:"" toml:"pipeline.speaker_device" env:"PIPELINE_SPEAKER_DEVICE"`

	// Session settings
	SessionFile  string `help:"Session file restored at startup and saved on shutdown" default:"session.toml" toml:"session.file" env:"SESSION_FILE"`
	SessionWatch bool   `help:"Apply live settings when the session file changes" default:"true" toml:"session.watch" env:"SESSION_WATCH"`

	// Remote watch settings
	WatchInterval string `help:"Time between streaming server checks" default:"5s" toml:"watch.interval" env:"WATCH_INTERVAL"`
	WatchTimeout  string `help:"Connect timeout per server check" default:"500ms" toml:"watch.timeout" env:"WATCH_TIMEOUT"`

	// Observability settings
	ObsPrometheusEnabled bool `help:"Enable Prometheus" default:"true" toml:"obs.prometheus_enabled" env:"OBS_PROMETHEUS_ENABLED"`

	// Auth settings
	AuthUsername string `help:"Basic auth username" default:"admin" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"password" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Logging settings
	LoggingLevel    string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat   string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingPipeline string `help:"Pipeline logging level" default:"info" toml:"logging.pipeline" env:"LOGGING_PIPELINE"`
	LoggingGraph    string `help:"Graph logging level" default:"info" toml:"logging.graph" env:"LOGGING_GRAPH"`
	LoggingHotswap  string `help:"Hot-swap logging level" default:"info" toml:"logging.hotswap" env:"LOGGING_HOTSWAP"`
	LoggingOutputs  string `help:"Outputs logging level" default:"info" toml:"logging.outputs" env:"LOGGING_OUTPUTS"`
	LoggingSession  string `help:"Session logging level" default:"info" toml:"logging.session" env:"LOGGING_SESSION"`
	LoggingWatch    string `help:"Remote watch logging level" default:"info" toml:"logging.watch" env:"LOGGING_WATCH"`
	LoggingAPI      string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
}

func duration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func main() {
	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		logging.Initialize(logging.Config{
			Level:  opts.LoggingLevel,
			Format: opts.LoggingFormat,
			Modules: map[string]string{
				"pipeline": opts.LoggingPipeline,
				"graph":    opts.LoggingGraph,
				"hotswap":  opts.LoggingHotswap,
				"outputs":  opts.LoggingOutputs,
				"session":  opts.LoggingSession,
				"watch":    opts.LoggingWatch,
				"api":      opts.LoggingAPI,
				"http":     opts.LoggingAPI,
			},
		})
		a := &app{opts: opts, logger: logging.GetLogger("main")}
		hooks.OnStart(a.run)
		hooks.OnStop(a.shutdown)
	})

	cli.Root().AddCommand(cmd.CreateTopologyCmd())
	cli.Root().AddCommand(cmd.CreateWatchCmd())

	cli.Run()
}
