package main

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/smazurov/castnode/internal/api"
	"github.com/smazurov/castnode/internal/engine"
	"github.com/smazurov/castnode/internal/events"
	"github.com/smazurov/castnode/internal/graph"
	"github.com/smazurov/castnode/internal/logging"
	"github.com/smazurov/castnode/internal/metrics"
	"github.com/smazurov/castnode/internal/pipeline"
	"github.com/smazurov/castnode/internal/session"
	"github.com/smazurov/castnode/internal/watch"
)

const shutdownTimeout = 10 * time.Second

// app is the server started by the root command. Components are built in
// run so sub-commands never open the engine.
type app struct {
	opts   *Options
	logger *slog.Logger

	mu            sync.Mutex
	stopped       bool
	cancel        context.CancelFunc
	pipeline      *pipeline.Pipeline
	watcher       *watch.Watcher
	store         *session.Store
	server        *api.Server
	detachMetrics func()
}

func (a *app) build() error {
	opts := a.opts

	bus := events.New()
	logging.SetLogCallback(func(entry logging.LogEntry) {
		bus.Publish(events.LogEntryEvent{LogEntry: entry})
	})
	a.detachMetrics = metrics.Attach(bus)

	eng, err := engine.Open(opts.Engine)
	if err != nil {
		a.logger.Error("Failed to open media engine", "engine", opts.Engine, "available", engine.Available())
		return err
	}

	p, err := pipeline.New(eng, pipeline.Config{
		SwapTimeout:       duration(opts.SwapTimeout, 0),
		ReconnectInterval: duration(opts.ReconnectInterval, 0),
		PreviewCategory:   a.previewCategory(),
		OverlayImage:      opts.OverlayImage,
		SpeakerDevice:     opts.SpeakerDevice,
	}, pipeline.WithBus(bus))
	if err != nil {
		return err
	}
	a.pipeline = p

	a.watcher = watch.New(
		watch.WithInterval(duration(opts.WatchInterval, watch.DefaultInterval)),
		watch.WithTimeout(duration(opts.WatchTimeout, watch.DefaultTimeout)),
		watch.WithBus(bus),
	)
	if opts.SessionFile != "" {
		a.store = session.NewStore(opts.SessionFile)
	}

	apiOpts := &api.Options{
		AuthUsername: opts.AuthUsername,
		AuthPassword: opts.AuthPassword,
		Pipeline:     p,
		Watcher:      a.watcher,
		Session:      a.store,
		EventBus:     bus,
	}
	if opts.ObsPrometheusEnabled {
		apiOpts.PrometheusHandler = promhttp.Handler()
	}
	a.server = api.NewServer(apiOpts)
	return nil
}

func (a *app) previewCategory() graph.Category {
	cat, err := graph.ParseCategory(a.opts.PreviewCategory)
	if err != nil {
		a.logger.Warn("Invalid preview category, using video", "value", a.opts.PreviewCategory)
		return graph.CategoryVideo
	}
	return cat
}

// restore applies the saved session and falls back to preview.
func (a *app) restore(ctx context.Context) {
	if a.store != nil {
		f, err := a.store.Load()
		if err != nil {
			a.logger.Warn("Failed to load session", "path", a.store.Path(), "error", err)
		} else if err := session.Restore(ctx, a.pipeline, f, nil); err != nil {
			a.logger.Warn("Session restored with errors", "error", err)
		}
	}
	if a.pipeline.State() == pipeline.StateIdle {
		if err := a.pipeline.EnterPreview(ctx, a.previewCategory()); err != nil {
			a.logger.Warn("Failed to enter preview", "error", err)
		}
	}
}

func (a *app) run() {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return
	}
	if err := a.build(); err != nil {
		a.mu.Unlock()
		a.logger.Error("Startup failed", "error", err)
		os.Exit(1)
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.mu.Unlock()

	a.restore(ctx)
	a.watcher.Start(ctx)

	g, gctx := errgroup.WithContext(ctx)
	if a.store != nil && a.opts.SessionWatch {
		g.Go(func() error {
			if err := a.store.Watch(gctx, a.pipeline, 0); err != nil {
				a.logger.Warn("Session watch disabled", "path", a.store.Path(), "error", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		select {
		case <-a.pipeline.Done():
			a.logger.Warn("Pipeline closed")
		case <-gctx.Done():
		}
		return nil
	})
	g.Go(func() error {
		return a.server.Start(a.opts.Port)
	})

	if err := g.Wait(); err != nil {
		a.logger.Error("Server stopped", "error", err)
		os.Exit(1)
	}
}

// shutdown stops the API, saves the session and closes the pipeline.
func (a *app) shutdown() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopped = true
	if a.pipeline == nil {
		return
	}

	a.logger.Info("Shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.server.Stop(ctx); err != nil {
		a.logger.Error("Error stopping HTTP server", "error", err)
	}
	a.watcher.Stop()
	if a.cancel != nil {
		a.cancel()
	}

	if a.store != nil {
		if f, err := session.Snapshot(ctx, a.pipeline); err != nil {
			a.logger.Error("Failed to snapshot session", "error", err)
		} else if err := a.store.Save(f); err != nil {
			a.logger.Error("Failed to save session", "path", a.store.Path(), "error", err)
		}
	}

	if err := a.pipeline.Close(ctx); err != nil {
		a.logger.Error("Error closing pipeline", "error", err)
	}
	a.detachMetrics()
}
