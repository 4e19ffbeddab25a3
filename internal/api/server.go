package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/smazurov/castnode/internal/api/models"
	"github.com/smazurov/castnode/internal/events"
	"github.com/smazurov/castnode/internal/logging"
	"github.com/smazurov/castnode/internal/pipeline"
	"github.com/smazurov/castnode/internal/session"
	"github.com/smazurov/castnode/internal/watch"
)

// Options wires the server to the running components.
type Options struct {
	AuthUsername      string
	AuthPassword      string
	Pipeline          *pipeline.Pipeline
	Watcher           *watch.Watcher // optional
	Session           *session.Store // optional
	EventBus          *events.Bus
	PrometheusHandler http.Handler // optional
}

// Server is the Huma v2 control API of a pipeline.
type Server struct {
	api        huma.API
	mux        *http.ServeMux
	httpServer *http.Server
	pipeline   *pipeline.Pipeline
	watcher    *watch.Watcher
	session    *session.Store
	eventBus   *events.Bus
	options    *Options
	logger     *slog.Logger
}

// NewServer creates the API server and registers every route.
func NewServer(opts *Options) *Server {
	mux := http.NewServeMux()

	corsConfig := DefaultCORSConfig()
	AddCORSHandler(mux, corsConfig)

	config := huma.DefaultConfig("castnode API", "1.0.0")
	config.Info.Description = "Control API of the castnode broadcast pipeline"
	config.Servers = []*huma.Server{}
	config.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"basicAuth": {
			Type:   "http",
			Scheme: "basic",
		},
	}

	api := humago.New(mux, config)

	s := &Server{
		api:      api,
		mux:      mux,
		pipeline: opts.Pipeline,
		watcher:  opts.Watcher,
		session:  opts.Session,
		eventBus: opts.EventBus,
		options:  opts,
		logger:   logging.GetLogger("api"),
	}
	if s.eventBus == nil {
		s.eventBus = events.New()
	}

	api.UseMiddleware(NewCORSMiddleware(corsConfig))
	api.UseMiddleware(HTTPLoggingMiddleware)
	if opts.AuthUsername != "" && opts.AuthPassword != "" {
		api.UseMiddleware(s.basicAuthMiddleware(opts.AuthUsername, opts.AuthPassword))
	}

	if opts.PrometheusHandler != nil {
		mux.Handle("GET /metrics", opts.PrometheusHandler)
	}

	s.registerRoutes()
	return s
}

// GetMux returns the underlying HTTP ServeMux.
func (s *Server) GetMux() *http.ServeMux {
	return s.mux
}

// GetAPI returns the Huma API instance.
func (s *Server) GetAPI() huma.API {
	return s.api
}

// Start serves on addr until Stop. It returns nil after a clean shutdown.
func (s *Server) Start(addr string) error {
	s.logger.Info("Starting API server", "addr", addr)
	s.logger.Info("OpenAPI documentation available", "url", "http://"+addr+"/docs")

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts the server down, waiting for requests in flight until ctx is
// done. Event streams are cut immediately.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping API server")
	if s.httpServer == nil {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return s.httpServer.Close()
	}
	return nil
}

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "health-check",
		Method:      http.MethodGet,
		Path:        "/api/health",
		Summary:     "Health",
		Description: "Check API health status",
		Tags:        []string{"health"},
		Security:    []map[string][]string{},
	}, func(ctx context.Context, input *struct{}) (*models.HealthResponse, error) {
		return &models.HealthResponse{
			Body: models.HealthData{
				Status:  "ok",
				Message: "API is healthy",
			},
		}, nil
	})

	s.registerPipelineRoutes()
	s.registerSourceRoutes()
	s.registerOutputRoutes()
	s.registerOverlayRoutes()
	s.registerUnitRoutes()
	s.registerRemoteRoutes()
	s.registerSessionRoutes()
	s.registerSSERoutes()
	s.registerLogRoutes()
}

// withAuth returns the security requirement for basic auth.
func withAuth() []map[string][]string {
	return []map[string][]string{
		{"basicAuth": {}},
	}
}
