// Package api serves the job manager over HTTP with huma.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/smazurov/procstream/internal/api/models"
	"github.com/smazurov/procstream/internal/config"
	"github.com/smazurov/procstream/internal/events"
	"github.com/smazurov/procstream/internal/jobs"
	"github.com/smazurov/procstream/internal/logging"
	"github.com/smazurov/procstream/internal/version"
)

// JobService is the part of the job manager the API needs.
type JobService interface {
	Start(ctx context.Context, spec config.JobSpec) (*jobs.Info, error)
	Status(id string) (*jobs.Info, error)
	List() []jobs.Info
	Kill(id string) error
	Remove(id string) error
}

// Options configures a Server.
type Options struct {
	AuthUsername      string
	AuthPassword      string
	Jobs              JobService
	EventBus          *events.Bus  // Optional; enables /api/events
	PrometheusHandler http.Handler // Optional Prometheus metrics handler
}

// Server is the HTTP API server.
type Server struct {
	api        huma.API
	mux        *http.ServeMux
	httpServer *http.Server
	jobs       JobService
	eventBus   *events.Bus
	logger     *slog.Logger
}

// NewServer creates an API server on a Go 1.22+ ServeMux.
func NewServer(opts *Options) *Server {
	mux := http.NewServeMux()

	corsConfig := DefaultCORSConfig()
	AddCORSHandler(mux, corsConfig)

	humaConfig := huma.DefaultConfig("procstream API", version.Get().Version)
	humaConfig.Info.Description = "Run command pipelines as jobs and observe their output"
	// Relative server URLs work behind any host
	humaConfig.Servers = []*huma.Server{}
	humaConfig.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"basicAuth": {
			Type:   "http",
			Scheme: "basic",
		},
	}

	api := humago.New(mux, humaConfig)

	server := &Server{
		api:      api,
		mux:      mux,
		jobs:     opts.Jobs,
		eventBus: opts.EventBus,
		logger:   logging.GetLogger("api"),
	}

	api.UseMiddleware(NewCORSMiddleware(corsConfig))
	api.UseMiddleware(HTTPLoggingMiddleware)
	if opts.AuthUsername != "" && opts.AuthPassword != "" {
		api.UseMiddleware(server.basicAuthMiddleware(opts.AuthUsername, opts.AuthPassword))
	}

	// Scraped without auth
	if opts.PrometheusHandler != nil {
		mux.Handle("GET /metrics", opts.PrometheusHandler)
	}

	server.registerRoutes()
	return server
}

// Handler returns the HTTP handler serving the API.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// API returns the huma API instance.
func (s *Server) API() huma.API {
	return s.api
}

// Start serves on addr until Stop is called.
func (s *Server) Start(addr string) error {
	s.logger.Info("Starting API server", "addr", addr)
	s.logger.Info("OpenAPI documentation available", "url", "http://"+addr+"/docs")

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts the server down, closing connections that outlive ctx.
// Event streams never finish on their own, so a short deadline is expected.
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
		Security:    []map[string][]string{}, // no auth
	}, func(_ context.Context, _ *struct{}) (*models.HealthResponse, error) {
		return &models.HealthResponse{
			Body: models.HealthData{Status: "ok", Message: "API is healthy"},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-version",
		Method:      http.MethodGet,
		Path:        "/api/version",
		Summary:     "Version",
		Description: "Get application version information",
		Tags:        []string{"system"},
		Security:    []map[string][]string{}, // no auth
	}, func(_ context.Context, _ *struct{}) (*models.VersionResponse, error) {
		return &models.VersionResponse{Body: version.Get()}, nil
	})

	s.registerJobRoutes()

	if s.eventBus != nil {
		s.registerSSERoutes()
	}
}

// withAuth returns security requirement for basic auth.
func withAuth() []map[string][]string {
	return []map[string][]string{
		{"basicAuth": {}},
	}
}
