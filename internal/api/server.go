// Package api provides the HTTP REST API for the NAS automation controller.
//
// It exposes the automation status, the deduplicated decision log, a
// schedule timeline, period management, and the manual overrides (start
// window, device power) to dashboards and shell scripts on the LAN.
//
// The server follows the same lifecycle pattern as the other
// infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dieterch/nas-automation/internal/automation"
	"github.com/dieterch/nas-automation/internal/infrastructure/config"
	"github.com/dieterch/nas-automation/internal/infrastructure/logging"
	"github.com/dieterch/nas-automation/internal/schedule"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Ticker is the interface the server needs from the automation controller.
type Ticker interface {
	// Tick runs one throttled evaluation of the pipeline.
	Tick(ctx context.Context) (automation.Result, error)
	// TickNow runs one evaluation bypassing the throttle.
	TickNow(ctx context.Context) (automation.Result, error)
	// Execute runs a single manual decision, serialised with the tick.
	Execute(ctx context.Context, decision automation.Decision, reason string) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config     config.APIConfig
	Logger     *logging.Logger
	Controller Ticker
	StateRepo  automation.Repository
	Periods    schedule.Repository

	// Cache and the margins enrich the status and timeline responses with
	// upcoming recordings. Optional: without a cache those fields are
	// simply omitted.
	Cache automation.ScheduleCache
	Lead  time.Duration
	Lag   time.Duration

	DryRun  bool
	Version string
}

// Server is the HTTP API server for the controller.
//
// It manages the HTTP listener, routes, and middleware. The server is
// created with New() and started with Start().
type Server struct {
	cfg        config.APIConfig
	logger     *logging.Logger
	controller Ticker
	stateRepo  automation.Repository
	periods    schedule.Repository
	cache      automation.ScheduleCache
	lead       time.Duration
	lag        time.Duration
	dryRun     bool
	version    string
	server     *http.Server
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Controller == nil {
		return nil, fmt.Errorf("automation controller is required")
	}
	if deps.StateRepo == nil {
		return nil, fmt.Errorf("state repository is required")
	}
	if deps.Periods == nil {
		return nil, fmt.Errorf("period repository is required")
	}

	return &Server{
		cfg:        deps.Config,
		logger:     deps.Logger,
		controller: deps.Controller,
		stateRepo:  deps.StateRepo,
		periods:    deps.Periods,
		cache:      deps.Cache,
		lead:       deps.Lead,
		lag:        deps.Lag,
		dryRun:     deps.DryRun,
		version:    deps.Version,
	}, nil
}

// Start begins listening for HTTP connections.
//
// It sets up the router and launches the HTTP listener in a background
// goroutine. The server can be stopped with Close().
func (s *Server) Start(_ context.Context) error {
	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		err := s.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	s.logger.Info("API server started", "address", s.server.Addr)
	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
