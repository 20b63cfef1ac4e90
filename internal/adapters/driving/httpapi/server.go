// Package httpapi exposes the fleetsync operations surface over HTTP:
// health, connection status, on-demand sync, event intake, dead letters
// and prometheus metrics.
package httpapi

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/custodia-labs/fleetsync/internal/core/ports/driving"
	"github.com/custodia-labs/fleetsync/internal/logger"
	"github.com/custodia-labs/fleetsync/internal/metrics"
)

// ErrMissingConnectionService is returned when the connection service is not provided.
var ErrMissingConnectionService = errors.New("httpapi: connection service is required")

// HealthCheck probes one dependency for /health.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Ports aggregates the driving ports the API calls.
type Ports struct {
	// Connections is required.
	Connections driving.ConnectionService

	// Sync enables POST /connections/:id/sync and live run status.
	Sync driving.SyncOrchestrator

	// Bridge enables the /events routes.
	Bridge driving.EventBridge

	// Reader enables GET /entities/:type.
	Reader driving.EntityReader

	// Health lists the dependency probes reported by /health.
	Health []HealthCheck
}

// Validate ensures all required ports are set.
func (p *Ports) Validate() error {
	if p.Connections == nil {
		return ErrMissingConnectionService
	}
	return nil
}

// Server is the fiber application serving the operations API.
type Server struct {
	ports *Ports
	app   *fiber.App
	now   func() time.Time
}

// NewServer creates the API and registers its routes.
func NewServer(ports *Ports) (*Server, error) {
	if err := ports.Validate(); err != nil {
		return nil, err
	}

	s := &Server{
		ports: ports,
		now:   time.Now,
	}
	s.app = fiber.New(fiber.Config{
		AppName:               "fleetsync",
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})
	s.app.Use(recover.New())
	s.app.Use(requestMetrics)
	s.routes()
	return s, nil
}

// App returns the underlying fiber app, for tests and embedding.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Listen(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http api listening", zap.String("addr", addr))
		errCh <- s.app.Listen(addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("http api shutdown failed", zap.Error(err))
		return err
	}
	logger.Info("http api stopped")
	return nil
}

func (s *Server) routes() {
	s.app.Get("/health", s.handleHealth)
	s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	s.app.Get("/providers", s.handleProviders)
	s.app.Get("/connections", s.handleListConnections)
	s.app.Get("/connections/:id/status", s.handleConnectionStatus)
	s.app.Post("/connections/:id/sync", s.handleSync)
	s.app.Get("/connections/:id/runs", s.handleRuns)

	s.app.Post("/events", s.handleEvent)
	s.app.Get("/events/dead-letters", s.handleDeadLetters)
	s.app.Post("/events/redrive", s.handleRedrive)

	s.app.Get("/entities/:type", s.handleEntities)
}

// requestMetrics counts requests by matched route and status code.
func requestMetrics(c *fiber.Ctx) error {
	err := c.Next()
	status := c.Response().StatusCode()
	var fe *fiber.Error
	if errors.As(err, &fe) {
		status = fe.Code
	} else if err != nil {
		status = statusFor(err)
	}
	metrics.HTTPRequests.WithLabelValues(c.Route().Path, strconv.Itoa(status)).Inc()
	return err
}
