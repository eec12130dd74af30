// Package server implements the HTTP servers for health checks,
// metrics and the receiver control endpoints.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthChecker interface for checking component health.
type HealthChecker interface {
	Liveness() bool
	Readiness(ctx context.Context) bool
	GetStatus() map[string]string
}

// Server represents the HTTP servers for health, metrics and control.
type Server struct {
	healthServer  *http.Server
	metricsServer *http.Server
	controlServer *http.Server
	logger        *slog.Logger
}

// NewServer creates the HTTP servers. The control server is optional;
// pass a nil controller to disable it.
func NewServer(
	healthPort int,
	metricsPort int,
	controlPort int,
	healthChecker HealthChecker,
	controller Controller,
	registry *prometheus.Registry,
	logger *slog.Logger,
) *Server {
	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/health/live", LivenessHandler(healthChecker, logger))
	healthMux.HandleFunc("/health/ready", ReadinessHandler(healthChecker, logger))

	healthServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", healthPort),
		Handler:      healthMux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	metricsServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", metricsPort),
		Handler:      metricsMux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	var controlServer *http.Server
	if controller != nil {
		controlMux := http.NewServeMux()
		controlMux.HandleFunc("/control/stop", StopHandler(controller, logger))
		controlMux.HandleFunc("/control/cleanup", CleanupHandler(controller, logger))
		controlMux.HandleFunc("/control/ratio", RatioHandler(controller, logger))

		controlServer = &http.Server{
			Addr:         fmt.Sprintf(":%d", controlPort),
			Handler:      controlMux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 30 * time.Second,
		}
	}

	return &Server{
		healthServer:  healthServer,
		metricsServer: metricsServer,
		controlServer: controlServer,
		logger:        logger,
	}
}

// Start starts the HTTP servers.
func (s *Server) Start() error {
	go func() {
		s.logger.Info("starting health server", "addr", s.healthServer.Addr)
		if err := s.healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("health server failed", "error", err)
		}
	}()

	go func() {
		s.logger.Info("starting metrics server", "addr", s.metricsServer.Addr)
		if err := s.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("metrics server failed", "error", err)
		}
	}()

	if s.controlServer != nil {
		go func() {
			s.logger.Info("starting control server", "addr", s.controlServer.Addr)
			if err := s.controlServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				s.logger.Error("control server failed", "error", err)
			}
		}()
	}

	return nil
}

// Shutdown gracefully shuts down all servers.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP servers")

	servers := []*http.Server{s.healthServer, s.metricsServer}
	if s.controlServer != nil {
		servers = append(servers, s.controlServer)
	}

	errChan := make(chan error, len(servers))
	for _, srv := range servers {
		go func(srv *http.Server) {
			errChan <- srv.Shutdown(ctx)
		}(srv)
	}

	var lastErr error
	for range servers {
		if err := <-errChan; err != nil {
			s.logger.Error("error shutting down server", "error", err)
			lastErr = err
		}
	}

	return lastErr
}
