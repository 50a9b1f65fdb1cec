// Package health serves the operator endpoints: a liveness check and the
// Prometheus metrics of the order server.
package health

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var logger logrus.FieldLogger = logrus.StandardLogger()

// Status is the body of the /health response.
type Status struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
	Orders   int    `json:"orders"`
}

// StatusFunc reports the current number of sessions and orders.
type StatusFunc func() (sessions, orders int)

// Server serves /health and /metrics.
type Server struct {
	addr   string
	status StatusFunc
	e      *echo.Echo
}

// Cfg configures a Server.
type Cfg func(*Server) error

// WithPort sets the port to listen on.
func WithPort(port uint16) Cfg {
	return func(s *Server) error {
		s.addr = fmt.Sprintf(":%d", port)
		return nil
	}
}

// WithStatus sets the function reporting server state.
func WithStatus(fn StatusFunc) Cfg {
	return func(s *Server) error {
		s.status = fn
		return nil
	}
}

// NewServer creates a new health Server.
func NewServer(cfgs ...Cfg) (*Server, error) {
	s := &Server{
		addr:   ":8081",
		status: func() (int, int) { return 0, 0 },
	}
	for _, cfg := range cfgs {
		if err := cfg(s); err != nil {
			return nil, errors.Wrap(err, "apply health Server cfg failed")
		}
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.GET("/health", s.handleHealth)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	s.e = e
	return s, nil
}

// Handler returns the HTTP handler serving the endpoints.
func (s *Server) Handler() http.Handler {
	return s.e
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	logger.WithField("addr", s.addr).Info("health server listening")
	if err := s.e.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "start health server failed")
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return errors.Wrap(s.e.Shutdown(ctx), "shutdown health server failed")
}

func (s *Server) handleHealth(c echo.Context) error {
	sessions, orders := s.status()
	return c.JSON(http.StatusOK, Status{
		Status:   "ok",
		Sessions: sessions,
		Orders:   orders,
	})
}
