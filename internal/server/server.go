// Package server is the HTTP control surface. It triggers manual alerts and
// exposes health and metrics endpoints. It never touches detection state.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sznuper/poolwatch/internal/alert"
	"github.com/sznuper/poolwatch/internal/gate"
)

const (
	chaosText     = "Chaos mode triggered manually via HTTP"
	chaosResponse = "Chaos mode activated"
	testText      = "Test alert triggered via HTTP"

	shutdownTimeout = 5 * time.Second
)

// Dispatcher is the gate as seen by the server.
type Dispatcher interface {
	Dispatch(ctx context.Context, a alert.Alert) gate.Outcome
}

// Options configures a Server.
type Options struct {
	Listen string
	// TriggerCooldown is the minimum time between manual triggers from one
	// client. Zero disables throttling.
	TriggerCooldown time.Duration
	// Gatherer backs GET /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
	Now      func() time.Time
}

// Server wraps an echo instance with the control routes.
type Server struct {
	echo     *echo.Echo
	gate     Dispatcher
	opts     Options
	throttle *cache.Cache
	logger   *slog.Logger
}

// New builds the server and registers its routes. Nothing listens until Run.
func New(g Dispatcher, opts Options, logger *slog.Logger) *Server {
	if opts.Now == nil {
		opts.Now = time.Now
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.IPExtractor = echo.ExtractIPDirect()

	s := &Server{echo: e, gate: g, opts: opts, logger: logger}
	if opts.TriggerCooldown > 0 {
		s.throttle = cache.New(opts.TriggerCooldown, 2*opts.TriggerCooldown)
	}

	e.Use(middleware.Recover())
	e.Use(s.requestLogger())

	e.GET("/healthz", s.handleHealth)
	e.POST("/chaos_mode/on", s.handleChaos)
	e.POST("/alerts/test", s.handleTest)
	if opts.Gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.echo }

// Addr returns the bound address once Run is listening, or nil.
func (s *Server) Addr() net.Addr { return s.echo.ListenerAddr() }

// Run listens until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.echo.Start(s.opts.Listen)
	}()
	s.logger.Info("control server listening", "addr", s.opts.Listen)

	select {
	case err := <-errCh:
		return fmt.Errorf("control server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down control server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("control server: %w", err)
	}
	return nil
}

func (s *Server) requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:   true,
		LogURI:      true,
		LogMethod:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.String("ip", v.RemoteIP),
				slog.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				attrs = append(attrs, slog.String("error", v.Error.Error()))
			}
			s.logger.LogAttrs(c.Request().Context(), slog.LevelDebug, "request", attrs...)
			return nil
		},
	})
}

// allow reports whether the client may trigger now and starts its cooldown.
func (s *Server) allow(client string) bool {
	if s.throttle == nil {
		return true
	}
	if _, found := s.throttle.Get(client); found {
		return false
	}
	s.throttle.SetDefault(client, struct{}{})
	return true
}

func (s *Server) trigger(c echo.Context, text string) (alert.Alert, gate.Outcome, bool) {
	client := c.RealIP()
	if !s.allow(client) {
		s.logger.Warn("manual trigger throttled", "ip", client)
		return alert.Alert{}, "", false
	}
	a := alert.New(alert.ClassInfo, alert.KindManual, text, s.opts.Now())
	return a, s.gate.Dispatch(c.Request().Context(), a), true
}

func (s *Server) handleChaos(c echo.Context) error {
	if _, _, ok := s.trigger(c, chaosText); !ok {
		return c.String(http.StatusTooManyRequests, "Too many requests")
	}
	return c.String(http.StatusOK, chaosResponse)
}

type testRequest struct {
	Text string `json:"text"`
}

type testResponse struct {
	ID      string       `json:"id"`
	Outcome gate.Outcome `json:"outcome"`
}

func (s *Server) handleTest(c echo.Context) error {
	var req testRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		}
	}
	if req.Text == "" {
		req.Text = testText
	}

	a, outcome, ok := s.trigger(c, req.Text)
	if !ok {
		return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "too many requests"})
	}
	return c.JSON(http.StatusOK, testResponse{ID: a.ID, Outcome: outcome})
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
