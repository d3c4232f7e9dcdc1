package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/KazimAndrei/HollyProject/internal/handlers"
	"github.com/KazimAndrei/HollyProject/internal/metrics"
)

const requestIDHeader = "X-Request-ID"

// Server represents the HTTP server
type Server struct {
	engine  *gin.Engine
	http    *http.Server
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// Options configure NewServer.
type Options struct {
	Verbose bool
	// CORSOrigins lists the browser origins allowed to call the API. Empty or "*" allows any.
	CORSOrigins []string
	Gatherer    prometheus.Gatherer
	Metrics     *metrics.Metrics
	Logger      zerolog.Logger
}

// NewServer creates a new HTTP server
func NewServer(handler *handlers.Handler, opts Options) *Server {
	if opts.Verbose {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		engine:  gin.New(),
		logger:  opts.Logger.With().Str("component", "server").Logger(),
		metrics: opts.Metrics,
	}

	s.http = &http.Server{
		Handler:      s.engine,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.engine.Use(gin.Recovery(), s.requestID, s.logging, cors.New(corsConfig(opts.CORSOrigins)))
	handler.Register(s.engine)
	if opts.Gatherer != nil {
		s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start serves on port until Shutdown is called. It returns nil after a clean shutdown.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("Starting Holly server")
	s.logger.Debug().Msg("Available endpoints:")
	for _, r := range s.engine.Routes() {
		s.logger.Debug().Msgf("  %-4s %s", r.Method, r.Path)
	}

	if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down server")
	return s.http.Shutdown(ctx)
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", requestIDHeader},
		ExposeHeaders: []string{requestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}

func (s *Server) requestID(c *gin.Context) {
	id := c.GetHeader(requestIDHeader)
	if id == "" {
		id = uuid.NewString()
	}
	c.Set("request_id", id)
	c.Header(requestIDHeader, id)
	c.Next()
}

// logging records every request and feeds the HTTP metrics.
func (s *Server) logging(c *gin.Context) {
	start := time.Now()
	c.Next()
	elapsed := time.Since(start)

	route := c.FullPath()
	if route == "" {
		route = "unmatched"
	}
	status := c.Writer.Status()
	s.metrics.ObserveHTTP(route, status, elapsed)

	event := s.logger.Debug()
	if status >= http.StatusInternalServerError {
		event = s.logger.Warn()
	}
	event.
		Str("request_id", c.GetString("request_id")).
		Str("method", c.Request.Method).
		Str("route", route).
		Int("status", status).
		Dur("elapsed", elapsed).
		Msg("HTTP request")
}
