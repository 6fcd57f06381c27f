// Package server exposes the worker's health, status and metrics over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"agentscore/internal/logging"
	"agentscore/internal/worker"
)

// StatsSource is what the status surface reports on.
type StatsSource interface {
	Stats() worker.Stats
}

// Config configures the status server.
type Config struct {
	Addr            string
	AllowedOrigins  []string
	ShutdownTimeout time.Duration
}

// Server is a small read-only HTTP surface next to the worker loop.
type Server struct {
	cfg     Config
	engine  *gin.Engine
	logger  logging.Logger
	started time.Time
}

// New builds the router. metrics may be nil.
func New(cfg Config, source StatsSource, metrics http.Handler, logger logging.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}

	s := &Server{
		cfg:     cfg,
		engine:  gin.New(),
		logger:  logging.OrNop(logger),
		started: time.Now(),
	}

	s.engine.Use(gin.Recovery())
	s.engine.Use(s.requestLog())

	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	}
	corsConfig.AllowMethods = []string{http.MethodGet, http.MethodOptions}
	s.engine.Use(cors.New(corsConfig))

	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, source.Stats())
	})
	if metrics != nil {
		s.engine.GET("/metrics", gin.WrapH(metrics))
	}
	return s
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Truncate(time.Second).String(),
	})
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("%s %s -> %d (%s)", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

// Serve listens on the configured address until ctx ends, then shuts the
// server down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("status server listen %s: %w", s.cfg.Addr, err)
	}
	return s.serve(ctx, listener)
}

func (s *Server) serve(ctx context.Context, listener net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("status server listening on %s", listener.Addr())
		errCh <- httpServer.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("status server shutdown: %w", err)
		}
		return nil
	}
}
