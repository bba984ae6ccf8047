// Package dashboard serves the HTTP status page and image endpoints backed by
// the session registry.
package dashboard

import (
	"context"
	_ "embed"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/cyberinferno/screenhub/logger"
	"github.com/cyberinferno/screenhub/metrics"
	"github.com/cyberinferno/screenhub/registry"
	"github.com/gin-gonic/gin"
)

//go:embed index.html
var indexHTML []byte

const shutdownTimeout = 5 * time.Second

// Server is the dashboard HTTP server.
type Server struct {
	registry *registry.Registry
	metrics  *metrics.Metrics
	logger   logger.Logger
	engine   *gin.Engine
	addr     string
}

// New creates the dashboard and its routes. m may be nil, in which case
// /metrics answers 404.
func New(addr string, reg *registry.Registry, m *metrics.Metrics, log logger.Logger) *Server {
	if log == nil {
		log = logger.NewNopLogger()
	}

	s := &Server{
		registry: reg,
		metrics:  m,
		logger:   log,
		engine:   gin.New(),
		addr:     addr,
	}

	s.engine.Use(gin.Recovery(), m.Middleware(), s.requestLog(), cors())
	s.engine.GET("/", s.index)
	s.engine.GET("/api/status", s.status)
	s.engine.GET("/api/screenshot", s.latestScreenshot)
	s.engine.GET("/api/screenshot/:id", s.screenshot)
	s.engine.DELETE("/api/screenshot/:id", s.deleteScreenshot)
	s.engine.GET("/metrics", s.refreshGauges(), gin.WrapH(m.Handler()))

	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Serve listens on the configured address until ctx is cancelled, then
// shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("dashboard started", logger.Field{Key: "addr", Value: s.addr})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	s.logger.Info("dashboard stopped")
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) index(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", indexHTML)
}

func (s *Server) status(c *gin.Context) {
	if err := s.registry.PruneFrames(c.Request.Context()); err != nil {
		s.logger.Warn("failed to prune expired frames", logger.Err(err))
	}
	c.JSON(http.StatusOK, s.registry.Snapshot())
}

func (s *Server) deleteScreenshot(c *gin.Context) {
	id := c.Param("id")
	if err := s.registry.ForgetFrame(c.Request.Context(), id); err != nil {
		s.logger.Error("failed to delete screenshot", logger.Field{Key: "client_id", Value: id}, logger.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete screenshot"})
		return
	}

	s.logger.Info("screenshot deleted", logger.Field{Key: "client_id", Value: id})
	c.Status(http.StatusNoContent)
}

// refreshGauges samples store-backed gauges right before a scrape.
func (s *Server) refreshGauges() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.metrics == nil {
			return
		}
		n, err := s.registry.StoredFrames(c.Request.Context())
		if err != nil {
			s.logger.Warn("failed to count stored frames", logger.Err(err))
			return
		}
		s.metrics.SetStoredFrames(n)
	}
}

func (s *Server) screenshot(c *gin.Context) {
	id := c.Param("id")
	blob, err := s.registry.GetFrame(c.Request.Context(), id)
	s.writeImage(c, id, blob, err)
}

func (s *Server) latestScreenshot(c *gin.Context) {
	id, blob, err := s.registry.LatestFrame(c.Request.Context())
	s.writeImage(c, id, blob, err)
}

func (s *Server) writeImage(c *gin.Context, id, blob string, err error) {
	if errors.Is(err, registry.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no screenshot available"})
		return
	}
	if err != nil {
		s.logger.Error("failed to load screenshot", logger.Field{Key: "client_id", Value: id}, logger.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load screenshot"})
		return
	}

	img, err := decodeImage(blob)
	if err != nil {
		s.logger.Warn("corrupt screenshot", logger.Field{Key: "client_id", Value: id}, logger.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "corrupt screenshot"})
		return
	}

	c.Header("Cache-Control", "no-cache")
	c.Data(http.StatusOK, "image/jpeg", img)
}

// decodeImage accepts plain base64 or a data URL.
func decodeImage(blob string) ([]byte, error) {
	if i := strings.Index(blob, ";base64,"); strings.HasPrefix(blob, "data:") && i >= 0 {
		blob = blob[i+len(";base64,"):]
	}
	return base64.StdEncoding.DecodeString(blob)
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			logger.Field{Key: "method", Value: c.Request.Method},
			logger.Field{Key: "path", Value: c.Request.URL.Path},
			logger.Field{Key: "status", Value: c.Writer.Status()},
			logger.Field{Key: "duration", Value: time.Since(start).String()},
		)
	}
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, DELETE")
		c.Next()
	}
}
