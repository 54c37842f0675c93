package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/csvanon/internal/config"
	"github.com/nao1215/csvanon/internal/metrics"
	"github.com/nao1215/csvanon/internal/model"
	"github.com/nao1215/csvanon/internal/pipeline"
)

//go:embed templates/*.html
var templateFS embed.FS

// ShutdownTimeout bounds the graceful shutdown of the HTTP server.
const ShutdownTimeout = 10 * time.Second

// multipartOverhead is allowed on top of MaxUploadSize for the multipart
// framing of the request body.
const multipartOverhead = 1 << 20

// HistoryStore is the read side of the run history.
type HistoryStore interface {
	ListRuns(ctx context.Context, limit int) ([]*model.Run, error)
	GetRun(ctx context.Context, id string) (*model.Run, error)
}

// Server is the csvanon web server.
type Server struct {
	cfg     *config.Config
	flow    pipeline.Executor
	history HistoryStore
	metrics *metrics.Collector
	logger  *slog.Logger
	version string
	engine  *gin.Engine
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger for requests and server events.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithHistory enables the /runs endpoints.
func WithHistory(h HistoryStore) Option {
	return func(s *Server) {
		s.history = h
	}
}

// WithMetrics enables the /metrics endpoint and request metrics.
func WithMetrics(m *metrics.Collector) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithVersion sets the version shown on the pages.
func WithVersion(version string) Option {
	return func(s *Server) {
		s.version = version
	}
}

// NewServer creates a Server running uploads through flow.
func NewServer(cfg *config.Config, flow pipeline.Executor, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:     cfg,
		flow:    flow,
		version: "dev",
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	engine := gin.New()
	engine.MaxMultipartMemory = cfg.MaxUploadSize
	engine.SetHTMLTemplate(tmpl)
	engine.Use(gin.Recovery(), s.requestLogger())

	engine.GET("/", s.handleIndex)
	engine.POST("/upload", s.handleUpload)
	engine.GET("/artifacts/:name", s.handleArtifact)
	engine.GET("/healthz", s.handleHealth)

	api := engine.Group("/api/v1")
	{
		api.POST("/anonymize", s.handleAPIAnonymize)
	}

	engine.GET("/runs", s.handleListRuns)
	engine.GET("/runs/:id", s.handleGetRun)

	if s.metrics != nil {
		engine.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	s.engine = engine
	return s, nil
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on the configured listen address until ctx is cancelled,
// then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.ListenAddress, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled. Request contexts derive from
// ctx, so running anonymizations are cancelled and their temporary files
// removed before the server stops.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server started", "address", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// requestLogger logs every request through slog.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		level := slog.LevelInfo
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		s.logger.Log(c.Request.Context(), level, "request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"client_ip", c.ClientIP(),
		)
	}
}
