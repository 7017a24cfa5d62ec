// Package server serves the blog over HTTP: the home page, per-viewer post
// lists with load-more, post pages with on-demand fallback, and metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/ppiankov/ignblog/internal/cms"
	"github.com/ppiankov/ignblog/internal/render"
	"github.com/ppiankov/ignblog/internal/site"
	"github.com/ppiankov/ignblog/internal/store"
)

const shutdownTimeout = 10 * time.Second

// Snapshots returns the initial page currently published.
type Snapshots interface {
	Current() site.Snapshot
}

// Config configures the server.
type Config struct {
	Addr         string
	DocumentType string
	// ViewTTL is how long an untouched view lives. Zero keeps views until deleted.
	ViewTTL time.Duration
	// DocumentTTL is the age after which a stored post is fetched again.
	DocumentTTL time.Duration
	// LoadRate limits view requests per second per client. Zero disables the limit.
	LoadRate float64
}

// Deps are the collaborators the handlers use.
type Deps struct {
	Source    cms.Source
	Store     *store.Store
	Builder   *site.Builder
	Snapshots Snapshots
	Renderer  *render.Renderer
}

// Server is the HTTP front-end.
type Server struct {
	cfg   Config
	deps  Deps
	echo  *echo.Echo
	views *views
	now   func() time.Time
}

// New creates a server and registers its routes.
func New(cfg Config, deps Deps) *Server {
	if cfg.DocumentType == "" {
		cfg.DocumentType = "post"
	}
	s := &Server{
		cfg:   cfg,
		deps:  deps,
		echo:  echo.New(),
		views: newViews(cfg.ViewTTL),
		now:   time.Now,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	e := s.echo
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:   true,
		LogURI:      true,
		LogError:    true,
		LogMethod:   true,
		LogLatency:  true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			ctx := c.Request().Context()
			if v.Error == nil {
				slog.DebugContext(ctx, "request completed",
					"method", v.Method,
					"uri", v.URI,
					"status", v.Status,
					"latency_ms", v.Latency.Milliseconds())
			} else {
				slog.ErrorContext(ctx, "request failed",
					"method", v.Method,
					"uri", v.URI,
					"status", v.Status,
					"latency_ms", v.Latency.Milliseconds(),
					"error", v.Error.Error())
			}
			return nil
		},
	}))
	e.Use(middleware.Recover())

	e.GET("/", s.handleHome)
	e.GET("/post/:slug", s.handlePost)
	e.GET("/health", s.handleHealth)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.StaticFS("/static", render.Static())

	g := e.Group("/views")
	if s.cfg.LoadRate > 0 {
		g.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(rate.Limit(s.cfg.LoadRate))))
	}
	g.POST("", s.handleCreateView)
	g.GET("/:id", s.handleView)
	g.POST("/:id/more", s.handleLoadMore)
	g.DELETE("/:id", s.handleDeleteView)
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Run serves on cfg.Addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	go s.janitor(ctx)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", "address", s.cfg.Addr)
		if err := s.echo.Start(s.cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.views.closeAll()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown server: %w", err)
	}
	return nil
}

// janitor closes views that have been idle longer than the view ttl.
func (s *Server) janitor(ctx context.Context) {
	if s.cfg.ViewTTL <= 0 {
		return
	}
	interval := max(s.cfg.ViewTTL/2, time.Second)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.views.evictIdle(); n > 0 {
				slog.Debug("evicted idle views", "count", n)
			}
		}
	}
}
