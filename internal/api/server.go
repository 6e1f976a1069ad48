// Package api serves the generated shopping-list site, its PWA files and
// operational endpoints.
package api

import (
	"context"
	"io/fs"
	"net/http"
	"os"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tphakala/shoppinglist/internal/conf"
	"github.com/tphakala/shoppinglist/internal/errors"
	"github.com/tphakala/shoppinglist/internal/logger"
)

// Server is the static site server.
type Server struct {
	echo          *echo.Echo
	settings      *conf.Settings
	log           logger.Logger
	siteFS        fs.FS
	gatherer      prometheus.Gatherer
	serviceWorker []byte
}

// Option configures a Server.
type Option func(*Server)

// WithSiteFS serves the site from fsys instead of server.site_dir.
func WithSiteFS(fsys fs.FS) Option {
	return func(s *Server) { s.siteFS = fsys }
}

// WithGatherer exposes g on /metrics instead of the default registry.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// New builds the server and renders the service worker once up front.
func New(settings *conf.Settings, log logger.Logger, opts ...Option) (*Server, error) {
	sw, err := RenderServiceWorker(settings.Cache)
	if err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:          e,
		settings:      settings,
		log:           log.Module("api"),
		gatherer:      prometheus.DefaultGatherer,
		serviceWorker: sw,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.siteFS == nil {
		s.siteFS = os.DirFS(settings.Server.SiteDir)
	}

	s.registerMiddleware()
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	s.registerPWARoutes()
	s.registerStaticRoutes()
	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.echo }

// Start listens on server.listen until ctx is cancelled, then shuts down
// gracefully within server.shutdown_timeout.
func (s *Server) Start(ctx context.Context) error {
	s.echo.Server.Addr = s.settings.Server.Listen
	s.echo.Server.ReadTimeout = s.settings.Server.ReadTimeout.Std()
	s.echo.Server.WriteTimeout = s.settings.Server.WriteTimeout.Std()
	return serve(ctx, s.echo, s.settings.Server.ShutdownTimeout.Std(), s.log)
}

// serve runs e on e.Server until ctx is done.
func serve(ctx context.Context, e *echo.Echo, shutdownTimeout time.Duration, log logger.Logger) error {
	srv := e.Server
	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", logger.String("addr", srv.Addr))
		if err := e.StartServer(srv); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return errors.Newf("listen %s: %w", srv.Addr, err).
			Component("api").
			Category(errors.CategoryNetwork).
			Build()
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	log.Info("shutting down", logger.Duration("timeout", shutdownTimeout))
	if err := e.Shutdown(shutdownCtx); err != nil {
		return errors.Newf("shutdown %s: %w", srv.Addr, err).
			Component("api").
			Category(errors.CategoryNetwork).
			Build()
	}
	return nil
}
