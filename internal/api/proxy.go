package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tphakala/shoppinglist/internal/conf"
	"github.com/tphakala/shoppinglist/internal/logger"
)

// ProxyMetricsPath is the one path the proxy answers itself.
const ProxyMetricsPath = "/_proxy/metrics"

// Proxy exposes an offline caching handler on proxy.listen. Every method and
// path except ProxyMetricsPath is forwarded to the handler, which decides the
// fetch policy.
type Proxy struct {
	echo     *echo.Echo
	settings *conf.Settings
	log      logger.Logger
}

// NewProxy wraps handler in the shared recovery, request ID and logging
// middleware.
func NewProxy(settings *conf.Settings, handler http.Handler, gatherer prometheus.Gatherer, log logger.Logger) *Proxy {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	p := &Proxy{echo: e, settings: settings, log: log.Module("proxy")}
	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(requestLogger(p.log))
	e.GET(ProxyMetricsPath, echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	e.Any("/*", echo.WrapHandler(handler))
	return p
}

// Handler returns the root handler.
func (p *Proxy) Handler() http.Handler { return p.echo }

// Start listens on proxy.listen until ctx is cancelled.
func (p *Proxy) Start(ctx context.Context) error {
	p.echo.Server.Addr = p.settings.Proxy.Listen
	p.echo.Server.ReadTimeout = p.settings.Server.ReadTimeout.Std()
	p.echo.Server.WriteTimeout = p.settings.Server.WriteTimeout.Std()
	return serve(ctx, p.echo, p.settings.Server.ShutdownTimeout.Std(), p.log)
}
