package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"text/template"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/shoppinglist/internal/conf"
	"github.com/tphakala/shoppinglist/internal/errors"
	"github.com/tphakala/shoppinglist/web"
)

const (
	mimeJavaScript = "application/javascript; charset=utf-8"
	mimeManifest   = "application/manifest+json"
)

// RenderServiceWorker fills the embedded service worker template with the
// cache settings. Values are JSON-encoded so they are valid script literals.
func RenderServiceWorker(c conf.CacheSettings) ([]byte, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	tmpl, err := template.New(web.ServiceWorkerTemplate).
		Funcs(template.FuncMap{"json": jsonLiteral}).
		ParseFS(web.ServiceWorkerFS, web.ServiceWorkerTemplate)
	if err != nil {
		return nil, errors.Newf("parse service worker template: %w", err).
			Component("api").
			Category(errors.CategoryFileIO).
			Build()
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, c); err != nil {
		return nil, errors.Newf("render service worker: %w", err).
			Component("api").
			Category(errors.CategoryGeneric).
			Build()
	}
	return buf.Bytes(), nil
}

func jsonLiteral(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// registerPWARoutes registers routes for PWA support files.
// The manifest and service worker must be served from root paths
// so the service worker scope covers the entire application.
func (s *Server) registerPWARoutes() {
	s.echo.GET("/manifest.webmanifest", func(c echo.Context) error {
		c.Response().Header().Set("Content-Type", mimeManifest)
		return s.handlePWAFile(c, "manifest.webmanifest")
	})

	// The worker is rendered from config rather than read from the site dir.
	s.echo.GET("/sw.js", func(c echo.Context) error {
		h := c.Response().Header()
		h.Set("Service-Worker-Allowed", "/")
		h.Set("Cache-Control", "no-cache")
		return c.Blob(http.StatusOK, mimeJavaScript, s.serviceWorker)
	})
}

// handlePWAFile serves a fixed-name PWA file from the site. These names are
// never content-hashed, so browsers must revalidate them.
func (s *Server) handlePWAFile(c echo.Context, filename string) error {
	c.Response().Header().Set("Cache-Control", "no-cache")
	return s.serveSiteFile(c, filename)
}
