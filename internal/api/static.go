package api

import (
	"io/fs"
	"path"
	"strings"

	"github.com/labstack/echo/v4"
)

const indexPage = "index.html"

// templateSuffix marks build inputs that live next to the site but are not
// part of it.
const templateSuffix = ".template.html"

// registerStaticRoutes serves the generated site. Unknown paths are 404; the
// offline fallback is the service worker's job, not the server's.
func (s *Server) registerStaticRoutes() {
	s.echo.GET("/", func(c echo.Context) error {
		c.Response().Header().Set("Cache-Control", cacheControlFor(indexPage))
		return s.serveSiteFile(c, indexPage)
	})
	s.echo.GET("/*", s.handleStatic)
}

func (s *Server) handleStatic(c echo.Context) error {
	name, ok := sitePath(c.Param("*"))
	if !ok {
		return echo.ErrNotFound
	}
	c.Response().Header().Set("Cache-Control", cacheControlFor(name))
	return s.serveSiteFile(c, name)
}

func (s *Server) serveSiteFile(c echo.Context, name string) error {
	return c.FileFS(name, s.siteFS)
}

// sitePath converts a request path into an fs.FS name. It rejects traversal
// and build templates.
func sitePath(p string) (string, bool) {
	p = strings.TrimPrefix(p, "/")
	if p == "" || strings.HasSuffix(p, "/") {
		p += indexPage
	}
	if !fs.ValidPath(p) || strings.HasSuffix(p, templateSuffix) {
		return "", false
	}
	return p, true
}

// cacheControlFor picks a Cache-Control value. Documents and the manifest
// are rebuilt in place so they revalidate; other assets may be cached for
// a day.
func cacheControlFor(name string) string {
	switch path.Ext(name) {
	case ".html", ".webmanifest", ".json", ".js":
		return "no-cache"
	default:
		return "public, max-age=86400"
	}
}
