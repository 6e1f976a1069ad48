package offline

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/tphakala/shoppinglist/internal/logger"
)

// ServeHTTP implements http.Handler.
func (w *Worker) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	target := w.target(r)
	if !w.allowed(target) {
		w.log.Warn("refusing foreign target", logger.String("url", target.String()))
		w.metrics.result(ResultForbidden)
		http.Error(rw, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return
	}

	if w.State() != StateActivated {
		w.passthrough(rw, r, target, SourceBypass)
		return
	}

	route := w.classifier.Classify(r, target)
	w.metrics.route(route)

	switch route {
	case RouteNavigate:
		w.navigate(rw, r, target)
	case RouteStatic:
		w.static(rw, r, target)
	default:
		w.passthrough(rw, r, target, SourceNetwork)
	}
}

// target returns the absolute URL the request is for. Absolute-form request
// URIs are taken as they are; origin-form paths resolve against the scope.
func (w *Worker) target(r *http.Request) *url.URL {
	if r.URL.IsAbs() {
		return r.URL
	}
	u := w.scope.JoinPath(r.URL.Path)
	u.RawQuery = r.URL.RawQuery
	return u
}

// allowed reports whether target is on the scope origin or the backend
// domain.
func (w *Worker) allowed(target *url.URL) bool {
	if strings.EqualFold(origin(target), origin(w.scope)) {
		return true
	}
	bd := w.classifier.BackendDomain
	return bd != "" && strings.Contains(strings.ToLower(origin(target)), strings.ToLower(bd))
}

func (w *Worker) passthrough(rw http.ResponseWriter, r *http.Request, target *url.URL, source string) {
	resp, err := w.fetch(r, target, false)
	if err != nil {
		w.log.Warn("passthrough fetch failed",
			logger.String("url", target.String()),
			logger.Error(err))
		w.metrics.result(ResultNetworkError)
		http.Error(rw, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if err := copyResponse(rw, resp, source); err != nil {
		w.log.Debug("client went away during passthrough",
			logger.String("url", target.String()),
			logger.Error(err))
	}
}

// navigate is network first. A transport failure falls back to the cached
// fallback document.
func (w *Worker) navigate(rw http.ResponseWriter, r *http.Request, target *url.URL) {
	resp, err := w.fetch(r, target, true)
	if err != nil {
		w.log.Info("network unavailable, serving fallback",
			logger.String("url", target.String()),
			logger.Error(err))
		w.metrics.result(ResultNetworkError)

		e, ok := w.match(r.Context(), w.fallback)
		if !ok {
			w.metrics.result(ResultUnavailable)
			http.Error(rw, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
			return
		}
		w.metrics.result(ResultFallback)
		e.write(rw, SourceFallback)
		return
	}

	e, err := w.read(target, resp)
	if err != nil {
		w.metrics.result(ResultNetworkError)
		http.Error(rw, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return
	}
	w.put(r.Context(), e)
	e.write(rw, SourceNetwork)
}

// static is cache first. A hit never touches the network.
func (w *Worker) static(rw http.ResponseWriter, r *http.Request, target *url.URL) {
	key := CacheKey(target)
	if e, ok := w.match(r.Context(), key); ok {
		w.metrics.result(ResultHit)
		e.write(rw, SourceHit)
		return
	}
	w.metrics.result(ResultMiss)

	resp, err := w.fetch(r, target, true)
	if err != nil {
		w.log.Warn("static fetch failed",
			logger.String("url", target.String()),
			logger.Error(err))
		w.metrics.result(ResultNetworkError)
		http.Error(rw, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return
	}

	e, err := w.read(target, resp)
	if err != nil {
		w.metrics.result(ResultNetworkError)
		http.Error(rw, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return
	}
	w.put(r.Context(), e)
	e.write(rw, SourceMiss)
}

// fetch forwards r to target. The caller closes the response body. A
// cacheable fetch drops the client's Accept-Encoding so the transport
// negotiates and decodes, keeping stored bodies identity coded.
func (w *Worker) fetch(r *http.Request, target *url.URL, cacheable bool) (*http.Response, error) {
	body := r.Body
	if body == nil {
		body = http.NoBody
	}
	out, err := http.NewRequestWithContext(r.Context(), r.Method, target.String(), body)
	if err != nil {
		return nil, err
	}
	out.Header = r.Header.Clone()
	if out.Header == nil {
		out.Header = make(http.Header)
	}
	removeHopHeaders(out.Header)
	if cacheable {
		out.Header.Del("Accept-Encoding")
	}
	out.ContentLength = r.ContentLength
	out.Host = target.Host
	return w.client.Do(out)
}

// read drains resp into an Entry keyed by target and closes the body.
func (w *Worker) read(target *url.URL, resp *http.Response) (*Entry, error) {
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		w.log.Warn("read upstream body failed",
			logger.String("url", target.String()),
			logger.Error(err))
		return nil, err
	}
	return newEntry(CacheKey(target), resp, body), nil
}

// match looks key up across every store. Store errors count as a miss.
func (w *Worker) match(ctx context.Context, key string) (*Entry, bool) {
	e, ok, err := w.storage.Match(ctx, key)
	if err != nil {
		w.log.Warn("cache lookup failed", logger.String("key", key), logger.Error(err))
		w.metrics.result(ResultStoreError)
		return nil, false
	}
	return e, ok
}

// put stores a copy of e in the current store. Only storable 2xx responses
// are kept.
func (w *Worker) put(ctx context.Context, e *Entry) {
	if !e.Storable() {
		return
	}
	ref := w.current.Load()
	if ref == nil {
		return
	}
	if err := ref.Put(ctx, e); err != nil {
		w.log.Warn("cache write failed", logger.String("key", e.Key), logger.Error(err))
		w.metrics.result(ResultStoreError)
	}
}
