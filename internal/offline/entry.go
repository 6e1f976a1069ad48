package offline

import (
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// HeaderCacheSource tells clients how a response was produced.
const HeaderCacheSource = "X-Offline-Cache"

// Values of HeaderCacheSource.
const (
	SourceHit      = "hit"
	SourceMiss     = "miss"
	SourceFallback = "fallback"
	SourceNetwork  = "network"
	SourceBypass   = "bypass"
)

// Entry is a cached request/response pair. The request side is reduced to
// its key; only GET pairs are ever stored. Entries are immutable once stored.
type Entry struct {
	Key        string
	StatusCode int
	Header     http.Header
	Body       []byte
	StoredAt   time.Time
}

// CacheKey returns the store key for a request URL: the absolute URL
// without its fragment.
func CacheKey(u *url.URL) string {
	c := *u
	c.Fragment = ""
	c.RawFragment = ""
	return c.String()
}

func newEntry(key string, resp *http.Response, body []byte) *Entry {
	h := resp.Header.Clone()
	if h == nil {
		h = make(http.Header)
	}
	removeHopHeaders(h)
	h.Del(HeaderCacheSource)
	return &Entry{
		Key:        key,
		StatusCode: resp.StatusCode,
		Header:     h,
		Body:       body,
		StoredAt:   time.Now(),
	}
}

// OK reports whether the status is 2xx, the only responses worth storing.
func (e *Entry) OK() bool {
	return e.StatusCode >= 200 && e.StatusCode < 300
}

// Storable reports whether e may be served to any later client. Entries are
// keyed by URL alone, so a response that varies on everything or carries a
// content coding one client negotiated is not kept.
func (e *Entry) Storable() bool {
	if !e.OK() {
		return false
	}
	for _, v := range e.Header.Values("Vary") {
		for name := range strings.SplitSeq(v, ",") {
			if strings.TrimSpace(name) == "*" {
				return false
			}
		}
	}
	ce := strings.TrimSpace(e.Header.Get("Content-Encoding"))
	return ce == "" || strings.EqualFold(ce, "identity")
}

func (e *Entry) write(w http.ResponseWriter, source string) {
	h := w.Header()
	for k, vv := range e.Header {
		h[k] = append([]string(nil), vv...)
	}
	h.Set("Content-Length", strconv.Itoa(len(e.Body)))
	h.Set(HeaderCacheSource, source)
	w.WriteHeader(e.StatusCode)
	_, _ = w.Write(e.Body)
}

// Hop-by-hop headers, RFC 9110 section 7.6.1.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

func removeHopHeaders(h http.Header) {
	for _, f := range h.Values("Connection") {
		for name := range strings.SplitSeq(f, ",") {
			if name = strings.TrimSpace(name); name != "" {
				h.Del(name)
			}
		}
	}
	for _, name := range hopHeaders {
		h.Del(name)
	}
}

// copyResponse streams an upstream response to the client untouched apart
// from hop-by-hop headers.
func copyResponse(w http.ResponseWriter, resp *http.Response, source string) error {
	h := w.Header()
	for k, vv := range resp.Header {
		h[k] = append([]string(nil), vv...)
	}
	removeHopHeaders(h)
	h.Set(HeaderCacheSource, source)
	w.WriteHeader(resp.StatusCode)
	_, err := io.Copy(w, resp.Body)
	return err
}
