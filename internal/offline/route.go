package offline

import (
	"net/http"
	"net/url"
	"strings"
)

// Route is the fetch policy chosen for a request.
type Route int

const (
	// RoutePassthrough goes straight to the network; the cache is never read or written.
	RoutePassthrough Route = iota + 1
	// RouteNavigate is network-first with the cached fallback page when offline.
	RouteNavigate
	// RouteStatic is cache-first with an opportunistic store on a miss.
	RouteStatic
)

func (r Route) String() string {
	switch r {
	case RoutePassthrough:
		return "passthrough"
	case RouteNavigate:
		return "navigate"
	case RouteStatic:
		return "static"
	default:
		return "unknown"
	}
}

// Classifier decides the Route for a request.
type Classifier struct {
	// BackendDomain is matched as a substring of the target origin. Empty
	// disables the match.
	BackendDomain string
}

// Classify returns exactly one Route for the request to target.
func (c Classifier) Classify(r *http.Request, target *url.URL) Route {
	if c.BackendDomain != "" && strings.Contains(origin(target), c.BackendDomain) {
		return RoutePassthrough
	}
	if r.Method != http.MethodGet {
		return RoutePassthrough
	}
	if IsNavigation(r) {
		return RouteNavigate
	}
	return RouteStatic
}

func origin(u *url.URL) string {
	return u.Scheme + "://" + u.Host
}

// IsNavigation reports whether r is a top-level document load. Browsers say
// so with Sec-Fetch-Mode; without it, a GET preferring text/html counts.
func IsNavigation(r *http.Request) bool {
	if mode := r.Header.Get("Sec-Fetch-Mode"); mode != "" {
		return mode == "navigate"
	}
	if r.Method != http.MethodGet {
		return false
	}
	accept := r.Header.Get("Accept")
	first, _, _ := strings.Cut(accept, ",")
	mediaType, _, _ := strings.Cut(first, ";")
	return strings.EqualFold(strings.TrimSpace(mediaType), "text/html")
}
