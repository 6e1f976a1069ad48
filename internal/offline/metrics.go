package offline

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "shoppinglist"

// Cache result labels.
const (
	ResultHit          = "hit"
	ResultMiss         = "miss"
	ResultFallback     = "fallback"
	ResultUnavailable  = "unavailable"
	ResultNetworkError = "network_error"
	ResultStoreError   = "store_error"
	ResultForbidden    = "forbidden"
)

// Metrics are the offline proxy's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	requests *prometheus.CounterVec
	results  *prometheus.CounterVec
	installs *prometheus.CounterVec
	evicted  prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "offline",
			Name:      "requests_total",
			Help:      "Requests handled by the offline proxy, by route.",
		}, []string{"route"}),
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "offline",
			Name:      "cache_results_total",
			Help:      "Cache lookups and writes, by result.",
		}, []string{"result"}),
		installs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "offline",
			Name:      "installs_total",
			Help:      "Install attempts, by outcome.",
		}, []string{"outcome"}),
		evicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "offline",
			Name:      "evicted_stores_total",
			Help:      "Stores deleted on activation because their version is stale.",
		}),
	}
	for _, c := range []prometheus.Collector{m.requests, m.results, m.installs, m.evicted} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) route(r Route) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(r.String()).Inc()
}

func (m *Metrics) result(result string) {
	if m == nil {
		return
	}
	m.results.WithLabelValues(result).Inc()
}

func (m *Metrics) install(ok bool) {
	if m == nil {
		return
	}
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	m.installs.WithLabelValues(outcome).Inc()
}

func (m *Metrics) evict(n int) {
	if m == nil || n == 0 {
		return
	}
	m.evicted.Add(float64(n))
}
