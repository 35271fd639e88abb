package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds the Prometheus metrics for the state layer.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	remoteDuration *prometheus.HistogramVec
	remoteErrors   *prometheus.CounterVec
	cacheHits      *prometheus.CounterVec
	cacheMisses    *prometheus.CounterVec
	refreshes      *prometheus.CounterVec
	sessionEvents  *prometheus.CounterVec
}

// StateMetrics is the snapshot served by GET /v1/metrics/state.
type StateMetrics struct {
	RemoteErrors     float64 `json:"remote_errors"`
	FilmRefreshes    float64 `json:"film_refreshes"`
	DistRefreshes    float64 `json:"distribution_refreshes"`
	SessionSignIns   float64 `json:"session_sign_ins"`
	SessionSignOuts  float64 `json:"session_sign_outs"`
	ProfileCacheHit  float64 `json:"profile_cache_hits"`
	ProfileCacheMiss float64 `json:"profile_cache_misses"`
	CacheHitRate     float64 `json:"cache_hit_rate"`
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. A private registry avoids "duplicate collector"
// panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		remoteDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "filmtrack_remote_request_duration_seconds",
				Help:    "Duration of remote boundary requests by operation.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		remoteErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "filmtrack_remote_errors_total",
				Help: "Total errors from the remote boundary.",
			},
			[]string{"service"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "filmtrack_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "filmtrack_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		refreshes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "filmtrack_collection_refreshes_total",
				Help: "Total full-replace refreshes per collection.",
			},
			[]string{"collection"},
		),
		sessionEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "filmtrack_session_events_total",
				Help: "Total session change events by type.",
			},
			[]string{"type"},
		),
	}
}

// RecordRemoteDuration records the duration of a remote operation.
func (m *Metrics) RecordRemoteDuration(operation string, d time.Duration) {
	m.remoteDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrRemoteError increments the remote error counter.
func (m *Metrics) IncrRemoteError(service string) {
	m.remoteErrors.WithLabelValues(service).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// IncrRefresh increments the full-replace counter for a collection.
func (m *Metrics) IncrRefresh(collection string) {
	m.refreshes.WithLabelValues(collection).Inc()
}

// IncrSessionEvent increments the session event counter.
func (m *Metrics) IncrSessionEvent(eventType string) {
	m.sessionEvents.WithLabelValues(eventType).Inc()
}

// GetStateSnapshot returns cumulative counter values for /v1/metrics/state.
func (m *Metrics) GetStateSnapshot() *StateMetrics {
	hits := getCounterValue(m.cacheHits, "profile")
	misses := getCounterValue(m.cacheMisses, "profile")

	hitRate := float64(0)
	if hits+misses > 0 {
		hitRate = hits / (hits + misses)
	}

	return &StateMetrics{
		RemoteErrors:     getCounterValue(m.remoteErrors, "supabase/rest") + getCounterValue(m.remoteErrors, "supabase/auth"),
		FilmRefreshes:    getCounterValue(m.refreshes, "films"),
		DistRefreshes:    getCounterValue(m.refreshes, "distributions"),
		SessionSignIns:   getCounterValue(m.sessionEvents, "signed_in"),
		SessionSignOuts:  getCounterValue(m.sessionEvents, "signed_out"),
		ProfileCacheHit:  hits,
		ProfileCacheMiss: misses,
		CacheHitRate:     hitRate,
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	counter := cv.WithLabelValues(label)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
