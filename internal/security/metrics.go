package security

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// StoreLatency is recorded by the store metrics wrapper.
	StoreLatency *prometheus.HistogramVec

	// CacheHitsTotal / CacheMissesTotal count response-cache probes.
	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter

	missiveRequestsTotal *prometheus.CounterVec

	// LabelSyncRunsTotal counts reconciliation runs by outcome.
	LabelSyncRunsTotal *prometheus.CounterVec

	// LabelSyncLast* report the stats of the most recent successful run.
	LabelSyncLastChanges *prometheus.GaugeVec
)

var validLabelKey = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ParseMetricsLabels parses a comma-separated list of key=value pairs into
// Prometheus labels. Values support ${VAR} / $VAR environment variable
// expansion. Returns nil for an empty string.
func ParseMetricsLabels(s string) (prometheus.Labels, error) {
	s = os.Expand(s, os.Getenv)
	if s == "" {
		return nil, nil
	}
	labels := prometheus.Labels{}
	for _, pair := range strings.Split(s, ",") {
		idx := strings.IndexByte(pair, '=')
		if idx < 0 {
			return nil, fmt.Errorf("invalid label %q: expected key=value", pair)
		}
		k, v := pair[:idx], pair[idx+1:]
		if !validLabelKey.MatchString(k) {
			return nil, fmt.Errorf("invalid label key %q: must match [a-zA-Z_][a-zA-Z0-9_]*", k)
		}
		labels[k] = v
	}
	return labels, nil
}

var initMetricsOnce sync.Once

// InitMetrics registers all Prometheus metrics with the given constant
// labels. Must be called before the HTTP server or any component that
// records metrics starts. Safe to call multiple times; only the first
// call registers.
func InitMetrics(constLabels prometheus.Labels) {
	initMetricsOnce.Do(func() {
		initMetricsInner(constLabels)
	})
}

func initMetricsInner(constLabels prometheus.Labels) {
	reg := prometheus.WrapRegistererWith(constLabels, prometheus.DefaultRegisterer)
	f := promauto.With(reg)

	httpRequestsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_service_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "status"},
	)
	httpRequestDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "portal_service_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
	StoreLatency = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "portal_service_store_latency_seconds",
			Help:    "Datastore operation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
	CacheHitsTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "portal_service_cache_hits_total",
		Help: "Response cache hits",
	})
	CacheMissesTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "portal_service_cache_misses_total",
		Help: "Response cache misses",
	})
	missiveRequestsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_service_missive_requests_total",
			Help: "Requests made to the Missive API",
		},
		[]string{"endpoint", "status"},
	)
	LabelSyncRunsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_service_label_sync_runs_total",
			Help: "Label reconciliation runs by outcome",
		},
		[]string{"outcome"},
	)
	LabelSyncLastChanges = f.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "portal_service_label_sync_last_changes",
			Help: "Changes applied by the most recent successful label sync",
		},
		[]string{"kind"},
	)
}

// ObserveMissiveRequest records one Missive API call. status 0 means the
// request never produced a response (transport failure).
func ObserveMissiveRequest(endpoint string, status int) {
	if missiveRequestsTotal == nil {
		return
	}
	// Collapse per-conversation paths to keep label cardinality bounded.
	if strings.HasPrefix(endpoint, "/conversations/") {
		if strings.HasSuffix(endpoint, "/messages") {
			endpoint = "/conversations/:id/messages"
		} else {
			endpoint = "/conversations/:id"
		}
	}
	missiveRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
}

// RecordCacheHit increments the cache hit counter if metrics are up.
func RecordCacheHit() {
	if CacheHitsTotal != nil {
		CacheHitsTotal.Inc()
	}
}

// RecordCacheMiss increments the cache miss counter if metrics are up.
func RecordCacheMiss() {
	if CacheMissesTotal != nil {
		CacheMissesTotal.Inc()
	}
}

// RecordLabelSync records the outcome of one reconciliation run.
func RecordLabelSync(outcome string, inserted, updated, reactivated, deactivated int) {
	if LabelSyncRunsTotal == nil {
		return
	}
	LabelSyncRunsTotal.WithLabelValues(outcome).Inc()
	if outcome != "success" || LabelSyncLastChanges == nil {
		return
	}
	LabelSyncLastChanges.WithLabelValues("inserted").Set(float64(inserted))
	LabelSyncLastChanges.WithLabelValues("updated").Set(float64(updated))
	LabelSyncLastChanges.WithLabelValues("reactivated").Set(float64(reactivated))
	LabelSyncLastChanges.WithLabelValues("deactivated").Set(float64(deactivated))
}

// MetricsMiddleware records request count and duration for each request.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if httpRequestsTotal == nil {
			return
		}
		httpRequestsTotal.WithLabelValues(c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method).Observe(time.Since(start).Seconds())
	}
}
