package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMetrics wraps the prometheus collectors for one sysoverlayd run.
// A run is short-lived (boot-time, single process); sysoverlayd has no --http
// flag and serves these collectors nowhere itself.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	modulesScanned    prometheus.Counter
	modulesSynced     prometheus.Counter
	bytesSynced       prometheus.Counter
	overlayAttempts   *prometheus.CounterVec
	overlaySuccesses  *prometheus.CounterVec
	magicFallbacks    *prometheus.CounterVec
	nestedPreserved   prometheus.Counter
	conflictsFound    prometheus.Counter
	phaseDuration     *prometheus.HistogramVec
	storageUsagePct   prometheus.Gauge
}

var defaultBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}

var promMetrics *PrometheusMetrics

// InitPrometheus initializes the Prometheus metrics subsystem for this run.
func InitPrometheus(namespace string, buckets []float64) {
	if len(buckets) == 0 {
		buckets = defaultBuckets
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	pm := &PrometheusMetrics{
		registry: registry,

		modulesScanned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "modules_scanned_total",
			Help:      "Total number of modules found by Inventory scan (enabled, pre-filter).",
		}),
		modulesSynced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "modules_synced_total",
			Help:      "Total number of modules copied into the staging volume this run.",
		}),
		bytesSynced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_synced_total",
			Help:      "Total bytes copied (or reflinked) into the staging volume this run.",
		}),
		overlayAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "overlay_mount_attempts_total",
			Help:      "OverlayFS mount attempts, by partition.",
		}, []string{"partition"}),
		overlaySuccesses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "overlay_mount_successes_total",
			Help:      "OverlayFS mounts that completed (root + all nested children), by partition.",
		}, []string{"partition"}),
		magicFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "magic_mount_fallbacks_total",
			Help:      "Modules reclassified from overlay to magic mount, by reason.",
		}, []string{"reason"}),
		nestedPreserved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nested_mounts_preserved_total",
			Help:      "Pre-existing child mounts re-exposed under an overlay root.",
		}),
		conflictsFound: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plan_conflicts_total",
			Help:      "Files contended by more than one module layer, across all partitions.",
		}),
		phaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "phase_duration_ms",
			Help:      "Wall-clock duration of each controller phase in milliseconds.",
			Buckets:   buckets,
		}, []string{"phase"}),
		storageUsagePct: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "storage_usage_percent",
			Help:      "Staging volume usage percent at finalize time.",
		}),
	}

	registry.MustRegister(
		pm.modulesScanned, pm.modulesSynced, pm.bytesSynced,
		pm.overlayAttempts, pm.overlaySuccesses, pm.magicFallbacks,
		pm.nestedPreserved, pm.conflictsFound, pm.phaseDuration, pm.storageUsagePct,
	)

	promMetrics = pm
}

func RecordModulesScanned(n int) {
	if promMetrics == nil {
		return
	}
	promMetrics.modulesScanned.Add(float64(n))
}

func RecordModuleSynced(bytes int64) {
	if promMetrics == nil {
		return
	}
	promMetrics.modulesSynced.Inc()
	promMetrics.bytesSynced.Add(float64(bytes))
}

func RecordOverlayAttempt(partition string) {
	if promMetrics == nil {
		return
	}
	promMetrics.overlayAttempts.WithLabelValues(partition).Inc()
}

func RecordOverlaySuccess(partition string) {
	if promMetrics == nil {
		return
	}
	promMetrics.overlaySuccesses.WithLabelValues(partition).Inc()
}

func RecordMagicFallback(reason string) {
	if promMetrics == nil {
		return
	}
	promMetrics.magicFallbacks.WithLabelValues(reason).Inc()
}

func RecordNestedMountPreserved() {
	if promMetrics == nil {
		return
	}
	promMetrics.nestedPreserved.Inc()
}

func RecordConflicts(n int) {
	if promMetrics == nil || n <= 0 {
		return
	}
	promMetrics.conflictsFound.Add(float64(n))
}

func RecordPhaseDuration(phase string, durationMs int64) {
	if promMetrics == nil {
		return
	}
	promMetrics.phaseDuration.WithLabelValues(phase).Observe(float64(durationMs))
}

func SetStorageUsagePercent(pct int) {
	if promMetrics == nil {
		return
	}
	promMetrics.storageUsagePct.Set(float64(pct))
}

// PrometheusHandler returns an HTTP handler for Prometheus metrics scraping.
func PrometheusHandler() http.Handler {
	if promMetrics == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(promMetrics.registry, promhttp.HandlerOpts{})
}

// PrometheusRegistry exposes the registry for callers that want to register
// additional collectors (e.g. a storage-backend capability gauge).
func PrometheusRegistry() *prometheus.Registry {
	if promMetrics == nil {
		return nil
	}
	return promMetrics.registry
}
