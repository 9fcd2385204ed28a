package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sasswatch"

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	watchLaunches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "watch",
			Name:      "launches_total",
			Help:      "Launch attempts by outcome.",
		}, []string{"result"},
	)
	watchClears = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "watch",
			Name:      "clears_total",
			Help:      "Watch entries torn down.",
		},
	)
	activeWatches = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_watches",
			Help:      "Directories currently being watched.",
		},
	)
	minifyTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "minify_total",
			Help:      "Minification runs by outcome.",
		}, []string{"result"},
	)
	minifyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "minify_duration_seconds",
			Help:      "Time spent producing one minified file.",
			Buckets:   prometheus.DefBuckets,
		},
	)
	minifiedDeletes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "minified_deletes_total",
			Help:      "Minified siblings removed after their source disappeared.",
		}, []string{"result"},
	)
	compilerCPU = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "compiler",
			Name:      "cpu_percent",
			Help:      "CPU usage of the sass compiler watching a directory.",
		}, []string{"dir"},
	)
	compilerMemory = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "compiler",
			Name:      "memory_rss_bytes",
			Help:      "Resident memory of the sass compiler watching a directory.",
		}, []string{"dir"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{watchLaunches, watchClears, activeWatches, minifyTotal, minifyDuration, minifiedDeletes, compilerCPU, compilerMemory}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler serves the default gatherer.
func Handler() http.Handler { return promhttp.Handler() }

// HandlerFor serves a specific gatherer, for registries other than the default.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncLaunch(result string) {
	if regOK.Load() {
		watchLaunches.WithLabelValues(result).Inc()
	}
}

func IncClear() {
	if regOK.Load() {
		watchClears.Inc()
	}
}

func SetActiveWatches(n int) {
	if regOK.Load() {
		activeWatches.Set(float64(n))
	}
}

func IncMinify(result string) {
	if regOK.Load() {
		minifyTotal.WithLabelValues(result).Inc()
	}
}

func ObserveMinifyDuration(seconds float64) {
	if regOK.Load() {
		minifyDuration.Observe(seconds)
	}
}

func IncMinifiedDelete(result string) {
	if regOK.Load() {
		minifiedDeletes.WithLabelValues(result).Inc()
	}
}

func SetCompilerUsage(dir string, cpuPercent float64, rssBytes uint64) {
	if regOK.Load() {
		compilerCPU.WithLabelValues(dir).Set(cpuPercent)
		compilerMemory.WithLabelValues(dir).Set(float64(rssBytes))
	}
}

// ForgetCompiler drops the usage series of a directory no longer watched.
func ForgetCompiler(dir string) {
	if regOK.Load() {
		compilerCPU.DeleteLabelValues(dir)
		compilerMemory.DeleteLabelValues(dir)
	}
}
