package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BundleBuildFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jsbundle_bundle_build_failed",
			Help: "Number of times a bundle has failed to build",
		},
		[]string{"bundle", "error_type"},
	)

	BundleBuildCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "jsbundle_bundle_build_count",
			Help: "Total number of times a bundle has been built",
		},
	)

	BundleBuildSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jsbundle_bundle_build_skipped",
			Help: "Number of times a bundle build was skipped because the target was up to date",
		},
		[]string{"bundle"},
	)

	BundleBuildDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jsbundle_bundle_build_duration_seconds",
			Help:    "Bundle build duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.2, 0.5, 1, 1.5, 2, 5, 10, 30},
		},
		[]string{"bundle"},
	)

	BundleModules = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "jsbundle_bundle_modules",
			Help: "Number of modules in the last successful build of a bundle",
		},
		[]string{"bundle"},
	)

	BundleCycleWarnings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jsbundle_bundle_cycle_warnings_total",
			Help: "Number of pairs of mutually dependent modules reported while building a bundle",
		},
		[]string{"bundle"},
	)

	LastBundleBuildStart = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "jsbundle_last_bundle_build_start_timestamp",
			Help: "Unix timestamp of when the last bundle build started",
		},
		[]string{"bundle"},
	)

	LastBundleBuildEnd = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "jsbundle_last_bundle_build_end_timestamp",
			Help: "Unix timestamp of when the last bundle build ended",
		},
		[]string{"bundle"},
	)
)

// BundleBuildStarted records the start of a build of the named bundle.
func BundleBuildStarted(bundle string, start time.Time) {
	BundleBuildCount.Inc()
	LastBundleBuildStart.WithLabelValues(bundle).Set(float64(start.Unix()))
}

func BundleBuildSucceeded(bundle string, start time.Time, modules, cycles int) {
	end := time.Now()
	BundleBuildDuration.WithLabelValues(bundle).Observe(end.Sub(start).Seconds())
	LastBundleBuildEnd.WithLabelValues(bundle).Set(float64(end.Unix()))
	BundleModules.WithLabelValues(bundle).Set(float64(modules))
	BundleCycleWarnings.WithLabelValues(bundle).Add(float64(cycles))
}

func BundleBuildFailure(bundle, errorType string) {
	BundleBuildFailed.WithLabelValues(bundle, errorType).Inc()
	LastBundleBuildEnd.WithLabelValues(bundle).Set(float64(time.Now().Unix()))
}
