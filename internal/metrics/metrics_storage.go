package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BundleUploadFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jsbundle_bundle_upload_failed_total",
			Help: "Total number of failed bundle uploads",
		},
		[]string{"bundle", "backend"},
	)

	BundleUploadDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jsbundle_bundle_upload_duration_seconds",
			Help:    "Bundle upload duration in seconds",
			Buckets: []float64{0.1, 0.2, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"bundle", "backend"},
	)
)

// BundleUploaded records one upload attempt of the named bundle.
func BundleUploaded(bundle, backend string, start time.Time, err error) {
	if err != nil {
		BundleUploadFailed.WithLabelValues(bundle, backend).Inc()
		return
	}
	BundleUploadDuration.WithLabelValues(bundle, backend).Observe(time.Since(start).Seconds())
}
