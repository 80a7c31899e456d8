package mount

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	activityEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "skytrack",
			Name:      "activities_total",
			Help:      "Activity status transitions by command kind.",
		},
		[]string{"kind", "status"},
	)
	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "skytrack",
			Name:      "command_queue_depth",
			Help:      "Commands accepted by the mount actor and not yet started.",
		},
	)
	resolutionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "skytrack",
			Name:      "resolution_seconds",
			Help:      "Target resolution duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"variant", "result"},
	)
)

// RegisterMetrics registers the mount collectors with the default registry.
func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(activityEvents, queueDepth, resolutionDuration)
	})
}

func recordActivityEvent(kind, status string) {
	RegisterMetrics()
	activityEvents.WithLabelValues(kind, status).Inc()
}

func recordQueueDepth(depth int) {
	RegisterMetrics()
	queueDepth.Set(float64(depth))
}

func recordResolution(variant string, d time.Duration, err error) {
	RegisterMetrics()
	result := "ok"
	if err != nil {
		result = "error"
	}
	resolutionDuration.WithLabelValues(variant, result).Observe(d.Seconds())
}
