package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	JobsStarted = prometheus.NewCounter(prometheus.CounterOpts{Name: "ziptext_jobs_started_total", Help: "Jobs handed to the pipeline"})

	JobsCompleted = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "ziptext_jobs_completed_total", Help: "Jobs reaching a terminal stage"}, []string{"outcome"})

	PagesProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "ziptext_pages_processed_total", Help: "Recognition attempts per page"}, []string{"result"})

	JobDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ziptext_job_duration_seconds",
		Help:    "Wall time from pipeline start to terminal stage",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})

	ActiveSubscribers = prometheus.NewGauge(prometheus.GaugeOpts{Name: "ziptext_active_subscribers", Help: "Event feed subscribers currently attached"})
)

// Handler exposes /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			JobsStarted,
			JobsCompleted,
			PagesProcessed,
			JobDuration,
			ActiveSubscribers,
		)
	})
	return promhttp.Handler()
}
