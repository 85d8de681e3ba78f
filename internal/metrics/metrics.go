package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	ctrlmetrics "sigs.k8s.io/controller-runtime/pkg/metrics"
)

var (
	stageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "podrun_stage_duration_seconds",
		Help:    "Duration of each pod run workflow stage.",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})

	runsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "podrun_runs_total",
		Help: "Completed pod runs by outcome.",
	}, []string{"outcome"})
)

func init() {
	ctrlmetrics.Registry.MustRegister(stageDuration, runsTotal)
}

// ObserveStage records how long one workflow stage took.
func ObserveStage(stage string, d time.Duration) {
	stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// CountRun records the outcome of a completed run.
func CountRun(outcome string) {
	runsTotal.WithLabelValues(outcome).Inc()
}
