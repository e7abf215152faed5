package guard

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	decisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "guard_decisions_total",
		Help: "Admission decisions by check path and outcome",
	}, []string{"path", "outcome"})

	failOpenTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "guard_fail_open_total",
		Help: "Store failures converted into fail-open decisions",
	})

	decisionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "guard_decision_duration_seconds",
		Help:    "Admission decision latency, excluding progressive delay",
		Buckets: prometheus.DefBuckets,
	})
)

func observeDecision(path string, allowed bool) {
	outcome := "allowed"
	if !allowed {
		outcome = "denied"
	}
	decisionsTotal.WithLabelValues(path, outcome).Inc()
}
