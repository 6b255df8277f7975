// Package metrics exposes Prometheus instrumentation for the evaluation
// pipeline. All collectors are registered on the default registry and
// served from /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	evaluationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "harrier",
		Name:      "evaluations_total",
		Help:      "Transaction evaluations by tenant and final decision.",
	}, []string{"tenant", "decision"})

	evaluationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "harrier",
		Name:      "evaluation_duration_seconds",
		Help:      "End-to-end evaluation latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"tenant"})

	rulesEvaluated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "harrier",
		Name:      "rules_evaluated_total",
		Help:      "Individual rule evaluations by outcome.",
	}, []string{"tenant", "outcome"})

	alertsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "harrier",
		Name:      "alerts_created_total",
		Help:      "Alerts created by severity.",
	}, []string{"tenant", "severity"})

	cacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "harrier",
		Name:      "cache_requests_total",
		Help:      "Cache lookups by family and result.",
	}, []string{"family", "result"})

	signatureRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "harrier",
		Name:      "signature_requests_total",
		Help:      "Signature request transitions by resulting status.",
	}, []string{"tenant", "status"})
)

// Rule evaluation outcomes.
const (
	OutcomeMatched   = "matched"
	OutcomeUnmatched = "unmatched"
	OutcomeSkipped   = "skipped"
)

// ObserveEvaluation records one completed transaction evaluation.
func ObserveEvaluation(tenantID, decision string, elapsed time.Duration) {
	evaluationsTotal.WithLabelValues(tenantID, decision).Inc()
	evaluationDuration.WithLabelValues(tenantID).Observe(elapsed.Seconds())
}

// RuleEvaluated records one rule outcome.
func RuleEvaluated(tenantID, outcome string) {
	rulesEvaluated.WithLabelValues(tenantID, outcome).Inc()
}

// AlertCreated records one created alert.
func AlertCreated(tenantID, severity string) {
	alertsCreated.WithLabelValues(tenantID, severity).Inc()
}

// CacheLookup records a cache hit or miss for a key family.
func CacheLookup(family string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheRequests.WithLabelValues(family, result).Inc()
}

// SignatureRequestStatus records a request reaching a status.
func SignatureRequestStatus(tenantID, status string) {
	signatureRequests.WithLabelValues(tenantID, status).Inc()
}
