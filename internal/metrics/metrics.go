// Package metrics exposes Prometheus counters for the lifecycle engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fieldtasker",
		Name:      "task_transitions_total",
		Help:      "Accepted task status transitions by resulting status.",
	}, []string{"status"})

	LockConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fieldtasker",
		Name:      "lock_conflicts_total",
		Help:      "Transition attempts rejected because another user holds the lock.",
	})

	InvalidTransitionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fieldtasker",
		Name:      "invalid_transitions_total",
		Help:      "Transition attempts rejected by the transition table.",
	})

	WebhookDeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fieldtasker",
		Name:      "webhook_deliveries_total",
		Help:      "Webhook delivery attempts by outcome.",
	}, []string{"outcome"})
)

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
