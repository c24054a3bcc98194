// Package metrics holds the process-wide prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	NotificationsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_emitted_total",
			Help: "Notifications written, by type",
		},
		[]string{"type"},
	)

	NotificationEmitFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_emit_failures_total",
			Help: "Notifications that could not be written, by type",
		},
		[]string{"type"},
	)

	FeedSubscriptionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "feed_subscriptions_active",
			Help: "Live change feed subscriptions",
		},
	)

	FeedEventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_events_published_total",
			Help: "Change feed events published, by relation and operation",
		},
		[]string{"relation", "op"},
	)

	InteractionEntriesActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "interaction_entries_active",
			Help: "Shared per post and viewer interaction entries",
		},
	)

	ToggleConflictsAbsorbed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toggle_conflicts_absorbed_total",
			Help: "Duplicate inserts absorbed by toggles, by relation",
		},
		[]string{"relation"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
