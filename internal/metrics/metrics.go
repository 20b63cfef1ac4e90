// Package metrics defines the prometheus collectors fleetsync exports.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SyncRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleetsync_sync_runs_total",
		Help: "Total number of sync runs, labelled by provider, entity type, cadence and status.",
	}, []string{"provider", "entity_type", "cadence", "status"})

	SyncRunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fleetsync_sync_run_duration_seconds",
		Help:    "Wall-clock duration of sync runs.",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300, 900, 3600},
	}, []string{"provider", "entity_type", "cadence"})

	PagesFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleetsync_pages_fetched_total",
		Help: "Total number of provider pages committed.",
	}, []string{"provider", "entity_type"})

	EntitiesWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleetsync_entities_written_total",
		Help: "Total number of entity upserts, labelled by entity type and result.",
	}, []string{"entity_type", "result"})

	EntityErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleetsync_entity_errors_total",
		Help: "Total number of entities skipped because of mapping or write errors.",
	}, []string{"entity_type", "kind"})

	ProviderRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleetsync_provider_retries_total",
		Help: "Total number of retried calls, labelled by error kind.",
	}, []string{"kind"})

	EventDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleetsync_event_deliveries_total",
		Help: "Total number of bridged event outcomes, labelled by event name and status.",
	}, []string{"event", "status"})

	SchedulerSkips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleetsync_scheduler_skips_total",
		Help: "Total number of due tasks skipped, labelled by reason.",
	}, []string{"reason"})

	RunsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fleetsync_runs_in_flight",
		Help: "Number of sync runs currently executing.",
	})

	ProviderRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleetsync_provider_requests_total",
		Help: "Total number of HTTP requests sent to providers, labelled by provider and status code.",
	}, []string{"provider", "code"})

	EntitiesDeleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleetsync_entities_deleted_total",
		Help: "Total number of stale entities removed by retention.",
	}, []string{"entity_type"})

	QueueMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleetsync_queue_messages_total",
		Help: "Total number of consumed queue messages, labelled by outcome.",
	}, []string{"outcome"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleetsync_http_requests_total",
		Help: "Total number of operations API requests, labelled by route and status code.",
	}, []string{"route", "code"})
)
