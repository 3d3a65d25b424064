package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry metrics - Track identity mutations
var (
	IdentitiesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "registry_identities_created_total",
		Help: "Total number of identities created",
	})

	RegistryEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registry_events_total",
			Help: "Total number of registry events emitted by type",
		},
		[]string{"event_type"},
	)

	PermissionDenied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registry_permission_denied_total",
			Help: "Total number of mutations rejected by access control, by operation class",
		},
		[]string{"class"},
	)
)

// Sync metrics - Track pointer republishing
var (
	SyncRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registry_sync_runs_total",
			Help: "Total number of pointer refresh runs by outcome",
		},
		[]string{"outcome"},
	)

	SyncTicksSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "registry_sync_ticks_skipped_total",
		Help: "Recurring ticks skipped because a refresh was already in flight",
	})

	SyncSubmissionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "registry_sync_submission_duration_seconds",
		Help:    "Time from fee estimation to confirmation of a pointer refresh",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
	})

	SyncLastFee = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "registry_sync_last_fee",
		Help: "Fee (after capping) used for the last pointer refresh submission",
	})

	SyncLastSuccess = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "registry_sync_last_success_timestamp_seconds",
		Help: "Unix time of the last confirmed pointer refresh",
	})
)

// Stats source metrics
var (
	StatsFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registry_stats_fetches_total",
			Help: "Stats source fetches by result (ok, error, cached, stale)",
		},
		[]string{"result"},
	)
)

// Error metrics - Track failures
var (
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registry_errors_total",
			Help: "Total number of errors by service",
		},
		[]string{"service"},
	)
)
