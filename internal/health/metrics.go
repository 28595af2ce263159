package health

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionsLive tracks currently pooled platform sessions.
	SessionsLive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sync_sessions_live",
			Help: "Number of live pooled platform sessions",
		},
	)

	// PlatformCallsTotal tracks outbound platform calls by operation and outcome.
	PlatformCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_platform_calls_total",
			Help: "Total outbound platform calls",
		},
		[]string{"op", "outcome"},
	)

	// RateLimitWaits tracks platform-mandated waits.
	RateLimitWaits = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sync_rate_limit_wait_seconds",
			Help:    "Platform-mandated rate limit waits",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"op"},
	)

	// RetriesTotal tracks generic retry attempts.
	RetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_retries_total",
			Help: "Total generic retry attempts",
		},
		[]string{"op"},
	)

	// RowsSyncedTotal tracks rows persisted by the sync engine.
	RowsSyncedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_rows_total",
			Help: "Rows persisted by the sync engine",
		},
		[]string{"kind"},
	)
)
