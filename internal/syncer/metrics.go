package syncer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	syncCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vitalsync_sync_cycles_total",
		Help: "Sync cycles by result (completed, failed, offline)",
	}, []string{"result"})

	syncDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vitalsync_sync_duration_seconds",
		Help:    "Wall time of a sync cycle",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	})

	syncConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vitalsync_sync_conflicts_total",
		Help: "Conflicts detected, by strategy in effect",
	}, []string{"strategy"})

	syncUploaded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vitalsync_sync_uploaded_total",
		Help: "Local records accepted by the remote",
	})

	syncApplied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vitalsync_sync_applied_total",
		Help: "Remote records written locally",
	})

	syncSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vitalsync_sync_skipped_total",
		Help: "Automatic triggers that did not start a cycle, by reason (disabled, recent)",
	}, []string{"reason"})
)
