package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// cacheLookups counts reads by result (hit, miss, expired).
	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vitalsync_cache_lookups_total",
		Help: "Cache reads by result",
	}, []string{"result"})

	cacheEvictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vitalsync_cache_evictions_total",
		Help: "Entries evicted to make room, by priority tier",
	}, []string{"priority"})

	cacheExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vitalsync_cache_expired_total",
		Help: "Entries removed by the TTL cleanup task",
	})

	cacheOverCapacity = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vitalsync_cache_over_capacity_total",
		Help: "Writes accepted while the cache stayed above capacity",
	})

	cacheSizeBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vitalsync_cache_size_bytes",
		Help: "Total size of cached payloads",
	})

	offlineReplays = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vitalsync_offline_replays_total",
		Help: "Offline request replays by result",
	}, []string{"result"})
)
