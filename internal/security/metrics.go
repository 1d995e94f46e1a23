package security

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	authAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vitalsync_auth_attempts_total",
		Help: "Session unlock attempts by result",
	}, []string{"result"})

	integrityFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vitalsync_integrity_failures_total",
		Help: "Envelopes rejected on MAC or AEAD verification",
	})

	sessionUnlocked = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vitalsync_session_unlocked",
		Help: "1 while the secure session is unlocked",
	})
)
