package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/kalambet/vitalsync/internal/security"
)

var authRejected = promauto.NewCounter(prometheus.CounterOpts{
	Name: "vitalsync_api_auth_rejected_total",
	Help: "Management API requests rejected for a missing or wrong bearer token.",
})

// requireToken admits requests carrying the management bearer token. An
// admitted request counts as user activity and keeps an unlocked session
// from auto-locking.
func requireToken(token string, sec *security.Layer, logger *zap.Logger) func(http.Handler) http.Handler {
	want := []byte(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || len(want) == 0 || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
				authRejected.Inc()
				logger.Debug("rejected request", zap.String("method", r.Method), zap.String("path", r.URL.Path))
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing bearer token")
				return
			}
			if sec != nil {
				sec.Touch()
			}
			next.ServeHTTP(w, r)
		})
	}
}
