package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kalambet/vitalsync/internal/cache"
	"github.com/kalambet/vitalsync/internal/security"
	"github.com/kalambet/vitalsync/internal/storage"
	"github.com/kalambet/vitalsync/internal/syncer"
)

const maxRequestBodySize = 1 << 20 // 1MB

// SyncEngine is the part of the sync engine the API drives.
type SyncEngine interface {
	PerformSync(ctx context.Context) (syncer.Result, error)
	Status(ctx context.Context) (syncer.Status, error)
	PendingConflicts(ctx context.Context) ([]syncer.Conflict, error)
	ResolveConflict(ctx context.Context, id string, choice syncer.Choice) error
	Strategy(ctx context.Context) (syncer.Strategy, error)
	SetStrategy(ctx context.Context, s syncer.Strategy) error
}

// AutoSyncControl switches scheduled syncing. Implemented by syncer.Scheduler.
type AutoSyncControl interface {
	AutoSyncEnabled(ctx context.Context) (bool, error)
	SetAutoSync(ctx context.Context, enabled bool) error
}

type AppDeps struct {
	Store    *storage.Store
	Cache    *cache.Manager
	Queue    *cache.Queue
	Replayer cache.Replayer // optional; /offline/drain answers 503 without it
	Security *security.Layer
	Sync     SyncEngine
	AutoSync AutoSyncControl // optional; /sync/auto answers 503 without it
	Token    string
	Logger   *zap.Logger
}

// NewAppHandler returns the loopback management API. Everything except
// /health and /metrics requires the bearer token.
func NewAppHandler(deps AppDeps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(requireToken(deps.Token, deps.Security, deps.Logger))

		r.Get("/vitals", handleListVitals(deps))
		r.Post("/vitals", handleCreateVital(deps))
		r.Get("/vitals/{id}", handleGetVital(deps))
		r.Patch("/vitals/{id}", handleUpdateVital(deps))
		r.Delete("/vitals/{id}", handleDeleteVital(deps))

		r.Get("/targets", handleListTargets(deps))
		r.Put("/targets/{type}", handleSetTarget(deps))

		r.Post("/sync", handleSync(deps))
		r.Get("/sync/status", handleSyncStatus(deps))
		r.Get("/sync/conflicts", handleListConflicts(deps))
		r.Post("/sync/conflicts/{id}/resolve", handleResolveConflict(deps))
		r.Get("/sync/strategy", handleGetStrategy(deps))
		r.Put("/sync/strategy", handleSetStrategy(deps))
		r.Get("/sync/auto", handleGetAutoSync(deps))
		r.Put("/sync/auto", handleSetAutoSync(deps))

		r.Get("/cache/stats", handleCacheStats(deps))
		r.Post("/cache/cleanup", handleCacheCleanup(deps))
		r.Delete("/cache", handleCacheClear(deps))

		r.Get("/offline", handleListOffline(deps))
		r.Post("/offline", handleEnqueueOffline(deps))
		r.Post("/offline/drain", handleDrainOffline(deps))

		r.Post("/security/unlock", handleUnlock(deps))
		r.Post("/security/lock", handleLock(deps))
		r.Get("/security/check", handleSecurityCheck(deps))
		r.Get("/security/logs", handleSecurityLogs(deps))
		r.Post("/security/resume", handleResume(deps))
		r.Post("/security/export", handleExport(deps))
		r.Post("/security/import", handleImport(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}

// parseIntParam extracts an integer query parameter with a default and upper bound.
func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if v > maxVal {
		return maxVal
	}
	return v
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid id %q", chi.URLParam(r, "id"))
		return 0, false
	}
	return id, true
}
