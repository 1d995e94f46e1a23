package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kalambet/vitalsync/internal/cache"
	"github.com/kalambet/vitalsync/internal/security"
	"github.com/kalambet/vitalsync/internal/syncer"
	"github.com/kalambet/vitalsync/internal/vital"
)

const maxListLimit = 1000

// SyncResponse reports one cycle. Warning is set when conflicts were held
// back for review.
type SyncResponse struct {
	syncer.Result
	DurationMS int64  `json:"durationMs"`
	Warning    string `json:"warning,omitempty"`
}

func handleSync(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := deps.Sync.PerformSync(r.Context())
		if err != nil {
			failure(w, err)
			return
		}
		resp := SyncResponse{Result: res, DurationMS: res.Duration.Milliseconds()}
		if cerr := res.Err(); cerr != nil {
			resp.Warning = cerr.Error()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleSyncStatus(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := deps.Sync.Status(r.Context())
		if err != nil {
			failure(w, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

func handleListConflicts(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cs, err := deps.Sync.PendingConflicts(r.Context())
		if err != nil {
			failure(w, err)
			return
		}
		writeJSON(w, http.StatusOK, cs)
	}
}

func handleResolveConflict(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Choice string `json:"choice"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		choice, err := syncer.ParseChoice(req.Choice)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		id := chi.URLParam(r, "id")
		if err := deps.Sync.ResolveConflict(r.Context(), id, choice); err != nil {
			failure(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"id": id, "choice": string(choice)})
	}
}

func handleGetStrategy(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := deps.Sync.Strategy(r.Context())
		if err != nil {
			failure(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"strategy": s.String()})
	}
}

func handleSetStrategy(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Strategy string `json:"strategy"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		s, err := syncer.ParseStrategy(req.Strategy)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		if err := deps.Sync.SetStrategy(r.Context(), s); err != nil {
			failure(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"strategy": s.String()})
	}
}

func handleGetAutoSync(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.AutoSync == nil {
			httpError(w, http.StatusServiceUnavailable, "unavailable", "scheduler not running")
			return
		}
		on, err := deps.AutoSync.AutoSyncEnabled(r.Context())
		if err != nil {
			failure(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"enabled": on})
	}
}

func handleSetAutoSync(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.AutoSync == nil {
			httpError(w, http.StatusServiceUnavailable, "unavailable", "scheduler not running")
			return
		}
		var req struct {
			Enabled *bool `json:"enabled"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Enabled == nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "enabled is required")
			return
		}
		if err := deps.AutoSync.SetAutoSync(r.Context(), *req.Enabled); err != nil {
			failure(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"enabled": *req.Enabled})
	}
}

func handleCacheStats(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := deps.Cache.Stats(r.Context())
		if err != nil {
			failure(w, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

func handleCacheCleanup(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := deps.Cache.Cleanup(r.Context())
		if err != nil {
			failure(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int64{"removed": n})
	}
}

func handleCacheClear(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Cache.Clear(r.Context()); err != nil {
			failure(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleListOffline(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 100, maxListLimit)
		reqs, err := deps.Queue.List(r.Context(), r.URL.Query().Get("status"), limit)
		if err != nil {
			failure(w, err)
			return
		}
		writeJSON(w, http.StatusOK, reqs)
	}
}

func handleEnqueueOffline(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req cache.Request
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Method == "" || req.URL == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "method and url are required")
			return
		}
		id, err := deps.Queue.Enqueue(r.Context(), req)
		if err != nil {
			failure(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"id": id})
	}
}

func handleDrainOffline(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Replayer == nil {
			httpError(w, http.StatusServiceUnavailable, "network_error", "no remote service configured")
			return
		}
		res, err := deps.Queue.Drain(r.Context(), deps.Replayer)
		if err != nil {
			failure(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func handleUnlock(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Reason string `json:"reason"`
		}
		if r.ContentLength != 0 && !decodeBody(w, r, &req) {
			return
		}
		if req.Reason == "" {
			req.Reason = "unlock requested over the management API"
		}
		ok, err := deps.Security.Authenticate(r.Context(), req.Reason)
		if err != nil && !ok {
			deps.Logger.Warn("unlock failed", zap.Error(err))
		}
		if !ok {
			httpError(w, http.StatusUnauthorized, "authentication_error", "authentication was not granted")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"state": deps.Security.State().String()})
	}
}

func handleLock(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Security.Lock(r.Context()); err != nil {
			failure(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"state": deps.Security.State().String()})
	}
}

func handleSecurityCheck(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := deps.Security.PerformSecurityCheck(r.Context())
		if err != nil {
			failure(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func handleSecurityLogs(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 100, maxListLimit)
		logs, err := deps.Security.SecurityLogs(r.Context(), limit)
		if err != nil {
			failure(w, err)
			return
		}
		writeJSON(w, http.StatusOK, logs)
	}
}

func handleResume(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		locked, err := deps.Security.Resume(r.Context())
		if err != nil {
			failure(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"state":        deps.Security.State().String(),
			"authRequired": locked,
		})
	}
}

// Backup is the plaintext of an encrypted export.
type Backup struct {
	ExportedAt time.Time      `json:"exportedAt"`
	Vitals     []vital.Record `json:"vitals"`
	Targets    []vital.Target `json:"targets"`
}

func handleExport(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Password string `json:"password"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Password == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "password is required")
			return
		}
		if !deps.Security.IsSessionValid() {
			failure(w, security.ErrSessionLocked)
			return
		}

		ctx := r.Context()
		vitals, err := deps.Store.AllVitals(ctx)
		if err != nil {
			failure(w, err)
			return
		}
		targets, err := deps.Store.ListTargets(ctx)
		if err != nil {
			failure(w, err)
			return
		}
		blob, err := deps.Security.ExportSecureData(Backup{
			ExportedAt: time.Now().UTC(),
			Vitals:     vitals,
			Targets:    targets,
		}, req.Password)
		if err != nil {
			failure(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"blob": blob, "vitals": len(vitals)})
	}
}

// handleImport restores an export. Records that would duplicate an existing
// type, date and source are skipped. Imported records are queued for upload.
func handleImport(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Blob     string `json:"blob"`
			Password string `json:"password"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Blob == "" || req.Password == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "blob and password are required")
			return
		}
		if !deps.Security.IsSessionValid() {
			failure(w, security.ErrSessionLocked)
			return
		}

		var b Backup
		if err := deps.Security.ImportSecureData(req.Blob, req.Password, &b); err != nil {
			failure(w, err)
			return
		}

		ctx := r.Context()
		imported, skipped := 0, 0
		for _, rec := range b.Vitals {
			rec.ID = 0
			rec.SyncStatus = ""
			rec.SyncedAt = nil
			_, err := deps.Store.InsertVital(ctx, rec)
			switch {
			case errors.Is(err, vital.ErrConstraintViolation):
				skipped++
			case err != nil:
				failure(w, err)
				return
			default:
				imported++
			}
		}
		for _, t := range b.Targets {
			if err := deps.Store.UpsertTarget(ctx, t); err != nil {
				failure(w, err)
				return
			}
		}
		if len(b.Targets) > 0 && deps.Cache != nil {
			if err := deps.Cache.Remove(ctx, targetsCacheKey); err != nil {
				deps.Logger.Warn("dropping cached targets", zap.Error(err))
			}
		}
		deps.Logger.Info("backup imported", zap.Int("imported", imported), zap.Int("skipped", skipped))
		writeJSON(w, http.StatusOK, map[string]int{"imported": imported, "skipped": skipped, "targets": len(b.Targets)})
	}
}
