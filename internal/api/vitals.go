package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kalambet/vitalsync/internal/cache"
	"github.com/kalambet/vitalsync/internal/storage"
	"github.com/kalambet/vitalsync/internal/vital"
)

// targetsCacheKey holds the encoded target list; it is dropped on every write.
const targetsCacheKey = "targets"

type VitalRequest struct {
	Type           string   `json:"type"`
	Value          *float64 `json:"value"`
	SecondaryValue *float64 `json:"secondaryValue"`
	RecordedDate   string   `json:"recordedDate"`
	Source         string   `json:"source"`
}

// record validates the request and builds the record to insert. An empty
// date means today in UTC.
func (req VitalRequest) record(now time.Time) (vital.Record, error) {
	typ, err := vital.ParseType(req.Type)
	if err != nil {
		return vital.Record{}, err
	}
	if req.Value == nil {
		return vital.Record{}, fmt.Errorf("value is required")
	}
	if req.SecondaryValue != nil && !typ.HasSecondary() {
		return vital.Record{}, fmt.Errorf("%s has no secondary value", typ)
	}
	date := vital.DateOf(now)
	if req.RecordedDate != "" {
		if date, err = vital.ParseDate(req.RecordedDate); err != nil {
			return vital.Record{}, err
		}
	}
	return vital.Record{
		Type:           typ,
		Value:          *req.Value,
		SecondaryValue: req.SecondaryValue,
		RecordedDate:   date,
		Source:         req.Source,
	}, nil
}

// dateRange builds a query range from optional YYYY-MM-DD bounds. Both
// empty means no range.
func dateRange(from, to string) (*storage.DateRange, error) {
	if from == "" && to == "" {
		return nil, nil
	}
	rng := &storage.DateRange{}
	if from != "" {
		d, err := vital.ParseDate(from)
		if err != nil {
			return nil, err
		}
		rng.From = d
	}
	if to != "" {
		d, err := vital.ParseDate(to)
		if err != nil {
			return nil, err
		}
		rng.To = d
	}
	return rng, nil
}

// queryVitals returns the records of one type, or of every type when typ is
// empty, restricted to rng.
func queryVitals(ctx context.Context, store *storage.Store, typ string, rng *storage.DateRange) ([]vital.Record, error) {
	types := vital.AllTypes()
	if typ != "" {
		t, err := vital.ParseType(typ)
		if err != nil {
			return nil, err
		}
		types = []vital.Type{t}
	}
	out := []vital.Record{}
	for _, t := range types {
		recs, err := store.QueryVitals(ctx, t, rng)
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	return out, nil
}

func handleListVitals(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		rng, err := dateRange(q.Get("from"), q.Get("to"))
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		recs, err := queryVitals(r.Context(), deps.Store, q.Get("type"), rng)
		if err != nil {
			failure(w, err)
			return
		}
		writeJSON(w, http.StatusOK, recs)
	}
}

func handleCreateVital(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req VitalRequest
		if !decodeBody(w, r, &req) {
			return
		}
		rec, err := req.record(time.Now())
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		id, err := deps.Store.InsertVital(r.Context(), rec)
		if err != nil {
			failure(w, err)
			return
		}
		created, err := deps.Store.GetVital(r.Context(), id)
		if err != nil {
			failure(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

func handleGetVital(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		rec, err := deps.Store.GetVital(r.Context(), id)
		if err != nil {
			failure(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

func handleUpdateVital(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		var req VitalRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Value == nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "value is required")
			return
		}
		if err := deps.Store.UpdateVital(r.Context(), id, *req.Value, req.SecondaryValue); err != nil {
			failure(w, err)
			return
		}
		rec, err := deps.Store.GetVital(r.Context(), id)
		if err != nil {
			failure(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

func handleDeleteVital(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		if err := deps.Store.DeleteVital(r.Context(), id); err != nil {
			failure(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// loadTargets serves the target list from the cache, filling it from the
// store on a miss. Cache failures fall through to the store.
func loadTargets(ctx context.Context, store *storage.Store, c *cache.Manager, logger *zap.Logger) ([]vital.Target, error) {
	if c != nil {
		raw, ok, err := c.Get(ctx, targetsCacheKey)
		if err != nil {
			logger.Warn("reading cached targets", zap.Error(err))
		} else if ok {
			var targets []vital.Target
			if err := json.Unmarshal(raw, &targets); err == nil {
				return targets, nil
			}
		}
	}

	targets, err := store.ListTargets(ctx)
	if err != nil {
		return nil, err
	}
	if c != nil {
		raw, err := json.Marshal(targets)
		if err == nil {
			err = c.Put(ctx, targetsCacheKey, raw, cache.WithNoExpiry(), cache.WithPriority(cache.High))
		}
		if err != nil {
			logger.Warn("caching targets", zap.Error(err))
		}
	}
	return targets, nil
}

func handleListTargets(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		targets, err := loadTargets(r.Context(), deps.Store, deps.Cache, deps.Logger)
		if err != nil {
			failure(w, err)
			return
		}
		writeJSON(w, http.StatusOK, targets)
	}
}

func handleSetTarget(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		typ, err := vital.ParseType(chi.URLParam(r, "type"))
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		var req struct {
			Value *float64 `json:"value"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Value == nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "value is required")
			return
		}
		t := vital.Target{Type: typ, Value: *req.Value, Unit: typ.Unit()}
		if err := deps.Store.UpsertTarget(r.Context(), t); err != nil {
			failure(w, err)
			return
		}
		if deps.Cache != nil {
			if err := deps.Cache.Remove(r.Context(), targetsCacheKey); err != nil {
				deps.Logger.Warn("dropping cached targets", zap.Error(err))
			}
		}
		writeJSON(w, http.StatusOK, t)
	}
}
