package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/kalambet/vitalsync/internal/security"
	"github.com/kalambet/vitalsync/internal/storage"
	"github.com/kalambet/vitalsync/internal/vital"
)

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

// failure maps a domain error onto a status code and error type.
func failure(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		httpError(w, http.StatusNotFound, "not_found_error", "%v", err)
	case errors.Is(err, vital.ErrConstraintViolation):
		httpError(w, http.StatusConflict, "conflict_error", "%v", err)
	case errors.Is(err, vital.ErrUnknownType):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	case errors.Is(err, vital.ErrNetwork):
		httpError(w, http.StatusServiceUnavailable, "network_error", "%v", err)
	case errors.Is(err, security.ErrSessionLocked), errors.Is(err, security.ErrKeyUnavailable):
		httpError(w, http.StatusLocked, "locked_error", "%v", err)
	case errors.Is(err, security.ErrAuthInProgress):
		httpError(w, http.StatusConflict, "conflict_error", "%v", err)
	case errors.Is(err, vital.ErrIntegrity):
		httpError(w, http.StatusUnprocessableEntity, "integrity_error", "%v", err)
	case errors.Is(err, vital.ErrNotInitialized):
		httpError(w, http.StatusServiceUnavailable, "api_error", "%v", err)
	case errors.Is(err, context.DeadlineExceeded):
		httpError(w, http.StatusGatewayTimeout, "api_error", "%v", err)
	default:
		httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
