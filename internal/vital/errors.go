package vital

import "errors"

// Failure classes shared by the store, cache, encryption layer and sync engine.
// Callers match them with errors.Is; every layer wraps rather than replaces them.
var (
	// ErrNotInitialized is returned when a component is used before setup or after Close.
	ErrNotInitialized = errors.New("not initialized")

	// ErrIntegrity is returned when an envelope's MAC does not verify.
	ErrIntegrity = errors.New("integrity check failed")

	// ErrNetwork marks transient remote failures, including being offline.
	ErrNetwork = errors.New("network unavailable")

	// ErrConflictUnresolved marks conflicts awaiting a manual decision.
	ErrConflictUnresolved = errors.New("conflict unresolved")

	// ErrCapacityExceeded is logged when the cache stays over capacity after eviction.
	ErrCapacityExceeded = errors.New("cache capacity exceeded")

	// ErrConstraintViolation is returned when a write would duplicate a (type, date, source) record.
	ErrConstraintViolation = errors.New("constraint violation")
)
