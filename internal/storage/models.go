package storage

import (
	"errors"
	"time"

	"github.com/kalambet/vitalsync/internal/vital"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// DateRange bounds a vitals query. Empty ends are open; both ends are inclusive.
type DateRange struct {
	From vital.Date
	To   vital.Date
}

// PendingConflict is a local/remote pair held for a manual decision.
type PendingConflict struct {
	ID           string
	LocalID      int64
	RemoteID     string
	Type         vital.Type
	RecordedDate vital.Date
	LocalJSON    string
	RemoteJSON   string
	CreatedAt    time.Time
}

// PendingDelete is a tombstone for a synced record the user deleted locally.
type PendingDelete struct {
	ID           int64
	LocalID      int64
	Type         vital.Type
	RecordedDate vital.Date
	Source       string
	DeletedAt    time.Time
}

type CacheEntry struct {
	Key          string
	Data         []byte
	CreatedAt    time.Time
	ExpiresAt    *time.Time
	Priority     int
	Size         int64
	LastAccessed time.Time
	AccessCount  int64
}

// CacheVictim is an eviction candidate.
type CacheVictim struct {
	Key  string
	Size int64
}

type CacheStats struct {
	TotalSize         int64
	EntryCount        int64
	OldestEntry       *time.Time
	MostAccessedKey   string
	MostAccessedCount int64
}

// Offline request statuses.
const (
	OfflinePending = "pending"
	OfflineDone    = "done"
	OfflineFailed  = "failed"
)

type OfflineRequest struct {
	ID         string
	Method     string
	URL        string
	Data       []byte
	Headers    []byte // sealed JSON map
	CreatedAt  time.Time
	UpdatedAt  time.Time
	RetryCount int
	Priority   int
	Status     string
	LastError  string
}

type SecurityLog struct {
	ID        int64
	EventType string
	Timestamp time.Time
	Details   string // JSON object stored as text
	Success   bool
}
