package vital

import (
	"fmt"
	"time"
)

// DateLayout is the storage and wire layout of a calendar date.
const DateLayout = "2006-01-02"

// DefaultSource is recorded when a measurement has no explicit origin.
const DefaultSource = "manual"

// Date is a calendar date without a time component, formatted as YYYY-MM-DD.
type Date string

// DateOf returns the UTC calendar date of t.
func DateOf(t time.Time) Date {
	return Date(t.UTC().Format(DateLayout))
}

// ParseDate validates s as a YYYY-MM-DD date.
func ParseDate(s string) (Date, error) {
	if _, err := time.Parse(DateLayout, s); err != nil {
		return "", fmt.Errorf("invalid date %q: %w", s, err)
	}
	return Date(s), nil
}

// Time returns midnight UTC of d.
func (d Date) Time() time.Time {
	t, _ := time.Parse(DateLayout, string(d))
	return t
}

func (d Date) String() string { return string(d) }

// SyncStatus tracks whether a record has reached the remote service.
type SyncStatus string

const (
	StatusPending  SyncStatus = "pending"
	StatusModified SyncStatus = "modified"
	StatusSynced   SyncStatus = "synced"
)

// Record is one measurement stored on the device.
type Record struct {
	ID             int64      `json:"id"`
	Type           Type       `json:"type"`
	Value          float64    `json:"value"`
	SecondaryValue *float64   `json:"secondaryValue,omitempty"`
	Unit           string     `json:"unit"`
	RecordedDate   Date       `json:"recordedDate"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	Source         string     `json:"source"`
	SyncStatus     SyncStatus `json:"syncStatus"`
	SyncedAt       *time.Time `json:"syncedAt,omitempty"`
}

// Target is the goal value for one measurement type.
type Target struct {
	Type  Type    `json:"type"`
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

// DefaultTargets are seeded into a fresh store.
func DefaultTargets() []Target {
	return []Target{
		{Type: Steps, Value: 8000, Unit: Steps.Unit()},
		{Type: Weight, Value: 65, Unit: Weight.Unit()},
		{Type: Temperature, Value: 36.5, Unit: Temperature.Unit()},
		{Type: BloodPressure, Value: 120, Unit: BloodPressure.Unit()},
	}
}

// Float returns a pointer to v, for optional secondary values.
func Float(v float64) *float64 { return &v }

// SameSecondary reports whether two optional secondary values are equal.
func SameSecondary(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
