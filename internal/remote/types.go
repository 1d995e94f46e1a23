package remote

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kalambet/vitalsync/internal/vital"
)

// RemoteVital is a measurement as the remote service reports it.
type RemoteVital struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Value      float64   `json:"value"`
	Value2     *float64  `json:"value2,omitempty"`
	Unit       string    `json:"unit,omitempty"`
	MeasuredAt string    `json:"measuredAt"`
	Source     string    `json:"source,omitempty"`
	UpdatedAt  time.Time `json:"updatedAt"`
	Deleted    bool      `json:"deleted,omitempty"`
}

// VitalType resolves the wire type.
func (r RemoteVital) VitalType() (vital.Type, error) {
	return vital.ParseType(r.Type)
}

// Date is the calendar part of MeasuredAt.
func (r RemoteVital) Date() (vital.Date, error) {
	day, _, _ := strings.Cut(r.MeasuredAt, "T")
	d, err := vital.ParseDate(day)
	if err != nil {
		return "", fmt.Errorf("remote vital %s: %w", r.ID, err)
	}
	return d, nil
}

// UploadVital is one record in a batch upload.
type UploadVital struct {
	Type       string    `json:"type"`
	Code       string    `json:"code"`
	Value      float64   `json:"value"`
	Value2     *float64  `json:"value2,omitempty"`
	Unit       string    `json:"unit"`
	MeasuredAt string    `json:"measuredAt"`
	Source     string    `json:"source"`
	LocalID    string    `json:"localId"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// NewUploadVital converts a local record into its upload form.
func NewUploadVital(r vital.Record) UploadVital {
	source := r.Source
	if source == "" {
		source = vital.DefaultSource
	}
	return UploadVital{
		Type:       r.Type.Wire(),
		Code:       r.Type.Code(),
		Value:      r.Value,
		Value2:     r.SecondaryValue,
		Unit:       r.Type.Unit(),
		MeasuredAt: r.RecordedDate.String() + "T00:00:00Z",
		Source:     source,
		LocalID:    strconv.FormatInt(r.ID, 10),
		UpdatedAt:  r.UpdatedAt,
	}
}

// BatchResult is the server's answer to a batch upload. ProcessedIDs holds
// the local ids that were accepted.
type BatchResult struct {
	UploadedCount int       `json:"uploadedCount"`
	FailedCount   int       `json:"failedCount"`
	SyncedAt      time.Time `json:"syncedAt"`
	ProcessedIDs  []string  `json:"processedIds"`
	FailedIDs     []string  `json:"failedIds,omitempty"`
}

// RemoteDelete identifies a record deleted locally after it had been synced.
type RemoteDelete struct {
	Type         string `json:"type"`
	RecordedDate string `json:"recordedDate"`
	Source       string `json:"source"`
	LocalID      string `json:"localId"`
}

type batchRequest struct {
	Vitals []UploadVital `json:"vitals"`
}

type deleteRequest struct {
	Deletes []RemoteDelete `json:"deletes"`
}

type vitalsResponse struct {
	Vitals []RemoteVital `json:"vitals"`
}

// APIError is a non-retryable rejection from the remote service.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote returned status %d", e.Status)
	}
	return fmt.Sprintf("remote returned status %d: %s", e.Status, e.Message)
}
