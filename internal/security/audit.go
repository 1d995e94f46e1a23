package security

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kalambet/vitalsync/internal/vital"
)

const (
	DefaultLogLimit = 100

	// A security check looks at this many recent entries and flags more
	// than maxRecentAuthFailures failed unlocks among them.
	recentAuthWindow      = 10
	maxRecentAuthFailures = 3
)

// Issues reported by PerformSecurityCheck.
const (
	IssueBiometricUnavailable = "biometric authentication is enabled but not available"
	IssueMasterKeyMissing     = "encryption key is not initialized"
	IssueAuthFailures         = "too many recent authentication failures"
)

type LogEntry struct {
	ID        int64           `json:"id"`
	Event     string          `json:"event"`
	Timestamp time.Time       `json:"timestamp"`
	Details   json.RawMessage `json:"details"`
	Success   bool            `json:"success"`
}

// SecurityLogs returns up to limit audit entries, newest first.
func (l *Layer) SecurityLogs(ctx context.Context, limit int) ([]LogEntry, error) {
	if limit <= 0 {
		limit = DefaultLogLimit
	}
	rows, err := l.store.RecentSecurityLogs(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("reading security logs: %w", err)
	}
	out := make([]LogEntry, len(rows))
	for i, r := range rows {
		out[i] = LogEntry{
			ID:        r.ID,
			Event:     r.EventType,
			Timestamp: r.Timestamp,
			Details:   json.RawMessage(r.Details),
			Success:   r.Success,
		}
	}
	return out, nil
}

type CheckResult struct {
	Secure bool     `json:"isSecure"`
	Issues []string `json:"issues"`
}

func (l *Layer) PerformSecurityCheck(ctx context.Context) (CheckResult, error) {
	issues := []string{}

	if l.Settings().BiometricEnabled && l.auth == nil {
		issues = append(issues, IssueBiometricUnavailable)
	}
	if !l.HasMasterKey() {
		issues = append(issues, IssueMasterKeyMissing)
	}

	recent, err := l.store.RecentSecurityLogs(ctx, recentAuthWindow)
	if err != nil {
		return CheckResult{}, fmt.Errorf("reading security logs: %w", err)
	}
	failed := 0
	for _, e := range recent {
		if e.EventType == EventBiometricAuth && !e.Success {
			failed++
		}
	}
	if failed > maxRecentAuthFailures {
		issues = append(issues, IssueAuthFailures)
	}

	return CheckResult{Secure: len(issues) == 0, Issues: issues}, nil
}

// ExportSecureData encrypts v under password for transfer off the device.
// The session must be unlocked.
func (l *Layer) ExportSecureData(v any, password string) (string, error) {
	if password == "" {
		return "", errors.New("export password is empty")
	}
	if !l.IsSessionValid() {
		return "", ErrSessionLocked
	}
	l.Touch()

	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encoding export: %w", err)
	}
	env, err := seal([]byte(password), raw)
	if err != nil {
		return "", err
	}
	blob, err := json.Marshal(env)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(blob), nil
}

// ImportSecureData decrypts a blob produced by ExportSecureData into out. A
// wrong password or a damaged blob fails with vital.ErrIntegrity.
func (l *Layer) ImportSecureData(blob, password string, out any) error {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return fmt.Errorf("decoding import: %v: %w", err, vital.ErrIntegrity)
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decoding import: %v: %w", err, vital.ErrIntegrity)
	}
	plaintext, err := open([]byte(password), env)
	if err != nil {
		return err
	}
	return json.Unmarshal(plaintext, out)
}
