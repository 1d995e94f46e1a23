package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kalambet/vitalsync/internal/remote"
	"github.com/kalambet/vitalsync/internal/storage"
	"github.com/kalambet/vitalsync/internal/vital"
)

type recordKey struct {
	typ  vital.Type
	date vital.Date
}

type remoteEntry struct {
	remote.RemoteVital
	typ  vital.Type
	date vital.Date
}

func (re remoteEntry) record(now time.Time) vital.Record {
	updated := re.UpdatedAt
	if updated.IsZero() {
		updated = now
	}
	return vital.Record{
		Type:           re.typ,
		Value:          re.Value,
		SecondaryValue: re.Value2,
		RecordedDate:   re.date,
		Source:         re.Source,
		CreatedAt:      now,
		UpdatedAt:      updated,
		SyncedAt:       &now,
	}
}

type conflict struct {
	local  vital.Record
	remote remoteEntry
}

func (c conflict) id() string {
	return fmt.Sprintf("%d_%s", c.local.ID, c.remote.ID)
}

func (c conflict) pending(now time.Time) storage.PendingConflict {
	local, _ := json.Marshal(c.local)
	rv, _ := json.Marshal(c.remote.RemoteVital)
	return storage.PendingConflict{
		ID:           c.id(),
		LocalID:      c.local.ID,
		RemoteID:     c.remote.ID,
		Type:         c.local.Type,
		RecordedDate: c.local.RecordedDate,
		LocalJSON:    string(local),
		RemoteJSON:   string(rv),
		CreatedAt:    now,
	}
}

// detectConflicts pairs each unsynced local record with the first live remote
// record of the same type and date. A pair conflicts when the value, the
// secondary value or the modification time differ. matched holds the remote
// ids that were paired, conflicting or not; those are never inserted locally.
func detectConflicts(locals []vital.Record, remotes []remoteEntry) ([]conflict, map[string]bool) {
	byKey := make(map[recordKey]remoteEntry, len(remotes))
	for _, re := range remotes {
		if re.Deleted {
			continue
		}
		k := recordKey{re.typ, re.date}
		if _, ok := byKey[k]; !ok {
			byKey[k] = re
		}
	}

	var out []conflict
	matched := make(map[string]bool)
	for _, l := range locals {
		re, ok := byKey[recordKey{l.Type, l.RecordedDate}]
		if !ok {
			continue
		}
		matched[re.ID] = true
		if l.Value != re.Value || !sameFloat(l.SecondaryValue, re.Value2) || !l.UpdatedAt.Equal(re.UpdatedAt) {
			out = append(out, conflict{local: l, remote: re})
		}
	}
	return out, matched
}

func localKeys(locals []vital.Record) map[recordKey]bool {
	keys := make(map[recordKey]bool, len(locals))
	for _, l := range locals {
		keys[recordKey{l.Type, l.RecordedDate}] = true
	}
	return keys
}

func sameFloat(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// Conflict is a local/remote pair awaiting a manual decision.
type Conflict struct {
	ID           string             `json:"id"`
	Type         vital.Type         `json:"type"`
	RecordedDate vital.Date         `json:"recordedDate"`
	Local        vital.Record       `json:"local"`
	Remote       remote.RemoteVital `json:"remote"`
	CreatedAt    time.Time          `json:"createdAt"`
}

// PendingConflicts lists conflicts held under the manual strategy, oldest first.
func (e *Engine) PendingConflicts(ctx context.Context) ([]Conflict, error) {
	rows, err := e.store.ListPendingConflicts(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing conflicts: %w", err)
	}
	out := make([]Conflict, 0, len(rows))
	for _, pc := range rows {
		c, err := decodeConflict(pc)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func decodeConflict(pc storage.PendingConflict) (Conflict, error) {
	c := Conflict{
		ID:           pc.ID,
		Type:         pc.Type,
		RecordedDate: pc.RecordedDate,
		CreatedAt:    pc.CreatedAt,
	}
	if err := json.Unmarshal([]byte(pc.LocalJSON), &c.Local); err != nil {
		return Conflict{}, fmt.Errorf("decoding local side of conflict %s: %w", pc.ID, err)
	}
	if err := json.Unmarshal([]byte(pc.RemoteJSON), &c.Remote); err != nil {
		return Conflict{}, fmt.Errorf("decoding remote side of conflict %s: %w", pc.ID, err)
	}
	return c, nil
}

// ResolveConflict settles a held conflict. ChoiceLocal re-queues the local
// record for upload; ChoiceRemote overwrites it with the remote value and
// marks it synced. The conflict is removed either way.
func (e *Engine) ResolveConflict(ctx context.Context, id string, choice Choice) error {
	if choice != ChoiceLocal && choice != ChoiceRemote {
		return fmt.Errorf("unknown resolution %q", choice)
	}

	e.runMu.Lock()
	defer e.runMu.Unlock()

	pc, err := e.store.GetPendingConflict(ctx, id)
	if err != nil {
		return fmt.Errorf("loading conflict %s: %w", id, err)
	}
	c, err := decodeConflict(pc)
	if err != nil {
		return err
	}

	switch choice {
	case ChoiceLocal:
		err := e.store.RequeueVital(ctx, pc.LocalID)
		if errors.Is(err, storage.ErrNotFound) {
			e.logger.Info("local side of conflict no longer exists", zap.String("conflict_id", id))
		} else if err != nil {
			return fmt.Errorf("re-queueing vital %d: %w", pc.LocalID, err)
		}
	case ChoiceRemote:
		now := e.clock.Now()
		re := remoteEntry{RemoteVital: c.Remote, typ: pc.Type, date: pc.RecordedDate}
		rec := re.record(now)
		err := e.store.ApplyRemoteValue(ctx, pc.LocalID, rec.Value, rec.SecondaryValue, rec.UpdatedAt, now)
		if errors.Is(err, storage.ErrNotFound) {
			_, err = e.store.InsertRemoteVital(ctx, rec)
			if errors.Is(err, vital.ErrConstraintViolation) {
				e.logger.Warn("remote side of conflict already present locally", zap.String("conflict_id", id), zap.Error(err))
				err = nil
			}
		}
		if err != nil {
			return fmt.Errorf("applying remote side of conflict %s: %w", id, err)
		}
	}

	if err := e.store.DeletePendingConflict(ctx, id); err != nil {
		return fmt.Errorf("removing conflict %s: %w", id, err)
	}
	e.logger.Info("conflict resolved", zap.String("conflict_id", id), zap.String("choice", string(choice)))
	return nil
}
