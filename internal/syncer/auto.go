package syncer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/kalambet/vitalsync/internal/storage"
)

// AutoSyncSettingKey holds "true" or "false". Automatic syncing is on while
// the key is unset.
const AutoSyncSettingKey = "sync_auto_enabled"

// AutoSyncEnabled reports whether interval and reconnect triggers may start
// a cycle. Manual syncs are never gated.
func (e *Engine) AutoSyncEnabled(ctx context.Context) (bool, error) {
	raw, err := e.store.GetSetting(ctx, AutoSyncSettingKey)
	if errors.Is(err, storage.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading auto sync setting: %w", err)
	}
	on, err := strconv.ParseBool(raw)
	if err != nil {
		e.logger.Warn("ignoring stored auto sync setting", zap.String("value", raw))
		return true, nil
	}
	return on, nil
}

func (e *Engine) SetAutoSync(ctx context.Context, enabled bool) error {
	if err := e.store.SetSetting(ctx, AutoSyncSettingKey, strconv.FormatBool(enabled)); err != nil {
		return fmt.Errorf("saving auto sync setting: %w", err)
	}
	e.logger.Info("auto sync changed", zap.Bool("enabled", enabled))
	return nil
}

// syncedWithin reports whether the last completed cycle started less than
// gap ago and no local change is waiting for upload.
func (e *Engine) syncedWithin(ctx context.Context, gap time.Duration) (bool, error) {
	st, err := e.Status(ctx)
	if err != nil {
		return false, err
	}
	if st.LastSyncTime == nil || st.PendingChanges > 0 {
		return false, nil
	}
	return e.clock.Now().Sub(*st.LastSyncTime) < gap, nil
}
