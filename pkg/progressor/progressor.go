// Package progressor runs schema upgrade work when the running binary
// version differs from the version stamped in the store.
package progressor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gptchat/pkg/logger"
	"gptchat/pkg/models"
	"gptchat/pkg/store"
	"gptchat/pkg/utils"
)

const (
	systemVersionKey    = "version"
	systemInProgressKey = "migration_in_progress"
)

// Sync performs upgrade work between versions. Edit in-place for migration logic.
func Sync(ctx context.Context, from, to string) error {
	logger.Info("progressor_sync_start", "from", from, "to", to)

	// Migration: backfill missing slugs on titled threads and reset
	// unknown model ids to the default. Idempotent and safe to re-run.
	err := store.ForEachThread(func(th models.Thread) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		changed := false
		if th.Title != "" && th.Slug == "" {
			th.Slug = utils.MakeSlug(th.Title, th.ID)
			changed = true
		}
		if th.Model != "" && !models.KnownModel(th.Model) {
			logger.Warn("progressor_unknown_model_reset", "thread", th.ID, "model", th.Model)
			th.Model = models.DefaultModel
			changed = true
		}
		if !changed {
			return nil
		}
		th.UpdatedTS = time.Now().UTC().UnixNano()
		if err := store.SaveThread(th.Owner, th.ID, th); err != nil {
			logger.Error("progressor_save_thread_failed", "thread", th.ID, "error", err)
		}
		return nil
	})
	if err != nil {
		logger.Error("progressor_thread_scan_failed", "error", err)
		return err
	}

	logger.Info("progressor_sync_done", "from", from, "to", to)
	return nil
}

// Run checks for a version change and runs Sync if needed.
// Returns (invoked, error): invoked is true if Sync ran.
func Run(ctx context.Context, newVersion string) (bool, error) {
	stored, err := store.GetSystemKey(systemVersionKey)
	if err != nil {
		logger.Error("progressor_read_version_failed", "error", err)
		return false, err
	}
	logger.Info("progressor_version_check", "stored", stored, "running", newVersion)
	if stored == newVersion {
		logger.Info("progressor_noop", "version", newVersion)
		return false, nil
	}

	marker := map[string]string{
		"from":       stored,
		"to":         newVersion,
		"started_at": time.Now().UTC().Format(time.RFC3339),
	}
	mb, _ := json.Marshal(marker)
	if err := store.SaveSystemKey(systemInProgressKey, mb); err != nil {
		logger.Error("progressor_write_inprogress_failed", "error", err)
		return true, fmt.Errorf("failed to write in-progress marker: %w", err)
	}

	logger.Info("progressor_start_sync", "from", stored, "to", newVersion)
	if err := Sync(ctx, stored, newVersion); err != nil {
		logger.Error("progressor_sync_failed", "from", stored, "to", newVersion, "error", err)
		return true, err
	}

	if err := store.SaveSystemKey(systemVersionKey, []byte(newVersion)); err != nil {
		logger.Error("progressor_persist_version_failed", "version", newVersion, "error", err)
		return true, fmt.Errorf("failed to persist new version: %w", err)
	}
	if err := store.DeleteSystemKey(systemInProgressKey); err != nil {
		logger.Error("progressor_delete_inprogress_failed", "error", err)
	}

	logger.Info("progressor_version_persisted", "version", newVersion)
	return true, nil
}
