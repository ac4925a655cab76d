package snapshot

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/t77yq/tabsched/internal/engine"
	"github.com/t77yq/tabsched/internal/notify"
	"github.com/t77yq/tabsched/internal/storage"
)

// Backup frequency intervals
const (
	backupDaily   = 24 * time.Hour
	backupWeekly  = 7 * 24 * time.Hour
	backupMonthly = 30 * 24 * time.Hour
)

// AutoBackup periodically snapshots the full state into the store's backup
// table, keeping only the newest N copies. The job runs more often than the
// configured frequency; it decides internally whether a backup is due.
type AutoBackup struct {
	logger   *zap.Logger
	manager  *Manager
	store    storage.ScheduleStore
	notifier notify.Notifier
	clock    engine.Clock
}

// NewAutoBackup creates the auto-backup job
func NewAutoBackup(manager *Manager, store storage.ScheduleStore, notifier notify.Notifier, clock engine.Clock, logger *zap.Logger) *AutoBackup {
	return &AutoBackup{
		logger:   logger.Named("backup"),
		manager:  manager,
		store:    store,
		notifier: notifier,
		clock:    clock,
	}
}

// Run creates a backup when one is due under the configured frequency
func (b *AutoBackup) Run(ctx context.Context) error {
	settings, err := b.store.LoadSettings(ctx)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	if !settings.AutoBackup {
		return nil
	}

	now := b.clock.Now()
	last, err := b.store.LastBackupAt(ctx)
	if err != nil {
		return err
	}
	if !last.IsZero() && now.Sub(last) < frequencyInterval(settings.AutoBackupFrequency) {
		return nil
	}

	snap, err := b.manager.Export(ctx)
	if err != nil {
		return err
	}
	payload, err := snap.Marshal()
	if err != nil {
		return err
	}

	if err := b.store.SaveBackup(ctx, payload, now); err != nil {
		return err
	}
	if err := b.store.PruneBackups(ctx, settings.AutoBackupKeep); err != nil {
		return err
	}
	if err := b.store.SetLastBackupAt(ctx, now); err != nil {
		return err
	}

	b.logger.Info("Auto-backup created",
		zap.Time("at", now),
		zap.Int("schedules", len(snap.Schedules)))
	b.notifier.BackupCreated(ctx, now, len(snap.Schedules))
	return nil
}

// Restore replaces the stored state from the most recent backup, applying
// the same reconciliation as a regular import
func (b *AutoBackup) Restore(ctx context.Context) (ImportReport, error) {
	backups, err := b.store.ListBackups(ctx, 1)
	if err != nil {
		return ImportReport{}, err
	}
	if len(backups) == 0 {
		return ImportReport{}, fmt.Errorf("no backups available")
	}

	snap, err := Unmarshal(backups[0].Payload)
	if err != nil {
		return ImportReport{}, err
	}
	return b.manager.Import(ctx, snap)
}

func frequencyInterval(frequency string) time.Duration {
	switch frequency {
	case "weekly":
		return backupWeekly
	case "monthly":
		return backupMonthly
	default:
		return backupDaily
	}
}
