package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/t77yq/tabsched/internal/engine"
	"github.com/t77yq/tabsched/internal/model"
	"github.com/t77yq/tabsched/internal/storage"
)

// Version tags the snapshot wire format
const Version = "2.0.0"

// Snapshot is the serializable form of the full schedule state used for
// export, import and backups
type Snapshot struct {
	Version    string            `json:"version"`
	ExportedAt time.Time         `json:"exported_at"`
	Schedules  []*model.Schedule `json:"schedules"`
	Settings   model.Settings    `json:"settings"`
	Categories []string          `json:"categories,omitempty"`
	Folders    []string          `json:"folders,omitempty"`
}

// ImportReport counts the reconciliation applied while accepting a snapshot
type ImportReport struct {
	Imported       int `json:"imported"`
	ResetFuture    int `json:"reset_future"`
	Rescheduled    int `json:"rescheduled"`
	MarkedOpened   int `json:"marked_opened"`
	DroppedRunaway int `json:"dropped_runaway"`
}

// Manager moves full snapshots in and out of the store
type Manager struct {
	logger *zap.Logger
	store  storage.ScheduleStore
	clock  engine.Clock
}

// NewManager creates a snapshot manager
func NewManager(store storage.ScheduleStore, clock engine.Clock, logger *zap.Logger) *Manager {
	return &Manager{
		logger: logger.Named("snapshot"),
		store:  store,
		clock:  clock,
	}
}

// Export gathers the full state into a versioned snapshot
func (m *Manager) Export(ctx context.Context) (*Snapshot, error) {
	schedules, err := m.store.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load schedules: %w", err)
	}
	settings, err := m.store.LoadSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	categories, err := m.store.LoadCategories(ctx)
	if err != nil {
		return nil, err
	}
	folders, err := m.store.LoadFolders(ctx)
	if err != nil {
		return nil, err
	}

	return &Snapshot{
		Version:    Version,
		ExportedAt: m.clock.Now(),
		Schedules:  schedules,
		Settings:   settings,
		Categories: categories,
		Folders:    folders,
	}, nil
}

// Import replaces the stored state with the snapshot's, reconciling every
// schedule against the current time first: future due times are re-armed,
// past recurring ones are caught up to their next occurrence, and past
// one-time ones are marked already opened.
func (m *Manager) Import(ctx context.Context, snap *Snapshot) (ImportReport, error) {
	now := m.clock.Now()
	report := ImportReport{}

	var accepted []*model.Schedule
	for _, s := range snap.Schedules {
		if s.Target == "" {
			continue
		}
		if s.ID == "" {
			s.ID = uuid.New().String()
		}

		switch {
		case s.DueTime.After(now):
			if s.Opened || s.ManuallyUnlocked || s.Missed {
				report.ResetFuture++
			}
			s.Rearm(s.DueTime)

		case s.Recurring:
			next, err := engine.AdvanceUntilAfter(s.DueTime, now, s.Repeat)
			if err != nil {
				m.logger.Warn("Dropping schedule with runaway recurrence on import",
					zap.String("id", s.ID),
					zap.Error(err))
				report.DroppedRunaway++
				continue
			}
			s.Rearm(next)
			report.Rescheduled++

		default:
			// Past one-time occurrence already happened; record it as
			// opened without the firing side effects
			if !s.Opened {
				at := s.DueTime
				s.Opened = true
				s.OpenedAt = &at
				report.MarkedOpened++
			}
			s.ManuallyUnlocked = false
			s.UnlockedAt = nil
		}

		accepted = append(accepted, s)
	}
	report.Imported = len(accepted)

	if err := m.store.ReplaceAll(ctx, accepted); err != nil {
		return report, fmt.Errorf("failed to save imported schedules: %w", err)
	}

	snap.Settings.Normalize()
	if err := m.store.SaveSettings(ctx, snap.Settings); err != nil {
		return report, fmt.Errorf("failed to save imported settings: %w", err)
	}
	if len(snap.Categories) > 0 {
		if err := m.store.SaveCategories(ctx, snap.Categories); err != nil {
			return report, err
		}
	}
	if len(snap.Folders) > 0 {
		if err := m.store.SaveFolders(ctx, snap.Folders); err != nil {
			return report, err
		}
	}

	m.logger.Info("Imported snapshot",
		zap.Int("schedules", report.Imported),
		zap.Int("rescheduled", report.Rescheduled),
		zap.Int("marked_opened", report.MarkedOpened))
	return report, nil
}

// Marshal serializes a snapshot for storage or transfer
func (s *Snapshot) Marshal() (json.RawMessage, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return data, nil
}

// Unmarshal parses a snapshot payload
func Unmarshal(data json.RawMessage) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snap, nil
}
