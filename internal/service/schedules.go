package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/t77yq/tabsched/internal/engine"
	"github.com/t77yq/tabsched/internal/model"
	"github.com/t77yq/tabsched/internal/storage"
)

// conflictWindow is how close two due times may sit before they count as
// conflicting
const conflictWindow = time.Minute

var (
	// ErrScheduleNotFound is returned when the schedule id is unknown
	ErrScheduleNotFound = errors.New("schedule not found")

	// ErrPastDueTime is returned when a new schedule's due time is already past
	ErrPastDueTime = errors.New("due time is in the past")
)

// Conflict describes a schedule whose due time collides with a requested one
type Conflict struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Target  string    `json:"target"`
	DueTime time.Time `json:"due_time"`
}

// ScheduleService is the mutation boundary for external callers (CLI, API,
// import surface). Every operation validates synchronously; invalid input is
// never persisted. Mutations are read-modify-write over the store snapshot.
type ScheduleService struct {
	logger *zap.Logger
	store  storage.ScheduleStore
	clock  engine.Clock
}

// NewScheduleService creates a schedule service
func NewScheduleService(store storage.ScheduleStore, clock engine.Clock, logger *zap.Logger) *ScheduleService {
	return &ScheduleService{
		logger: logger.Named("schedules"),
		store:  store,
		clock:  clock,
	}
}

// Create validates and persists a new schedule. The id, creation time, and
// occurrence state are always assigned here, never taken from the caller.
func (svc *ScheduleService) Create(ctx context.Context, s *model.Schedule) (*model.Schedule, error) {
	now := svc.clock.Now()

	s.ID = uuid.New().String()
	s.CreatedAt = now
	s.Opened = false
	s.OpenedAt = nil
	s.ManuallyUnlocked = false
	s.UnlockedAt = nil
	s.AutoRelockAt = nil
	s.Missed = false
	s.ReminderSent = false
	s.OpenCount = 0
	if s.Category == "" {
		s.Category = model.DefaultCategory
	}
	if s.ChainTo != "" && s.ChainDelayMinutes <= 0 {
		s.ChainDelayMinutes = model.DefaultChainDelay
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	if !s.DueTime.After(now) {
		return nil, ErrPastDueTime
	}

	if err := svc.store.Save(ctx, s); err != nil {
		return nil, err
	}

	svc.logger.Info("Created schedule",
		zap.String("id", s.ID),
		zap.String("target", s.Target),
		zap.Time("due", s.DueTime))
	return s, nil
}

// Update replaces an existing schedule's definition. Moving the due time to
// the future resets the occurrence state so the schedule re-arms.
func (svc *ScheduleService) Update(ctx context.Context, updated *model.Schedule) error {
	if err := updated.Validate(); err != nil {
		return err
	}

	existing, err := svc.store.Get(ctx, updated.ID)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("%w: %s", ErrScheduleNotFound, updated.ID)
	}

	if !updated.DueTime.Equal(existing.DueTime) && updated.DueTime.After(svc.clock.Now()) {
		updated.Opened = false
		updated.OpenedAt = nil
		updated.ManuallyUnlocked = false
		updated.UnlockedAt = nil
		updated.AutoRelockAt = nil
		updated.Missed = false
		svc.logger.Info("Rescheduled to future time, reset occurrence state",
			zap.String("id", updated.ID))
	}

	return svc.store.Save(ctx, updated)
}

// Delete removes a schedule
func (svc *ScheduleService) Delete(ctx context.Context, id string) error {
	return svc.store.Delete(ctx, id)
}

// DeleteMany removes a set of schedules and returns how many were dropped
func (svc *ScheduleService) DeleteMany(ctx context.Context, ids []string) (int, error) {
	schedules, err := svc.store.LoadAll(ctx)
	if err != nil {
		return 0, err
	}

	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}

	kept := schedules[:0]
	deleted := 0
	for _, s := range schedules {
		if drop[s.ID] {
			deleted++
			continue
		}
		kept = append(kept, s)
	}
	if deleted == 0 {
		return 0, nil
	}

	if err := svc.store.ReplaceAll(ctx, kept); err != nil {
		return 0, err
	}
	return deleted, nil
}

// Duplicate copies a schedule under a fresh id with counters and occurrence
// state reset. When dueTime is non-nil it overrides the original's due time.
func (svc *ScheduleService) Duplicate(ctx context.Context, id string, dueTime *time.Time) (*model.Schedule, error) {
	original, err := svc.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if original == nil {
		return nil, fmt.Errorf("%w: %s", ErrScheduleNotFound, id)
	}

	copied := *original
	copied.ID = uuid.New().String()
	copied.CreatedAt = svc.clock.Now()
	copied.Opened = false
	copied.OpenedAt = nil
	copied.ManuallyUnlocked = false
	copied.UnlockedAt = nil
	copied.AutoRelockAt = nil
	copied.Missed = false
	copied.ReminderSent = false
	copied.OpenCount = 0
	if original.Name != "" {
		copied.Name = original.Name + " (copy)"
	}
	if dueTime != nil {
		copied.DueTime = *dueTime
	}

	if err := svc.store.Save(ctx, &copied); err != nil {
		return nil, err
	}
	return &copied, nil
}

// BulkShiftTime moves the due time of every listed schedule by the given
// offset. Schedules landing in the future are re-armed.
func (svc *ScheduleService) BulkShiftTime(ctx context.Context, ids []string, offset time.Duration) (int, error) {
	schedules, err := svc.store.LoadAll(ctx)
	if err != nil {
		return 0, err
	}

	shift := make(map[string]bool, len(ids))
	for _, id := range ids {
		shift[id] = true
	}

	now := svc.clock.Now()
	updated := 0
	for _, s := range schedules {
		if !shift[s.ID] {
			continue
		}
		s.DueTime = s.DueTime.Add(offset)
		if s.DueTime.After(now) {
			s.Opened = false
			s.OpenedAt = nil
			s.ManuallyUnlocked = false
			s.UnlockedAt = nil
			s.AutoRelockAt = nil
			s.Missed = false
		}
		updated++
	}
	if updated == 0 {
		return 0, nil
	}

	if err := svc.store.ReplaceAll(ctx, schedules); err != nil {
		return 0, err
	}

	svc.logger.Info("Shifted schedules",
		zap.Int("count", updated),
		zap.Duration("offset", offset))
	return updated, nil
}

// UpdateSortOrder rewrites the display order from the given id sequence
func (svc *ScheduleService) UpdateSortOrder(ctx context.Context, orderedIDs []string) error {
	schedules, err := svc.store.LoadAll(ctx)
	if err != nil {
		return err
	}

	position := make(map[string]int, len(orderedIDs))
	for i, id := range orderedIDs {
		position[id] = i
	}
	for _, s := range schedules {
		if p, ok := position[s.ID]; ok {
			s.SortOrder = p
		}
	}

	return svc.store.ReplaceAll(ctx, schedules)
}

// ManualUnlock suspends a schedule at the user's request
func (svc *ScheduleService) ManualUnlock(ctx context.Context, id string) error {
	s, err := svc.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if s == nil {
		return fmt.Errorf("%w: %s", ErrScheduleNotFound, id)
	}

	s.Unlock(svc.clock.Now())
	return svc.store.Save(ctx, s)
}

// Relock ends a manual suspension immediately
func (svc *ScheduleService) Relock(ctx context.Context, id string) error {
	s, err := svc.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if s == nil {
		return fmt.Errorf("%w: %s", ErrScheduleNotFound, id)
	}

	s.Relock()
	if s.Recurring && s.Opened {
		s.Rearm(engine.NextOccurrence(s.DueTime, s.Repeat))
	}
	return svc.store.Save(ctx, s)
}

// CheckConflict reports schedules whose due time falls within a minute of
// the requested time. Fired and suspended schedules do not conflict.
func (svc *ScheduleService) CheckConflict(ctx context.Context, target time.Time, excludeID string) ([]Conflict, error) {
	schedules, err := svc.store.LoadAll(ctx)
	if err != nil {
		return nil, err
	}

	var conflicts []Conflict
	for _, s := range schedules {
		if s.ID == excludeID || s.Opened || s.ManuallyUnlocked {
			continue
		}
		if absDuration(s.DueTime.Sub(target)) < conflictWindow {
			conflicts = append(conflicts, Conflict{
				ID:      s.ID,
				Name:    s.Name,
				Target:  s.Target,
				DueTime: s.DueTime,
			})
		}
	}
	return conflicts, nil
}

// NextAvailableSlot walks forward from start in interval steps until it finds
// a time that conflicts with no active schedule
func (svc *ScheduleService) NextAvailableSlot(ctx context.Context, start time.Time, interval time.Duration) (time.Time, error) {
	if interval <= 0 {
		interval = time.Minute
	}

	schedules, err := svc.store.LoadAll(ctx)
	if err != nil {
		return time.Time{}, err
	}

	var active []time.Time
	for _, s := range schedules {
		if !s.Opened && !s.ManuallyUnlocked {
			active = append(active, s.DueTime)
		}
	}

	candidate := start
	for conflictsWith(active, candidate) {
		candidate = candidate.Add(interval)
	}
	return candidate, nil
}

func conflictsWith(times []time.Time, candidate time.Time) bool {
	for _, t := range times {
		if absDuration(t.Sub(candidate)) < conflictWindow {
			return true
		}
	}
	return false
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
