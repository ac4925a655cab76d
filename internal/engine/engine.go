package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/t77yq/tabsched/internal/model"
	"github.com/t77yq/tabsched/internal/notify"
	"github.com/t77yq/tabsched/internal/storage"
)

// Engine owns the periodic evaluation pass: load a snapshot, classify every
// schedule, apply the resulting transitions, dispatch what is due, and write
// the snapshot back. One pass runs at a time; passes are short and naturally
// superseded by the next periodic trigger.
type Engine struct {
	logger     *zap.Logger
	store      storage.ScheduleStore
	dispatcher *Dispatcher
	notifier   notify.Notifier
	clock      Clock

	mu      sync.Mutex
	faulted map[string]bool
}

// New creates an engine
func New(store storage.ScheduleStore, dispatcher *Dispatcher, notifier notify.Notifier, clock Clock, logger *zap.Logger) *Engine {
	return &Engine{
		logger:     logger.Named("engine"),
		store:      store,
		dispatcher: dispatcher,
		notifier:   notifier,
		clock:      clock,
		faulted:    make(map[string]bool),
	}
}

// RunPass executes one due-check evaluation over the stored schedule set
func (e *Engine) RunPass(ctx context.Context) error {
	schedules, err := e.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load schedules: %w", err)
	}
	settings, err := e.store.LoadSettings(ctx)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	settings.Normalize()

	if settings.PauseAll {
		e.logger.Debug("All schedules paused, skipping pass")
		return nil
	}

	now := e.clock.Now()
	res := Evaluate(now, schedules, settings)

	for _, s := range res.Reminders {
		e.notifier.Reminder(ctx, s, settings.ReminderLead)
		s.ReminderSent = true
	}
	for _, s := range res.ResetReminder {
		s.ReminderSent = false
	}

	for _, s := range res.AdvanceMissed {
		next, err := AdvanceUntilAfter(s.DueTime, now, s.Repeat)
		if err != nil {
			e.noteFault(ctx, s, err)
			continue
		}
		// Silent catch-up: the missed occurrence is never dispatched
		e.clearFault(s.ID)
		s.Rearm(next)
		e.logger.Info("Missed recurring occurrence, rescheduled",
			zap.String("id", s.ID),
			zap.Time("next", next))
	}

	for _, s := range res.MarkMissed {
		s.MarkMissed(now)
		e.notifier.Missed(ctx, s)
		e.logger.Info("Missed one-time schedule",
			zap.String("id", s.ID),
			zap.Time("was_due", s.DueTime))
	}

	for _, s := range res.ManualRelock {
		s.Relock()
		if s.Recurring && s.Opened {
			s.Rearm(NextOccurrence(s.DueTime, s.Repeat))
		}
		e.notifier.Relocked(ctx, s, true)
	}

	for _, s := range res.AutoRelock {
		e.applyAutoRelock(ctx, s, now)
	}

	e.dispatcher.Dispatch(ctx, res.Fire, schedules, settings, now)

	if settings.AutoDeleteExpired {
		schedules = e.dropExpired(schedules, now)
	}

	if err := e.store.ReplaceAll(ctx, schedules); err != nil {
		return fmt.Errorf("failed to save schedules: %w", err)
	}
	return nil
}

// RunHealthCheck repairs structural invariant violations in the stored set.
// It runs at startup and periodically, and after an import.
func (e *Engine) RunHealthCheck(ctx context.Context) (Report, error) {
	schedules, err := e.store.LoadAll(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("failed to load schedules: %w", err)
	}

	repaired, report := Repair(e.clock.Now(), schedules)
	if report.Total() == 0 {
		e.logger.Debug("Health check: all schedules healthy")
		return report, nil
	}

	if err := e.store.ReplaceAll(ctx, repaired); err != nil {
		return report, fmt.Errorf("failed to save repaired schedules: %w", err)
	}

	detail := fmt.Sprintf("%d duplicates, %d defaulted, %d targetless, %d stuck, %d reset, %d runaway",
		report.DuplicateIDs, report.MissingFields, report.DroppedTargetless,
		report.StuckRecurring, report.ResetOpened, report.RunawaySchedules)
	e.logger.Info("Health check fixed issues",
		zap.Int("total", report.Total()),
		zap.String("detail", detail))
	e.notifier.HealthReport(ctx, report.Total(), detail)

	return report, nil
}

// applyAutoRelock re-engages a fired schedule whose relock window elapsed.
// A recurring schedule is rearmed at its next future occurrence unless that
// occurrence would pass the expiration date; checking before the rearm means
// an expired schedule is never resurrected with a future time.
func (e *Engine) applyAutoRelock(ctx context.Context, s *model.Schedule, now time.Time) {
	if !s.Recurring {
		s.Opened = false
		s.AutoRelockAt = nil
		e.notifier.Relocked(ctx, s, false)
		return
	}

	next, err := AdvanceUntilAfter(s.DueTime, now, s.Repeat)
	if err != nil {
		e.noteFault(ctx, s, err)
		return
	}
	e.clearFault(s.ID)
	if s.ExpirationDate != nil && next.After(*s.ExpirationDate) {
		e.logger.Info("Schedule expired, not rearming",
			zap.String("id", s.ID),
			zap.Time("expiration", *s.ExpirationDate))
		return
	}

	s.Rearm(next)
	e.notifier.Relocked(ctx, s, false)
}

// noteFault surfaces a runaway recurrence once per fault episode. A faulted
// schedule re-enters the same state every pass until it is edited or deleted;
// the notification and error log fire on the transition into the fault, not
// on every pass.
func (e *Engine) noteFault(ctx context.Context, s *model.Schedule, err error) {
	e.mu.Lock()
	already := e.faulted[s.ID]
	e.faulted[s.ID] = true
	e.mu.Unlock()
	if already {
		return
	}

	e.logger.Error("Runaway recurrence",
		zap.String("id", s.ID),
		zap.String("repeat", string(s.Repeat.Type)),
		zap.Error(err))
	e.notifier.Fault(ctx, s, err)
}

// clearFault ends a fault episode after a successful advance, so a later
// relapse notifies again
func (e *Engine) clearFault(id string) {
	e.mu.Lock()
	delete(e.faulted, id)
	e.mu.Unlock()
}

// dropExpired removes schedules whose expiration date has passed
func (e *Engine) dropExpired(schedules []*model.Schedule, now time.Time) []*model.Schedule {
	kept := schedules[:0]
	for _, s := range schedules {
		if s.Expired(now) {
			e.logger.Info("Auto-deleting expired schedule",
				zap.String("id", s.ID),
				zap.String("name", s.DisplayName()))
			continue
		}
		kept = append(kept, s)
	}
	return kept
}
