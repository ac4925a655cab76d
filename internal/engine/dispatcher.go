package engine

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/t77yq/tabsched/internal/model"
	"github.com/t77yq/tabsched/internal/notify"
	"github.com/t77yq/tabsched/internal/opener"
	"github.com/t77yq/tabsched/internal/storage"
)

// Dispatcher sequences due schedules and invokes the open side effect.
// The first candidate opens immediately; later candidates are scheduled
// as independent future units spaced by the stagger interval. A delayed
// unit re-reads the store at execution time and re-checks the occurrence
// state, so it is safe against edits and deletions made in between.
type Dispatcher struct {
	logger   *zap.Logger
	store    storage.ScheduleStore
	opener   opener.Opener
	notifier notify.Notifier
	clock    Clock

	mu      sync.Mutex
	pending map[string]Timer
}

// NewDispatcher creates a dispatcher
func NewDispatcher(store storage.ScheduleStore, op opener.Opener, notifier notify.Notifier, clock Clock, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		logger:   logger.Named("dispatcher"),
		store:    store,
		opener:   op,
		notifier: notifier,
		clock:    clock,
		pending:  make(map[string]Timer),
	}
}

// Dispatch opens the ordered fire candidates with staggered timing. It
// mutates schedules in the snapshot for immediate opens; delayed opens
// persist their own updates when they run. Returns the number of opens
// performed or scheduled.
func (d *Dispatcher) Dispatch(ctx context.Context, candidates []FireCandidate, snapshot []*model.Schedule, settings model.Settings, now time.Time) int {
	if len(candidates) == 0 {
		return 0
	}

	d.logger.Info("Dispatching due schedules",
		zap.Int("count", len(candidates)),
		zap.Duration("stagger", settings.StaggerInterval))

	dispatched := 0
	position := 0
	for _, cand := range candidates {
		if d.isPending(cand.Schedule.ID) {
			continue
		}

		if position == 0 {
			if err := d.openNow(ctx, cand.Schedule, snapshot, settings, now); err != nil {
				d.logger.Error("Failed to open target",
					zap.String("id", cand.Schedule.ID),
					zap.String("target", cand.Schedule.Target),
					zap.Error(err))
				// Occurrence stays pending; re-evaluated next pass
				position++
				continue
			}
		} else {
			d.scheduleDelayed(cand.Schedule.ID, time.Duration(position)*settings.StaggerInterval, settings)
		}
		position++
		dispatched++
	}
	return dispatched
}

// Stop cancels every delayed open that has not yet run
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, timer := range d.pending {
		timer.Stop()
		delete(d.pending, id)
	}
}

// openNow opens a schedule's target and applies the fired transition in the
// caller's snapshot. The caller persists the snapshot.
func (d *Dispatcher) openNow(ctx context.Context, s *model.Schedule, snapshot []*model.Schedule, settings model.Settings, now time.Time) error {
	reminderSent := s.ReminderSent

	if _, err := d.opener.Open(ctx, s.Target, settings.OpenInBackground); err != nil {
		return err
	}

	s.MarkFired(now)

	if settings.Notifications {
		// At most one notification per occurrence: skip the opened
		// message when the advance reminder already fired for it
		if settings.ReminderLead == 0 || !reminderSent {
			d.notifier.Opened(ctx, s)
		}
	}
	if s.PlaySound {
		d.notifier.Sound(ctx, s)
	}

	d.applyChain(s, snapshot, now)

	d.logger.Info("Opened scheduled target",
		zap.String("id", s.ID),
		zap.String("target", s.Target),
		zap.Int("open_count", s.OpenCount))
	return nil
}

// applyChain defers the chained schedule to now plus the chain delay,
// unless it already fired
func (d *Dispatcher) applyChain(s *model.Schedule, snapshot []*model.Schedule, now time.Time) {
	if s.ChainTo == "" {
		return
	}
	delay := s.ChainDelayMinutes
	if delay <= 0 {
		delay = model.DefaultChainDelay
	}
	for _, chained := range snapshot {
		if chained.ID != s.ChainTo {
			continue
		}
		if !chained.Opened {
			chained.DueTime = now.Add(time.Duration(delay) * time.Minute)
			d.logger.Info("Chained schedule rescheduled",
				zap.String("from", s.ID),
				zap.String("to", chained.ID),
				zap.Time("due", chained.DueTime))
		}
		return
	}
}

// scheduleDelayed registers a future open for a staggered candidate. The
// candidate is tracked as pending so the next evaluation pass does not
// dispatch it a second time before the timer fires.
func (d *Dispatcher) scheduleDelayed(id string, delay time.Duration, settings model.Settings) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.pending[id]; ok {
		return
	}

	d.logger.Debug("Scheduled staggered open",
		zap.String("id", id),
		zap.Duration("delay", delay))

	d.pending[id] = d.clock.AfterFunc(delay, func() {
		defer d.clearPending(id)
		d.runDelayed(id, settings)
	})
}

// runDelayed executes a staggered open against fresh store state
func (d *Dispatcher) runDelayed(id string, settings model.Settings) {
	ctx := context.Background()

	snapshot, err := d.store.LoadAll(ctx)
	if err != nil {
		d.logger.Error("Failed to load schedules for delayed open",
			zap.String("id", id),
			zap.Error(err))
		return
	}

	var fresh *model.Schedule
	for _, s := range snapshot {
		if s.ID == id {
			fresh = s
			break
		}
	}
	now := d.clock.Now()
	if fresh == nil || fresh.Opened || fresh.ManuallyUnlocked || fresh.DueTime.After(now) {
		// Deleted, already opened, suspended, or retimed to the future
		// since scheduling
		return
	}

	if err := d.openNow(ctx, fresh, snapshot, settings, now); err != nil {
		d.logger.Error("Failed delayed open",
			zap.String("id", id),
			zap.String("target", fresh.Target),
			zap.Error(err))
		return
	}

	if err := d.store.ReplaceAll(ctx, snapshot); err != nil {
		d.logger.Error("Failed to persist delayed open",
			zap.String("id", id),
			zap.Error(err))
	}
}

func (d *Dispatcher) isPending(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.pending[id]
	return ok
}

func (d *Dispatcher) clearPending(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.pending, id)
}
