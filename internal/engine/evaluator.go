package engine

import (
	"sort"
	"time"

	"github.com/t77yq/tabsched/internal/model"
)

// FireCandidate is a schedule selected for dispatch, tagged with its original
// due time for ordering
type FireCandidate struct {
	Schedule *model.Schedule
	DueAt    time.Time
	Late     time.Duration
}

// Result partitions a schedule snapshot into the actions a pass must take.
// Evaluate only classifies; applying the transitions is the engine's job.
type Result struct {
	// Fire holds due schedules within the grace period, sorted ascending
	// by original due time
	Fire []FireCandidate

	// Reminders holds schedules entering the pre-fire reminder window
	Reminders []*model.Schedule

	// ResetReminder holds fired schedules whose reminder flag must be
	// cleared for the next occurrence
	ResetReminder []*model.Schedule

	// AdvanceMissed holds recurring schedules past the grace period,
	// to be silently caught up without dispatching
	AdvanceMissed []*model.Schedule

	// MarkMissed holds one-time schedules past the grace period
	MarkMissed []*model.Schedule

	// ManualRelock holds manually unlocked schedules whose suspension
	// has expired
	ManualRelock []*model.Schedule

	// AutoRelock holds fired schedules whose relock window has elapsed
	AutoRelock []*model.Schedule
}

// Evaluate classifies every schedule in the snapshot against now and the
// active settings. It is pure decision logic: no schedule is mutated and no
// side effect is emitted.
//
// Due-time logic skips manually unlocked schedules entirely; suspension
// expiry and relock checks run every pass regardless of due times, so a
// suspended schedule is re-armed even when its next occurrence is far away.
func Evaluate(now time.Time, schedules []*model.Schedule, settings model.Settings) *Result {
	res := &Result{}

	for _, s := range schedules {
		if s.ManuallyUnlocked {
			if manualUnlockExpired(s, now) {
				res.ManualRelock = append(res.ManualRelock, s)
			}
			continue
		}

		if settings.Notifications && settings.ReminderLead > 0 && !s.Opened && !s.ReminderSent {
			until := s.DueTime.Sub(now)
			if until > 0 && until <= settings.ReminderLead {
				res.Reminders = append(res.Reminders, s)
			}
		}

		if s.Opened && s.ReminderSent {
			res.ResetReminder = append(res.ResetReminder, s)
		}

		if !now.Before(s.DueTime) && !s.Opened {
			late := now.Sub(s.DueTime)
			if late > settings.GracePeriod {
				if s.Recurring {
					res.AdvanceMissed = append(res.AdvanceMissed, s)
				} else {
					res.MarkMissed = append(res.MarkMissed, s)
				}
			} else {
				res.Fire = append(res.Fire, FireCandidate{
					Schedule: s,
					DueAt:    s.DueTime,
					Late:     late,
				})
			}
		}

		if s.Opened && s.AutoRelockAt != nil && !now.Before(*s.AutoRelockAt) {
			res.AutoRelock = append(res.AutoRelock, s)
		}
	}

	// Earliest-due fires first, independent of store iteration order
	sort.Slice(res.Fire, func(i, j int) bool {
		return res.Fire[i].DueAt.Before(res.Fire[j].DueAt)
	})

	return res
}

func manualUnlockExpired(s *model.Schedule, now time.Time) bool {
	if s.UnlockedAt == nil || s.LockMinutes == 0 {
		return false
	}
	expiry := s.UnlockedAt.Add(time.Duration(s.LockMinutes) * time.Minute)
	return !now.Before(expiry)
}
