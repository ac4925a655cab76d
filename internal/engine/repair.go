package engine

import (
	"time"

	"github.com/google/uuid"

	"github.com/t77yq/tabsched/internal/model"
)

// Report counts the issues fixed by a health-repair pass, per issue type
type Report struct {
	DuplicateIDs      int `json:"duplicate_ids"`
	MissingFields     int `json:"missing_fields"`
	DroppedTargetless int `json:"dropped_targetless"`
	StuckRecurring    int `json:"stuck_recurring"`
	ResetOpened       int `json:"reset_opened"`
	RunawaySchedules  int `json:"runaway_schedules"`
}

// Total returns the number of issues fixed across all types
func (r Report) Total() int {
	return r.DuplicateIDs + r.MissingFields + r.DroppedTargetless +
		r.StuckRecurring + r.ResetOpened + r.RunawaySchedules
}

// Repair scans the schedule set for structural invariant violations and fixes
// them. It is idempotent: repairing an already-repaired set changes nothing.
//
// Checks run in order: duplicate ids are dropped (first occurrence wins),
// missing required fields are defaulted, targetless entries are removed,
// stuck recurring schedules are advanced to their next future occurrence,
// and one-time schedules marked opened with a future due time are reset.
func Repair(now time.Time, schedules []*model.Schedule) ([]*model.Schedule, Report) {
	var report Report

	seen := make(map[string]bool, len(schedules))
	unique := schedules[:0]
	for _, s := range schedules {
		if s.ID != "" && seen[s.ID] {
			report.DuplicateIDs++
			continue
		}
		seen[s.ID] = true
		unique = append(unique, s)
	}

	repaired := make([]*model.Schedule, 0, len(unique))
	for _, s := range unique {
		if s.Target == "" {
			report.DroppedTargetless++
			continue
		}
		if fillDefaults(s) {
			report.MissingFields++
		}
		repaired = append(repaired, s)
	}

	for _, s := range repaired {
		if s.Recurring && s.DueTime.Before(now) {
			next, err := AdvanceUntilAfter(s.DueTime, now, s.Repeat)
			if err != nil {
				report.RunawaySchedules++
				continue
			}
			s.Rearm(next)
			report.StuckRecurring++
			continue
		}
		if !s.Recurring && s.Opened && s.DueTime.After(now) {
			s.Opened = false
			s.OpenedAt = nil
			s.Missed = false
			report.ResetOpened++
		}
	}

	return repaired, report
}

func fillDefaults(s *model.Schedule) bool {
	fixed := false
	if s.ID == "" {
		s.ID = uuid.New().String()
		fixed = true
	}
	if s.Category == "" {
		s.Category = model.DefaultCategory
		fixed = true
	}
	if s.LockMinutes < 0 {
		s.LockMinutes = model.DefaultLockMinutes
		fixed = true
	}
	if s.Repeat.Type == "" {
		if s.Recurring {
			s.Repeat.Type = model.RepeatDaily
		} else {
			s.Repeat.Type = model.RepeatNone
		}
		fixed = true
	}
	if s.Repeat.Type == model.RepeatDaysOfWeek {
		valid := s.Repeat.Weekdays[:0]
		for _, d := range s.Repeat.Weekdays {
			if d >= time.Sunday && d <= time.Saturday {
				valid = append(valid, d)
			}
		}
		if len(valid) != len(s.Repeat.Weekdays) {
			s.Repeat.Weekdays = valid
			fixed = true
		}
	}
	if s.Opened && s.OpenedAt == nil {
		at := s.DueTime
		s.OpenedAt = &at
		fixed = true
	}
	if s.ManuallyUnlocked && s.UnlockedAt == nil {
		// Cannot reconstruct when the suspension began; end it
		s.ManuallyUnlocked = false
		fixed = true
	}
	return fixed
}
