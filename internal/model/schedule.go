package model

import (
	"errors"
	"fmt"
	"time"
)

// RepeatType identifies how a recurring schedule advances to its next occurrence
type RepeatType string

const (
	RepeatNone          RepeatType = "none"
	RepeatDaily         RepeatType = "daily"
	RepeatWeekdays      RepeatType = "weekdays"
	RepeatWeekends      RepeatType = "weekends"
	RepeatWeekly        RepeatType = "weekly"
	RepeatEveryNWeeks   RepeatType = "every_n_weeks"
	RepeatMonthly       RepeatType = "monthly"
	RepeatEveryNMonths  RepeatType = "every_n_months"
	RepeatYearly        RepeatType = "yearly"
	RepeatEveryNYears   RepeatType = "every_n_years"
	RepeatEveryNMinutes RepeatType = "every_n_minutes"
	RepeatEveryNHours   RepeatType = "every_n_hours"
	RepeatEveryNDays    RepeatType = "every_n_days"
	RepeatDaysOfWeek    RepeatType = "days_of_week"
	RepeatSpecificDates RepeatType = "specific_dates"
)

// RepeatPolicy describes the recurrence rule for a schedule. Interval applies
// to the every-N variants, Weekdays to days_of_week, Dates to specific_dates.
type RepeatPolicy struct {
	Type     RepeatType     `json:"type"`
	Interval int            `json:"interval,omitempty"`
	Weekdays []time.Weekday `json:"weekdays,omitempty"`
	Dates    []time.Time    `json:"dates,omitempty"`
}

// OccurrenceState is the derived lifecycle state of a schedule's current occurrence
type OccurrenceState string

const (
	StatePending          OccurrenceState = "pending"
	StateFired            OccurrenceState = "fired"
	StateMissed           OccurrenceState = "missed"
	StateManuallyUnlocked OccurrenceState = "manually_unlocked"
	StatePendingRelock    OccurrenceState = "pending_relock"
)

var (
	// ErrEmptyTarget is returned when a schedule has no target to open
	ErrEmptyTarget = errors.New("schedule target is required")

	// ErrInvalidRepeatType is returned for an unrecognized repeat type
	ErrInvalidRepeatType = errors.New("invalid repeat type")

	// ErrInvalidInterval is returned when an every-N policy has a non-positive N
	ErrInvalidInterval = errors.New("repeat interval must be positive")

	// ErrSpecificDatesRecur is returned when a specific-dates schedule is marked recurring
	ErrSpecificDatesRecur = errors.New("specific-dates schedules cannot be recurring")

	// ErrInvalidWeekday is returned when a days-of-week policy names a weekday
	// outside Sunday..Saturday
	ErrInvalidWeekday = errors.New("weekday out of range")

	// ErrZeroDueTime is returned when a schedule has no due time
	ErrZeroDueTime = errors.New("schedule due time is required")
)

// Schedule represents a scheduled target together with its recurrence policy
// and the state of its current occurrence. The occurrence flags are mutated
// only through the transition helpers below so the invariants
// (opened implies openedAt, manuallyUnlocked implies unlockedAt) hold.
type Schedule struct {
	ID       string `json:"id"`
	Target   string `json:"target"`
	Name     string `json:"name,omitempty"`
	Category string `json:"category,omitempty"`
	Folder   string `json:"folder,omitempty"`
	Notes    string `json:"notes,omitempty"`

	DueTime   time.Time    `json:"due_time"`
	Recurring bool         `json:"recurring"`
	Repeat    RepeatPolicy `json:"repeat"`

	Opened           bool       `json:"opened"`
	OpenedAt         *time.Time `json:"opened_at,omitempty"`
	ManuallyUnlocked bool       `json:"manually_unlocked"`
	UnlockedAt       *time.Time `json:"unlocked_at,omitempty"`
	LockMinutes      int        `json:"lock_minutes"`
	AutoRelockAt     *time.Time `json:"auto_relock_at,omitempty"`
	Missed           bool       `json:"missed"`
	ReminderSent     bool       `json:"reminder_sent"`

	OpenCount      int        `json:"open_count"`
	ExpirationDate *time.Time `json:"expiration_date,omitempty"`

	PlaySound         bool   `json:"play_sound"`
	ChainTo           string `json:"chain_to,omitempty"`
	ChainDelayMinutes int    `json:"chain_delay_minutes,omitempty"`

	SortOrder int       `json:"sort_order"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks the structural invariants enforced at the creation/edit boundary
func (s *Schedule) Validate() error {
	if s.Target == "" {
		return ErrEmptyTarget
	}
	if s.DueTime.IsZero() {
		return ErrZeroDueTime
	}
	switch s.Repeat.Type {
	case "", RepeatNone, RepeatDaily, RepeatWeekdays, RepeatWeekends, RepeatWeekly,
		RepeatMonthly, RepeatYearly, RepeatDaysOfWeek, RepeatSpecificDates:
	case RepeatEveryNWeeks, RepeatEveryNMonths, RepeatEveryNYears,
		RepeatEveryNMinutes, RepeatEveryNHours, RepeatEveryNDays:
		if s.Repeat.Interval <= 0 {
			return fmt.Errorf("%w: %d", ErrInvalidInterval, s.Repeat.Interval)
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidRepeatType, s.Repeat.Type)
	}
	if s.Repeat.Type == RepeatDaysOfWeek {
		for _, d := range s.Repeat.Weekdays {
			if d < time.Sunday || d > time.Saturday {
				return fmt.Errorf("%w: %d", ErrInvalidWeekday, d)
			}
		}
	}
	if s.Recurring && s.Repeat.Type == RepeatSpecificDates {
		return ErrSpecificDatesRecur
	}
	return nil
}

// State derives the occurrence state from the stored flags
func (s *Schedule) State() OccurrenceState {
	switch {
	case s.ManuallyUnlocked:
		return StateManuallyUnlocked
	case s.Opened && s.Missed:
		return StateMissed
	case s.Opened && s.AutoRelockAt != nil:
		return StatePendingRelock
	case s.Opened:
		return StateFired
	default:
		return StatePending
	}
}

// MarkFired records a successful dispatch at now. The auto-relock expiry is
// derived from the schedule's own lock duration; zero means never relock.
func (s *Schedule) MarkFired(now time.Time) {
	s.Opened = true
	s.OpenedAt = timePtr(now)
	s.Missed = false
	s.OpenCount++
	if s.LockMinutes == 0 {
		s.AutoRelockAt = nil
	} else {
		s.AutoRelockAt = timePtr(now.Add(time.Duration(s.LockMinutes) * time.Minute))
	}
}

// MarkMissed flags a one-time schedule whose grace window elapsed without firing
func (s *Schedule) MarkMissed(now time.Time) {
	s.Opened = true
	s.OpenedAt = timePtr(now)
	s.Missed = true
}

// Unlock suspends the schedule at the user's request
func (s *Schedule) Unlock(now time.Time) {
	s.ManuallyUnlocked = true
	s.UnlockedAt = timePtr(now)
}

// Relock ends a manual suspension
func (s *Schedule) Relock() {
	s.ManuallyUnlocked = false
	s.UnlockedAt = nil
}

// Rearm resets the occurrence to pending at the given due time
func (s *Schedule) Rearm(due time.Time) {
	s.DueTime = due
	s.Opened = false
	s.OpenedAt = nil
	s.Missed = false
	s.AutoRelockAt = nil
	s.ManuallyUnlocked = false
	s.UnlockedAt = nil
	s.ReminderSent = false
}

// Expired reports whether the schedule's expiration date has passed
func (s *Schedule) Expired(now time.Time) bool {
	return s.ExpirationDate != nil && now.After(*s.ExpirationDate)
}

// DisplayName returns the user-facing label used in notifications and logs
func (s *Schedule) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.Target
}

func timePtr(t time.Time) *time.Time { return &t }
