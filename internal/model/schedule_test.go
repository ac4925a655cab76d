package model

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSchedule() *Schedule {
	return &Schedule{
		ID:      "s1",
		Target:  "https://example.com",
		DueTime: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
		Repeat:  RepeatPolicy{Type: RepeatNone},
	}
}

func TestScheduleValidate(t *testing.T) {
	t.Run("valid schedule passes", func(t *testing.T) {
		require.NoError(t, validSchedule().Validate())
	})

	t.Run("empty target rejected", func(t *testing.T) {
		s := validSchedule()
		s.Target = ""
		require.ErrorIs(t, s.Validate(), ErrEmptyTarget)
	})

	t.Run("zero due time rejected", func(t *testing.T) {
		s := validSchedule()
		s.DueTime = time.Time{}
		require.ErrorIs(t, s.Validate(), ErrZeroDueTime)
	})

	t.Run("unknown repeat type rejected", func(t *testing.T) {
		s := validSchedule()
		s.Repeat.Type = "fortnightly"
		require.ErrorIs(t, s.Validate(), ErrInvalidRepeatType)
	})

	t.Run("every-n types require positive interval", func(t *testing.T) {
		for _, rt := range []RepeatType{
			RepeatEveryNWeeks, RepeatEveryNMonths, RepeatEveryNYears,
			RepeatEveryNMinutes, RepeatEveryNHours, RepeatEveryNDays,
		} {
			s := validSchedule()
			s.Repeat = RepeatPolicy{Type: rt}
			require.ErrorIs(t, s.Validate(), ErrInvalidInterval, "type %s", rt)

			s.Repeat.Interval = 3
			require.NoError(t, s.Validate(), "type %s", rt)
		}
	})

	t.Run("out-of-range weekday rejected", func(t *testing.T) {
		s := validSchedule()
		s.Repeat = RepeatPolicy{
			Type:     RepeatDaysOfWeek,
			Weekdays: []time.Weekday{time.Monday, 9},
		}
		require.ErrorIs(t, s.Validate(), ErrInvalidWeekday)

		s.Repeat.Weekdays = []time.Weekday{-1}
		require.ErrorIs(t, s.Validate(), ErrInvalidWeekday)

		s.Repeat.Weekdays = []time.Weekday{time.Sunday, time.Saturday}
		require.NoError(t, s.Validate())
	})

	t.Run("specific dates cannot be recurring", func(t *testing.T) {
		s := validSchedule()
		s.Recurring = true
		s.Repeat = RepeatPolicy{Type: RepeatSpecificDates}
		require.ErrorIs(t, s.Validate(), ErrSpecificDatesRecur)
	})

	t.Run("empty repeat type allowed", func(t *testing.T) {
		s := validSchedule()
		s.Repeat = RepeatPolicy{}
		require.NoError(t, s.Validate())
	})
}

func TestScheduleState(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	s := validSchedule()
	assert.Equal(t, StatePending, s.State())

	s.MarkFired(now)
	assert.Equal(t, StatePendingRelock, s.State())

	s.AutoRelockAt = nil
	assert.Equal(t, StateFired, s.State())

	s = validSchedule()
	s.MarkMissed(now)
	assert.Equal(t, StateMissed, s.State())

	s = validSchedule()
	s.Unlock(now)
	assert.Equal(t, StateManuallyUnlocked, s.State())

	s.Relock()
	assert.Equal(t, StatePending, s.State())
}

func TestMarkFired(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	s := validSchedule()
	s.LockMinutes = 30
	s.MarkFired(now)

	require.True(t, s.Opened)
	require.NotNil(t, s.OpenedAt)
	assert.Equal(t, now, *s.OpenedAt)
	assert.Equal(t, 1, s.OpenCount)
	require.NotNil(t, s.AutoRelockAt)
	assert.Equal(t, now.Add(30*time.Minute), *s.AutoRelockAt)

	s.MarkFired(now.Add(time.Hour))
	assert.Equal(t, 2, s.OpenCount)
}

func TestMarkFiredZeroLockNeverRelocks(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	s := validSchedule()
	s.LockMinutes = 0
	s.MarkFired(now)

	require.True(t, s.Opened)
	assert.Nil(t, s.AutoRelockAt)
}

func TestRearmResetsOccurrenceState(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	next := now.Add(24 * time.Hour)

	s := validSchedule()
	s.LockMinutes = 5
	s.MarkFired(now)
	s.ReminderSent = true
	s.Unlock(now)

	s.Rearm(next)

	assert.Equal(t, next, s.DueTime)
	assert.False(t, s.Opened)
	assert.Nil(t, s.OpenedAt)
	assert.False(t, s.Missed)
	assert.Nil(t, s.AutoRelockAt)
	assert.False(t, s.ManuallyUnlocked)
	assert.Nil(t, s.UnlockedAt)
	assert.False(t, s.ReminderSent)
	assert.Equal(t, 1, s.OpenCount, "open count survives rearm")
}

func TestExpired(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	s := validSchedule()
	assert.False(t, s.Expired(now))

	exp := now.Add(-time.Minute)
	s.ExpirationDate = &exp
	assert.True(t, s.Expired(now))

	exp = now
	s.ExpirationDate = &exp
	assert.False(t, s.Expired(now), "expiration is inclusive")
}

func TestDisplayName(t *testing.T) {
	s := validSchedule()
	assert.Equal(t, "https://example.com", s.DisplayName())

	s.Name = "Morning standup"
	assert.Equal(t, "Morning standup", s.DisplayName())
}

func TestSettingsNormalize(t *testing.T) {
	var s Settings
	s.Normalize()

	assert.Equal(t, DefaultGracePeriod, s.GracePeriod)
	assert.Equal(t, DefaultStaggerInterval, s.StaggerInterval)
	assert.Equal(t, "daily", s.AutoBackupFrequency)
	assert.Equal(t, 5, s.AutoBackupKeep)

	custom := Settings{
		GracePeriod:     10 * time.Minute,
		StaggerInterval: time.Second,
		ReminderLead:    0,
	}
	custom.Normalize()
	assert.Equal(t, 10*time.Minute, custom.GracePeriod)
	assert.Equal(t, time.Second, custom.StaggerInterval)
	assert.Equal(t, time.Duration(0), custom.ReminderLead, "zero lead means reminders off")
}

func TestValidateWrappedErrors(t *testing.T) {
	s := validSchedule()
	s.Repeat = RepeatPolicy{Type: RepeatEveryNDays, Interval: -1}
	err := s.Validate()
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrInvalidInterval))
	assert.Contains(t, err.Error(), "-1")
}
