package engine_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/t77yq/tabsched/internal/engine"
	"github.com/t77yq/tabsched/internal/model"
)

func TestNextOccurrenceStrictlyAfter(t *testing.T) {
	base := time.Date(2025, 1, 31, 10, 30, 0, 0, time.UTC)

	policies := []model.RepeatPolicy{
		{Type: model.RepeatDaily},
		{Type: model.RepeatWeekdays},
		{Type: model.RepeatWeekends},
		{Type: model.RepeatWeekly},
		{Type: model.RepeatMonthly},
		{Type: model.RepeatYearly},
		{Type: model.RepeatEveryNMinutes, Interval: 90},
		{Type: model.RepeatEveryNHours, Interval: 4},
		{Type: model.RepeatEveryNDays, Interval: 10},
		{Type: model.RepeatEveryNWeeks, Interval: 2},
		{Type: model.RepeatEveryNMonths, Interval: 3},
		{Type: model.RepeatEveryNYears, Interval: 2},
		{Type: model.RepeatDaysOfWeek, Weekdays: []time.Weekday{time.Monday, time.Thursday}},
		{Type: model.RepeatDaysOfWeek},
	}

	for _, p := range policies {
		next := engine.NextOccurrence(base, p)
		assert.True(t, next.After(base), "type %s must advance past %s, got %s", p.Type, base, next)
	}
}

func TestNextOccurrenceIntervals(t *testing.T) {
	base := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC) // a Monday

	tests := []struct {
		name   string
		policy model.RepeatPolicy
		want   time.Time
	}{
		{"daily", model.RepeatPolicy{Type: model.RepeatDaily}, base.AddDate(0, 0, 1)},
		{"weekly", model.RepeatPolicy{Type: model.RepeatWeekly}, base.AddDate(0, 0, 7)},
		{"every 3 weeks", model.RepeatPolicy{Type: model.RepeatEveryNWeeks, Interval: 3}, base.AddDate(0, 0, 21)},
		{"every 45 minutes", model.RepeatPolicy{Type: model.RepeatEveryNMinutes, Interval: 45}, base.Add(45 * time.Minute)},
		{"every 6 hours", model.RepeatPolicy{Type: model.RepeatEveryNHours, Interval: 6}, base.Add(6 * time.Hour)},
		{"every 2 days", model.RepeatPolicy{Type: model.RepeatEveryNDays, Interval: 2}, base.AddDate(0, 0, 2)},
		{"monthly", model.RepeatPolicy{Type: model.RepeatMonthly}, time.Date(2025, 7, 2, 9, 0, 0, 0, time.UTC)},
		{"yearly", model.RepeatPolicy{Type: model.RepeatYearly}, time.Date(2026, 6, 2, 9, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, engine.NextOccurrence(base, tt.policy))
		})
	}
}

func TestNextOccurrenceWeekdays(t *testing.T) {
	friday := time.Date(2025, 6, 6, 17, 0, 0, 0, time.UTC)
	p := model.RepeatPolicy{Type: model.RepeatWeekdays}

	next := engine.NextOccurrence(friday, p)
	assert.Equal(t, time.Monday, next.Weekday(), "Friday skips the weekend")
	assert.Equal(t, time.Date(2025, 6, 9, 17, 0, 0, 0, time.UTC), next)

	monday := next
	assert.Equal(t, time.Tuesday, engine.NextOccurrence(monday, p).Weekday())
}

func TestNextOccurrenceWeekends(t *testing.T) {
	saturday := time.Date(2025, 6, 7, 10, 0, 0, 0, time.UTC)
	p := model.RepeatPolicy{Type: model.RepeatWeekends}

	next := engine.NextOccurrence(saturday, p)
	assert.Equal(t, time.Sunday, next.Weekday())

	sunday := next
	next = engine.NextOccurrence(sunday, p)
	assert.Equal(t, time.Saturday, next.Weekday(), "Sunday jumps to next Saturday")
	assert.Equal(t, time.Date(2025, 6, 14, 10, 0, 0, 0, time.UTC), next)
}

func TestNextOccurrenceDaysOfWeek(t *testing.T) {
	monday := time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)
	p := model.RepeatPolicy{
		Type:     model.RepeatDaysOfWeek,
		Weekdays: []time.Weekday{time.Monday, time.Wednesday, time.Friday},
	}

	wed := engine.NextOccurrence(monday, p)
	assert.Equal(t, time.Wednesday, wed.Weekday())

	fri := engine.NextOccurrence(wed, p)
	assert.Equal(t, time.Friday, fri.Weekday())

	nextMon := engine.NextOccurrence(fri, p)
	assert.Equal(t, time.Monday, nextMon.Weekday())
	assert.Equal(t, monday.AddDate(0, 0, 7), nextMon)
}

func TestNextOccurrenceDaysOfWeekEmptySetFallsBackDaily(t *testing.T) {
	base := time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)
	p := model.RepeatPolicy{Type: model.RepeatDaysOfWeek}

	assert.Equal(t, base.AddDate(0, 0, 1), engine.NextOccurrence(base, p))
}

func TestNextOccurrenceDaysOfWeekOutOfRangeSetTerminates(t *testing.T) {
	base := time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)

	// A weekday outside Sunday..Saturday can never match a calendar day.
	// Such a set can reach the calculator through an imported snapshot or
	// a corrupted policy column, so it must not stall the advance.
	p := model.RepeatPolicy{
		Type:     model.RepeatDaysOfWeek,
		Weekdays: []time.Weekday{9},
	}
	assert.Equal(t, base.AddDate(0, 0, 1), engine.NextOccurrence(base, p))

	next, err := engine.AdvanceUntilAfter(base, base.AddDate(0, 0, 3), p)
	require.NoError(t, err)
	assert.True(t, next.After(base.AddDate(0, 0, 3)))
}

func TestNextOccurrenceDaysOfWeekIgnoresOutOfRangeEntries(t *testing.T) {
	monday := time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)
	p := model.RepeatPolicy{
		Type:     model.RepeatDaysOfWeek,
		Weekdays: []time.Weekday{9, time.Thursday, -1},
	}

	next := engine.NextOccurrence(monday, p)
	assert.Equal(t, time.Thursday, next.Weekday())
	assert.Equal(t, monday.AddDate(0, 0, 3), next)
}

func TestNextOccurrenceMonthOverflowRollsOver(t *testing.T) {
	jan31 := time.Date(2025, 1, 31, 9, 0, 0, 0, time.UTC)
	p := model.RepeatPolicy{Type: model.RepeatMonthly}

	// Jan 31 + 1 month normalizes into early March
	next := engine.NextOccurrence(jan31, p)
	assert.Equal(t, time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC), next)
}

func TestNextOccurrenceNonPositiveIntervalTreatedAsOne(t *testing.T) {
	base := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	p := model.RepeatPolicy{Type: model.RepeatEveryNDays, Interval: 0}

	assert.Equal(t, base.AddDate(0, 0, 1), engine.NextOccurrence(base, p))
}

func TestAdvanceUntilAfter(t *testing.T) {
	due := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	now := due.Add(50 * time.Hour)
	p := model.RepeatPolicy{Type: model.RepeatDaily}

	next, err := engine.AdvanceUntilAfter(due, now, p)
	require.NoError(t, err)

	assert.True(t, next.After(now))
	assert.LessOrEqual(t, next.Sub(now), 24*time.Hour, "lands within one period of now")
	assert.Equal(t, due.Add(72*time.Hour), next, "step stays anchored to the original due time")
}

func TestAdvanceUntilAfterAlreadyFuture(t *testing.T) {
	due := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	now := due.Add(-time.Hour)
	p := model.RepeatPolicy{Type: model.RepeatDaily}

	// Even a future due time advances at least one occurrence
	next, err := engine.AdvanceUntilAfter(due, now, p)
	require.NoError(t, err)
	assert.Equal(t, due.AddDate(0, 0, 1), next)
}

func TestAdvanceUntilAfterRunaway(t *testing.T) {
	due := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	p := model.RepeatPolicy{Type: model.RepeatEveryNMinutes, Interval: 1}

	_, err := engine.AdvanceUntilAfter(due, now, p)
	require.ErrorIs(t, err, engine.ErrRunawayRecurrence)
}
