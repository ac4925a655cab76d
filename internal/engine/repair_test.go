package engine_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/t77yq/tabsched/internal/engine"
	"github.com/t77yq/tabsched/internal/model"
)

func TestRepairDeduplicatesByID(t *testing.T) {
	now := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

	first := schedule("dup", now.Add(time.Hour))
	first.Name = "keep me"
	second := schedule("dup", now.Add(2*time.Hour))
	second.Name = "drop me"
	other := schedule("other", now.Add(time.Hour))

	repaired, report := engine.Repair(now, []*model.Schedule{first, second, other})

	require.Len(t, repaired, 2)
	assert.Equal(t, "keep me", repaired[0].Name, "first occurrence wins")
	assert.Equal(t, 1, report.DuplicateIDs)
}

func TestRepairDropsTargetless(t *testing.T) {
	now := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

	broken := &model.Schedule{ID: "broken", DueTime: now.Add(time.Hour)}
	ok := schedule("ok", now.Add(time.Hour))

	repaired, report := engine.Repair(now, []*model.Schedule{broken, ok})

	require.Len(t, repaired, 1)
	assert.Equal(t, "ok", repaired[0].ID)
	assert.Equal(t, 1, report.DroppedTargetless)
}

func TestRepairFillsMissingFields(t *testing.T) {
	now := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

	s := &model.Schedule{
		Target:      "https://example.com",
		DueTime:     now.Add(time.Hour),
		LockMinutes: -1,
	}

	repaired, report := engine.Repair(now, []*model.Schedule{s})

	require.Len(t, repaired, 1)
	fixed := repaired[0]
	assert.NotEmpty(t, fixed.ID)
	assert.Equal(t, model.DefaultCategory, fixed.Category)
	assert.Equal(t, model.DefaultLockMinutes, fixed.LockMinutes)
	assert.Equal(t, model.RepeatNone, fixed.Repeat.Type)
	assert.Equal(t, 1, report.MissingFields)
}

func TestRepairDropsOutOfRangeWeekdays(t *testing.T) {
	now := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

	s := schedule("s", now.Add(time.Hour))
	s.Recurring = true
	s.Repeat = model.RepeatPolicy{
		Type:     model.RepeatDaysOfWeek,
		Weekdays: []time.Weekday{9, time.Wednesday, -1},
	}

	repaired, report := engine.Repair(now, []*model.Schedule{s})

	require.Len(t, repaired, 1)
	assert.Equal(t, []time.Weekday{time.Wednesday}, repaired[0].Repeat.Weekdays)
	assert.Equal(t, 1, report.MissingFields)
}

func TestRepairOpenedWithoutOpenedAt(t *testing.T) {
	now := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

	s := schedule("s", now.Add(-2*time.Hour))
	s.Opened = true

	repaired, report := engine.Repair(now, []*model.Schedule{s})

	require.Len(t, repaired, 1)
	require.NotNil(t, repaired[0].OpenedAt)
	assert.Equal(t, repaired[0].DueTime, *repaired[0].OpenedAt)
	assert.Equal(t, 1, report.MissingFields)
}

func TestRepairAdvancesStuckRecurring(t *testing.T) {
	now := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

	s := recurring("stuck", now.Add(-50*time.Hour), model.RepeatPolicy{Type: model.RepeatDaily})
	s.Opened = true
	at := s.DueTime
	s.OpenedAt = &at

	repaired, report := engine.Repair(now, []*model.Schedule{s})

	require.Len(t, repaired, 1)
	fixed := repaired[0]
	assert.True(t, fixed.DueTime.After(now))
	assert.LessOrEqual(t, fixed.DueTime.Sub(now), 24*time.Hour)
	assert.False(t, fixed.Opened, "rearming clears the fired state")
	assert.Equal(t, 1, report.StuckRecurring)
}

func TestRepairCountsRunawayRecurrence(t *testing.T) {
	now := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

	s := recurring("runaway", now.AddDate(-2, 0, 0),
		model.RepeatPolicy{Type: model.RepeatEveryNMinutes, Interval: 1})

	repaired, report := engine.Repair(now, []*model.Schedule{s})

	require.Len(t, repaired, 1, "runaway schedules are kept, not dropped")
	assert.Equal(t, 1, report.RunawaySchedules)
	assert.Equal(t, 0, report.StuckRecurring)
}

func TestRepairResetsFutureOpened(t *testing.T) {
	now := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

	s := schedule("s", now.Add(3*time.Hour))
	s.MarkFired(now.Add(-time.Hour))

	repaired, report := engine.Repair(now, []*model.Schedule{s})

	require.Len(t, repaired, 1)
	assert.False(t, repaired[0].Opened)
	assert.Nil(t, repaired[0].OpenedAt)
	assert.Equal(t, 1, report.ResetOpened)
}

func TestRepairIdempotent(t *testing.T) {
	now := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

	dirty := []*model.Schedule{
		schedule("dup", now.Add(time.Hour)),
		schedule("dup", now.Add(time.Hour)),
		{Target: "https://example.com", DueTime: now.Add(time.Hour), LockMinutes: -1},
		recurring("stuck", now.Add(-30*time.Hour), model.RepeatPolicy{Type: model.RepeatDaily}),
	}

	once, firstReport := engine.Repair(now, dirty)
	assert.Positive(t, firstReport.Total())

	twice, secondReport := engine.Repair(now, once)
	assert.Equal(t, 0, secondReport.Total(), "second run finds nothing to fix")
	assert.Equal(t, once, twice)
}

func TestRepairHealthySetUntouched(t *testing.T) {
	now := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

	a := schedule("a", now.Add(time.Hour))
	a.Category = "Work"
	b := recurring("b", now.Add(2*time.Hour), model.RepeatPolicy{Type: model.RepeatDaily})
	b.Category = "Home"

	repaired, report := engine.Repair(now, []*model.Schedule{a, b})

	assert.Equal(t, 0, report.Total())
	require.Len(t, repaired, 2)
}
