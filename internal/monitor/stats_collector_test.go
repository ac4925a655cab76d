package monitor_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/t77yq/tabsched/internal/model"
	"github.com/t77yq/tabsched/internal/monitor"
)

func sched(id string, due time.Time) *model.Schedule {
	return &model.Schedule{
		ID:      id,
		Target:  "https://example.com/" + id,
		DueTime: due,
		Repeat:  model.RepeatPolicy{Type: model.RepeatNone},
	}
}

func TestComputeStatsEmpty(t *testing.T) {
	now := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

	stats := monitor.ComputeStats(nil, now)
	assert.Equal(t, 0, stats.Total)
	assert.Nil(t, stats.NextDue)
	assert.Equal(t, now, stats.Timestamp)
}

func TestComputeStatsBuckets(t *testing.T) {
	now := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

	pending := sched("pending", now.Add(2*time.Hour))

	fired := sched("fired", now.Add(-time.Hour))
	fired.MarkFired(now.Add(-time.Hour))
	fired.AutoRelockAt = nil

	relocking := sched("relocking", now.Add(-time.Hour))
	relocking.LockMinutes = 5
	relocking.MarkFired(now.Add(-time.Minute))

	missed := sched("missed", now.Add(-3*time.Hour))
	missed.MarkMissed(now.Add(-2*time.Hour))

	suspended := sched("suspended", now.Add(time.Hour))
	suspended.Unlock(now)

	stats := monitor.ComputeStats([]*model.Schedule{pending, fired, relocking, missed, suspended}, now)

	assert.Equal(t, 5, stats.Total)
	assert.Equal(t, 1, stats.Active)
	assert.Equal(t, 2, stats.Fired)
	assert.Equal(t, 1, stats.Missed)
	assert.Equal(t, 1, stats.Suspended)
}

func TestComputeStatsNextDue(t *testing.T) {
	now := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

	later := sched("later", now.Add(5*time.Hour))
	sooner := sched("sooner", now.Add(time.Hour))
	firedSoonest := sched("fired", now.Add(30*time.Minute))
	firedSoonest.MarkFired(now)
	firedSoonest.AutoRelockAt = nil

	stats := monitor.ComputeStats([]*model.Schedule{later, sooner, firedSoonest}, now)

	require.NotNil(t, stats.NextDue)
	assert.Equal(t, sooner.DueTime, *stats.NextDue, "fired schedules do not count toward next due")
}

func TestComputeStatsOpenedToday(t *testing.T) {
	now := time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC)

	today := sched("today", now.Add(-6*time.Hour))
	today.MarkFired(now.Add(-5 * time.Hour))

	yesterday := sched("yesterday", now.Add(-30*time.Hour))
	yesterday.MarkFired(now.Add(-27 * time.Hour))

	stats := monitor.ComputeStats([]*model.Schedule{today, yesterday}, now)
	assert.Equal(t, 1, stats.OpenedToday)
}
