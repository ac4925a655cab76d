package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"github.com/t77yq/tabsched/internal/model"
	"github.com/t77yq/tabsched/internal/storage"
)

const statsSubject = "metrics.scheduler"

// Stats is a point-in-time summary of the schedule set and the host
type Stats struct {
	Timestamp   time.Time  `json:"timestamp"`
	Total       int        `json:"total"`
	Active      int        `json:"active"`
	Fired       int        `json:"fired"`
	Missed      int        `json:"missed"`
	Suspended   int        `json:"suspended"`
	OpenedToday int        `json:"opened_today"`
	NextDue     *time.Time `json:"next_due,omitempty"`
	CPUUsage    float64    `json:"cpu_usage"`
	MemoryUsage float64    `json:"memory_usage"`
}

// StatsCollector periodically summarizes the schedule set and system load
// and publishes the result for dashboards. The latest snapshot stays
// available through GetSnapshot even when publishing is disabled.
type StatsCollector struct {
	logger   *zap.Logger
	js       nats.JetStreamContext
	store    storage.ScheduleStore
	interval time.Duration

	mu   sync.RWMutex
	last Stats

	stop chan struct{}
}

// NewStatsCollector creates a collector; js may be nil to disable publishing
func NewStatsCollector(js nats.JetStreamContext, store storage.ScheduleStore, interval time.Duration, logger *zap.Logger) *StatsCollector {
	if interval <= 0 {
		interval = time.Minute
	}
	return &StatsCollector{
		logger:   logger.Named("stats-collector"),
		js:       js,
		store:    store,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

// Start starts the collection loop
func (c *StatsCollector) Start(ctx context.Context) {
	c.logger.Info("Starting stats collector",
		zap.Duration("interval", c.interval))
	go c.collectLoop(ctx)
}

// Stop stops the collection loop
func (c *StatsCollector) Stop() {
	c.logger.Info("Stopping stats collector")
	close(c.stop)
}

// GetSnapshot returns the most recently collected stats
func (c *StatsCollector) GetSnapshot() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}

func (c *StatsCollector) collectLoop(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		case <-ticker.C:
			if err := c.collect(ctx); err != nil {
				c.logger.Error("Failed to collect stats", zap.Error(err))
			}
		}
	}
}

func (c *StatsCollector) collect(ctx context.Context) error {
	schedules, err := c.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load schedules: %w", err)
	}

	stats := ComputeStats(schedules, time.Now())

	if cpuPercent, err := cpu.Percent(0, false); err == nil && len(cpuPercent) > 0 {
		stats.CPUUsage = cpuPercent[0]
	}
	if memInfo, err := mem.VirtualMemory(); err == nil {
		stats.MemoryUsage = memInfo.UsedPercent
	}

	c.mu.Lock()
	c.last = stats
	c.mu.Unlock()

	if c.js == nil {
		return nil
	}

	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}
	if _, err := c.js.Publish(statsSubject, data); err != nil {
		return fmt.Errorf("failed to publish stats: %w", err)
	}

	c.logger.Debug("Stats collected",
		zap.Int("total", stats.Total),
		zap.Int("active", stats.Active),
		zap.Float64("cpu_usage", stats.CPUUsage))
	return nil
}

// ComputeStats summarizes a schedule snapshot at the given time
func ComputeStats(schedules []*model.Schedule, now time.Time) Stats {
	stats := Stats{Timestamp: now, Total: len(schedules)}

	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	for _, s := range schedules {
		switch s.State() {
		case model.StatePending:
			stats.Active++
			if stats.NextDue == nil || s.DueTime.Before(*stats.NextDue) {
				due := s.DueTime
				stats.NextDue = &due
			}
		case model.StateFired, model.StatePendingRelock:
			stats.Fired++
		case model.StateMissed:
			stats.Missed++
		case model.StateManuallyUnlocked:
			stats.Suspended++
		}
		if s.OpenedAt != nil && !s.OpenedAt.Before(startOfDay) {
			stats.OpenedToday++
		}
	}
	return stats
}
