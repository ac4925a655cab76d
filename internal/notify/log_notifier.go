package notify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/t77yq/tabsched/internal/model"
)

// LogNotifier writes notifications to the log only. It is the fallback when
// the NATS bus is disabled in the configuration.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a log-only notifier
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.Named("notifier")}
}

func (n *LogNotifier) Reminder(ctx context.Context, s *model.Schedule, lead time.Duration) {
	n.logger.Info("Reminder",
		zap.String("schedule", s.DisplayName()),
		zap.Duration("opens_in", lead))
}

func (n *LogNotifier) Opened(ctx context.Context, s *model.Schedule) {
	n.logger.Info("Opened", zap.String("schedule", s.DisplayName()))
}

func (n *LogNotifier) Missed(ctx context.Context, s *model.Schedule) {
	n.logger.Warn("Missed window", zap.String("schedule", s.DisplayName()))
}

func (n *LogNotifier) Relocked(ctx context.Context, s *model.Schedule, auto bool) {
	n.logger.Info("Re-locked",
		zap.String("schedule", s.DisplayName()),
		zap.Bool("auto", auto))
}

func (n *LogNotifier) Fault(ctx context.Context, s *model.Schedule, err error) {
	n.logger.Error("Schedule fault",
		zap.String("schedule", s.DisplayName()),
		zap.Error(err))
}

func (n *LogNotifier) HealthReport(ctx context.Context, fixed int, detail string) {
	n.logger.Info("Health check report",
		zap.Int("fixed", fixed),
		zap.String("detail", detail))
}

func (n *LogNotifier) BackupCreated(ctx context.Context, at time.Time, scheduleCount int) {
	n.logger.Info("Backup created",
		zap.Time("at", at),
		zap.Int("schedules", scheduleCount))
}

func (n *LogNotifier) Sound(ctx context.Context, s *model.Schedule) {
	n.logger.Debug("Sound requested", zap.String("schedule", s.DisplayName()))
}
