package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/t77yq/tabsched/internal/model"
)

const (
	notificationStreamName = "NOTIFICATIONS"

	subjectReminder = "notify.reminder"
	subjectOpened   = "notify.opened"
	subjectMissed   = "notify.missed"
	subjectRelocked = "notify.relocked"
	subjectFault    = "notify.fault"
	subjectHealth   = "notify.health"
	subjectBackup   = "notify.backup"
	subjectSound    = "notify.sound"

	notificationMaxAge = 24 * time.Hour
)

// NATSNotifier publishes notification events to a JetStream stream so any
// number of consumers (desktop notifier, sound player, dashboards) can
// subscribe without the engine knowing about them.
type NATSNotifier struct {
	logger *zap.Logger
	js     nats.JetStreamContext
}

// NewNATSNotifier creates the notifier and ensures the stream exists
func NewNATSNotifier(js nats.JetStreamContext, logger *zap.Logger) (*NATSNotifier, error) {
	_, err := js.StreamInfo(notificationStreamName)
	if err != nil {
		if err != nats.ErrStreamNotFound {
			return nil, fmt.Errorf("failed to get stream info: %w", err)
		}
		_, err = js.AddStream(&nats.StreamConfig{
			Name:     notificationStreamName,
			Subjects: []string{"notify.*"},
			Storage:  nats.FileStorage,
			MaxAge:   notificationMaxAge,
			MaxMsgs:  -1,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create stream: %w", err)
		}
		logger.Info("Created notification stream", zap.String("name", notificationStreamName))
	}

	return &NATSNotifier{
		logger: logger.Named("notifier"),
		js:     js,
	}, nil
}

// Reminder implements Notifier.Reminder
func (n *NATSNotifier) Reminder(ctx context.Context, s *model.Schedule, lead time.Duration) {
	n.publish(subjectReminder, Event{
		Kind:       EventReminder,
		ScheduleID: s.ID,
		Name:       s.Name,
		Target:     s.Target,
		Message:    fmt.Sprintf("%q opens in %s", s.DisplayName(), lead),
		At:         time.Now(),
	})
}

// Opened implements Notifier.Opened
func (n *NATSNotifier) Opened(ctx context.Context, s *model.Schedule) {
	n.publish(subjectOpened, Event{
		Kind:       EventOpened,
		ScheduleID: s.ID,
		Name:       s.Name,
		Target:     s.Target,
		Message:    fmt.Sprintf("Opened: %s", s.DisplayName()),
		At:         time.Now(),
	})
}

// Missed implements Notifier.Missed
func (n *NATSNotifier) Missed(ctx context.Context, s *model.Schedule) {
	n.publish(subjectMissed, Event{
		Kind:       EventMissed,
		ScheduleID: s.ID,
		Name:       s.Name,
		Target:     s.Target,
		Message:    fmt.Sprintf("Missed window: %s", s.DisplayName()),
		At:         time.Now(),
	})
}

// Relocked implements Notifier.Relocked
func (n *NATSNotifier) Relocked(ctx context.Context, s *model.Schedule, auto bool) {
	msg := fmt.Sprintf("Re-locked: %s", s.DisplayName())
	if auto {
		msg = fmt.Sprintf("Auto re-locked: %s", s.DisplayName())
	}
	n.publish(subjectRelocked, Event{
		Kind:       EventRelocked,
		ScheduleID: s.ID,
		Name:       s.Name,
		Target:     s.Target,
		Message:    msg,
		At:         time.Now(),
	})
}

// Fault implements Notifier.Fault
func (n *NATSNotifier) Fault(ctx context.Context, s *model.Schedule, err error) {
	n.publish(subjectFault, Event{
		Kind:       EventFault,
		ScheduleID: s.ID,
		Name:       s.Name,
		Target:     s.Target,
		Message:    fmt.Sprintf("Schedule %q needs attention: %v", s.DisplayName(), err),
		At:         time.Now(),
	})
}

// HealthReport implements Notifier.HealthReport
func (n *NATSNotifier) HealthReport(ctx context.Context, fixed int, detail string) {
	n.publish(subjectHealth, Event{
		Kind:    EventHealth,
		Message: fmt.Sprintf("Health check fixed %d issues: %s", fixed, detail),
		At:      time.Now(),
	})
}

// BackupCreated implements Notifier.BackupCreated
func (n *NATSNotifier) BackupCreated(ctx context.Context, at time.Time, scheduleCount int) {
	n.publish(subjectBackup, Event{
		Kind:    EventBackup,
		Message: fmt.Sprintf("Backup created with %d schedules", scheduleCount),
		At:      at,
	})
}

// Sound implements Notifier.Sound
func (n *NATSNotifier) Sound(ctx context.Context, s *model.Schedule) {
	n.publish(subjectSound, Event{
		Kind:       EventSound,
		ScheduleID: s.ID,
		Message:    "play",
		At:         time.Now(),
	})
}

func (n *NATSNotifier) publish(subject string, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		n.logger.Error("Failed to marshal notification event", zap.Error(err))
		return
	}
	if _, err := n.js.Publish(subject, data); err != nil {
		n.logger.Error("Failed to publish notification",
			zap.String("subject", subject),
			zap.Error(err))
	}
}
