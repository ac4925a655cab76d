package notify

import (
	"context"
	"time"

	"github.com/t77yq/tabsched/internal/model"
)

// EventKind identifies the user-facing message a notification carries
type EventKind string

const (
	EventReminder EventKind = "reminder"
	EventOpened   EventKind = "opened"
	EventMissed   EventKind = "missed"
	EventRelocked EventKind = "relocked"
	EventFault    EventKind = "fault"
	EventHealth   EventKind = "health"
	EventBackup   EventKind = "backup"
	EventSound    EventKind = "sound"
)

// Event is the serialized form published for every notification
type Event struct {
	Kind       EventKind `json:"kind"`
	ScheduleID string    `json:"schedule_id,omitempty"`
	Name       string    `json:"name,omitempty"`
	Target     string    `json:"target,omitempty"`
	Message    string    `json:"message"`
	At         time.Time `json:"at"`
}

// Notifier is the one-way channel for user-facing messages. Calls are
// fire-and-forget from the engine's perspective; implementations log
// delivery failures instead of propagating them.
type Notifier interface {
	// Reminder announces that a schedule opens within the lead window
	Reminder(ctx context.Context, s *model.Schedule, lead time.Duration)

	// Opened announces a successful dispatch
	Opened(ctx context.Context, s *model.Schedule)

	// Missed announces a one-time schedule whose window elapsed
	Missed(ctx context.Context, s *model.Schedule)

	// Relocked announces that a schedule re-engaged; auto distinguishes
	// manual-unlock expiry from the post-fire relock window
	Relocked(ctx context.Context, s *model.Schedule, auto bool)

	// Fault surfaces a fatal per-schedule configuration error
	Fault(ctx context.Context, s *model.Schedule, err error)

	// HealthReport summarizes a repair pass that fixed at least one issue
	HealthReport(ctx context.Context, fixed int, detail string)

	// BackupCreated announces an automatic backup
	BackupCreated(ctx context.Context, at time.Time, scheduleCount int)

	// Sound requests the notification sound for a firing schedule
	Sound(ctx context.Context, s *model.Schedule)
}
