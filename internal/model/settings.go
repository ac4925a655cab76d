package model

import "time"

// Default user settings, applied when a field is unset in the store
const (
	DefaultGracePeriod     = 60 * time.Minute
	DefaultStaggerInterval = 15 * time.Second
	DefaultReminderLead    = 10 * time.Second
	DefaultLockMinutes     = 5
	DefaultCategory        = "Other"
	DefaultChainDelay      = 5
)

// Settings holds the user-controlled scheduling policy. It is loaded from the
// store at the start of each evaluation pass and written only by explicit
// user action.
type Settings struct {
	GracePeriod       time.Duration `json:"grace_period"`
	StaggerInterval   time.Duration `json:"stagger_interval"`
	ReminderLead      time.Duration `json:"reminder_lead"`
	Notifications     bool          `json:"notifications"`
	OpenInBackground  bool          `json:"open_in_background"`
	AutoDeleteExpired bool          `json:"auto_delete_expired"`
	PauseAll          bool          `json:"pause_all"`

	AutoBackup          bool   `json:"auto_backup"`
	AutoBackupFrequency string `json:"auto_backup_frequency"` // daily, weekly, monthly
	AutoBackupKeep      int    `json:"auto_backup_keep"`
}

// DefaultSettings returns the settings used for a fresh store
func DefaultSettings() Settings {
	return Settings{
		GracePeriod:         DefaultGracePeriod,
		StaggerInterval:     DefaultStaggerInterval,
		ReminderLead:        DefaultReminderLead,
		Notifications:       true,
		OpenInBackground:    true,
		AutoBackupFrequency: "daily",
		AutoBackupKeep:      5,
	}
}

// Normalize fills zero-valued policy fields with defaults. Settings read from
// older stores may miss fields; the engine never operates on a zero grace
// period or stagger interval.
func (s *Settings) Normalize() {
	if s.GracePeriod <= 0 {
		s.GracePeriod = DefaultGracePeriod
	}
	if s.StaggerInterval <= 0 {
		s.StaggerInterval = DefaultStaggerInterval
	}
	if s.ReminderLead < 0 {
		s.ReminderLead = DefaultReminderLead
	}
	if s.AutoBackupFrequency == "" {
		s.AutoBackupFrequency = "daily"
	}
	if s.AutoBackupKeep <= 0 {
		s.AutoBackupKeep = 5
	}
}
